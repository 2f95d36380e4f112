package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/staybook/pkg/apperr"
	"github.com/diagnosis/staybook/pkg/auth"
	"github.com/diagnosis/staybook/pkg/storage"
	"github.com/diagnosis/staybook/services/accounts/internal/domain"
	"github.com/diagnosis/staybook/services/accounts/internal/service"
)

type profileFixture struct {
	svc      service.ProfileService
	accounts *mockAccounts
	photos   *mockPhotos
	pending  *mockPending
	member   *domain.Account
	admin    *domain.Account
}

func newProfileFixture() profileFixture {
	accounts := newMockAccounts(nil)
	f := profileFixture{accounts: accounts, photos: &mockPhotos{}, pending: newMockPending()}
	f.member = accounts.add(domain.Account{Email: "ana@example.com", Name: "Ana", Role: auth.RoleMember,
		Active: true, Photo: domain.DefaultPhoto, PasswordHash: mustHash(password)})
	f.admin = accounts.add(domain.Account{Email: "root@example.com", Name: "Root", Role: auth.RoleAdmin, Active: true})
	f.svc = service.NewProfileService(accounts, f.photos, f.pending, 10*time.Minute)
	return f
}

func TestStagePhotoThenUpdateProfile(t *testing.T) {
	f := newProfileFixture()

	key, err := f.svc.StagePhoto(context.Background(), f.member.ID, service.Upload{Name: "me.png", Body: strings.NewReader("png")})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "photo:pending:1:"), key)

	a, err := f.svc.Update(context.Background(), f.member.ID, domain.UpdateProfileRequest{Name: "  Ana  Maria ", PhotoKey: key})
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", a.Name)
	assert.Equal(t, "stored-me.png", a.Photo)
	assert.Empty(t, f.photos.deleted, "the shared default photo is never deleted")

	// The staged key is consumed.
	_, err = f.svc.Update(context.Background(), f.member.ID, domain.UpdateProfileRequest{Name: "Ana", PhotoKey: key})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Contains(t, e.Fields, "photo_key")
}

func TestUpdateProfile_ReplacingPhotoDeletesOldFile(t *testing.T) {
	f := newProfileFixture()
	f.accounts.accounts[f.member.ID].Photo = "old.png"

	key, err := f.svc.StagePhoto(context.Background(), f.member.ID, service.Upload{Name: "new.png", Body: strings.NewReader("x")})
	require.NoError(t, err)
	_, err = f.svc.Update(context.Background(), f.member.ID, domain.UpdateProfileRequest{Name: "Ana", PhotoKey: key})
	require.NoError(t, err)

	assert.Equal(t, []string{"old.png"}, f.photos.deleted)
}

func TestUpdateProfile_ForeignKeyRejected(t *testing.T) {
	f := newProfileFixture()
	f.pending.values["photo:pending:99:abc"] = "x.png"

	_, err := f.svc.Update(context.Background(), f.member.ID, domain.UpdateProfileRequest{Name: "Ana", PhotoKey: "photo:pending:99:abc"})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, e.Kind)
	assert.Contains(t, e.Fields, "photo_key")
	assert.Contains(t, f.pending.values, "photo:pending:99:abc")
}

func TestUpdateProfile_NameOnlyKeepsPhoto(t *testing.T) {
	f := newProfileFixture()

	a, err := f.svc.Update(context.Background(), f.admin.ID, domain.UpdateProfileRequest{Name: "Boss"})
	require.NoError(t, err)
	assert.Equal(t, "Boss", a.Name)
	assert.Empty(t, a.Photo)
}

func TestStagePhoto_Rejections(t *testing.T) {
	t.Run("administrator", func(t *testing.T) {
		f := newProfileFixture()
		_, err := f.svc.StagePhoto(context.Background(), f.admin.ID, service.Upload{Name: "a.png", Body: strings.NewReader("x")})
		assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
		assert.Empty(t, f.photos.saved)
	})

	t.Run("unsupported type", func(t *testing.T) {
		f := newProfileFixture()
		f.photos.saveErr = storage.ErrUnsupportedType
		_, err := f.svc.StagePhoto(context.Background(), f.member.ID, service.Upload{Name: "a.exe", Body: strings.NewReader("x")})
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	})

	t.Run("staging failure discards file", func(t *testing.T) {
		f := newProfileFixture()
		f.pending.err = errBoom
		_, err := f.svc.StagePhoto(context.Background(), f.member.ID, service.Upload{Name: "a.png", Body: strings.NewReader("x")})
		require.Error(t, err)
		assert.Equal(t, []string{"stored-a.png"}, f.photos.deleted)
	})
}

func TestUpdatePassword(t *testing.T) {
	f := newProfileFixture()

	err := f.svc.UpdatePassword(context.Background(), f.member.ID, domain.UpdatePasswordRequest{
		CurrentPassword: "nope", NewPassword: "another-pass",
	})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Contains(t, e.Fields, "current_password")

	require.NoError(t, f.svc.UpdatePassword(context.Background(), f.member.ID, domain.UpdatePasswordRequest{
		CurrentPassword: password, NewPassword: "another-pass",
	}))
	a, _ := f.accounts.GetByID(context.Background(), f.member.ID)
	ok, _, err = auth.VerifyPassword("another-pass", a.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGetProfile_Missing(t *testing.T) {
	f := newProfileFixture()
	_, err := f.svc.Get(context.Background(), 404)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
