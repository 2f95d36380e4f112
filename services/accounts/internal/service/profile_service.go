package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/diagnosis/staybook/internal/utils"
	"github.com/diagnosis/staybook/pkg/apperr"
	"github.com/diagnosis/staybook/pkg/auth"
	"github.com/diagnosis/staybook/pkg/logger"
	"github.com/diagnosis/staybook/pkg/storage"
	"github.com/diagnosis/staybook/pkg/validate"
	"github.com/diagnosis/staybook/services/accounts/internal/domain"
	"github.com/diagnosis/staybook/services/accounts/internal/repository"
)

type ProfileService interface {
	Get(ctx context.Context, id int64) (*domain.Account, error)
	Update(ctx context.Context, id int64, req domain.UpdateProfileRequest) (*domain.Account, error)
	UpdatePassword(ctx context.Context, id int64, req domain.UpdatePasswordRequest) error
	// StagePhoto stores an upload and returns the key that Update accepts
	// as photo_key until it expires.
	StagePhoto(ctx context.Context, id int64, up Upload) (string, error)
}

type profileService struct {
	accounts   repository.AccountRepository
	photos     PhotoStore
	pending    PendingStore
	pendingTTL time.Duration
}

func NewProfileService(accounts repository.AccountRepository, photos PhotoStore, pending PendingStore, pendingTTL time.Duration) ProfileService {
	return &profileService{accounts: accounts, photos: photos, pending: pending, pendingTTL: pendingTTL}
}

func pendingPrefix(id int64) string { return fmt.Sprintf("photo:pending:%d:", id) }

func (s *profileService) Get(ctx context.Context, id int64) (*domain.Account, error) {
	a, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if a == nil {
		return nil, apperr.NotFound("account not found")
	}
	return a, nil
}

func (s *profileService) StagePhoto(ctx context.Context, id int64, up Upload) (string, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if !a.IsMember() {
		return "", apperr.Forbidden("only members have a profile photo")
	}

	name, err := s.photos.Save(ctx, domain.PhotoFolder, up.Name, up.Body)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedType) || errors.Is(err, storage.ErrTooLarge) {
			return "", apperr.Validation(map[string]string{"photo": err.Error()})
		}
		return "", fmt.Errorf("save photo: %w", err)
	}

	key := pendingPrefix(id) + uuid.NewString()
	if err := s.pending.SetJSON(ctx, key, name, s.pendingTTL); err != nil {
		s.discard(ctx, name)
		return "", fmt.Errorf("stage photo: %w", err)
	}
	return key, nil
}

func (s *profileService) Update(ctx context.Context, id int64, req domain.UpdateProfileRequest) (*domain.Account, error) {
	req.Name = utils.NormalizeString(req.Name)
	req.PhotoKey = strings.TrimSpace(req.PhotoKey)
	fields := validate.Struct(req)
	if req.PhotoKey != "" && !strings.HasPrefix(req.PhotoKey, pendingPrefix(id)) {
		fields.Add("photo_key", "does not belong to this account")
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}

	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	photo := a.Photo
	if req.PhotoKey != "" {
		if !a.IsMember() {
			return nil, apperr.Forbidden("only members have a profile photo")
		}
		var staged string
		found, err := s.pending.Take(ctx, req.PhotoKey, &staged)
		if err != nil {
			return nil, fmt.Errorf("load staged photo: %w", err)
		}
		if !found {
			return nil, apperr.Validation(map[string]string{"photo_key": "has expired; upload the photo again"})
		}
		photo = staged
	}

	updated, err := s.accounts.UpdateProfile(ctx, id, req.Name, photo)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if photo != a.Photo && a.Photo != domain.DefaultPhoto {
		s.discard(ctx, a.Photo)
	}
	return updated, nil
}

func (s *profileService) discard(ctx context.Context, name string) {
	if name == "" {
		return
	}
	if err := s.photos.Delete(ctx, domain.PhotoFolder, name); err != nil {
		logger.WarnContext(ctx, "Failed to delete profile photo", "photo", name, "error", err)
	}
}

func (s *profileService) UpdatePassword(ctx context.Context, id int64, req domain.UpdatePasswordRequest) error {
	if err := validate.Struct(req).Err(); err != nil {
		return err
	}

	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	ok, _, err := auth.VerifyPassword(req.CurrentPassword, a.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return apperr.Validation(map[string]string{"current_password": "is incorrect"})
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.accounts.UpdatePassword(ctx, id, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}
