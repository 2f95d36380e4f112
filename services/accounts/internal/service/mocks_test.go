package service_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/diagnosis/staybook/pkg/auth"
	"github.com/diagnosis/staybook/pkg/config"
	"github.com/diagnosis/staybook/services/accounts/internal/domain"
	"github.com/diagnosis/staybook/services/accounts/internal/guard"
	"github.com/diagnosis/staybook/services/accounts/internal/repository"
)

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:          "test-secret",
		AccessTokenTTL:     2 * time.Hour,
		RecoveryTokenTTL:   15 * time.Minute,
		PhotoPendingTTL:    10 * time.Minute,
		LoginMaxAttempts:   5,
		LoginFailureWindow: 30 * time.Minute,
	}
}

var errBoom = errors.New("boom")

// ---------- Accounts ----------

type mockAccounts struct {
	mu       sync.Mutex
	accounts map[int64]*domain.Account
	tokens   *mockTokens
	nextID   int64
	updates  int
}

func newMockAccounts(tokens *mockTokens) *mockAccounts {
	return &mockAccounts{accounts: map[int64]*domain.Account{}, tokens: tokens}
}

func (m *mockAccounts) add(a domain.Account) *domain.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == 0 {
		m.nextID++
		a.ID = m.nextID
	} else if a.ID > m.nextID {
		m.nextID = a.ID
	}
	m.accounts[a.ID] = &a
	return &a
}

func (m *mockAccounts) Create(_ context.Context, a *domain.Account) error {
	m.mu.Lock()
	for _, existing := range m.accounts {
		if strings.EqualFold(existing.Email, a.Email) {
			m.mu.Unlock()
			return repository.ErrDuplicateEmail
		}
	}
	m.mu.Unlock()
	saved := m.add(*a)
	a.ID = saved.ID
	return nil
}

func (m *mockAccounts) GetByID(_ context.Context, id int64) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *mockAccounts) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if strings.EqualFold(a.Email, email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockAccounts) List(_ context.Context, nameFilter string) ([]domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Account{}
	for _, a := range m.accounts {
		if nameFilter == "" || strings.Contains(strings.ToLower(a.Name), strings.ToLower(nameFilter)) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockAccounts) UpdateProfile(_ context.Context, id int64, name, photo string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	a.Name, a.Photo = name, photo
	cp := *a
	return &cp, nil
}

func (m *mockAccounts) UpdatePassword(_ context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.PasswordHash = hash
	m.updates++
	return nil
}

func (m *mockAccounts) SetActive(_ context.Context, id int64, active bool) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	a.Active = active
	if active {
		a.LoginAttemptCount, a.LastFailedLoginAt = 0, nil
	}
	cp := *a
	return &cp, nil
}

func (m *mockAccounts) ResetLoginFailures(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		a.LoginAttemptCount, a.LastFailedLoginAt = 0, nil
	}
	return nil
}

func (m *mockAccounts) ApplyLoginFailure(_ context.Context, id int64, fn repository.FailureFunc) (*domain.RecoveryToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	next, token := fn(stateOf(a))
	a.LoginAttemptCount, a.LastFailedLoginAt, a.Active = next.Attempts, next.LastFailure, next.Active
	if token != nil && m.tokens != nil {
		m.tokens.store(token)
	}
	return token, nil
}

// ---------- Tokens ----------

type mockTokens struct {
	mu       sync.Mutex
	tokens   map[string]*domain.RecoveryToken
	accounts *mockAccounts
	purged   int
}

func newMockTokens() *mockTokens {
	return &mockTokens{tokens: map[string]*domain.RecoveryToken{}}
}

func (m *mockTokens) store(t *domain.RecoveryToken) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked(t.GeneratedAt)
	cp := *t
	m.tokens[t.ID] = &cp
}

func (m *mockTokens) purgeLocked(now time.Time) int64 {
	var n int64
	for id, t := range m.tokens {
		if t.Expired(now) {
			delete(m.tokens, id)
			n++
		}
	}
	return n
}

func (m *mockTokens) Create(_ context.Context, t *domain.RecoveryToken) error {
	m.store(t)
	return nil
}

func (m *mockTokens) Redeem(ctx context.Context, id, hash string, now time.Time, invalidate bool) (int64, error) {
	m.mu.Lock()
	t, ok := m.tokens[id]
	if !ok || t.Expired(now) {
		m.mu.Unlock()
		return 0, repository.ErrTokenInvalid
	}
	m.purgeLocked(now)
	if invalidate {
		delete(m.tokens, id)
	}
	accountID := t.AccountID
	m.mu.Unlock()

	if _, err := m.accounts.SetActive(ctx, accountID, true); err != nil {
		return 0, err
	}
	return accountID, m.accounts.UpdatePassword(ctx, accountID, hash)
}

func (m *mockTokens) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.purgeLocked(now), nil
}

func (m *mockTokens) byPurpose(p domain.TokenPurpose) []*domain.RecoveryToken {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.RecoveryToken
	for _, t := range m.tokens {
		if t.Purpose == p {
			out = append(out, t)
		}
	}
	return out
}

// ---------- Collaborators ----------

type stubCaptcha struct {
	err   error
	calls int
}

func (s *stubCaptcha) Verify(context.Context, string, string) error {
	s.calls++
	return s.err
}

type recordingBus struct {
	mu       sync.Mutex
	subjects []string
	payloads []any
}

func (b *recordingBus) Publish(_ context.Context, subject string, data interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subjects = append(b.subjects, subject)
	b.payloads = append(b.payloads, data)
	return nil
}

func (b *recordingBus) Close() error { return nil }

func (b *recordingBus) count(subject string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.subjects {
		if s == subject {
			n++
		}
	}
	return n
}

type mockPending struct {
	values map[string]string
	err    error
}

func newMockPending() *mockPending { return &mockPending{values: map[string]string{}} }

func (m *mockPending) SetJSON(_ context.Context, key string, v any, _ time.Duration) error {
	if m.err != nil {
		return m.err
	}
	m.values[key] = v.(string)
	return nil
}

func (m *mockPending) Take(_ context.Context, key string, v any) (bool, error) {
	val, ok := m.values[key]
	if !ok {
		return false, nil
	}
	delete(m.values, key)
	*(v.(*string)) = val
	return true, nil
}

type mockPhotos struct {
	saved   []string
	deleted []string
	saveErr error
}

func (m *mockPhotos) Save(_ context.Context, _ string, originalName string, r io.Reader) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	_, _ = io.Copy(io.Discard, r)
	name := "stored-" + originalName
	m.saved = append(m.saved, name)
	return name, nil
}

func (m *mockPhotos) Delete(_ context.Context, _ string, name string) error {
	m.deleted = append(m.deleted, name)
	return nil
}

func mustHash(password string) string {
	h, err := auth.HashPassword(password)
	if err != nil {
		panic(err)
	}
	return h
}

func stateOf(a *domain.Account) guard.State {
	return guard.State{Attempts: a.LoginAttemptCount, LastFailure: a.LastFailedLoginAt, Active: a.Active}
}
