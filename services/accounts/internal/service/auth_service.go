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
	"github.com/diagnosis/staybook/pkg/config"
	"github.com/diagnosis/staybook/pkg/events"
	"github.com/diagnosis/staybook/pkg/logger"
	"github.com/diagnosis/staybook/pkg/validate"
	"github.com/diagnosis/staybook/services/accounts/internal/domain"
	"github.com/diagnosis/staybook/services/accounts/internal/guard"
	"github.com/diagnosis/staybook/services/accounts/internal/repository"
)

type AuthService interface {
	Register(ctx context.Context, req domain.RegisterRequest, remoteIP string) (*domain.Account, error)
	Login(ctx context.Context, req domain.LoginRequest, remoteIP string) (*domain.LoginResponse, error)
	RequestPasswordReset(ctx context.Context, req domain.PasswordResetRequest, remoteIP string) error
	RedeemToken(ctx context.Context, req domain.RedeemRequest, remoteIP string) (*domain.Account, error)
	PurgeExpiredTokens(ctx context.Context) (int64, error)
}

type authService struct {
	accounts repository.AccountRepository
	tokens   repository.TokenRepository
	captcha  CaptchaVerifier
	bus      events.Publisher
	cfg      config.AuthConfig
	policy   guard.Policy
	clock    Clock
}

func NewAuthService(
	accounts repository.AccountRepository,
	tokens repository.TokenRepository,
	captcha CaptchaVerifier,
	bus events.Publisher,
	cfg config.AuthConfig,
	clock Clock,
) AuthService {
	return &authService{
		accounts: accounts,
		tokens:   tokens,
		captcha:  captcha,
		bus:      bus,
		cfg:      cfg,
		policy:   guard.Policy{MaxAttempts: cfg.LoginMaxAttempts, Window: cfg.LoginFailureWindow},
		clock:    clockOrNow(clock),
	}
}

var errInvalidCredentials = apperr.Unauthorized(apperr.CodeInvalidCreds, "invalid email or password")

func (s *authService) Register(ctx context.Context, req domain.RegisterRequest, remoteIP string) (*domain.Account, error) {
	req.Normalize()
	if err := validate.Struct(req).Err(); err != nil {
		return nil, err
	}
	if err := s.captcha.Verify(ctx, req.Captcha, remoteIP); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	a := &domain.Account{
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
		Role:         auth.RoleMember,
		Active:       true,
		Photo:        domain.DefaultPhoto,
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperr.BusinessRule(apperr.CodeEmailExists, "an account with this email already exists")
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	logger.InfoContext(ctx, "Member registered", "account_id", a.ID)
	return a, nil
}

func (s *authService) Login(ctx context.Context, req domain.LoginRequest, remoteIP string) (*domain.LoginResponse, error) {
	req.Email = utils.NormalizeEmail(req.Email)
	if err := validate.Struct(req).Err(); err != nil {
		return nil, err
	}
	if err := s.captcha.Verify(ctx, req.Captcha, remoteIP); err != nil {
		return nil, err
	}

	a, err := s.accounts.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if a == nil {
		return nil, errInvalidCredentials
	}
	if !a.Active {
		return nil, apperr.Unauthorized(apperr.CodeAccountInactive, "account is inactive; check your email for a reactivation link")
	}

	ok, needsRehash, err := auth.VerifyPassword(req.Password, a.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, s.recordFailure(ctx, a)
	}

	state := guard.State{Attempts: a.LoginAttemptCount, LastFailure: a.LastFailedLoginAt, Active: a.Active}
	if !state.Clean() {
		if err := s.accounts.ResetLoginFailures(ctx, a.ID); err != nil {
			return nil, fmt.Errorf("reset login failures: %w", err)
		}
	}
	if needsRehash {
		s.rehash(ctx, a.ID, req.Password)
	}

	token, err := auth.NewAccessToken(a.ID, a.Email, a.Name, a.Role, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &domain.LoginResponse{
		AccessToken: token,
		Role:        a.Role,
		ExpiresIn:   int64(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

// recordFailure applies the lockout rules and, on the failure that locks the
// account, issues a reactivation token and notifies the owner.
func (s *authService) recordFailure(ctx context.Context, a *domain.Account) error {
	now := s.clock().UTC()
	token, err := s.accounts.ApplyLoginFailure(ctx, a.ID, func(st guard.State) (guard.State, *domain.RecoveryToken) {
		next, locked := s.policy.Fail(st, now)
		if !locked {
			return next, nil
		}
		return next, s.newToken(a.ID, domain.PurposeReactivate, now)
	})
	if err != nil {
		return fmt.Errorf("record login failure: %w", err)
	}
	if token == nil {
		return errInvalidCredentials
	}

	logger.WarnContext(ctx, "Account locked after repeated login failures", "account_id", a.ID)
	publish(ctx, s.bus, events.AccountLocked, events.AccountLockedEvent{
		AccountID: a.ID,
		Email:     a.Email,
		Name:      a.Name,
		Photo:     a.MailPhoto(),
		Token:     token.ID,
		ExpiresAt: token.ExpiresAt,
		LockedAt:  now,
	})
	return apperr.Unauthorized(apperr.CodeAccountLocked, "too many failed attempts; the account has been locked and a reactivation email sent")
}

// rehash upgrades a legacy hash; the login has already succeeded so failures
// are only logged.
func (s *authService) rehash(ctx context.Context, id int64, password string) {
	hash, err := auth.HashPassword(password)
	if err == nil {
		err = s.accounts.UpdatePassword(ctx, id, hash)
	}
	if err != nil {
		logger.WarnContext(ctx, "Failed to upgrade legacy password hash", "account_id", id, "error", err)
	}
}

func (s *authService) newToken(accountID int64, purpose domain.TokenPurpose, now time.Time) *domain.RecoveryToken {
	return &domain.RecoveryToken{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Purpose:     purpose,
		GeneratedAt: now,
		ExpiresAt:   now.Add(s.cfg.RecoveryTokenTTL),
	}
}

// RequestPasswordReset answers the same way whether or not the email is
// registered.
func (s *authService) RequestPasswordReset(ctx context.Context, req domain.PasswordResetRequest, remoteIP string) error {
	req.Email = utils.NormalizeEmail(req.Email)
	if err := validate.Struct(req).Err(); err != nil {
		return err
	}
	if err := s.captcha.Verify(ctx, req.Captcha, remoteIP); err != nil {
		return err
	}

	a, err := s.accounts.GetByEmail(ctx, req.Email)
	if err != nil {
		return fmt.Errorf("find account: %w", err)
	}
	if a == nil {
		logger.InfoContext(ctx, "Password reset requested for unknown email")
		return nil
	}

	now := s.clock().UTC()
	token := s.newToken(a.ID, domain.PurposeReset, now)
	if err := s.tokens.Create(ctx, token); err != nil {
		return fmt.Errorf("store recovery token: %w", err)
	}

	publish(ctx, s.bus, events.AccountPasswordResetRequested, events.PasswordResetRequestedEvent{
		AccountID:   a.ID,
		Email:       a.Email,
		Name:        a.Name,
		Photo:       a.MailPhoto(),
		Token:       token.ID,
		ExpiresAt:   token.ExpiresAt,
		RequestedAt: now,
	})
	return nil
}

func (s *authService) RedeemToken(ctx context.Context, req domain.RedeemRequest, remoteIP string) (*domain.Account, error) {
	req.Token = strings.TrimSpace(req.Token)
	if err := validate.Struct(req).Err(); err != nil {
		return nil, err
	}
	if err := s.captcha.Verify(ctx, req.Captcha, remoteIP); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.tokens.Redeem(ctx, req.Token, hash, s.clock().UTC(), s.cfg.InvalidateRedeemedToken)
	if errors.Is(err, repository.ErrTokenInvalid) {
		return nil, apperr.Unauthorized(apperr.CodeInvalidToken, "the link is invalid or has expired")
	}
	if err != nil {
		return nil, fmt.Errorf("redeem token: %w", err)
	}

	a, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if a == nil {
		return nil, apperr.NotFound("account not found")
	}
	logger.InfoContext(ctx, "Recovery token redeemed", "account_id", id)
	return a, nil
}

func (s *authService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	n, err := s.tokens.PurgeExpired(ctx, s.clock().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge tokens: %w", err)
	}
	return n, nil
}
