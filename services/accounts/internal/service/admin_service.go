package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/diagnosis/staybook/internal/utils"
	"github.com/diagnosis/staybook/pkg/apperr"
	"github.com/diagnosis/staybook/pkg/auth"
	"github.com/diagnosis/staybook/pkg/logger"
	"github.com/diagnosis/staybook/pkg/validate"
	"github.com/diagnosis/staybook/services/accounts/internal/domain"
	"github.com/diagnosis/staybook/services/accounts/internal/repository"
)

type AdminService interface {
	List(ctx context.Context, nameFilter string) ([]domain.Account, error)
	Get(ctx context.Context, id int64) (*domain.Account, error)
	AddAdmin(ctx context.Context, req domain.AddAdminRequest) (*domain.Account, error)
	ToggleActive(ctx context.Context, actorID, id int64) (*domain.Account, error)
}

type adminService struct {
	accounts repository.AccountRepository
}

func NewAdminService(accounts repository.AccountRepository) AdminService {
	return &adminService{accounts: accounts}
}

func (s *adminService) List(ctx context.Context, nameFilter string) ([]domain.Account, error) {
	list, err := s.accounts.List(ctx, utils.NormalizeString(nameFilter))
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return list, nil
}

func (s *adminService) Get(ctx context.Context, id int64) (*domain.Account, error) {
	a, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if a == nil {
		return nil, apperr.NotFound("account not found")
	}
	return a, nil
}

func (s *adminService) AddAdmin(ctx context.Context, req domain.AddAdminRequest) (*domain.Account, error) {
	req.Normalize()
	if err := validate.Struct(req).Err(); err != nil {
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
		Role:         auth.RoleAdmin,
		Active:       true,
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperr.BusinessRule(apperr.CodeEmailExists, "an account with this email already exists")
		}
		return nil, fmt.Errorf("create admin: %w", err)
	}
	logger.InfoContext(ctx, "Administrator added", "account_id", a.ID)
	return a, nil
}

// ToggleActive flips an account's active flag. Administrators cannot lock
// themselves out.
func (s *adminService) ToggleActive(ctx context.Context, actorID, id int64) (*domain.Account, error) {
	if actorID == id {
		return nil, apperr.BusinessRule(apperr.CodeSelfTarget, "you cannot change your own account status")
	}
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.accounts.SetActive(ctx, id, !a.Active)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("account not found")
	}
	if err != nil {
		return nil, fmt.Errorf("toggle account: %w", err)
	}
	logger.InfoContext(ctx, "Account status changed", "account_id", id, "active", updated.Active)
	return updated, nil
}
