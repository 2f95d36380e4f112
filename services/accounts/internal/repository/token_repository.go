package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/staybook/pkg/database"
	"github.com/diagnosis/staybook/services/accounts/internal/domain"
)

// ErrTokenInvalid covers unknown and expired tokens alike.
var ErrTokenInvalid = errors.New("recovery token invalid or expired")

type TokenRepository interface {
	Create(ctx context.Context, t *domain.RecoveryToken) error
	// Redeem reactivates the token's account and stores the new password
	// hash. With invalidate set the token is deleted as part of redemption.
	Redeem(ctx context.Context, id, passwordHash string, now time.Time, invalidate bool) (int64, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type tokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(pool *pgxpool.Pool) TokenRepository {
	return &tokenRepository{pool: pool}
}

func insertToken(ctx context.Context, tx pgx.Tx, t *domain.RecoveryToken) error {
	if _, err := tx.Exec(ctx, `DELETE FROM user_tokens WHERE expires_at <= $1`, t.GeneratedAt); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO user_tokens (id, member_id, purpose, generated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.AccountID, t.Purpose, t.GeneratedAt, t.ExpiresAt)
	return err
}

// Create purges expired tokens and stores t.
func (r *tokenRepository) Create(ctx context.Context, t *domain.RecoveryToken) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return database.WithTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return insertToken(ctx, tx, t)
	})
}

func (r *tokenRepository) Redeem(ctx context.Context, id, passwordHash string, now time.Time, invalidate bool) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var accountID int64
	err := database.WithTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			SELECT member_id FROM user_tokens
			WHERE id = $1 AND expires_at > $2
			FOR UPDATE`, id, now,
		).Scan(&accountID)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTokenInvalid
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE accounts SET active = TRUE, password_hash = $2,
				login_attempt_count = 0, last_failed_login_at = NULL, updated_at = now()
			WHERE id = $1`, accountID, passwordHash); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_tokens WHERE expires_at <= $1`, now); err != nil {
			return err
		}
		if invalidate {
			if _, err := tx.Exec(ctx, `DELETE FROM user_tokens WHERE id = $1`, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return accountID, nil
}

func (r *tokenRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM user_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
