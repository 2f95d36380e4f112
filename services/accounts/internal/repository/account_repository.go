package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/staybook/pkg/database"
	"github.com/diagnosis/staybook/services/accounts/internal/domain"
	"github.com/diagnosis/staybook/services/accounts/internal/guard"
)

var (
	ErrDuplicateEmail = errors.New("email already registered")
	ErrNotFound       = errors.New("record not found")
)

const queryTimeout = 3 * time.Second

type scanner interface {
	Scan(dest ...any) error
}

// FailureFunc applies one failed login to the loaded guard state. When it
// returns a token the account has just been locked and the token is stored
// in the same transaction.
type FailureFunc func(s guard.State) (guard.State, *domain.RecoveryToken)

type AccountRepository interface {
	Create(ctx context.Context, a *domain.Account) error
	GetByID(ctx context.Context, id int64) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	List(ctx context.Context, nameFilter string) ([]domain.Account, error)
	UpdateProfile(ctx context.Context, id int64, name, photo string) (*domain.Account, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
	SetActive(ctx context.Context, id int64, active bool) (*domain.Account, error)
	ResetLoginFailures(ctx context.Context, id int64) error
	ApplyLoginFailure(ctx context.Context, id int64, fn FailureFunc) (*domain.RecoveryToken, error)
}

type accountRepository struct {
	pool *pgxpool.Pool
}

func NewAccountRepository(pool *pgxpool.Pool) AccountRepository {
	return &accountRepository{pool: pool}
}

const accountCols = `id, email, password_hash, name, role, active, login_attempt_count,
	last_failed_login_at, COALESCE(photo_url, ''), created_at, updated_at`

func scanAccount(row scanner) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Name, &a.Role, &a.Active, &a.LoginAttemptCount,
		&a.LastFailedLoginAt, &a.Photo, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// nullablePhoto keeps administrators' photo_url NULL.
func nullablePhoto(photo string) *string {
	if photo == "" {
		return nil
	}
	return &photo
}

func (r *accountRepository) Create(ctx context.Context, a *domain.Account) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err := r.pool.QueryRow(ctx, `
		INSERT INTO accounts (email, password_hash, name, role, active, photo_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		a.Email, a.PasswordHash, a.Name, a.Role, a.Active, nullablePhoto(a.Photo),
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if database.IsUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	a, err := scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountCols+` FROM accounts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	a, err := scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountCols+` FROM accounts WHERE lower(email) = lower($1)`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (r *accountRepository) List(ctx context.Context, nameFilter string) ([]domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT `+accountCols+` FROM accounts
		WHERE $1 = '' OR name ILIKE '%' || $1 || '%'
		ORDER BY role, name`, nameFilter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *accountRepository) UpdateProfile(ctx context.Context, id int64, name, photo string) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	a, err := scanAccount(r.pool.QueryRow(ctx, `
		UPDATE accounts SET name = $2, photo_url = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+accountCols, id, name, nullablePhoto(photo)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (r *accountRepository) UpdatePassword(ctx context.Context, id int64, hash string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `UPDATE accounts SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive flips the active flag. Reactivation also clears the failure
// history so the next wrong password does not lock the account again.
func (r *accountRepository) SetActive(ctx context.Context, id int64, active bool) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	a, err := scanAccount(r.pool.QueryRow(ctx, `
		UPDATE accounts SET active = $2,
			login_attempt_count = CASE WHEN $2 THEN 0 ELSE login_attempt_count END,
			last_failed_login_at = CASE WHEN $2 THEN NULL ELSE last_failed_login_at END,
			updated_at = now()
		WHERE id = $1
		RETURNING `+accountCols, id, active))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (r *accountRepository) ResetLoginFailures(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx, `
		UPDATE accounts SET login_attempt_count = 0, last_failed_login_at = NULL
		WHERE id = $1`, id)
	return err
}

// ApplyLoginFailure serialises concurrent failed logins on the account row so
// every failure is counted and only one of them performs the lockout.
func (r *accountRepository) ApplyLoginFailure(ctx context.Context, id int64, fn FailureFunc) (*domain.RecoveryToken, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var issued *domain.RecoveryToken
	err := database.WithTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var s guard.State
		err := tx.QueryRow(ctx, `
			SELECT login_attempt_count, last_failed_login_at, active
			FROM accounts WHERE id = $1 FOR UPDATE`, id,
		).Scan(&s.Attempts, &s.LastFailure, &s.Active)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		next, token := fn(s)
		if _, err := tx.Exec(ctx, `
			UPDATE accounts SET login_attempt_count = $2, last_failed_login_at = $3, active = $4, updated_at = now()
			WHERE id = $1`, id, next.Attempts, next.LastFailure, next.Active); err != nil {
			return err
		}

		if token != nil {
			if err := insertToken(ctx, tx, token); err != nil {
				return err
			}
			issued = token
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issued, nil
}
