package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/staybook/pkg/database"
	"github.com/diagnosis/staybook/services/booking/internal/domain"
)

type ReviewRepository interface {
	Create(ctx context.Context, rv *domain.Review) error
	GetByID(ctx context.Context, id int64) (*domain.Review, error)
	Update(ctx context.Context, rv *domain.Review) error
	Delete(ctx context.Context, id int64) (bool, error)
	ListByRoomType(ctx context.Context, typeID string) ([]domain.Review, error)
	ListByReservation(ctx context.Context, reservationID int64) ([]domain.Review, error)
	ListAll(ctx context.Context) ([]domain.Review, error)
}

type reviewRepository struct {
	pool *pgxpool.Pool
}

func NewReviewRepository(pool *pgxpool.Pool) ReviewRepository {
	return &reviewRepository{pool: pool}
}

const reviewSelect = `SELECT rv.id, rv.member_id, a.name, rv.reservation_id, r.room_type_id,
	rv.comment, rv.rating, rv.service_rating, rv.cleanliness_rating, rv.created_at
FROM reviews rv
JOIN accounts a ON a.id = rv.member_id
JOIN reservations v ON v.id = rv.reservation_id
JOIN rooms r ON r.id = v.room_id`

func scanReview(row scanner) (*domain.Review, error) {
	var (
		rv                 domain.Review
		rating, svc, clean int16
	)
	err := row.Scan(&rv.ID, &rv.MemberID, &rv.MemberName, &rv.ReservationID, &rv.RoomTypeID,
		&rv.Comment, &rating, &svc, &clean, &rv.CreatedAt)
	if err != nil {
		return nil, err
	}
	rv.Rating, rv.ServiceRating, rv.CleanlinessRating = int(rating), int(svc), int(clean)
	return &rv, nil
}

func (r *reviewRepository) Create(ctx context.Context, rv *domain.Review) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err := r.pool.QueryRow(ctx, `
		INSERT INTO reviews (member_id, reservation_id, comment, rating, service_rating, cleanliness_rating)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		rv.MemberID, rv.ReservationID, rv.Comment, rv.Rating, rv.ServiceRating, rv.CleanlinessRating,
	).Scan(&rv.ID, &rv.CreatedAt)
	if database.IsUniqueViolation(err) {
		return &DuplicateError{Constraint: database.ConstraintName(err)}
	}
	return err
}

func (r *reviewRepository) GetByID(ctx context.Context, id int64) (*domain.Review, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rv, err := scanReview(r.pool.QueryRow(ctx, reviewSelect+` WHERE rv.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rv, err
}

func (r *reviewRepository) Update(ctx context.Context, rv *domain.Review) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
		UPDATE reviews SET comment = $2, rating = $3, service_rating = $4, cleanliness_rating = $5
		WHERE id = $1`,
		rv.ID, rv.Comment, rv.Rating, rv.ServiceRating, rv.CleanlinessRating)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStateChanged
	}
	return nil
}

func (r *reviewRepository) Delete(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *reviewRepository) ListByRoomType(ctx context.Context, typeID string) ([]domain.Review, error) {
	return r.list(ctx, reviewSelect+` WHERE r.room_type_id = $1 ORDER BY rv.created_at DESC`, typeID)
}

func (r *reviewRepository) ListByReservation(ctx context.Context, reservationID int64) ([]domain.Review, error) {
	return r.list(ctx, reviewSelect+` WHERE rv.reservation_id = $1 ORDER BY rv.created_at DESC`, reservationID)
}

func (r *reviewRepository) ListAll(ctx context.Context) ([]domain.Review, error) {
	return r.list(ctx, reviewSelect+` ORDER BY rv.created_at DESC`)
}

func (r *reviewRepository) list(ctx context.Context, q string, args ...any) ([]domain.Review, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rv)
	}
	return out, rows.Err()
}
