package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diagnosis/staybook/pkg/database"
	"github.com/diagnosis/staybook/services/booking/internal/domain"
)

type ReservationRepository interface {
	// FindAvailableRoom returns an active room of the type with no active
	// reservation overlapping [checkIn, checkOut), or nil.
	FindAvailableRoom(ctx context.Context, typeID string, checkIn, checkOut domain.Date) (*domain.Room, error)
	// CreateWithPayment inserts the reservation, its pending payment and the
	// link between them in one transaction.
	CreateWithPayment(ctx context.Context, res *domain.Reservation) (*domain.Payment, error)
	GetByID(ctx context.Context, id int64) (*domain.Reservation, error)
	ListByMember(ctx context.Context, memberID int64) ([]domain.Reservation, error)
	List(ctx context.Context, filter domain.ReservationFilter) ([]domain.Reservation, error)
	ToggleActive(ctx context.Context, id int64) (*domain.Reservation, error)
	OccupiedRanges(ctx context.Context, roomID string, from, to domain.Date) ([]domain.DateRange, error)
	OccupiedRangesByType(ctx context.Context, typeID string, from, to domain.Date) (map[string][]domain.DateRange, error)
	// OccupiedRangesAll covers every room, active or not.
	OccupiedRangesAll(ctx context.Context, from, to domain.Date) (map[string][]domain.DateRange, error)
}

type reservationRepository struct {
	pool *pgxpool.Pool
}

func NewReservationRepository(pool *pgxpool.Pool) ReservationRepository {
	return &reservationRepository{pool: pool}
}

const reservationCols = `v.id, v.member_id, v.room_id, r.room_type_id, rt.name,
v.check_in, v.check_out, (v.price * 100)::bigint, v.active, v.payment_id, v.created_at`

const reservationFrom = ` FROM reservations v
JOIN rooms r ON r.id = v.room_id
JOIN room_types rt ON rt.id = r.room_type_id`

// listCols extends reservationCols with the payment and review for list views.
const listCols = reservationCols + `,
p.id, COALESCE((p.amount * 100)::bigint, 0), COALESCE(p.status, ''), COALESCE(p.payment_method, ''),
COALESCE(p.transaction_id, ''), p.refund_date, COALESCE(p.refund_id, ''), rv.id`

const listFrom = reservationFrom + `
LEFT JOIN payments p ON p.id = v.payment_id
LEFT JOIN reviews rv ON rv.reservation_id = v.id`

func scanReservation(row scanner, extra ...any) (*domain.Reservation, error) {
	var res domain.Reservation
	dest := []any{
		&res.ID, &res.MemberID, &res.RoomID, &res.RoomTypeID, &res.RoomTypeName,
		&res.CheckIn, &res.CheckOut, (*int64)(&res.Price), &res.Active, &res.PaymentID, &res.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &res, nil
}

func scanListedReservation(row scanner) (*domain.Reservation, error) {
	var (
		paymentID *int64
		reviewID  *int64
		p         domain.Payment
		status    string
	)
	res, err := scanReservation(row,
		&paymentID, (*int64)(&p.Amount), &status, &p.Method,
		&p.TransactionID, &p.RefundDate, &p.RefundID, &reviewID)
	if err != nil {
		return nil, err
	}
	res.ReviewID = reviewID
	if paymentID != nil {
		p.ID = *paymentID
		p.ReservationID = res.ID
		p.Status = domain.PaymentStatus(status)
		res.Payment = &p
	}
	return res, nil
}

func (r *reservationRepository) FindAvailableRoom(ctx context.Context, typeID string, checkIn, checkOut domain.Date) (*domain.Room, error) {
	const q = `SELECT r.id, r.room_type_id, rt.name, r.active
	FROM rooms r JOIN room_types rt ON rt.id = r.room_type_id
	WHERE r.room_type_id = $1 AND r.active
	  AND NOT EXISTS (
		SELECT 1 FROM reservations v
		WHERE v.room_id = r.id AND v.active
		  AND $2 < v.check_out AND v.check_in < $3)
	ORDER BY r.id
	LIMIT 1`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	room, err := scanRoom(r.pool.QueryRow(ctx, q, typeID, checkIn.Time, checkOut.Time))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return room, err
}

func (r *reservationRepository) CreateWithPayment(ctx context.Context, res *domain.Reservation) (*domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	pay := domain.Payment{Amount: res.Amount(), Status: domain.PaymentPending}
	err := database.WithTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO reservations (member_id, room_id, check_in, check_out, price, active)
			VALUES ($1, $2, $3, $4, $5::numeric / 100, TRUE)
			RETURNING id, created_at`,
			res.MemberID, res.RoomID, res.CheckIn.Time, res.CheckOut.Time, res.Price.Cents(),
		).Scan(&res.ID, &res.CreatedAt)
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO payments (reservation_id, amount, status)
			VALUES ($1, $2::numeric / 100, $3)
			RETURNING id, created_at`,
			res.ID, pay.Amount.Cents(), string(pay.Status),
		).Scan(&pay.ID, &pay.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		if _, err := tx.Exec(ctx, `UPDATE reservations SET payment_id = $1 WHERE id = $2`, pay.ID, res.ID); err != nil {
			return fmt.Errorf("link payment: %w", err)
		}
		return nil
	})
	if database.IsExclusionViolation(err) {
		return nil, ErrRoomTaken
	}
	if err != nil {
		return nil, err
	}

	res.Active = true
	res.PaymentID = &pay.ID
	pay.ReservationID = res.ID
	return &pay, nil
}

func (r *reservationRepository) GetByID(ctx context.Context, id int64) (*domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := scanListedReservation(r.pool.QueryRow(ctx, `SELECT `+listCols+listFrom+` WHERE v.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return res, err
}

func (r *reservationRepository) ListByMember(ctx context.Context, memberID int64) ([]domain.Reservation, error) {
	return r.list(ctx, `SELECT `+listCols+listFrom+` WHERE v.member_id = $1 ORDER BY v.check_in DESC, v.id DESC`, memberID)
}

func (r *reservationRepository) List(ctx context.Context, filter domain.ReservationFilter) ([]domain.Reservation, error) {
	const q = `SELECT ` + listCols + listFrom + `
	JOIN accounts a ON a.id = v.member_id
	WHERE ($1::boolean IS NULL OR v.active = $1)
	  AND ($2::boolean IS NULL OR (p.status IN ('Completed', 'Refund')) = $2)
	  AND ($3 = '' OR a.name ILIKE '%' || $3 || '%')
	  AND ($4::date IS NULL OR v.check_in >= $4)
	  AND ($5::date IS NULL OR v.check_out <= $5)
	ORDER BY v.created_at DESC, v.id DESC`
	return r.list(ctx, q, filter.Active, filter.Paid, filter.Member, optionalDate(filter.From), optionalDate(filter.To))
}

func optionalDate(d domain.Date) *time.Time {
	if d.IsZero() {
		return nil
	}
	return &d.Time
}

func (r *reservationRepository) list(ctx context.Context, q string, args ...any) ([]domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		res, err := scanListedReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

// ToggleActive flips the flag without re-checking availability. Reactivating
// into an overlap still fails on the exclusion constraint.
func (r *reservationRepository) ToggleActive(ctx context.Context, id int64) (*domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `UPDATE reservations SET active = NOT active WHERE id = $1`, id)
	if database.IsExclusionViolation(err) {
		return nil, ErrRoomTaken
	}
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

func (r *reservationRepository) OccupiedRanges(ctx context.Context, roomID string, from, to domain.Date) ([]domain.DateRange, error) {
	const q = `SELECT check_in, check_out FROM reservations
	WHERE room_id = $1 AND active AND check_in < $3 AND $2 < check_out`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, roomID, from.Time, to.Time)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ranges []domain.DateRange
	for rows.Next() {
		var dr domain.DateRange
		if err := rows.Scan(&dr.CheckIn, &dr.CheckOut); err != nil {
			return nil, err
		}
		ranges = append(ranges, dr)
	}
	return ranges, rows.Err()
}

func (r *reservationRepository) OccupiedRangesByType(ctx context.Context, typeID string, from, to domain.Date) (map[string][]domain.DateRange, error) {
	const q = `SELECT v.room_id, v.check_in, v.check_out
	FROM reservations v JOIN rooms r ON r.id = v.room_id
	WHERE r.room_type_id = $3 AND r.active AND v.active
	  AND v.check_in < $2 AND $1 < v.check_out`
	return r.rangesByRoom(ctx, q, from.Time, to.Time, typeID)
}

func (r *reservationRepository) OccupiedRangesAll(ctx context.Context, from, to domain.Date) (map[string][]domain.DateRange, error) {
	const q = `SELECT room_id, check_in, check_out FROM reservations
	WHERE active AND check_in < $2 AND $1 < check_out`
	return r.rangesByRoom(ctx, q, from.Time, to.Time)
}

func (r *reservationRepository) rangesByRoom(ctx context.Context, q string, args ...any) (map[string][]domain.DateRange, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byRoom := make(map[string][]domain.DateRange)
	for rows.Next() {
		var (
			roomID string
			dr     domain.DateRange
		)
		if err := rows.Scan(&roomID, &dr.CheckIn, &dr.CheckOut); err != nil {
			return nil, err
		}
		byRoom[roomID] = append(byRoom[roomID], dr)
	}
	return byRoom, rows.Err()
}
