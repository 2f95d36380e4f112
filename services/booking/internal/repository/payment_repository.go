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

type PaymentRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Payment, error)
	GetByReservation(ctx context.Context, reservationID int64) (*domain.Payment, error)
	GetByProviderOrder(ctx context.Context, orderID string) (*domain.Payment, error)
	SetProviderOrder(ctx context.Context, paymentID int64, orderID string) error
	// MarkCompleted moves a Pending payment to Completed. It returns
	// ErrStateChanged when the payment was no longer Pending.
	MarkCompleted(ctx context.Context, paymentID int64, transactionID, method string) (*domain.Payment, error)
	// UpsertCompleted records a Completed payment for the reservation, reusing
	// its Pending row. A payment that is already Completed or Refund is
	// returned unchanged with changed=false.
	UpsertCompleted(ctx context.Context, reservationID int64, amount domain.Money, method, transactionID string) (p *domain.Payment, changed bool, err error)
	// ApplyRefund marks the payment refunded and deactivates its reservation
	// in one transaction.
	ApplyRefund(ctx context.Context, rec domain.RefundRecord) error
	Context(ctx context.Context, paymentID int64) (*domain.PaymentContext, error)
	SalesReport(ctx context.Context) ([]domain.SalesLine, error)
	// StayReport counts the active reservations checking out on day.
	StayReport(ctx context.Context, day domain.Date) (*domain.StayReport, error)
}

type ReconciliationRepository interface {
	Record(ctx context.Context, rec *domain.Reconciliation) error
	List(ctx context.Context, openOnly bool) ([]domain.Reconciliation, error)
	Resolve(ctx context.Context, id int64, resolution string) (bool, error)
}

type paymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) PaymentRepository {
	return &paymentRepository{pool: pool}
}

const paymentCols = `id, reservation_id, (amount * 100)::bigint, status,
COALESCE(transaction_id, ''), COALESCE(payment_method, ''), COALESCE(provider_order_id, ''),
refund_date, COALESCE(refund_id, ''), created_at`

func scanPayment(row scanner) (*domain.Payment, error) {
	var p domain.Payment
	var status string
	err := row.Scan(&p.ID, &p.ReservationID, (*int64)(&p.Amount), &status,
		&p.TransactionID, &p.Method, &p.ProviderOrderID,
		&p.RefundDate, &p.RefundID, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = domain.PaymentStatus(status)
	return &p, nil
}

func (r *paymentRepository) getOne(ctx context.Context, where string, arg any) (*domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	p, err := scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentCols+` FROM payments WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *paymentRepository) GetByID(ctx context.Context, id int64) (*domain.Payment, error) {
	return r.getOne(ctx, `id = $1`, id)
}

func (r *paymentRepository) GetByReservation(ctx context.Context, reservationID int64) (*domain.Payment, error) {
	return r.getOne(ctx, `reservation_id = $1`, reservationID)
}

func (r *paymentRepository) GetByProviderOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	return r.getOne(ctx, `provider_order_id = $1`, orderID)
}

func (r *paymentRepository) SetProviderOrder(ctx context.Context, paymentID int64, orderID string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
		UPDATE payments SET provider_order_id = $2, updated_at = now()
		WHERE id = $1 AND status = 'Pending'`, paymentID, orderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStateChanged
	}
	return nil
}

func (r *paymentRepository) MarkCompleted(ctx context.Context, paymentID int64, transactionID, method string) (*domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	p, err := scanPayment(r.pool.QueryRow(ctx, `
		UPDATE payments
		SET status = 'Completed', transaction_id = $2, payment_method = $3, updated_at = now()
		WHERE id = $1 AND status = 'Pending'
		RETURNING `+paymentCols, paymentID, transactionID, method))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStateChanged
	}
	return p, err
}

func (r *paymentRepository) UpsertCompleted(ctx context.Context, reservationID int64, amount domain.Money, method, transactionID string) (*domain.Payment, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		p       *domain.Payment
		changed bool
	)
	err := database.WithTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var err error
		p, err = scanPayment(tx.QueryRow(ctx, `
			INSERT INTO payments (reservation_id, amount, status, transaction_id, payment_method)
			VALUES ($1, $2::numeric / 100, 'Completed', $3, $4)
			ON CONFLICT ON CONSTRAINT payments_reservation_key DO UPDATE
			SET status = 'Completed', amount = EXCLUDED.amount,
			    transaction_id = EXCLUDED.transaction_id,
			    payment_method = EXCLUDED.payment_method, updated_at = now()
			WHERE payments.status = 'Pending'
			RETURNING `+paymentCols,
			reservationID, amount.Cents(), transactionID, method))
		if errors.Is(err, pgx.ErrNoRows) {
			// The row exists but was already settled; return it as is.
			p, err = scanPayment(tx.QueryRow(ctx,
				`SELECT `+paymentCols+` FROM payments WHERE reservation_id = $1`, reservationID))
			return err
		}
		if err != nil {
			return err
		}
		changed = true
		_, err = tx.Exec(ctx,
			`UPDATE reservations SET payment_id = $1 WHERE id = $2 AND payment_id IS NULL`, p.ID, reservationID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return p, changed, nil
}

func (r *paymentRepository) ApplyRefund(ctx context.Context, rec domain.RefundRecord) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return database.WithTx(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE payments
			SET status = 'Refund', refund_date = $2, refund_id = $3, updated_at = now()
			WHERE id = $1 AND status = 'Completed'`,
			rec.PaymentID, rec.RefundedAt, rec.RefundID)
		if err != nil {
			return fmt.Errorf("update payment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrStateChanged
		}

		tag, err = tx.Exec(ctx, `UPDATE reservations SET active = FALSE WHERE id = $1`, rec.ReservationID)
		if err != nil {
			return fmt.Errorf("deactivate reservation: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrStateChanged
		}
		return nil
	})
}

func (r *paymentRepository) Context(ctx context.Context, paymentID int64) (*domain.PaymentContext, error) {
	const q = `SELECT p.id, p.reservation_id, (p.amount * 100)::bigint, p.status,
		COALESCE(p.transaction_id, ''), COALESCE(p.payment_method, ''), COALESCE(p.provider_order_id, ''),
		p.refund_date, COALESCE(p.refund_id, ''), p.created_at,
		v.member_id, v.room_id, v.check_in, v.check_out, (v.price * 100)::bigint, v.active,
		a.email, a.name, COALESCE(a.photo_url, ''), rt.id, rt.name
	FROM payments p
	JOIN reservations v ON v.id = p.reservation_id
	JOIN accounts a ON a.id = v.member_id
	JOIN rooms r ON r.id = v.room_id
	JOIN room_types rt ON rt.id = r.room_type_id
	WHERE p.id = $1`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		pc     domain.PaymentContext
		status string
	)
	p, v := &pc.Payment, &pc.Reservation
	err := r.pool.QueryRow(ctx, q, paymentID).Scan(
		&p.ID, &p.ReservationID, (*int64)(&p.Amount), &status,
		&p.TransactionID, &p.Method, &p.ProviderOrderID,
		&p.RefundDate, &p.RefundID, &p.CreatedAt,
		&v.MemberID, &v.RoomID, &v.CheckIn, &v.CheckOut, (*int64)(&v.Price), &v.Active,
		&pc.MemberEmail, &pc.MemberName, &pc.MemberPhoto, &v.RoomTypeID, &pc.RoomTypeName,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Status = domain.PaymentStatus(status)
	v.ID = p.ReservationID
	v.RoomTypeName = pc.RoomTypeName
	v.PaymentID = &p.ID
	return &pc, nil
}

func (r *paymentRepository) SalesReport(ctx context.Context) ([]domain.SalesLine, error) {
	const q = `SELECT rt.name, count(*), (sum(p.amount) * 100)::bigint
	FROM payments p
	JOIN reservations v ON v.id = p.reservation_id
	JOIN rooms r ON r.id = v.room_id
	JOIN room_types rt ON rt.id = r.room_type_id
	WHERE p.status = 'Completed'
	GROUP BY rt.name
	ORDER BY rt.name`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []domain.SalesLine
	for rows.Next() {
		var (
			line  domain.SalesLine
			count int64
		)
		if err := rows.Scan(&line.RoomTypeName, &count, (*int64)(&line.Total)); err != nil {
			return nil, err
		}
		line.Payments = int(count)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *paymentRepository) StayReport(ctx context.Context, day domain.Date) (*domain.StayReport, error) {
	const q = `SELECT count(*),
		count(*) FILTER (WHERE p.status = 'Completed'),
		count(*) FILTER (WHERE p.status IS NULL OR p.status = 'Pending'),
		COALESCE((sum(p.amount) FILTER (WHERE p.status = 'Completed') * 100)::bigint, 0)
	FROM reservations v
	LEFT JOIN payments p ON p.id = v.payment_id
	WHERE v.active AND v.check_out = $1`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rep := domain.StayReport{Day: day}
	var stays, paid, unpaid int64
	if err := r.pool.QueryRow(ctx, q, day.Time).Scan(&stays, &paid, &unpaid, (*int64)(&rep.Revenue)); err != nil {
		return nil, err
	}
	rep.Stays, rep.Paid, rep.Unpaid = int(stays), int(paid), int(unpaid)
	return &rep, nil
}

type reconciliationRepository struct {
	pool *pgxpool.Pool
}

func NewReconciliationRepository(pool *pgxpool.Pool) ReconciliationRepository {
	return &reconciliationRepository{pool: pool}
}

func (r *reconciliationRepository) Record(ctx context.Context, rec *domain.Reconciliation) error {
	// The caller's context may already be cancelled by the failure being
	// recorded.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), queryTimeout)
	defer cancel()

	return r.pool.QueryRow(ctx, `
		INSERT INTO payment_reconciliations (payment_id, kind, provider_ref, reason)
		VALUES ($1, $2, NULLIF($3, ''), $4)
		RETURNING id, created_at`,
		rec.PaymentID, rec.Kind, rec.ProviderRef, rec.Reason,
	).Scan(&rec.ID, &rec.CreatedAt)
}

func (r *reconciliationRepository) List(ctx context.Context, openOnly bool) ([]domain.Reconciliation, error) {
	const q = `SELECT id, payment_id, kind, COALESCE(provider_ref, ''), reason, created_at,
		resolved_at, COALESCE(resolution, '')
	FROM payment_reconciliations
	WHERE NOT $1 OR resolved_at IS NULL
	ORDER BY created_at`

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, openOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Reconciliation
	for rows.Next() {
		var rec domain.Reconciliation
		if err := rows.Scan(&rec.ID, &rec.PaymentID, &rec.Kind, &rec.ProviderRef, &rec.Reason,
			&rec.CreatedAt, &rec.ResolvedAt, &rec.Resolution); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *reconciliationRepository) Resolve(ctx context.Context, id int64, resolution string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `
		UPDATE payment_reconciliations SET resolved_at = $2, resolution = $3
		WHERE id = $1 AND resolved_at IS NULL`, id, time.Now().UTC(), resolution)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
