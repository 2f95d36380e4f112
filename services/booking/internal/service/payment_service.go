package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/diagnosis/staybook/pkg/apperr"
	"github.com/diagnosis/staybook/pkg/config"
	"github.com/diagnosis/staybook/pkg/events"
	"github.com/diagnosis/staybook/pkg/logger"
	"github.com/diagnosis/staybook/services/booking/internal/domain"
	"github.com/diagnosis/staybook/services/booking/internal/qrpay"
	"github.com/diagnosis/staybook/services/booking/internal/repository"
)

// QRIssuer generates scan-to-pay codes and resolves their correlation ids.
type QRIssuer interface {
	Generate(ctx context.Context, reservationID, memberID int64, amount domain.Money) (*domain.QRCode, error)
	Lookup(ctx context.Context, correlationID string) (*qrpay.Correlation, bool, error)
	Forget(ctx context.Context, correlationID string) error
}

type PaymentService interface {
	CreatePayPalOrder(ctx context.Context, actor Actor, reservationID int64) (string, error)
	CapturePayPalOrder(ctx context.Context, actor Actor, orderID string) (*domain.Payment, error)
	GenerateQR(ctx context.Context, actor Actor, reservationID int64) (*domain.QRCode, error)
	ConfirmQR(ctx context.Context, actor Actor, correlationID string, reservationID int64) (*domain.Payment, error)
	GetPayment(ctx context.Context, actor Actor, id int64) (*domain.Payment, error)
	ListReconciliations(ctx context.Context, openOnly bool) ([]domain.Reconciliation, error)
	ResolveReconciliation(ctx context.Context, id int64, resolution string) error
}

type paymentService struct {
	payments       repository.PaymentRepository
	reservations   repository.ReservationRepository
	roomTypes      repository.RoomTypeRepository
	reconciliation repository.ReconciliationRepository
	provider       PaymentProvider
	qr             QRIssuer
	eventBus       events.Publisher
	currency       string
	calendar
}

func NewPaymentService(
	payments repository.PaymentRepository,
	reservations repository.ReservationRepository,
	roomTypes repository.RoomTypeRepository,
	reconciliation repository.ReconciliationRepository,
	provider PaymentProvider,
	qr QRIssuer,
	eventBus events.Publisher,
	cfg *config.Config,
	clock Clock,
) PaymentService {
	return &paymentService{
		payments:       payments,
		reservations:   reservations,
		roomTypes:      roomTypes,
		reconciliation: reconciliation,
		provider:       provider,
		qr:             qr,
		eventBus:       eventBus,
		currency:       cfg.PayPal.Currency,
		calendar:       newCalendar(cfg, clock),
	}
}

// ownedReservation loads a reservation the actor may act on.
func (s *paymentService) ownedReservation(ctx context.Context, actor Actor, id int64) (*domain.Reservation, error) {
	res, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	if res == nil || !actor.Owns(res.MemberID) {
		return nil, apperr.NotFound("reservation not found")
	}
	return res, nil
}

func (s *paymentService) pendingPayment(ctx context.Context, res *domain.Reservation) (*domain.Payment, error) {
	pay, err := s.payments.GetByReservation(ctx, res.ID)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if pay == nil {
		return nil, fmt.Errorf("reservation %d has no payment row", res.ID)
	}
	switch {
	case pay.IsCompleted():
		return nil, apperr.BusinessRule(apperr.CodeAlreadyPaid, "reservation is already paid")
	case pay.IsRefunded():
		return nil, apperr.BusinessRule(apperr.CodeAlreadyRefunded, "reservation was refunded")
	case !res.Active:
		return nil, apperr.BusinessRule(apperr.CodeResInactive, "reservation is no longer active")
	}
	return pay, nil
}

func (s *paymentService) CreatePayPalOrder(ctx context.Context, actor Actor, reservationID int64) (string, error) {
	res, err := s.ownedReservation(ctx, actor, reservationID)
	if err != nil {
		return "", err
	}
	ctx = logger.WithReservation(ctx, res.ID)

	pay, err := s.pendingPayment(ctx, res)
	if err != nil {
		return "", err
	}

	order, err := s.provider.CreateOrder(ctx, pay.Amount, strconv.FormatInt(res.ID, 10))
	if err != nil {
		return "", apperr.Provider("could not create PayPal order", err)
	}

	// An abandoned order leaves nothing to clean up; the id is overwritten by
	// the next attempt.
	if err := s.payments.SetProviderOrder(ctx, pay.ID, order.ID); err != nil {
		if errors.Is(err, repository.ErrStateChanged) {
			return "", apperr.BusinessRule(apperr.CodeAlreadyPaid, "reservation is already paid")
		}
		return "", fmt.Errorf("store provider order: %w", err)
	}

	logger.InfoContext(ctx, "PayPal order created", "order_id", order.ID, "amount", pay.Amount.String())
	return order.ID, nil
}

// CapturePayPalOrder settles the order and completes the matching payment.
// Nothing changes locally unless the provider reports a completed capture.
func (s *paymentService) CapturePayPalOrder(ctx context.Context, actor Actor, orderID string) (*domain.Payment, error) {
	pay, err := s.payments.GetByProviderOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get payment by order: %w", err)
	}
	if pay == nil {
		return nil, apperr.NotFound("order not found")
	}
	res, err := s.ownedReservation(ctx, actor, pay.ReservationID)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithReservation(ctx, pay.ReservationID)

	switch {
	case pay.IsCompleted() && pay.Method == domain.MethodPayPal:
		return pay, nil
	case pay.IsCompleted():
		return nil, apperr.BusinessRule(apperr.CodeAlreadyPaid, "reservation is already paid")
	case pay.IsRefunded():
		return nil, apperr.BusinessRule(apperr.CodeAlreadyRefunded, "reservation was refunded")
	case !res.Active:
		return nil, apperr.BusinessRule(apperr.CodeResInactive, "reservation is no longer active")
	}

	capture, err := s.provider.CaptureOrder(ctx, orderID)
	if err != nil {
		return nil, apperr.Provider("PayPal capture failed", err)
	}

	updated, err := s.payments.MarkCompleted(context.WithoutCancel(ctx), pay.ID, capture.CaptureID, domain.MethodPayPal)
	if err != nil {
		flagReconciliation(ctx, s.reconciliation, s.eventBus, pay, domain.ReconcileCapture, capture.CaptureID, s.now(),
			fmt.Sprintf("capture %s succeeded upstream but local update failed: %v", capture.CaptureID, err))
		return nil, apperr.Consistency("payment captured upstream but local persistence failed", err)
	}

	logger.InfoContext(ctx, "PayPal payment captured", "payment_id", updated.ID, "capture_id", capture.CaptureID)
	s.notifyCaptured(ctx, updated.ID)
	return updated, nil
}

// quote prices a stay from the room type's current rate, never from client
// input.
func (s *paymentService) quote(ctx context.Context, res *domain.Reservation) (domain.Money, error) {
	rt, err := s.roomTypes.GetByID(ctx, res.RoomTypeID)
	if err != nil {
		return 0, fmt.Errorf("get room type: %w", err)
	}
	if rt == nil {
		return 0, fmt.Errorf("room type %s of reservation %d is missing", res.RoomTypeID, res.ID)
	}
	return rt.Price.Times(res.Nights()), nil
}

func (s *paymentService) GenerateQR(ctx context.Context, actor Actor, reservationID int64) (*domain.QRCode, error) {
	res, err := s.ownedReservation(ctx, actor, reservationID)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithReservation(ctx, res.ID)

	if _, err := s.pendingPayment(ctx, res); err != nil {
		return nil, err
	}
	amount, err := s.quote(ctx, res)
	if err != nil {
		return nil, err
	}

	code, err := s.qr.Generate(ctx, res.ID, res.MemberID, amount)
	if err != nil {
		return nil, fmt.Errorf("generate qr: %w", err)
	}
	logger.InfoContext(ctx, "QR code issued", "correlation_id", code.CorrelationID)
	return code, nil
}

// ConfirmQR completes a scan-to-pay payment. It is idempotent: confirming an
// already completed reservation returns the existing payment.
func (s *paymentService) ConfirmQR(ctx context.Context, actor Actor, correlationID string, reservationID int64) (*domain.Payment, error) {
	res, err := s.ownedReservation(ctx, actor, reservationID)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithReservation(ctx, res.ID)

	existing, err := s.payments.GetByReservation(ctx, res.ID)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if existing != nil {
		switch {
		case existing.IsCompleted():
			return existing, nil
		case existing.IsRefunded():
			return nil, apperr.BusinessRule(apperr.CodeAlreadyRefunded, "reservation was refunded")
		}
	}
	if !res.Active {
		return nil, apperr.BusinessRule(apperr.CodeResInactive, "reservation is no longer active")
	}

	corr, ok, err := s.qr.Lookup(ctx, correlationID)
	if err != nil {
		return nil, fmt.Errorf("lookup qr correlation: %w", err)
	}
	if !ok {
		return nil, apperr.BusinessRule(apperr.CodeQRExpired, "QR code expired; generate a new one")
	}
	if corr.ReservationID != res.ID {
		return nil, apperr.BusinessRule(apperr.CodeQRMismatch, "QR code was issued for a different reservation")
	}

	amount, err := s.quote(ctx, res)
	if err != nil {
		return nil, err
	}

	pay, changed, err := s.payments.UpsertCompleted(ctx, res.ID, amount, domain.MethodEWallet, correlationID)
	if err != nil {
		return nil, fmt.Errorf("complete qr payment: %w", err)
	}
	if pay.IsRefunded() {
		return nil, apperr.BusinessRule(apperr.CodeAlreadyRefunded, "reservation was refunded")
	}

	if err := s.qr.Forget(ctx, correlationID); err != nil {
		logger.WarnContext(ctx, "Failed to drop qr correlation", "correlation_id", correlationID, "error", err)
	}
	if changed {
		logger.InfoContext(ctx, "QR payment confirmed", "payment_id", pay.ID, "amount", pay.Amount.String())
		s.notifyCaptured(ctx, pay.ID)
	}
	return pay, nil
}

func (s *paymentService) GetPayment(ctx context.Context, actor Actor, id int64) (*domain.Payment, error) {
	pay, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if pay == nil {
		return nil, apperr.NotFound("payment not found")
	}
	if _, err := s.ownedReservation(ctx, actor, pay.ReservationID); err != nil {
		return nil, apperr.NotFound("payment not found")
	}
	return pay, nil
}

func (s *paymentService) ListReconciliations(ctx context.Context, openOnly bool) ([]domain.Reconciliation, error) {
	list, err := s.reconciliation.List(ctx, openOnly)
	if err != nil {
		return nil, fmt.Errorf("list reconciliations: %w", err)
	}
	return list, nil
}

func (s *paymentService) ResolveReconciliation(ctx context.Context, id int64, resolution string) error {
	if resolution == "" {
		return apperr.Validation(map[string]string{"resolution": "is required"})
	}
	ok, err := s.reconciliation.Resolve(ctx, id, resolution)
	if err != nil {
		return fmt.Errorf("resolve reconciliation: %w", err)
	}
	if !ok {
		return apperr.NotFound("open reconciliation not found")
	}
	logger.InfoContext(ctx, "Reconciliation resolved", "reconciliation_id", id)
	return nil
}

func (s *paymentService) notifyCaptured(ctx context.Context, paymentID int64) {
	pc, err := s.payments.Context(ctx, paymentID)
	if err != nil || pc == nil {
		logger.WarnContext(ctx, "Skipping receipt, payment context unavailable", "payment_id", paymentID, "error", err)
		return
	}
	publish(ctx, s.eventBus, events.PaymentCaptured, events.PaymentCapturedEvent{
		PaymentID:     pc.Payment.ID,
		ReservationID: pc.Reservation.ID,
		MemberEmail:   pc.MemberEmail,
		MemberName:    pc.MemberName,
		MemberPhoto:   pc.MemberPhoto,
		RoomID:        pc.Reservation.RoomID,
		RoomTypeName:  pc.RoomTypeName,
		CheckIn:       pc.Reservation.CheckIn.String(),
		CheckOut:      pc.Reservation.CheckOut.String(),
		Amount:        pc.Payment.Amount.String(),
		Currency:      s.currency,
		Method:        pc.Payment.Method,
		TransactionID: pc.Payment.TransactionID,
		CapturedAt:    s.now(),
	})
}

// flagReconciliation records a provider/local mismatch for an operator. It is
// best effort: the caller already reports a consistency failure.
func flagReconciliation(ctx context.Context, repo repository.ReconciliationRepository, bus events.Publisher,
	pay *domain.Payment, kind, providerRef string, at time.Time, reason string) {
	rec := &domain.Reconciliation{PaymentID: pay.ID, Kind: kind, ProviderRef: providerRef, Reason: reason}
	if err := repo.Record(ctx, rec); err != nil {
		logger.ErrorContext(ctx, "Failed to record reconciliation", "payment_id", pay.ID, "kind", kind,
			"provider_ref", providerRef, "error", err)
	}
	logger.ErrorContext(ctx, "Payment needs manual reconciliation", "payment_id", pay.ID, "kind", kind,
		"provider_ref", providerRef, "reason", reason)
	publish(context.WithoutCancel(ctx), bus, events.PaymentReconcileRequired, events.PaymentReconcileRequiredEvent{
		PaymentID:     pay.ID,
		ReservationID: pay.ReservationID,
		Kind:          kind,
		ProviderRef:   providerRef,
		Reason:        reason,
		DetectedAt:    at,
	})
}
