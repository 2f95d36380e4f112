package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/diagnosis/staybook/pkg/apperr"
	"github.com/diagnosis/staybook/pkg/config"
	"github.com/diagnosis/staybook/pkg/database"
	"github.com/diagnosis/staybook/pkg/events"
	"github.com/diagnosis/staybook/pkg/logger"
	"github.com/diagnosis/staybook/services/booking/internal/domain"
	"github.com/diagnosis/staybook/services/booking/internal/repository"
)

const refundConsistencyMsg = "refund succeeded upstream but local persistence failed"

type RefundService interface {
	// Refund reverses a PayPal capture in full or in part. amount is in the
	// local currency.
	Refund(ctx context.Context, paymentID int64, amount domain.Money) (*domain.Payment, error)
	// QRRefund reverses a scan-to-pay payment locally.
	QRRefund(ctx context.Context, actor Actor, paymentID int64) (*domain.Payment, error)
}

type refundService struct {
	payments       repository.PaymentRepository
	reservations   repository.ReservationRepository
	reconciliation repository.ReconciliationRepository
	provider       PaymentProvider
	eventBus       events.Publisher
	rate           float64
	currency       string
	calendar
}

func NewRefundService(
	payments repository.PaymentRepository,
	reservations repository.ReservationRepository,
	reconciliation repository.ReconciliationRepository,
	provider PaymentProvider,
	eventBus events.Publisher,
	cfg *config.Config,
	clock Clock,
) RefundService {
	return &refundService{
		payments:       payments,
		reservations:   reservations,
		reconciliation: reconciliation,
		provider:       provider,
		eventBus:       eventBus,
		rate:           cfg.PayPal.ConversionRate,
		currency:       cfg.PayPal.Currency,
		calendar:       newCalendar(cfg, clock),
	}
}

func (s *refundService) load(ctx context.Context, paymentID int64) (*domain.Payment, error) {
	pay, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if pay == nil {
		return nil, apperr.NotFound("payment not found")
	}
	return pay, nil
}

func (s *refundService) Refund(ctx context.Context, paymentID int64, amount domain.Money) (*domain.Payment, error) {
	pay, err := s.load(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithReservation(ctx, pay.ReservationID)

	switch {
	case pay.IsRefunded():
		return nil, apperr.BusinessRule(apperr.CodeAlreadyRefunded, "payment has already been refunded")
	case pay.TransactionID == "" || !pay.IsCompleted():
		return nil, apperr.BusinessRule(apperr.CodeNotCaptured, "payment has not been captured")
	case pay.Method != domain.MethodPayPal:
		return nil, apperr.BusinessRule(apperr.CodeWrongMethod, "only PayPal payments are refunded through the provider")
	case amount <= 0 || amount > pay.Amount:
		return nil, apperr.BusinessRule(apperr.CodeAmountOutOfRange,
			fmt.Sprintf("refund amount must be greater than 0 and at most %s", pay.Amount))
	}

	// A full refund sends no amount so the provider returns exactly what it
	// captured.
	var settlement *domain.Money
	if amount != pay.Amount {
		converted := amount.Convert(s.rate)
		if converted <= 0 {
			return nil, apperr.BusinessRule(apperr.CodeAmountOutOfRange,
				fmt.Sprintf("refund amount %s is too small to settle", amount))
		}
		settlement = &converted
	}

	refund, err := s.provider.RefundCapture(ctx, pay.TransactionID, settlement)
	if err != nil {
		return nil, apperr.Provider("PayPal refund failed", err)
	}

	// The provider has moved money; the local commit must not be abandoned
	// because the client went away.
	lctx := context.WithoutCancel(ctx)
	refundedAt := s.now()
	rec := domain.RefundRecord{
		PaymentID:     pay.ID,
		ReservationID: pay.ReservationID,
		RefundID:      refund.ID,
		RefundedAt:    refundedAt,
	}
	if err := s.payments.ApplyRefund(lctx, rec); err != nil {
		stage := "local update failed"
		if database.IsCommitError(err) {
			stage = "local commit outcome unknown"
		}
		flagReconciliation(lctx, s.reconciliation, s.eventBus, pay, domain.ReconcileRefund, refund.ID, refundedAt,
			fmt.Sprintf("refund %s (%s) succeeded upstream but %s: %v", refund.ID, refund.Status, stage, err))
		return nil, apperr.Consistency(refundConsistencyMsg, err)
	}

	pay.Status = domain.PaymentRefund
	pay.RefundID = refund.ID
	pay.RefundDate = &refundedAt

	logger.InfoContext(ctx, "Payment refunded", "payment_id", pay.ID, "refund_id", refund.ID,
		"provider_status", refund.Status, "amount", amount.String(), "full", settlement == nil)
	s.notifyRefunded(lctx, pay.ID, amount, refund.Status)
	return pay, nil
}

func (s *refundService) QRRefund(ctx context.Context, actor Actor, paymentID int64) (*domain.Payment, error) {
	pay, err := s.load(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	res, err := s.reservations.GetByID(ctx, pay.ReservationID)
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	if res == nil || !actor.Owns(res.MemberID) {
		return nil, apperr.NotFound("payment not found")
	}
	ctx = logger.WithReservation(ctx, res.ID)

	switch {
	case pay.IsRefunded():
		return nil, apperr.BusinessRule(apperr.CodeAlreadyRefunded, "payment has already been refunded")
	case !pay.IsCompleted():
		return nil, apperr.BusinessRule(apperr.CodeNotCaptured, "payment has not been completed")
	case pay.Method != domain.MethodEWallet:
		return nil, apperr.BusinessRule(apperr.CodeWrongMethod, "only e-wallet payments are refunded locally")
	}

	refundedAt := s.now()
	rec := domain.RefundRecord{
		PaymentID:     pay.ID,
		ReservationID: pay.ReservationID,
		RefundID:      uuid.NewString(),
		RefundedAt:    refundedAt,
	}
	if err := s.payments.ApplyRefund(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrStateChanged) {
			return nil, apperr.BusinessRule(apperr.CodeAlreadyRefunded, "payment has already been refunded")
		}
		return nil, fmt.Errorf("apply qr refund: %w", err)
	}

	pay.Status = domain.PaymentRefund
	pay.RefundID = rec.RefundID
	pay.RefundDate = &refundedAt

	logger.InfoContext(ctx, "E-wallet payment refunded", "payment_id", pay.ID, "refund_id", rec.RefundID)
	s.notifyRefunded(ctx, pay.ID, pay.Amount, "COMPLETED")
	return pay, nil
}

func (s *refundService) notifyRefunded(ctx context.Context, paymentID int64, amount domain.Money, status string) {
	pc, err := s.payments.Context(ctx, paymentID)
	if err != nil || pc == nil {
		logger.WarnContext(ctx, "Skipping refund notice, payment context unavailable", "payment_id", paymentID, "error", err)
		return
	}
	refundedAt := s.now()
	if pc.Payment.RefundDate != nil {
		refundedAt = *pc.Payment.RefundDate
	}
	publish(ctx, s.eventBus, events.PaymentRefunded, events.PaymentRefundedEvent{
		PaymentID:     pc.Payment.ID,
		ReservationID: pc.Reservation.ID,
		MemberEmail:   pc.MemberEmail,
		MemberName:    pc.MemberName,
		MemberPhoto:   pc.MemberPhoto,
		RoomTypeName:  pc.RoomTypeName,
		CheckIn:       pc.Reservation.CheckIn.String(),
		CheckOut:      pc.Reservation.CheckOut.String(),
		Amount:        amount.String(),
		Currency:      s.currency,
		Method:        pc.Payment.Method,
		RefundID:      pc.Payment.RefundID,
		Status:        status,
		RefundedAt:    refundedAt,
	})
}
