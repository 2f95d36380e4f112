package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/staybook/pkg/apperr"
	"github.com/diagnosis/staybook/pkg/database"
	"github.com/diagnosis/staybook/pkg/events"
	"github.com/diagnosis/staybook/services/booking/internal/domain"
	"github.com/diagnosis/staybook/services/booking/internal/service"
)

type refundFixture struct {
	svc            service.RefundService
	payments       *mockPayments
	reconciliation *mockReconciliation
	provider       *mockProvider
	bus            *recordingBus
}

// newRefundFixture seeds a captured 300.00 PayPal payment (id 21) and a
// completed 200.00 e-wallet payment (id 22), both for member 7.
func newRefundFixture() refundFixture {
	payments := newMockPayments()
	reservations := newMockReservations(payments)
	reservations.add(domain.Reservation{ID: 1, MemberID: 7, RoomID: "R001", CheckIn: day(5), CheckOut: day(8), Active: true})
	reservations.add(domain.Reservation{ID: 2, MemberID: 7, RoomID: "R002", CheckIn: day(5), CheckOut: day(7), Active: true})
	payments.add(domain.Payment{ID: 21, ReservationID: 1, Amount: domain.NewMoney(300), Status: domain.PaymentCompleted,
		Method: domain.MethodPayPal, TransactionID: "CAP-21"})
	payments.add(domain.Payment{ID: 22, ReservationID: 2, Amount: domain.NewMoney(200), Status: domain.PaymentCompleted,
		Method: domain.MethodEWallet, TransactionID: "corr-22"})

	f := refundFixture{
		payments:       payments,
		reconciliation: &mockReconciliation{},
		provider:       &mockProvider{refundID: "REF-1"},
		bus:            &recordingBus{},
	}
	f.svc = service.NewRefundService(payments, reservations, f.reconciliation, f.provider, f.bus, testConfig(), fixedClock)
	return f
}

func TestRefund_FullSendsNoAmount(t *testing.T) {
	f := newRefundFixture()

	pay, err := f.svc.Refund(context.Background(), 21, domain.NewMoney(300))
	require.NoError(t, err)

	assert.Nil(t, f.provider.settlement)
	assert.Equal(t, domain.PaymentRefund, pay.Status)
	assert.Equal(t, "REF-1", pay.RefundID)
	require.NotNil(t, pay.RefundDate)
	assert.Equal(t, fixedNow, *pay.RefundDate)

	require.Len(t, f.payments.applied, 1)
	assert.Equal(t, int64(1), f.payments.applied[0].ReservationID)
	assert.Equal(t, 1, f.bus.count(events.PaymentRefunded))
}

func TestRefund_PartialConvertsToSettlementCurrency(t *testing.T) {
	f := newRefundFixture()

	pay, err := f.svc.Refund(context.Background(), 21, domain.NewMoney(100))
	require.NoError(t, err)

	require.NotNil(t, f.provider.settlement)
	assert.Equal(t, "24.00", f.provider.settlement.String())
	assert.Equal(t, domain.PaymentRefund, pay.Status)
}

func TestRefund_Preconditions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *domain.Payment)
		amount domain.Money
		code   string
	}{
		{"already refunded", func(p *domain.Payment) { p.Status = domain.PaymentRefund }, domain.NewMoney(10), apperr.CodeAlreadyRefunded},
		{"not captured", func(p *domain.Payment) { p.Status = domain.PaymentPending; p.TransactionID = "" }, domain.NewMoney(10), apperr.CodeNotCaptured},
		{"missing transaction id", func(p *domain.Payment) { p.TransactionID = "" }, domain.NewMoney(10), apperr.CodeNotCaptured},
		{"e-wallet payment", func(p *domain.Payment) { p.Method = domain.MethodEWallet }, domain.NewMoney(10), apperr.CodeWrongMethod},
		{"zero amount", func(*domain.Payment) {}, 0, apperr.CodeAmountOutOfRange},
		{"negative amount", func(*domain.Payment) {}, domain.NewMoney(-5), apperr.CodeAmountOutOfRange},
		{"more than paid", func(*domain.Payment) {}, domain.NewMoney(300.01), apperr.CodeAmountOutOfRange},
		{"rounds to nothing in settlement currency", func(*domain.Payment) {}, domain.Money(2), apperr.CodeAmountOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRefundFixture()
			tt.mutate(f.payments.payments[21])

			_, err := f.svc.Refund(context.Background(), 21, tt.amount)

			assert.Equal(t, apperr.KindBusinessRule, apperr.KindOf(err))
			assert.True(t, apperr.HasCode(err, tt.code), "got %v", err)
			assert.Zero(t, f.provider.refundCalls)
		})
	}
}

func TestRefund_UnknownPayment(t *testing.T) {
	f := newRefundFixture()

	_, err := f.svc.Refund(context.Background(), 999, domain.NewMoney(10))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestRefund_ProviderFailureChangesNothing(t *testing.T) {
	f := newRefundFixture()
	f.provider.refundErr = errBoom

	_, err := f.svc.Refund(context.Background(), 21, domain.NewMoney(300))

	assert.Equal(t, apperr.KindProvider, apperr.KindOf(err))
	assert.Equal(t, domain.PaymentCompleted, f.payments.payments[21].Status)
	assert.Empty(t, f.reconciliation.records)
}

func TestRefund_LocalFailureRecordsReconciliation(t *testing.T) {
	f := newRefundFixture()
	f.payments.applyErr = errBoom

	_, err := f.svc.Refund(context.Background(), 21, domain.NewMoney(300))

	assert.Equal(t, apperr.KindConsistency, apperr.KindOf(err))
	require.Len(t, f.reconciliation.records, 1)
	rec := f.reconciliation.records[0]
	assert.Equal(t, int64(21), rec.PaymentID)
	assert.Equal(t, domain.ReconcileRefund, rec.Kind)
	assert.Equal(t, "REF-1", rec.ProviderRef)
	assert.Contains(t, rec.Reason, "boom")
	assert.Equal(t, 1, f.bus.count(events.PaymentReconcileRequired))
	assert.Zero(t, f.bus.count(events.PaymentRefunded))
}

func TestRefund_CommitFailureNotesUnknownOutcome(t *testing.T) {
	f := newRefundFixture()
	f.payments.applyErr = &database.CommitError{Err: errBoom}

	_, err := f.svc.Refund(context.Background(), 21, domain.NewMoney(300))

	assert.Equal(t, apperr.KindConsistency, apperr.KindOf(err))
	require.Len(t, f.reconciliation.records, 1)
	assert.Contains(t, f.reconciliation.records[0].Reason, "commit outcome unknown")
}

func TestQRRefund_RefundsLocally(t *testing.T) {
	f := newRefundFixture()

	pay, err := f.svc.QRRefund(context.Background(), member, 22)
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentRefund, pay.Status)
	assert.NotEmpty(t, pay.RefundID)
	assert.Zero(t, f.provider.refundCalls)
	assert.Equal(t, 1, f.bus.count(events.PaymentRefunded))

	_, err = f.svc.QRRefund(context.Background(), member, 22)
	assert.True(t, apperr.HasCode(err, apperr.CodeAlreadyRefunded))
}

func TestQRRefund_Rejections(t *testing.T) {
	f := newRefundFixture()

	_, err := f.svc.QRRefund(context.Background(), member, 21)
	assert.True(t, apperr.HasCode(err, apperr.CodeWrongMethod))

	_, err = f.svc.QRRefund(context.Background(), service.Actor{ID: 8}, 22)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
