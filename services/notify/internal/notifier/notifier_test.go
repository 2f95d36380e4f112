package notifier_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/staybook/pkg/events"
	"github.com/diagnosis/staybook/pkg/mailer"
	"github.com/diagnosis/staybook/services/notify/internal/notifier"
)

type captureSender struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (c *captureSender) Send(_ context.Context, msg mailer.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, msg)
	return nil
}

// fakeBus records queue subscriptions so tests can deliver messages directly.
type fakeBus struct {
	handlers map[string]func(*events.Message)
	queues   map[string]string
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: map[string]func(*events.Message){}, queues: map[string]string{}}
}

func (b *fakeBus) Subscribe(subject string, h func(*events.Message)) error {
	b.handlers[subject] = h
	return nil
}

func (b *fakeBus) QueueSubscribe(subject, queue string, h func(*events.Message)) error {
	b.handlers[subject] = h
	b.queues[subject] = queue
	return nil
}

func (b *fakeBus) Close() error { return nil }

func (b *fakeBus) deliver(t *testing.T, subject string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	h, ok := b.handlers[subject]
	require.True(t, ok, "no handler for %s", subject)
	h(&events.Message{Subject: subject, Data: data, ID: "msg-1", Timestamp: time.Now()})
}

func setup(t *testing.T) (*captureSender, *fakeBus) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "profile"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "profile", "guest.jpg"), []byte("jpeg"), 0o644))

	sender := &captureSender{}
	n, err := notifier.New(sender, notifier.Config{
		Hotel:      "Staybook Hotel",
		AppBaseURL: "https://hotel.test/",
		PhotoDir:   dir,
		Location:   time.UTC,
	})
	require.NoError(t, err)

	bus := newFakeBus()
	require.NoError(t, n.Subscribe(bus))
	return sender, bus
}

func TestSubscribe_UsesQueueGroup(t *testing.T) {
	_, bus := setup(t)

	for _, subject := range []string{events.PaymentCaptured, events.PaymentRefunded, events.AccountLocked, events.AccountPasswordResetRequested} {
		assert.Equal(t, notifier.QueueGroup, bus.queues[subject], subject)
	}
}

func TestPaymentReceipt(t *testing.T) {
	sender, bus := setup(t)

	bus.deliver(t, events.PaymentCaptured, events.PaymentCapturedEvent{
		PaymentID: 11, ReservationID: 5, MemberEmail: "ana@example.com", MemberName: "Ana", MemberPhoto: "guest.jpg",
		RoomID: "R001", RoomTypeName: "Deluxe", CheckIn: "2026-03-05", CheckOut: "2026-03-07",
		Amount: "200.00", Currency: "MYR", Method: "PayPal", TransactionID: "CAP-1",
	})

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "ana@example.com", msg.To)
	assert.Contains(t, msg.Subject, "#5")
	assert.Contains(t, msg.HTML, "Deluxe (R001)")
	assert.Contains(t, msg.HTML, "MYR 200.00")
	assert.Contains(t, msg.HTML, "cid:avatar")
	require.NotNil(t, msg.Inline)
	assert.Equal(t, "guest.jpg", msg.Inline.Filename)
	assert.Equal(t, []byte("jpeg"), msg.Inline.Data)
}

func TestRefundNotice(t *testing.T) {
	sender, bus := setup(t)

	bus.deliver(t, events.PaymentRefunded, events.PaymentRefundedEvent{
		PaymentID: 11, ReservationID: 5, MemberEmail: "ana@example.com", MemberName: "Ana", MemberPhoto: "guest.jpg",
		RoomTypeName: "Deluxe", CheckIn: "2026-03-05", CheckOut: "2026-03-07", Amount: "200.00", Currency: "MYR",
		Method: "E-Wallet", RefundID: "REF-9", Status: "Refund",
		RefundedAt: time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC),
	})

	require.Len(t, sender.sent, 1)
	html := sender.sent[0].HTML
	for _, want := range []string{"Deluxe", "E-Wallet", "MYR 200.00", "2026-03-05", "2026-03-07", "02 Mar 2026 08:30 UTC", "Refund", "REF-9"} {
		assert.Contains(t, html, want)
	}
}

func TestAccountLocked_ReactivationLink(t *testing.T) {
	sender, bus := setup(t)

	bus.deliver(t, events.AccountLocked, events.AccountLockedEvent{
		AccountID: 3, Email: "bob@example.com", Name: "Bob", Photo: "missing.png", Token: "tok-123",
		ExpiresAt: time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC),
	})

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Contains(t, msg.Text, "https://hotel.test/account/reactivate?token=tok-123")
	assert.Contains(t, msg.HTML, "tok-123")
	assert.Nil(t, msg.Inline, "an unreadable photo only drops the image")
	assert.NotContains(t, msg.HTML, "cid:")
}

func TestPasswordReset_Link(t *testing.T) {
	sender, bus := setup(t)

	bus.deliver(t, events.AccountPasswordResetRequested, events.PasswordResetRequestedEvent{
		AccountID: 2, Email: "ana@example.com", Name: "Ana", Photo: "guest.jpg", Token: "reset-1",
		ExpiresAt: time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC),
	})

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Text, "https://hotel.test/account/reset?token=reset-1")
	assert.Equal(t, "Reset your password", sender.sent[0].Subject)
}

func TestDeliveryFailureIsSwallowed(t *testing.T) {
	sender, bus := setup(t)
	sender.err = errors.New("smtp down")

	assert.NotPanics(t, func() {
		bus.deliver(t, events.PaymentCaptured, events.PaymentCapturedEvent{MemberEmail: "a@b.c"})
	})
	assert.Empty(t, sender.sent)
}

func TestBadPayloadIsSwallowed(t *testing.T) {
	sender, bus := setup(t)

	bus.handlers[events.AccountLocked](&events.Message{Subject: events.AccountLocked, Data: []byte("{not json")})
	assert.Empty(t, sender.sent)
}
