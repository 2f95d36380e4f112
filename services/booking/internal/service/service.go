package service

import (
	"context"
	"io"
	"time"

	"github.com/diagnosis/staybook/pkg/config"
	"github.com/diagnosis/staybook/pkg/events"
	"github.com/diagnosis/staybook/pkg/logger"
	"github.com/diagnosis/staybook/services/booking/internal/domain"
	"github.com/diagnosis/staybook/services/booking/internal/paypal"
)

// Clock returns the current instant; tests pin it.
type Clock func() time.Time

// Actor is the authenticated caller.
type Actor struct {
	ID    int64
	Admin bool
}

func (a Actor) Owns(memberID int64) bool { return a.Admin || a.ID == memberID }

// Upload is a photo received from a multipart form.
type Upload struct {
	Name string
	Body io.Reader
}

// PhotoStore is the subset of storage.Store the catalog needs.
type PhotoStore interface {
	Save(ctx context.Context, folder, originalName string, r io.Reader) (string, error)
	Delete(ctx context.Context, folder, name string) error
}

// PaymentProvider is the redirect-protocol provider.
type PaymentProvider interface {
	CreateOrder(ctx context.Context, total domain.Money, referenceID string) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, orderID string) (*paypal.Capture, error)
	RefundCapture(ctx context.Context, captureID string, settlement *domain.Money) (*paypal.Refund, error)
}

type calendar struct {
	clock Clock
	loc   *time.Location
}

func newCalendar(cfg *config.Config, clock Clock) calendar {
	if clock == nil {
		clock = time.Now
	}
	return calendar{clock: clock, loc: cfg.Booking.Location()}
}

// today is the hotel's local calendar day.
func (c calendar) today() domain.Date { return domain.DateOf(c.clock(), c.loc) }

func (c calendar) now() time.Time { return c.clock().UTC() }

// publish never fails the caller; delivery problems are only logged.
func publish(ctx context.Context, bus events.Publisher, subject string, data any) {
	if bus == nil {
		return
	}
	if err := bus.Publish(ctx, subject, data); err != nil {
		logger.ErrorContext(ctx, "Failed to publish event", "subject", subject, "error", err)
	}
}
