package service

import (
	"context"
	"io"
	"time"

	"github.com/diagnosis/staybook/pkg/events"
	"github.com/diagnosis/staybook/pkg/logger"
)

// Clock returns the current instant; tests pin it.
type Clock func() time.Time

// CaptchaVerifier gates the anonymous credential endpoints.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// PendingStore holds short-lived values that are consumed at most once;
// *cache.Store satisfies it.
type PendingStore interface {
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Take(ctx context.Context, key string, v any) (bool, error)
}

type PhotoStore interface {
	Save(ctx context.Context, folder, originalName string, r io.Reader) (string, error)
	Delete(ctx context.Context, folder, name string) error
}

// Upload is a photo received from a multipart form.
type Upload struct {
	Name string
	Body io.Reader
}

func publish(ctx context.Context, bus events.Publisher, subject string, data any) {
	if bus == nil {
		return
	}
	if err := bus.Publish(ctx, subject, data); err != nil {
		logger.ErrorContext(ctx, "Failed to publish event", "subject", subject, "error", err)
	}
}

func clockOrNow(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}
