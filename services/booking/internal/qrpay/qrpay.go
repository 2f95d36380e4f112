// Package qrpay simulates a wallet scan-to-pay flow. The QR payload is
// informational only; confirmation trusts the server-side correlation record.
package qrpay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/diagnosis/staybook/pkg/config"
	"github.com/diagnosis/staybook/services/booking/internal/domain"
)

// Store keeps correlation records; *cache.Store satisfies it.
type Store interface {
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, v any) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Payload is the JSON document encoded in the QR image.
type Payload struct {
	ReservationId int64        `json:"ReservationId"`
	Amount        domain.Money `json:"Amount"`
	WalletType    string       `json:"WalletType"`
	PaymentId     string       `json:"PaymentId"`
	Timestamp     time.Time    `json:"Timestamp"`
	MerchantName  string       `json:"MerchantName"`
}

// Correlation binds a generated code to the reservation it was issued for.
type Correlation struct {
	ReservationID int64        `json:"reservation_id"`
	MemberID      int64        `json:"member_id"`
	Amount        domain.Money `json:"amount"`
}

type Generator struct {
	cfg   config.QRConfig
	store Store
	now   func() time.Time
}

func NewGenerator(cfg config.QRConfig, store Store, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	if cfg.Size <= 0 {
		cfg.Size = 300
	}
	return &Generator{cfg: cfg, store: store, now: now}
}

func key(correlationID string) string { return "qr:" + correlationID }

// Generate issues a correlation id, remembers it for the configured TTL and
// renders the code.
func (g *Generator) Generate(ctx context.Context, reservationID, memberID int64, amount domain.Money) (*domain.QRCode, error) {
	now := g.now().UTC()
	payload := Payload{
		ReservationId: reservationID,
		Amount:        amount,
		WalletType:    g.cfg.WalletType,
		PaymentId:     uuid.NewString(),
		Timestamp:     now,
		MerchantName:  g.cfg.MerchantName,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal qr payload: %w", err)
	}
	image, err := Render(raw, g.cfg.Size)
	if err != nil {
		return nil, err
	}

	corr := Correlation{ReservationID: reservationID, MemberID: memberID, Amount: amount}
	if err := g.store.SetJSON(ctx, key(payload.PaymentId), corr, g.cfg.CodeTTL); err != nil {
		return nil, fmt.Errorf("store qr correlation: %w", err)
	}

	return &domain.QRCode{
		CorrelationID: payload.PaymentId,
		ReservationID: reservationID,
		Amount:        amount,
		Image:         image,
		ExpiresAt:     now.Add(g.cfg.CodeTTL),
	}, nil
}

// Lookup reports the correlation record, false once it expired or was used.
func (g *Generator) Lookup(ctx context.Context, correlationID string) (*Correlation, bool, error) {
	var corr Correlation
	ok, err := g.store.GetJSON(ctx, key(correlationID), &corr)
	if err != nil || !ok {
		return nil, false, err
	}
	return &corr, true, nil
}

func (g *Generator) Forget(ctx context.Context, correlationID string) error {
	return g.store.Delete(ctx, key(correlationID))
}

// Render encodes content as a PNG QR code at high recovery and returns it as
// a data URL.
func Render(content []byte, size int) (string, error) {
	png, err := qrcode.Encode(string(content), qrcode.High, size)
	if err != nil {
		return "", fmt.Errorf("render qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
