package domain

import "time"

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "Pending"
	PaymentCompleted PaymentStatus = "Completed"
	PaymentRefund    PaymentStatus = "Refund"
)

const (
	MethodPayPal  = "PayPal"
	MethodEWallet = "E-Wallet"
)

type Payment struct {
	ID              int64         `json:"id"`
	ReservationID   int64         `json:"reservation_id"`
	Amount          Money         `json:"amount"`
	Status          PaymentStatus `json:"status"`
	TransactionID   string        `json:"transaction_id,omitempty"`
	Method          string        `json:"payment_method,omitempty"`
	ProviderOrderID string        `json:"provider_order_id,omitempty"`
	RefundDate      *time.Time    `json:"refund_date,omitempty"`
	RefundID        string        `json:"refund_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

func (p *Payment) IsCompleted() bool { return p.Status == PaymentCompleted }
func (p *Payment) IsRefunded() bool { return p.Status == PaymentRefund }

// PaymentContext joins a payment with what notifications need to say about it.
type PaymentContext struct {
	Payment      Payment
	Reservation  Reservation
	MemberEmail  string
	MemberName   string
	MemberPhoto  string
	RoomTypeName string
}

// RefundRecord is written together with deactivating the reservation.
type RefundRecord struct {
	PaymentID     int64
	ReservationID int64
	RefundID      string
	RefundedAt    time.Time
}

// Reconciliation kinds name the provider operation that succeeded upstream.
const (
	ReconcileCapture = "capture"
	ReconcileRefund  = "refund"
)

// Reconciliation flags a provider-side success whose local commit failed.
// ProviderRef is the capture id for a capture and the refund id for a refund.
type Reconciliation struct {
	ID          int64      `json:"id"`
	PaymentID   int64      `json:"payment_id"`
	Kind        string     `json:"kind"`
	ProviderRef string     `json:"provider_ref"`
	Reason      string     `json:"reason"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	Resolution  string     `json:"resolution,omitempty"`
}

// QRCode is what the scan-to-pay step hands back to the client.
type QRCode struct {
	CorrelationID string    `json:"correlation_id"`
	ReservationID int64     `json:"reservation_id"`
	Amount        Money     `json:"amount"`
	Image         string    `json:"image"`
	ExpiresAt     time.Time `json:"expires_at"`
}
