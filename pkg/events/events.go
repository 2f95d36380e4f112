package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/diagnosis/staybook/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	ID        string
}

// Decode unmarshals the message payload into v.
func (m *Message) Decode(v interface{}) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", m.Subject, err)
	}
	return nil
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url, name string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "bytes", len(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, wrap(handler))
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, wrap(handler))
	return err
}

func wrap(handler func(msg *Message)) nats.MsgHandler {
	return func(msg *nats.Msg) {
		id := msg.Header.Get(nats.MsgIdHdr)
		if id == "" {
			id = fmt.Sprintf("%d", time.Now().UnixNano())
		}
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
			ID:        id,
		})
	}
}

// Ping round-trips to the server; used by health checks.
func (n *NATSEventBus) Ping(ctx context.Context) error {
	return n.conn.FlushWithContext(ctx)
}

// Drain lets in-flight handlers finish before the connection closes.
func (n *NATSEventBus) Drain() error {
	return n.conn.Drain()
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Event subjects
const (
	ReservationCreated = "reservation.created"
	ReservationToggled = "reservation.toggled"

	PaymentCaptured          = "payment.captured"
	PaymentRefunded          = "payment.refunded"
	PaymentReconcileRequired = "payment.reconcile_required"

	AccountLocked                 = "account.locked"
	AccountPasswordResetRequested = "account.password_reset_requested"
)

// Event payloads

type ReservationCreatedEvent struct {
	ReservationID int64     `json:"reservation_id"`
	PaymentID     int64     `json:"payment_id"`
	MemberID      int64     `json:"member_id"`
	RoomID        string    `json:"room_id"`
	CheckIn       string    `json:"check_in"`
	CheckOut      string    `json:"check_out"`
	Amount        string    `json:"amount"`
	CreatedAt     time.Time `json:"created_at"`
}

type ReservationToggledEvent struct {
	ReservationID int64     `json:"reservation_id"`
	Active        bool      `json:"active"`
	ToggledBy     int64     `json:"toggled_by"`
	ToggledAt     time.Time `json:"toggled_at"`
}

// PaymentCapturedEvent drives the payment receipt email.
type PaymentCapturedEvent struct {
	PaymentID     int64     `json:"payment_id"`
	ReservationID int64     `json:"reservation_id"`
	MemberEmail   string    `json:"member_email"`
	MemberName    string    `json:"member_name"`
	MemberPhoto   string    `json:"member_photo"`
	RoomID        string    `json:"room_id"`
	RoomTypeName  string    `json:"room_type_name"`
	CheckIn       string    `json:"check_in"`
	CheckOut      string    `json:"check_out"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	Method        string    `json:"method"`
	TransactionID string    `json:"transaction_id"`
	CapturedAt    time.Time `json:"captured_at"`
}

// PaymentRefundedEvent drives the refund notice email.
type PaymentRefundedEvent struct {
	PaymentID     int64     `json:"payment_id"`
	ReservationID int64     `json:"reservation_id"`
	MemberEmail   string    `json:"member_email"`
	MemberName    string    `json:"member_name"`
	MemberPhoto   string    `json:"member_photo"`
	RoomTypeName  string    `json:"room_type_name"`
	CheckIn       string    `json:"check_in"`
	CheckOut      string    `json:"check_out"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	Method        string    `json:"method"`
	RefundID      string    `json:"refund_id"`
	Status        string    `json:"status"`
	RefundedAt    time.Time `json:"refunded_at"`
}

type PaymentReconcileRequiredEvent struct {
	PaymentID     int64     `json:"payment_id"`
	ReservationID int64     `json:"reservation_id"`
	Kind          string    `json:"kind"`
	ProviderRef   string    `json:"provider_ref"`
	Reason        string    `json:"reason"`
	DetectedAt    time.Time `json:"detected_at"`
}

type AccountLockedEvent struct {
	AccountID int64     `json:"account_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Photo     string    `json:"photo"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	LockedAt  time.Time `json:"locked_at"`
}

type PasswordResetRequestedEvent struct {
	AccountID   int64     `json:"account_id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Photo       string    `json:"photo"`
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
	RequestedAt time.Time `json:"requested_at"`
}
