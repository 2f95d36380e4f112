// Package notifier turns domain events into emails.
package notifier

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/diagnosis/staybook/pkg/events"
	"github.com/diagnosis/staybook/pkg/logger"
	"github.com/diagnosis/staybook/pkg/mailer"
)

//go:embed templates/*.html
var templateFS embed.FS

// QueueGroup spreads deliveries across notify replicas.
const QueueGroup = "notify"

const (
	inlineCID   = "avatar"
	adminPhoto  = "admin.jpg"
	photoFolder = "profile"
	timeLayout  = "02 Jan 2006 15:04 MST"
)

type Config struct {
	Hotel      string
	AppBaseURL string
	PhotoDir   string
	Location   *time.Location
}

type Notifier struct {
	sender mailer.Sender
	cfg    Config
	tmpl   *template.Template
}

func New(sender mailer.Sender, cfg Config) (*Notifier, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Notifier{sender: sender, cfg: cfg, tmpl: tmpl}, nil
}

// Subscribe registers a handler for every subject that produces mail.
func (n *Notifier) Subscribe(sub events.Subscriber) error {
	handlers := map[string]func(context.Context, *events.Message) error{
		events.PaymentCaptured:               n.handlePaymentCaptured,
		events.PaymentRefunded:               n.handlePaymentRefunded,
		events.AccountLocked:                 n.handleAccountLocked,
		events.AccountPasswordResetRequested: n.handlePasswordReset,
	}
	for subject, h := range handlers {
		h := h
		err := sub.QueueSubscribe(subject, QueueGroup, func(msg *events.Message) {
			ctx := context.WithValue(context.Background(), logger.RequestIDKey, msg.ID)
			if err := h(ctx, msg); err != nil {
				logger.ErrorContext(ctx, "Notification failed", "subject", msg.Subject, "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
	}
	return nil
}

type view struct {
	Name      string
	Hotel     string
	InlineCID string
	Data      any
	Link      string
	Expires   string
	// RefundDate is only set for refund notices.
	RefundDate string
}

func (n *Notifier) handlePaymentCaptured(ctx context.Context, msg *events.Message) error {
	var ev events.PaymentCapturedEvent
	if err := msg.Decode(&ev); err != nil {
		return err
	}
	return n.send(ctx, "receipt.html", ev.MemberEmail, ev.MemberName, ev.MemberPhoto,
		fmt.Sprintf("Payment receipt for reservation #%d", ev.ReservationID),
		fmt.Sprintf("We received %s %s for reservation #%d (%s, %s to %s). Transaction %s.",
			ev.Currency, ev.Amount, ev.ReservationID, ev.RoomTypeName, ev.CheckIn, ev.CheckOut, ev.TransactionID),
		view{Data: ev})
}

func (n *Notifier) handlePaymentRefunded(ctx context.Context, msg *events.Message) error {
	var ev events.PaymentRefundedEvent
	if err := msg.Decode(&ev); err != nil {
		return err
	}
	refunded := n.format(ev.RefundedAt)
	return n.send(ctx, "refund.html", ev.MemberEmail, ev.MemberName, ev.MemberPhoto,
		fmt.Sprintf("Refund for reservation #%d", ev.ReservationID),
		fmt.Sprintf("Your %s payment of %s %s for reservation #%d (%s to %s) was refunded on %s. Refund ID %s, status %s.",
			ev.Method, ev.Currency, ev.Amount, ev.ReservationID, ev.CheckIn, ev.CheckOut, refunded, ev.RefundID, ev.Status),
		view{Data: ev, RefundDate: refunded})
}

func (n *Notifier) handleAccountLocked(ctx context.Context, msg *events.Message) error {
	var ev events.AccountLockedEvent
	if err := msg.Decode(&ev); err != nil {
		return err
	}
	link := n.link("/account/reactivate", ev.Token)
	expires := n.format(ev.ExpiresAt)
	return n.send(ctx, "reactivate.html", ev.Email, ev.Name, ev.Photo,
		"Your account has been locked",
		fmt.Sprintf("Your account was locked after several failed sign-in attempts. Reactivate it before %s: %s", expires, link),
		view{Data: ev, Link: link, Expires: expires})
}

func (n *Notifier) handlePasswordReset(ctx context.Context, msg *events.Message) error {
	var ev events.PasswordResetRequestedEvent
	if err := msg.Decode(&ev); err != nil {
		return err
	}
	link := n.link("/account/reset", ev.Token)
	expires := n.format(ev.ExpiresAt)
	return n.send(ctx, "reset.html", ev.Email, ev.Name, ev.Photo,
		"Reset your password",
		fmt.Sprintf("Choose a new password before %s: %s", expires, link),
		view{Data: ev, Link: link, Expires: expires})
}

func (n *Notifier) send(ctx context.Context, tmpl, to, name, photo, subject, text string, v view) error {
	msg := mailer.Message{To: to, ToName: name, Subject: subject, Text: text}

	if inline := n.inline(ctx, photo); inline != nil {
		msg.Inline = inline
		v.InlineCID = inline.ContentID
	}
	v.Name, v.Hotel = name, n.cfg.Hotel

	var buf bytes.Buffer
	if err := n.tmpl.ExecuteTemplate(&buf, tmpl, v); err != nil {
		return fmt.Errorf("render %s: %w", tmpl, err)
	}
	msg.HTML = buf.String()

	if err := n.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %q to %s: %w", subject, to, err)
	}
	logger.InfoContext(ctx, "Notification sent", "template", tmpl, "to", to)
	return nil
}

// inline loads the recipient's photo; a missing file only drops the image.
func (n *Notifier) inline(ctx context.Context, photo string) *mailer.Attachment {
	if photo == "" {
		photo = adminPhoto
	}
	path := filepath.Join(n.cfg.PhotoDir, photoFolder, filepath.Base(photo))
	att, err := mailer.LoadInline(path, inlineCID)
	if err != nil {
		logger.WarnContext(ctx, "Mail image unavailable", "photo", photo, "error", err)
		return nil
	}
	return att
}

func (n *Notifier) link(path, token string) string {
	return strings.TrimRight(n.cfg.AppBaseURL, "/") + path + "?token=" + url.QueryEscape(token)
}

func (n *Notifier) format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(n.cfg.Location).Format(timeLayout)
}
