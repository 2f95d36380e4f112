package mailer

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/diagnosis/staybook/pkg/config"
	"github.com/diagnosis/staybook/pkg/logger"
)

type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
	Inline  *Attachment
}

// Attachment is an image referenced from the HTML body as cid:<ContentID>.
type Attachment struct {
	Filename    string
	ContentID   string
	ContentType string
	Data        []byte
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LoadInline reads an image from disk for use as an inline attachment.
func LoadInline(path, contentID string) (*Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inline image: %w", err)
	}
	name := filepath.Base(path)
	ct := mime.TypeByExtension(filepath.Ext(name))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return &Attachment{Filename: name, ContentID: contentID, ContentType: ct, Data: data}, nil
}

// New picks a sender from configuration: dev logging, MailerSend when an API
// key is present, SMTP otherwise.
func New(cfg config.EmailConfig) Sender {
	switch {
	case cfg.DevMode:
		logger.Info("Mailer running in dev mode")
		return NewDevMailer()
	case cfg.MailerSendKey != "":
		return NewMailerSend(cfg.MailerSendKey, cfg.FromName, cfg.SMTPFrom)
	default:
		return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPUseTLS)
	}
}
