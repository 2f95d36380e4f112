package mailer

import (
	"context"
	"fmt"
	"os"

	"github.com/diagnosis/staybook/pkg/logger"
)

type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) Send(ctx context.Context, msg Message) error {
	inline := ""
	if msg.Inline != nil {
		inline = msg.Inline.Filename
	}
	logger.InfoContext(ctx, "📧 [DEV MAIL]",
		"to", msg.To,
		"subject", msg.Subject,
		"inline", inline,
	)

	fmt.Fprintf(os.Stdout, "\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"📧 %s (DEV MODE)\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n"+
		"To: %s (%s)\n"+
		"\n"+
		"%s\n"+
		"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n",
		msg.Subject, msg.To, msg.ToName, msg.Text)

	return nil
}
