package alerting

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"
)

const emailSubject = "Crypto Price Alert!"

// EmailOptions parameterise the SMTP channel.
type EmailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

// EmailNotifier delivers alerts over plain SMTP.
type EmailNotifier struct {
	opts   EmailOptions
	logger zerolog.Logger
	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailNotifier constructs an SMTP channel.
func NewEmailNotifier(opts EmailOptions, logger zerolog.Logger) *EmailNotifier {
	if opts.Port <= 0 {
		opts.Port = 587
	}
	return &EmailNotifier{
		opts:   opts,
		logger: logger.With().Str("component", "alert_email").Logger(),
		send:   smtp.SendMail,
	}
}

// Notify sends the alert as a plain-text mail.
func (n *EmailNotifier) Notify(ctx context.Context, note Notification) error {
	if n.opts.Host == "" || n.opts.From == "" || n.opts.To == "" {
		return fmt.Errorf("email channel missing host, from, or to")
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	msg := strings.Builder{}
	msg.WriteString(fmt.Sprintf("From: %s\r\n", n.opts.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", n.opts.To))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", emailSubject))
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(renderText(note))
	msg.WriteString("\r\n")

	var auth smtp.Auth
	if n.opts.Username != "" {
		auth = smtp.PlainAuth("", n.opts.Username, n.opts.Password, n.opts.Host)
	}

	addr := fmt.Sprintf("%s:%d", n.opts.Host, n.opts.Port)
	if err := n.send(addr, auth, n.opts.From, []string{n.opts.To}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	n.logger.Info().Str("kind", note.Kind).Str("coin_id", note.CoinID).Msg("alert sent (email)")
	return nil
}

var _ Notifier = (*EmailNotifier)(nil)
