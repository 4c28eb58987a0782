package notify

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/reporttrack/internal/models"
)

type EmailConfig struct {
	SMTPHost string
	SMTPPort int
	Username string
	Password string
	From     string
}

type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type EmailNotifier struct {
	dialer mailDialer
	from   string
}

func NewEmailNotifier(cfg EmailConfig) *EmailNotifier {
	username := cfg.Username
	if username == "" {
		username = cfg.From
	}
	return &EmailNotifier{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, username, cfg.Password),
		from:   cfg.From,
	}
}

func (e *EmailNotifier) Send(ctx context.Context, msg Message) error {
	if msg.To.Email == "" {
		return fmt.Errorf("recipient %q has no e-mail address", msg.To.Name)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", m.FormatAddress(msg.To.Email, msg.To.Name))
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("X-Priority", priority(msg))
	m.SetBody("text/plain", msg.Body)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}

	if err := e.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func priority(msg Message) string {
	if msg.Level == models.AlertLevelCritical || msg.Level == models.AlertLevelUrgent {
		return "1"
	}
	return "3"
}
