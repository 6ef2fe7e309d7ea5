package notification

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	mail "github.com/go-mail/mail/v2"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
)

// EmailConfig holds SMTP settings
type EmailConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string
	From          string // e.g. "Expenses <no-reply@example.com>"
	SkipTLSVerify bool
	Timeout       time.Duration
}

// mailDialer is the part of *mail.Dialer the sender uses
type mailDialer interface {
	DialAndSend(m ...*mail.Message) error
}

// EmailSender delivers rendered notifications over SMTP
type EmailSender struct {
	dialer mailDialer
	from   string
	logger *zap.Logger
}

// NewEmailSender creates an SMTP sender that requires STARTTLS
func NewEmailSender(cfg EmailConfig, logger *zap.Logger) *EmailSender {
	port := cfg.Port
	if port == 0 {
		port = 587
	}

	d := mail.NewDialer(cfg.Host, port, cfg.Username, cfg.Password)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.SkipTLSVerify,
	}
	if cfg.Timeout > 0 {
		d.Timeout = cfg.Timeout
	}

	return &EmailSender{dialer: d, from: cfg.From, logger: logger}
}

// Name implements port.MessageSender
func (s *EmailSender) Name() string {
	return "email"
}

// Send builds a multipart text/html message and hands it to the SMTP server.
// Messages without an address are skipped.
func (s *EmailSender) Send(ctx context.Context, msg *port.Message) error {
	if msg.To == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.from)
	if msg.ToName != "" {
		m.SetAddressHeader("To", msg.To, msg.ToName)
	} else {
		m.SetHeader("To", msg.To)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		s.logger.Error("Failed to send email", zap.String("to", msg.To), zap.Error(err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("Email sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

// Verify interface compliance
var _ port.MessageSender = (*EmailSender)(nil)
