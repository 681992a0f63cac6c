package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/hanko-field/quotations/internal/platform/config"
	"github.com/hanko-field/quotations/internal/services"
)

const defaultSendTimeout = 15 * time.Second

// SendFunc delivers a composed message.
type SendFunc func(ctx context.Context, msg *gomail.Msg) error

// SMTPMailer renders quotation emails from embedded templates and delivers them over SMTP.
type SMTPMailer struct {
	fromName    string
	fromAddress string
	renderer    *Renderer
	send        SendFunc
	logger      *zap.Logger
}

// Option customises SMTPMailer construction.
type Option func(*SMTPMailer)

// WithSender replaces SMTP delivery, typically with a capturing sender in tests.
func WithSender(send SendFunc) Option {
	return func(m *SMTPMailer) {
		if send != nil {
			m.send = send
		}
	}
}

// WithLogger sets the logger used for delivery diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(m *SMTPMailer) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewSMTPMailer builds a mailer from SMTP settings. A blank host is rejected unless a sender is injected.
func NewSMTPMailer(cfg config.SMTPConfig, opts ...Option) (*SMTPMailer, error) {
	m := &SMTPMailer{
		fromName:    strings.TrimSpace(cfg.FromName),
		fromAddress: strings.TrimSpace(cfg.FromAddress),
		renderer:    NewRenderer(),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.send == nil {
		if strings.TrimSpace(cfg.Host) == "" {
			return nil, errors.New("mailer: smtp host is required")
		}
		m.send = smtpSender(cfg)
	}
	return m, nil
}

// SendQuotationEmail implements services.QuotationMailer. The email's From overrides the configured
// sender address when it parses as an address.
func (m *SMTPMailer) SendQuotationEmail(ctx context.Context, email services.QuotationEmail) error {
	to := strings.TrimSpace(email.To)
	if to == "" {
		return errors.New("mailer: recipient is required")
	}
	body, err := m.renderer.Render(email.Template, email.Language, email.Data)
	if err != nil {
		return err
	}

	msg := gomail.NewMsg()
	if err := m.setFrom(msg, email.From); err != nil {
		return err
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("mailer: to: %w", err)
	}
	msg.Subject(email.Subject)
	msg.SetBodyString(gomail.TypeTextHTML, body)

	if err := m.send(ctx, msg); err != nil {
		return fmt.Errorf("mailer: send %s: %w", email.Template, err)
	}
	m.logger.Debug("mailer: quotation email sent",
		zap.String("template", email.Template),
		zap.String("reference", email.Data.ReferenceID),
	)
	return nil
}

func (m *SMTPMailer) setFrom(msg *gomail.Msg, override string) error {
	if override = strings.TrimSpace(override); override != "" {
		if addr, err := mail.ParseAddress(override); err == nil {
			if err := msg.FromFormat(addr.Name, addr.Address); err != nil {
				return fmt.Errorf("mailer: from: %w", err)
			}
			return nil
		}
	}
	if m.fromAddress == "" {
		return errors.New("mailer: sender address is required")
	}
	if err := msg.FromFormat(m.fromName, m.fromAddress); err != nil {
		return fmt.Errorf("mailer: from: %w", err)
	}
	return nil
}

func smtpSender(cfg config.SMTPConfig) SendFunc {
	return func(ctx context.Context, msg *gomail.Msg) error {
		opts := []gomail.Option{
			gomail.WithPort(cfg.Port),
			gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
			gomail.WithTimeout(defaultSendTimeout),
		}
		if cfg.Username != "" {
			opts = append(opts,
				gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
				gomail.WithUsername(cfg.Username),
				gomail.WithPassword(cfg.Password),
			)
		}
		client, err := gomail.NewClient(cfg.Host, opts...)
		if err != nil {
			return fmt.Errorf("smtp client: %w", err)
		}
		return client.DialAndSendWithContext(ctx, msg)
	}
}

var _ services.QuotationMailer = (*SMTPMailer)(nil)
