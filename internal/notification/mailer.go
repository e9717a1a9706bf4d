package notification

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/gomail.v2"

	"github.com/frahmantamala/coaching-payments/internal"
)

//go:generate go run go.uber.org/mock/mockgen@v0.4.0 -source=mailer.go -destination=mocks/mailer.go -package=mocks

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPMailer sends confirmation emails with the receipt attached as JSON.
type SMTPMailer struct {
	from     string
	fromName string
	dialer   dialer
}

func NewSMTPMailer(cfg internal.EmailConfig) *SMTPMailer {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{
		ServerName: cfg.Host,
		MinVersion: tls.VersionTLS12,
	}

	return &SMTPMailer{
		from:     cfg.From,
		fromName: cfg.FromName,
		dialer:   d,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	email, err := m.build(msg)
	if err != nil {
		return err
	}

	if err := m.dialer.DialAndSend(email); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (m *SMTPMailer) build(msg Message) (*gomail.Message, error) {
	body, err := Render(msg.Receipt)
	if err != nil {
		return nil, err
	}
	attachment, err := json.MarshalIndent(msg.Receipt, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode receipt: %w", err)
	}

	email := gomail.NewMessage(
		gomail.SetCharset("UTF-8"),
		gomail.SetEncoding(gomail.Base64),
	)
	email.SetAddressHeader("From", m.from, m.fromName)
	if msg.ToName != "" {
		email.SetAddressHeader("To", msg.To, msg.ToName)
	} else {
		email.SetHeader("To", msg.To)
	}
	email.SetHeader("Subject", msg.Subject)
	email.SetBody("text/html", body)
	email.Attach(fmt.Sprintf("receipt-%s.json", msg.Receipt.InvoiceNumber),
		gomail.SetHeader(map[string][]string{"Content-Type": {"application/json"}}),
		gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(attachment)
			return err
		}),
	)
	return email, nil
}
