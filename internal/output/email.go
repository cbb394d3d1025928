package output

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
)

// EmailOptions configures the SMTP relay.
type EmailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailSender delivers digests as multipart text/HTML mail.
type EmailSender struct {
	opts EmailOptions
}

func NewEmailSender(opts EmailOptions) (*EmailSender, error) {
	if opts.Host == "" || opts.From == "" {
		return nil, fmt.Errorf("email: SMTP host and sender address are required")
	}
	if opts.Port == 0 {
		opts.Port = 587
	}
	return &EmailSender{opts: opts}, nil
}

func (es *EmailSender) Send(ctx context.Context, msg Message) error {
	m, err := es.buildMsg(msg)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(es.opts.Host, es.clientOptions()...)
	if err != nil {
		return fmt.Errorf("email: creating client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("email: sending to %s: %w", msg.Recipient, err)
	}
	return nil
}

func (es *EmailSender) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(es.opts.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if es.opts.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(es.opts.Username),
			mail.WithPassword(es.opts.Password),
		)
	}
	return opts
}

func (es *EmailSender) buildMsg(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(es.opts.From); err != nil {
		return nil, fmt.Errorf("email: invalid sender %q: %w", es.opts.From, err)
	}
	if err := m.To(msg.Recipient); err != nil {
		return nil, fmt.Errorf("email: invalid recipient %q: %w", msg.Recipient, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}
	return m, nil
}
