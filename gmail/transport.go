// Package gmail delivers email over Gmail SMTP, or logs it when no credentials are
// configured.
package gmail

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"github.com/athomewithrose/homeletter"
)

// NewTransport returns the SMTP transport when credentials are configured and the
// logging transport otherwise.
func NewTransport(config *homeletter.Config, logger zerolog.Logger) homeletter.MailTransport {
	if !config.SMTPConfigured() {
		logger.Warn().Msg("SMTP credentials are not set, emails will be logged instead of sent")
		return NewLoggingTransport(logger)
	}
	return NewSMTPTransport(config)
}

// SMTPTransport sends email through an authenticated SMTP server
type SMTPTransport struct {
	dialer   *gomail.Dialer
	from     string
	fromName string
	interval time.Duration
}

// NewSMTPTransport returns a transport for the SMTP settings of config
func NewSMTPTransport(config *homeletter.Config) *SMTPTransport {
	return &SMTPTransport{
		dialer:   gomail.NewDialer(config.SMTP.Host, config.SMTP.Port, config.SMTP.Username, config.SMTP.Password),
		from:     config.SMTP.Username,
		fromName: config.SMTP.FromName,
		interval: config.SMTP.Interval,
	}
}

// Send sends m as a multipart message with a plain-text and an HTML part
func (t *SMTPTransport) Send(ctx context.Context, m *homeletter.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", t.from, t.fromName)
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/plain", m.Text)
	msg.AddAlternative("text/html", m.HTML)

	err := withContext(ctx, func() error {
		return t.dialer.DialAndSend(msg)
	})
	if err != nil {
		return errors.Wrapf(err, "failed to send mail to %s", m.To)
	}

	return nil
}

// Verify connects and authenticates to the SMTP server
func (t *SMTPTransport) Verify(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := withContext(ctx, func() error {
		sc, err := t.dialer.Dial()
		if err != nil {
			return err
		}
		return sc.Close()
	})
	if err != nil {
		return errors.Wrapf(err, "failed to connect to %s:%d", t.dialer.Host, t.dialer.Port)
	}

	return nil
}

// withContext returns when fn returns or ctx is done, whichever comes first. gomail takes
// no context, so fn keeps running in the background until the connection ends.
func withContext(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Interval returns the pause between two newsletter emails
func (t *SMTPTransport) Interval() time.Duration {
	return t.interval
}

// LoggingTransport logs emails instead of sending them. Every send succeeds.
type LoggingTransport struct {
	logger zerolog.Logger
}

// NewLoggingTransport returns a logging transport
func NewLoggingTransport(logger zerolog.Logger) *LoggingTransport {
	return &LoggingTransport{
		logger: logger.With().Str("transport", "log").Logger(),
	}
}

// Send logs m
func (t *LoggingTransport) Send(_ context.Context, m *homeletter.Message) error {
	t.logger.Info().
		Str("to", m.To).
		Str("subject", m.Subject).
		Int("html_bytes", len(m.HTML)).
		Int("text_bytes", len(m.Text)).
		Msg("dev mode, email not sent")
	return nil
}

// Verify always succeeds
func (t *LoggingTransport) Verify(context.Context) error {
	return nil
}

// Interval is zero, there is nothing to rate limit
func (t *LoggingTransport) Interval() time.Duration {
	return 0
}
