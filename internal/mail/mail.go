// Package mail sends transactional email: verification links, password
// resets, and low-stock warnings.
package mail

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/mvdwal/meditrack/internal/config"
	apperr "github.com/mvdwal/meditrack/internal/errors"
	"github.com/mvdwal/meditrack/internal/metrics"
)

// Message is one outbound email. Kind labels the metric series, not the
// content.
type Message struct {
	Kind    string
	To      string
	Subject string
	Body    string
}

// Mailer delivers transactional email. Implementations must be safe for
// concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// ==================== SendGrid ====================

// SendGridMailer delivers through SendGrid behind a circuit breaker, so
// a provider outage sheds load fast instead of stalling every request
// that happens to send mail.
type SendGridMailer struct {
	client  *sendgrid.Client
	from    *sgmail.Email
	breaker *gobreaker.CircuitBreaker[any]
	logger  *zap.Logger
}

func NewSendGrid(cfg config.MailConfig, logger *zap.Logger) *SendGridMailer {
	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name: "sendgrid",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("mail circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &SendGridMailer{
		client:  sendgrid.NewSendClient(cfg.SendGridAPIKey),
		from:    sgmail.NewEmail(cfg.FromName, cfg.FromAddress),
		breaker: breaker,
		logger:  logger,
	}
}

func (m *SendGridMailer) Send(ctx context.Context, msg Message) error {
	_, err := m.breaker.Execute(func() (any, error) {
		v3 := sgmail.NewV3Mail()
		v3.SetFrom(m.from)
		v3.Subject = msg.Subject

		p := sgmail.NewPersonalization()
		p.AddTos(sgmail.NewEmail("", msg.To))
		v3.AddPersonalizations(p)
		v3.AddContent(sgmail.NewContent("text/plain", msg.Body))

		resp, err := m.client.SendWithContext(ctx, v3)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("sendgrid returned %d: %s", resp.StatusCode, resp.Body)
		}
		return nil, nil
	})
	if err != nil {
		metrics.MailSentTotal.WithLabelValues(msg.Kind, "error").Inc()
		m.logger.Error("failed to send mail",
			zap.String("kind", msg.Kind),
			zap.Error(err),
		)
		return apperr.Operation("failed to send mail", err)
	}

	metrics.MailSentTotal.WithLabelValues(msg.Kind, "ok").Inc()
	return nil
}

// ==================== Noop ====================

// NoopMailer is used when mail is disabled. It logs the would-be send
// at debug level and succeeds.
type NoopMailer struct {
	logger *zap.Logger
}

func NewNoop(logger *zap.Logger) *NoopMailer {
	return &NoopMailer{logger: logger}
}

func (m *NoopMailer) Send(_ context.Context, msg Message) error {
	m.logger.Debug("mail disabled, dropping message",
		zap.String("kind", msg.Kind),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// New returns the mailer matching the configuration.
func New(cfg config.MailConfig, logger *zap.Logger) Mailer {
	if !cfg.Enabled {
		return NewNoop(logger)
	}
	return NewSendGrid(cfg, logger)
}
