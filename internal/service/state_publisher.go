package service

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSStatePublisher publishes run transitions to a NATS subject for downstream consumers.
type NATSStatePublisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewNATSStatePublisher constructs a publisher. A nil connection disables publishing.
func NewNATSStatePublisher(conn *nats.Conn, subject string, logger zerolog.Logger) *NATSStatePublisher {
	return &NATSStatePublisher{
		conn:    conn,
		subject: subject,
		logger:  logger.With().Str("component", "state_publisher").Logger(),
	}
}

// OnStateChange publishes change as JSON on <subject>.<assessmentType>.
func (p *NATSStatePublisher) OnStateChange(_ context.Context, change StateChange) {
	if p == nil || p.conn == nil || p.subject == "" {
		return
	}

	payload, err := json.Marshal(change)
	if err != nil {
		p.logger.Warn().Err(err).Str("run_id", change.RunID).Msg("failed to encode state change")
		return
	}

	subject := p.subject
	if change.AssessmentType != "" {
		subject += "." + change.AssessmentType
	}

	if err := p.conn.Publish(subject, payload); err != nil {
		p.logger.Warn().Err(err).Str("subject", subject).Msg("failed to publish state change")
	}
}
