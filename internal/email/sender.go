// Package email implements the outbound delivery collaborator. The engine
// decides what and when to send; this package does the transport and hands
// back an external message id for delivery-status correlation.
package email

import (
	"context"

	"tahseel_backend/platform/config"
	"tahseel_backend/platform/logger"
)

// Message is one rendered communication ready for transport.
type Message struct {
	Recipient string
	Subject   string
	Body      string
	Language  string // "en" or "ar"
}

// Sender delivers a message and returns the external message id used later
// by delivery-status callbacks.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// NewSender returns the SMTP sender when email is configured, otherwise the
// deterministic simulator so development and demo environments behave
// reproducibly.
func NewSender(cfg config.EmailConfig, log *logger.Logger) (Sender, error) {
	if cfg.GetEmailEnabled() {
		return newSMTPSender(cfg)
	}

	log.Warn("SMTP not configured; using seeded delivery simulator")
	return NewSimulator(cfg.GetSimulatorSeed(), cfg.GetSimulatorDeliveryRate()), nil
}
