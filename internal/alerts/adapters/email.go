package adapters

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fleetwatch/controlplane/internal/alerts"
)

// EmailConfig is the Config shape for an EMAIL channel.
type EmailConfig struct {
	To     []string `json:"to"`
	Prefix string   `json:"prefix,omitempty"`
}

// Sink is the external collaborator that actually transmits mail. The core
// stays transport-agnostic (§4.4.3: "the concrete transport is an external
// collaborator").
type Sink interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

// Email builds the subject/body and hands off to a pluggable Sink.
type Email struct {
	sink Sink
}

// NewEmail constructs an Email adapter over sink.
func NewEmail(sink Sink) *Email {
	return &Email{sink: sink}
}

func (e *Email) Deliver(ctx context.Context, rawConfig json.RawMessage, payload alerts.AlertPayload) error {
	var cfg EmailConfig
	if err := json.Unmarshal(rawConfig, &cfg); err != nil {
		return fmt.Errorf("invalid email config: %w", err)
	}
	if len(cfg.To) == 0 {
		return fmt.Errorf("email config missing recipients")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "[fleet-console]"
	}
	subject := fmt.Sprintf("%s %s: %s", prefix, payload.Severity, payload.Title)
	body := fmt.Sprintf("%s\n\nInstance: %s\nRule: %s\nFired at: %s\n",
		payload.Message, instanceOrAll(payload.InstanceID), payload.RuleName, payload.FiredAt)

	return e.sink.Send(ctx, cfg.To, subject, body)
}

func instanceOrAll(id *string) string {
	if id == nil {
		return "(all instances)"
	}
	return *id
}
