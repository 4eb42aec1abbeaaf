package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fleetwatch/controlplane/internal/alerts"
	"github.com/fleetwatch/controlplane/internal/store"
)

// ChatConfig is the Config shape for a SLACK channel.
type ChatConfig struct {
	WebhookURL string `json:"webhook_url"`
}

var severityEmoji = map[string]string{
	store.SeverityCritical: "\U0001F6A8",
	store.SeverityHigh:     "⚠️",
	store.SeverityMedium:   "⚡",
	store.SeverityLow:      "ℹ️",
	store.SeverityInfo:     "\U0001F4AC",
}

var severityColor = map[string]string{
	store.SeverityCritical: "#FF0000",
	store.SeverityHigh:     "#FF6600",
	store.SeverityMedium:   "#FFA500",
	store.SeverityLow:      "#0099FF",
	store.SeverityInfo:     "#999999",
}

type chatAttachmentField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type chatAttachment struct {
	Color     string                `json:"color"`
	Title     string                `json:"title"`
	Text      string                `json:"text"`
	Fields    []chatAttachmentField `json:"fields"`
	Footer    string                `json:"footer"`
	Timestamp int64                 `json:"ts"`
}

type chatMessage struct {
	Attachments []chatAttachment `json:"attachments"`
}

// Chat delivers a Slack-compatible attachment payload to a webhook URL
// (§4.4.3).
type Chat struct {
	client *http.Client
}

// NewChat constructs a Chat adapter.
func NewChat() *Chat {
	return &Chat{client: &http.Client{Timeout: deliveryTimeout}}
}

func (c *Chat) Deliver(ctx context.Context, rawConfig json.RawMessage, payload alerts.AlertPayload) error {
	var cfg ChatConfig
	if err := json.Unmarshal(rawConfig, &cfg); err != nil {
		return fmt.Errorf("invalid chat config: %w", err)
	}
	if cfg.WebhookURL == "" {
		return fmt.Errorf("chat config missing webhook_url")
	}

	firedAt, err := time.Parse(time.RFC3339, payload.FiredAt)
	if err != nil {
		firedAt = time.Now()
	}

	fields := []chatAttachmentField{
		{Title: "Severity", Value: payload.Severity, Short: true},
		{Title: "Rule", Value: payload.RuleName, Short: true},
		{Title: "FiredAt", Value: firedAt.Format(time.RFC1123), Short: false},
	}
	if payload.InstanceID != nil {
		fields = append(fields, chatAttachmentField{Title: "Instance", Value: *payload.InstanceID, Short: true})
	}

	msg := chatMessage{Attachments: []chatAttachment{{
		Color:     severityColor[payload.Severity],
		Title:     fmt.Sprintf("%s %s", severityEmoji[payload.Severity], payload.Title),
		Text:      payload.Message,
		Fields:    fields,
		Footer:    "fleet-console",
		Timestamp: firedAt.Unix(),
	}}}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("chat webhook responded with status %d", resp.StatusCode)
	}
	return nil
}
