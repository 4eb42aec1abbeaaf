// Package adapters implements the per-channel-type notification delivery
// adapters the dispatcher invokes (§4.4.3).
package adapters

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fleetwatch/controlplane/internal/alerts"
)

const deliveryTimeout = 10 * time.Second

// WebhookConfig is the Config shape for a WEBHOOK channel.
type WebhookConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"` // POST (default) or PUT
	Headers map[string]string `json:"headers,omitempty"`
	Secret  string            `json:"secret,omitempty"`
}

// Webhook delivers via HTTP POST/PUT with an optional HMAC-SHA256 signature
// header (§4.4.3).
type Webhook struct {
	client *http.Client
}

// NewWebhook constructs a Webhook adapter with its own bounded-timeout
// client, independent of any client the caller might reuse elsewhere.
func NewWebhook() *Webhook {
	return &Webhook{client: &http.Client{Timeout: deliveryTimeout}}
}

func (w *Webhook) Deliver(ctx context.Context, rawConfig json.RawMessage, payload alerts.AlertPayload) error {
	var cfg WebhookConfig
	if err := json.Unmarshal(rawConfig, &cfg); err != nil {
		return fmt.Errorf("invalid webhook config: %w", err)
	}
	if cfg.URL == "" {
		return fmt.Errorf("webhook config missing url")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "fleet-console/1.0")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if cfg.Secret != "" {
		mac := hmac.New(sha256.New, []byte(cfg.Secret))
		mac.Write(body)
		req.Header.Set("X-Fleet-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}
	return nil
}
