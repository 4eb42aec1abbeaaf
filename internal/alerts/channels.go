package alerts

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/google/uuid"

	"github.com/fleetwatch/controlplane/internal/store"
)

// ChannelService exposes §4.5's channel CRUD + test operations, masking
// secrets in read responses (§9 "secret masking on read" — masking lives
// in this read formatter, not the store).
type ChannelService struct {
	store      *store.Store
	dispatcher *Dispatcher
}

// NewChannelService constructs a ChannelService.
func NewChannelService(st *store.Store, d *Dispatcher) *ChannelService {
	return &ChannelService{store: st, dispatcher: d}
}

// Create persists a channel and returns its masked read view.
func (s *ChannelService) Create(ctx context.Context, c store.NotificationChannel) (*MaskedChannel, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if err := s.store.CreateChannel(ctx, c); err != nil {
		return nil, err
	}
	stored, err := s.store.Channel(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return maskChannel(stored), nil
}

// Update persists changes and returns the masked read view.
func (s *ChannelService) Update(ctx context.Context, c store.NotificationChannel) (*MaskedChannel, error) {
	if err := s.store.UpdateChannel(ctx, c); err != nil {
		return nil, err
	}
	stored, err := s.store.Channel(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return maskChannel(stored), nil
}

// Delete removes a channel.
func (s *ChannelService) Delete(ctx context.Context, id string) error {
	return s.store.DeleteChannel(ctx, id)
}

// Get returns the masked read view of a channel.
func (s *ChannelService) Get(ctx context.Context, id string) (*MaskedChannel, error) {
	c, err := s.store.Channel(ctx, id)
	if err != nil {
		return nil, err
	}
	return maskChannel(c), nil
}

// List returns a paginated, masked list of channels.
func (s *ChannelService) List(ctx context.Context, page, pageSize int) ([]MaskedChannel, store.Page, error) {
	channels, total, err := s.store.ListChannels(ctx, page, pageSize)
	if err != nil {
		return nil, store.Page{}, err
	}
	out := make([]MaskedChannel, 0, len(channels))
	for i := range channels {
		out = append(out, *maskChannel(&channels[i]))
	}
	return out, store.NewPage(page, pageSize, total), nil
}

// Test loads the channel and exercises the dispatcher's test delivery
// without persisting anything.
func (s *ChannelService) Test(ctx context.Context, id string) error {
	c, err := s.store.Channel(ctx, id)
	if err != nil {
		return err
	}
	return s.dispatcher.Test(ctx, c.Type, c.Config)
}

// MaskedChannel is the HTTP-facing read view with secrets scrubbed.
type MaskedChannel struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Config  json.RawMessage `json:"config"`
	Enabled bool            `json:"enabled"`
}

var sensitiveHeaderName = regexp.MustCompile(`(?i)auth|token|key|secret`)

func maskChannel(c *store.NotificationChannel) *MaskedChannel {
	var cfg map[string]any
	if err := json.Unmarshal(c.Config, &cfg); err != nil {
		return &MaskedChannel{ID: c.ID, Name: c.Name, Type: c.Type, Config: c.Config, Enabled: c.Enabled}
	}

	if _, ok := cfg["secret"]; ok {
		cfg["secret"] = "***"
	}
	if headers, ok := cfg["headers"].(map[string]any); ok {
		for name := range headers {
			if sensitiveHeaderName.MatchString(name) {
				headers[name] = "***"
			}
		}
	}
	if url, ok := cfg["webhook_url"].(string); ok && c.Type == store.ChannelTypeSlack {
		cfg["webhook_url"] = maskTerminalSegment(url)
	}

	masked, err := json.Marshal(cfg)
	if err != nil {
		masked = c.Config
	}
	return &MaskedChannel{ID: c.ID, Name: c.Name, Type: c.Type, Config: masked, Enabled: c.Enabled}
}

// maskTerminalSegment replaces the last path segment of a URL with "***".
func maskTerminalSegment(url string) string {
	idx := -1
	for i := len(url) - 1; i >= 0; i-- {
		if url[i] == '/' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "***"
	}
	return url[:idx] + "/***"
}
