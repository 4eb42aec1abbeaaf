package adapters

import (
	"context"
	"encoding/json"

	"github.com/fleetwatch/controlplane/internal/alerts"
)

// InApp has no network side effect — the dispatcher's own AlertNotification
// record plus its broker fan-out on the events channel is the delivery
// (§4.4.3). Deliver always succeeds.
type InApp struct{}

// NewInApp constructs an InApp adapter.
func NewInApp() *InApp { return &InApp{} }

func (InApp) Deliver(_ context.Context, _ json.RawMessage, _ alerts.AlertPayload) error {
	return nil
}
