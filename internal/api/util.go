package api

import "encoding/json"

// marshalConditions re-marshals a decoded `any` (rule conditions or
// channel config) back to the raw JSON the store persists, since
// AlertRule.Conditions and NotificationChannel.Config are stored as
// opaque, type-specific JSON blobs.
func marshalConditions(v any) ([]byte, error) {
	if v == nil {
		return []byte(`{}`), nil
	}
	return json.Marshal(v)
}
