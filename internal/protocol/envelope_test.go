package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_RoundTrip(t *testing.T) {
	env, err := NewEnvelope(ChannelMetrics, TypeMetricsUpdate, 1234, MetricsUpdatePayload{
		CPUPercent: 92.7,
	})
	require.NoError(t, err)

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var parsed Envelope
	require.NoError(t, json.Unmarshal(raw, &parsed))

	assert.Equal(t, env.Channel, parsed.Channel)
	assert.Equal(t, env.Type, parsed.Type)
	assert.Equal(t, env.Ts, parsed.Ts)

	var payload MetricsUpdatePayload
	require.NoError(t, parsed.ParseData(&payload))
	assert.Equal(t, 92.7, payload.CPUPercent)
}

func TestEnvelope_ParseFailureIsRecoverable(t *testing.T) {
	var env Envelope
	err := json.Unmarshal([]byte(`not json`), &env)
	require.Error(t, err)
}
