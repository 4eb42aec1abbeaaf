package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetwatch/controlplane/internal/auth"
	"github.com/fleetwatch/controlplane/internal/broker"
	"github.com/fleetwatch/controlplane/internal/store"
)

func newTestGateway(t *testing.T) (*Gateway, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:", 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	g := New(zerolog.Nop(), st, broker.NewLocalBroker(), Config{KeepAliveInterval: 50 * time.Millisecond})
	go g.Run()
	t.Cleanup(g.Close)
	return g, st
}

func seedAPIKey(t *testing.T, st *store.Store, raw, userID, role string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.UpsertInstance(ctx, store.Instance{ID: "inst-1", Name: "test", Status: store.InstanceStatusRunning}))
	_, err := st.DB().ExecContext(ctx, `INSERT INTO users (id, role) VALUES (?, ?)`, userID, role)
	require.NoError(t, err)
	_, err = st.DB().ExecContext(ctx, `INSERT INTO api_keys (id, owner_user_id, hash) VALUES (?, ?, ?)`, userID+"-key", userID, auth.HashAPIKey(raw))
	require.NoError(t, err)
}

func dialWS(t *testing.T, srv *httptest.Server, apiKey, instanceID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{}
	header.Set("X-Api-Key", apiKey)
	if instanceID != "" {
		header.Set("X-Instance-ID", instanceID)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn
}

func TestServeWS_RejectsMissingAPIKey(t *testing.T) {
	g, _ := newTestGateway(t)
	srv := httptest.NewServer(http.HandlerFunc(g.ServeWS))
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	assert.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeWS_MetricsUpdateDispatchesAndPersists(t *testing.T) {
	g, st := newTestGateway(t)
	seedAPIKey(t, st, "agent-key", "u1", store.RoleAdmin)
	srv := httptest.NewServer(http.HandlerFunc(g.ServeWS))
	defer srv.Close()

	conn := dialWS(t, srv, "agent-key", "inst-1")
	defer conn.Close()

	msg := `{"channel":"metrics","type":"metrics:update","ts":1,"data":{"cpuPercent":50,"memoryUsed":1,"memoryTotal":2,"diskUsed":1,"diskTotal":2,"loadAvg":[0.1,0.2,0.3]}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))

	require.Eventually(t, func() bool {
		metrics, err := st.LatestMetricsByInstance(context.Background())
		return err == nil && len(metrics) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestServeWS_NoInstanceIDError(t *testing.T) {
	g, st := newTestGateway(t)
	seedAPIKey(t, st, "no-inst-key", "u2", store.RoleAdmin)
	srv := httptest.NewServer(http.HandlerFunc(g.ServeWS))
	defer srv.Close()

	conn := dialWS(t, srv, "no-inst-key", "")
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(
		`{"channel":"metrics","type":"metrics:update","ts":1,"data":{}}`)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), "NO_INSTANCE_ID")
}

func TestServeWS_UnknownMessageType(t *testing.T) {
	g, st := newTestGateway(t)
	seedAPIKey(t, st, "unk-key", "u3", store.RoleAdmin)
	srv := httptest.NewServer(http.HandlerFunc(g.ServeWS))
	defer srv.Close()

	conn := dialWS(t, srv, "unk-key", "inst-1")
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(
		`{"channel":"bogus","type":"bogus:thing","ts":1,"data":{}}`)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), "UNKNOWN_MESSAGE_TYPE")
}

func TestServeWS_CommandExecForbiddenForViewer(t *testing.T) {
	g, st := newTestGateway(t)
	seedAPIKey(t, st, "viewer-key", "u4", store.RoleViewer)
	srv := httptest.NewServer(http.HandlerFunc(g.ServeWS))
	defer srv.Close()

	conn := dialWS(t, srv, "viewer-key", "")
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(
		`{"channel":"commands","type":"command:exec","instanceId":"inst-1","ts":1,"data":{"command":"ls"}}`)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), "FORBIDDEN")
}

func TestServeWS_SubscribeAcksAndReceivesPublished(t *testing.T) {
	g, st := newTestGateway(t)
	seedAPIKey(t, st, "sub-key", "u5", store.RoleViewer)
	srv := httptest.NewServer(http.HandlerFunc(g.ServeWS))
	defer srv.Close()

	conn := dialWS(t, srv, "sub-key", "")
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(
		`{"channel":"events","type":"subscribe","ts":1,"correlationId":"c1","data":{"channel":"metrics","instanceId":"inst-1"}}`)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ack"`)

	require.NoError(t, g.broker.Publish(context.Background(), "metrics", "inst-1", []byte(`{"cpuPercent":42}`)))
	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), "cpuPercent")
}
