package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetwatch/controlplane/internal/alerts"
	"github.com/fleetwatch/controlplane/internal/auth"
	"github.com/fleetwatch/controlplane/internal/broker"
	"github.com/fleetwatch/controlplane/internal/drift"
	"github.com/fleetwatch/controlplane/internal/gateway"
	"github.com/fleetwatch/controlplane/internal/security"
	"github.com/fleetwatch/controlplane/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:", 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	b := broker.NewLocalBroker()
	gw := gateway.New(zerolog.Nop(), st, b, gateway.Config{})
	dispatcher := alerts.NewDispatcher(zerolog.Nop(), st, b, map[string]alerts.Adapter{})

	var key [32]byte
	vault, err := security.NewVault(key[:], st)
	require.NoError(t, err)

	s := New(zerolog.Nop(), ":0", Deps{
		Store:    st,
		Gateway:  gw,
		Rules:    alerts.NewRuleService(st),
		Channels: alerts.NewChannelService(st, dispatcher),
		Alerts:   alerts.NewService(st),
		Drift:    drift.NewService(st),
		Vault:    vault,
		Security: security.NewSummaryService(st),
	})
	return s, st
}

func seedUser(t *testing.T, st *store.Store, apiKey, userID, role string) {
	t.Helper()
	ctx := context.Background()
	_, err := st.DB().ExecContext(ctx, `INSERT INTO users (id, role) VALUES (?, ?)`, userID, role)
	require.NoError(t, err)
	_, err = st.DB().ExecContext(ctx, `INSERT INTO api_keys (id, owner_user_id, hash) VALUES (?, ?, ?)`, userID+"-key", userID, auth.HashAPIKey(apiKey))
	require.NoError(t, err)
}

func TestRequireAPIKey_RejectsMissingKey(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/rules", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRules_CreateAndList(t *testing.T) {
	s, st := newTestServer(t)
	seedUser(t, st, "op-key", "u1", store.RoleOperator)

	body := bytes.NewBufferString(`{"name":"cpu high","type":"THRESHOLD","severity":"HIGH","conditions":{"metric":"cpu_percent","operator":"gt","threshold":90}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/rules", body)
	req.Header.Set("X-Api-Key", "op-key")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/api/rules", nil)
	req2.Header.Set("X-Api-Key", "op-key")
	rec2 := httptest.NewRecorder()
	s.Router().ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Contains(t, rec2.Body.String(), "cpu high")
}

func TestRules_ViewerCannotCreate(t *testing.T) {
	s, st := newTestServer(t)
	seedUser(t, st, "viewer-key", "u2", store.RoleViewer)

	body := bytes.NewBufferString(`{"name":"x","type":"THRESHOLD","severity":"LOW","conditions":{}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/rules", body)
	req.Header.Set("X-Api-Key", "viewer-key")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSecrets_RevealRequiresAdmin(t *testing.T) {
	s, st := newTestServer(t)
	seedUser(t, st, "op-key", "u3", store.RoleOperator)

	body := bytes.NewBufferString(`{"name":"db password","type":"password","value":"hunter2"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/secrets", body)
	req.Header.Set("X-Api-Key", "op-key")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	ids := listSecretIDs(t, st)
	require.Len(t, ids, 1)

	req2 := httptest.NewRequest(http.MethodPost, "/api/secrets/"+ids[0]+"/reveal", nil)
	req2.Header.Set("X-Api-Key", "op-key")
	rec2 := httptest.NewRecorder()
	s.Router().ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusForbidden, rec2.Code)
}

func listSecretIDs(t *testing.T, st *store.Store) []string {
	t.Helper()
	secrets, _, err := st.ListSecrets(context.Background(), 1, 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(secrets))
	for _, s := range secrets {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestSecrets_RevealWithAdmin(t *testing.T) {
	s, st := newTestServer(t)
	seedUser(t, st, "admin-key", "u4", store.RoleAdmin)

	body := bytes.NewBufferString(`{"name":"db password","type":"password","value":"hunter2"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/secrets", body)
	req.Header.Set("X-Api-Key", "admin-key")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	ids := listSecretIDs(t, st)
	require.Len(t, ids, 1)

	req2 := httptest.NewRequest(http.MethodPost, "/api/secrets/"+ids[0]+"/reveal", nil)
	req2.Header.Set("X-Api-Key", "admin-key")
	rec2 := httptest.NewRecorder()
	s.Router().ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Contains(t, rec2.Body.String(), "hunter2")
}

func TestHealth_NoAuthRequired(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
