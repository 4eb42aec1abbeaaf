package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetwatch/controlplane/internal/store"
)

type ruleRequest struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Severity    string   `json:"severity"`
	InstanceID  *string  `json:"instanceId,omitempty"`
	Conditions  any      `json:"conditions"`
	CooldownSec int      `json:"cooldownSec,omitempty"`
	Enabled     bool     `json:"enabled,omitempty"`
	ChannelIDs  []string `json:"channelIds,omitempty"`
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.RuleFilter{
		Type:       q.Get("type"),
		Severity:   q.Get("severity"),
		InstanceID: q.Get("instanceId"),
	}
	if v := q.Get("enabled"); v != "" {
		b := v == "true"
		f.Enabled = &b
	}
	page, pageSize := pagination(r)

	rules, p, err := s.rules.List(r.Context(), f, page, pageSize)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules, "page": p})
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	conditions, err := marshalConditions(req.Conditions)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid conditions")
		return
	}

	rule := store.AlertRule{
		ID: req.ID, Name: req.Name, Type: req.Type, Severity: req.Severity,
		InstanceID: req.InstanceID, Conditions: conditions, CooldownSec: req.CooldownSec,
		Enabled: true, ChannelIDs: req.ChannelIDs,
	}
	created, err := s.rules.Create(r.Context(), rule)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.rules.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req ruleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	conditions, err := marshalConditions(req.Conditions)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid conditions")
		return
	}

	rule := store.AlertRule{
		ID: id, Name: req.Name, Type: req.Type, Severity: req.Severity,
		InstanceID: req.InstanceID, Conditions: conditions, CooldownSec: req.CooldownSec,
		Enabled: req.Enabled, ChannelIDs: req.ChannelIDs,
	}
	updated, err := s.rules.Update(r.Context(), rule, req.ChannelIDs != nil)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.rules.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.rules.Toggle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}
