package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetwatch/controlplane/internal/store"
)

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.AlertFilter{
		Status:     q.Get("status"),
		Severity:   q.Get("severity"),
		InstanceID: q.Get("instanceId"),
		RuleID:     q.Get("ruleId"),
	}
	page, pageSize := pagination(r)

	alerts, p, err := s.alerts.List(r.Context(), f, page, pageSize)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "page": p})
}

func (s *Server) handleAlertSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.alerts.Summary(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	alert, err := s.alerts.Acknowledge(r.Context(), chi.URLParam(r, "id"), p.UserID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if alert == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "alert not found or already resolved")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	alert, err := s.alerts.Resolve(r.Context(), chi.URLParam(r, "id"), p.UserID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if alert == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "alert not found")
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

type bulkRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleBulkAcknowledge(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	var req bulkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	if err := s.alerts.BulkAcknowledge(r.Context(), req.IDs, p.UserID); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleBulkResolve(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r.Context())
	var req bulkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	if err := s.alerts.BulkResolve(r.Context(), req.IDs, p.UserID); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
