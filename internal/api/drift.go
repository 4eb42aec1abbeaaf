package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)
	snaps, p, err := s.drift.ListSnapshots(r.Context(), page, pageSize)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": snaps, "page": p})
}

func (s *Server) handleListDriftEvents(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)
	events, p, err := s.drift.ListEvents(r.Context(), page, pageSize)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "page": p})
}

func (s *Server) handleDriftSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.drift.Summary(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleRemediateDrift(w http.ResponseWriter, r *http.Request) {
	if err := s.drift.Remediate(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
