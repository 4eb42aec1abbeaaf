package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetwatch/controlplane/internal/store"
)

type channelRequest struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Config  any    `json:"config"`
	Enabled bool   `json:"enabled"`
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)
	channels, p, err := s.channels.List(r.Context(), page, pageSize)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": channels, "page": p})
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var req channelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	cfg, err := marshalConditions(req.Config)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid config")
		return
	}
	created, err := s.channels.Create(r.Context(), store.NotificationChannel{
		ID: req.ID, Name: req.Name, Type: req.Type, Config: cfg, Enabled: true,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	c, err := s.channels.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleUpdateChannel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req channelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	cfg, err := marshalConditions(req.Config)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid config")
		return
	}
	updated, err := s.channels.Update(r.Context(), store.NotificationChannel{
		ID: id, Name: req.Name, Type: req.Type, Config: cfg, Enabled: req.Enabled,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	if err := s.channels.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTestChannel(w http.ResponseWriter, r *http.Request) {
	if err := s.channels.Test(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusBadGateway, "TEST_DELIVERY_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
