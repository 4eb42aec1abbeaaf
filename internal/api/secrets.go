package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fleetwatch/controlplane/internal/store"
)

// secretView is the metadata-only read shape; ciphertext never leaves the
// vault boundary through the HTTP façade (§3 "plaintext MUST never be
// persisted or logged", generalized here to "ciphertext never serialized").
type secretView struct {
	ID            string  `json:"id"`
	InstanceID    *string `json:"instanceId,omitempty"`
	Name          string  `json:"name"`
	Type          string  `json:"type"`
	LastRotatedAt *string `json:"lastRotatedAt,omitempty"`
	ExpiresAt     *string `json:"expiresAt,omitempty"`
}

func toSecretView(sec store.Secret) secretView {
	v := secretView{ID: sec.ID, InstanceID: sec.InstanceID, Name: sec.Name, Type: sec.Type}
	if sec.LastRotatedAt != nil {
		s := sec.LastRotatedAt.Format("2006-01-02T15:04:05Z07:00")
		v.LastRotatedAt = &s
	}
	if sec.ExpiresAt != nil {
		s := sec.ExpiresAt.Format("2006-01-02T15:04:05Z07:00")
		v.ExpiresAt = &s
	}
	return v
}

func (s *Server) handleListSecrets(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pagination(r)
	secrets, p, err := s.vault.List(r.Context(), page, pageSize)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	views := make([]secretView, 0, len(secrets))
	for _, sec := range secrets {
		views = append(views, toSecretView(sec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"secrets": views, "page": p})
}

type secretRequest struct {
	ID         string  `json:"id,omitempty"`
	InstanceID *string `json:"instanceId,omitempty"`
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Value      string  `json:"value"`
}

func (s *Server) handleCreateSecret(w http.ResponseWriter, r *http.Request) {
	var req secretRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	sec := store.Secret{ID: req.ID, InstanceID: req.InstanceID, Name: req.Name, Type: req.Type}
	if err := s.vault.Create(r.Context(), sec, req.Value); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"ok": true})
}

type rotateRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleRotateSecret(w http.ResponseWriter, r *http.Request) {
	var req rotateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	if err := s.vault.Rotate(r.Context(), chi.URLParam(r, "id"), req.Value); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleRevealSecret decrypts and returns the plaintext value. The
// ADMIN-only role gate is enforced by the router (requireRole(RoleAdmin))
// before this handler is ever reached.
func (s *Server) handleRevealSecret(w http.ResponseWriter, r *http.Request) {
	value, err := s.vault.Reveal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"value": value})
}

func (s *Server) handleSecuritySummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.security.Summary(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
