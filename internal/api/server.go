// Package api is the HTTP façade over the alert, drift, and security
// services plus the gateway's own /ws and /health endpoints. Router wiring
// follows a conventional chi middleware stack, with API-key auth in place
// of session/CSRF middleware since this façade has no server-rendered login.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/fleetwatch/controlplane/internal/alerts"
	"github.com/fleetwatch/controlplane/internal/auth"
	"github.com/fleetwatch/controlplane/internal/drift"
	"github.com/fleetwatch/controlplane/internal/gateway"
	"github.com/fleetwatch/controlplane/internal/security"
	"github.com/fleetwatch/controlplane/internal/store"
)

// Server is the HTTP façade: rule/channel/alert/drift/security handlers,
// the /ws upgrade entrypoint, /health, and /metrics.
type Server struct {
	log zerolog.Logger

	store   *store.Store
	gateway *gateway.Gateway

	rules    *alerts.RuleService
	channels *alerts.ChannelService
	alerts   *alerts.Service
	drift    *drift.Service
	vault    *security.Vault
	security *security.SummaryService

	router     *chi.Mux
	httpServer *http.Server
}

// Deps bundles the services the façade delegates to.
type Deps struct {
	Store    *store.Store
	Gateway  *gateway.Gateway
	Rules    *alerts.RuleService
	Channels *alerts.ChannelService
	Alerts   *alerts.Service
	Drift    *drift.Service
	Vault    *security.Vault
	Security *security.SummaryService
}

// New constructs a Server and builds its router.
func New(log zerolog.Logger, listenAddr string, d Deps) *Server {
	s := &Server{
		log:      log.With().Str("component", "api").Logger(),
		store:    d.Store,
		gateway:  d.Gateway,
		rules:    d.Rules,
		channels: d.Channels,
		alerts:   d.Alerts,
		drift:    d.Drift,
		vault:    d.Vault,
		security: d.Security,
	}
	s.setupRouter()
	s.httpServer = &http.Server{Addr: listenAddr, Handler: s.router}
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.securityHeaders)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.gateway.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAPIKey)

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", s.handleListRules)
			r.With(s.requireRole(store.RoleOperator)).Post("/", s.handleCreateRule)
			r.Get("/{id}", s.handleGetRule)
			r.With(s.requireRole(store.RoleOperator)).Put("/{id}", s.handleUpdateRule)
			r.With(s.requireRole(store.RoleOperator)).Delete("/{id}", s.handleDeleteRule)
			r.With(s.requireRole(store.RoleOperator)).Post("/{id}/toggle", s.handleToggleRule)
		})

		r.Route("/channels", func(r chi.Router) {
			r.Get("/", s.handleListChannels)
			r.With(s.requireRole(store.RoleOperator)).Post("/", s.handleCreateChannel)
			r.Get("/{id}", s.handleGetChannel)
			r.With(s.requireRole(store.RoleOperator)).Put("/{id}", s.handleUpdateChannel)
			r.With(s.requireRole(store.RoleOperator)).Delete("/{id}", s.handleDeleteChannel)
			r.With(s.requireRole(store.RoleOperator)).Post("/{id}/test", s.handleTestChannel)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.handleListAlerts)
			r.Get("/summary", s.handleAlertSummary)
			r.With(s.requireRole(store.RoleDeveloper)).Post("/{id}/acknowledge", s.handleAcknowledgeAlert)
			r.With(s.requireRole(store.RoleDeveloper)).Post("/{id}/resolve", s.handleResolveAlert)
			r.With(s.requireRole(store.RoleDeveloper)).Post("/bulk-acknowledge", s.handleBulkAcknowledge)
			r.With(s.requireRole(store.RoleDeveloper)).Post("/bulk-resolve", s.handleBulkResolve)
		})

		r.Route("/drift", func(r chi.Router) {
			r.Get("/snapshots", s.handleListSnapshots)
			r.Get("/events", s.handleListDriftEvents)
			r.Get("/summary", s.handleDriftSummary)
			r.With(s.requireRole(store.RoleOperator)).Post("/events/{id}/remediate", s.handleRemediateDrift)
		})

		r.Route("/secrets", func(r chi.Router) {
			r.With(s.requireRole(store.RoleOperator)).Get("/", s.handleListSecrets)
			r.With(s.requireRole(store.RoleOperator)).Post("/", s.handleCreateSecret)
			r.With(s.requireRole(store.RoleOperator)).Post("/{id}/rotate", s.handleRotateSecret)
			r.With(s.requireRole(store.RoleAdmin)).Post("/{id}/reveal", s.handleRevealSecret)
		})

		r.Get("/security/summary", s.handleSecuritySummary)
	})

	s.router = r
}

func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// requireAPIKey authenticates the request the same way the gateway does
// (§4.2/§6 share one auth mechanism) and attaches the principal to the
// request context.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := auth.Authenticate(r.Context(), s.store, r)
		if err != nil {
			code := "UNAUTHORIZED"
			if ae, ok := err.(*auth.Error); ok {
				code = ae.Code
			}
			writeError(w, http.StatusUnauthorized, code, err.Error())
			return
		}
		ctx := withPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole rejects requests whose principal role is below floor.
func (s *Server) requireRole(floor string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := principalFromContext(r.Context())
			if !ok || !auth.IsRoleAtLeast(p.Role, floor) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Run starts the HTTP server; it blocks until ListenAndServe returns.
func (s *Server) Run() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the router for testing.
func (s *Server) Router() http.Handler {
	return s.router
}
