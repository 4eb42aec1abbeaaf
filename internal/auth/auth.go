// Package auth is the shared API-key authentication boundary for both the
// WebSocket gateway and the HTTP façade (§4.2, §6, GLOSSARY "Principal").
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/fleetwatch/controlplane/internal/protocol"
	"github.com/fleetwatch/controlplane/internal/store"
)

// Principal is the authenticated identity attached to a connection or
// request after the API key is resolved.
type Principal struct {
	UserID     string
	Role       string
	InstanceID string // optional; set from X-Instance-ID for agent-typed callers
	APIKeyID   string
}

// IsAgent reports whether this principal represents an instance agent
// rather than an operator, browser, or automation caller — an agent
// principal always carries an InstanceID.
func (p Principal) IsAgent() bool {
	return p.InstanceID != ""
}

// Role rank, low to high. Used by IsRoleAtMost/IsRoleAtLeast to gate
// operations by a ceiling or floor role (§4.2, §6).
var roleRank = map[string]int{
	store.RoleViewer:    0,
	store.RoleDeveloper: 1,
	store.RoleOperator:  2,
	store.RoleAdmin:     3,
}

// IsRoleAtMost reports whether role is no more privileged than ceiling.
// An unrecognized role is treated as the lowest rank.
func IsRoleAtMost(role, ceiling string) bool {
	return roleRank[role] <= roleRank[ceiling]
}

// IsRoleAtLeast reports whether role meets or exceeds floor.
func IsRoleAtLeast(role, floor string) bool {
	return roleRank[role] >= roleRank[floor]
}

// Error is surfaced as a 401 by both the gateway's upgrade path (code in an
// X-Error-Code header) and the HTTP façade's auth middleware (code in the
// JSON error body).
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func authErr(code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Authenticate extracts the API key from the request, hashes it, and
// resolves the owning principal. It never logs the raw key.
func Authenticate(ctx context.Context, st *store.Store, r *http.Request) (Principal, error) {
	raw := r.Header.Get("X-Api-Key")
	if raw == "" {
		raw = r.URL.Query().Get("apiKey")
	}
	if raw == "" {
		return Principal{}, authErr(protocol.ErrCodeMissingAPIKey, "missing API key")
	}

	hash := HashAPIKey(raw)
	key, err := st.LookupAPIKeyByHash(ctx, hash)
	if errors.Is(err, store.ErrNotFound) {
		return Principal{}, authErr(protocol.ErrCodeInvalidAPIKey, "invalid API key")
	}
	if err != nil {
		return Principal{}, err
	}

	if key.ExpiresAt != nil && key.ExpiresAt.Before(time.Now()) {
		return Principal{}, authErr(protocol.ErrCodeExpiredAPIKey, "expired API key")
	}

	user, err := st.User(ctx, key.OwnerUserID)
	if err != nil {
		return Principal{}, err
	}

	return Principal{
		UserID:     user.ID,
		Role:       user.Role,
		InstanceID: r.Header.Get("X-Instance-ID"),
		APIKeyID:   key.ID,
	}, nil
}

// HashAPIKey reduces a raw API key to its lookup hash. Only the hash is
// ever stored or compared against the database.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ConstantTimeEqual compares two strings without leaking timing
// information, for any fixed-length secret comparison outside the
// indexed API-key lookup (e.g. webhook signature verification).
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// RateLimiter throttles repeated failed-auth attempts per remote address.
// A sliding window over a mutex-protected map.
type RateLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	max      int
	window   time.Duration
}

// NewRateLimiter constructs a limiter allowing max attempts per window.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	return &RateLimiter{attempts: make(map[string][]time.Time), max: max, window: window}
}

// Allow records an attempt for key and reports whether it is within the
// limit.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-rl.window)

	attempts := rl.attempts[key]
	kept := attempts[:0]
	for _, t := range attempts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= rl.max {
		rl.attempts[key] = kept
		return false
	}

	rl.attempts[key] = append(kept, now)
	return true
}

// Reset clears the recorded attempts for key.
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.attempts, key)
}
