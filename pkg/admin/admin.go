// Package admin implements the configuration surface: single-admin login,
// settings get/patch, key rotation, password change, and the upstream
// connectivity probe.
package admin

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/llmrelay/llmrelay/pkg/config"
	"github.com/llmrelay/llmrelay/pkg/dialect"
	"github.com/llmrelay/llmrelay/pkg/session"
)

// SessionHeader carries the admin session token.
const SessionHeader = "X-Session-Token"

// bcryptCost is the hashing cost for stored admin passwords.
const bcryptCost = 10

// Handler serves the admin endpoints.
type Handler struct {
	store    *config.Store
	sessions *session.Store
	probe    ProbeFunc
}

// ProbeFunc runs one connectivity probe and returns a JSON-encodable result.
type ProbeFunc func(r *http.Request) interface{}

// NewHandler creates the admin handler.
func NewHandler(store *config.Store, sessions *session.Store, probe ProbeFunc) *Handler {
	return &Handler{store: store, sessions: sessions, probe: probe}
}

// RequireSession wraps a handler with session-token authentication.
func (h *Handler) RequireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.sessions.Valid(r.Header.Get(SessionHeader)) {
			writeErr(w, http.StatusUnauthorized, "authentication_error", "invalid or expired session")
			return
		}
		next(w, r)
	}
}

// Login serves POST /api/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Password == "" {
		writeErr(w, http.StatusBadRequest, "validation_error", "password is required")
		return
	}

	settings := h.store.Get()
	if !h.verifyPassword(&settings, body.Password) {
		slog.Warn("Admin login rejected")
		writeErr(w, http.StatusUnauthorized, "authentication_error", "wrong password")
		return
	}

	// First login against the plaintext bootstrap value upgrades it to a
	// hash in place.
	if !settings.SecretHashed() {
		if err := h.setPassword(body.Password); err != nil {
			writeErr(w, http.StatusInternalServerError, "server_error", "could not persist settings")
			return
		}
		slog.Info("Bootstrap admin password upgraded to hash")
	}

	token := h.sessions.Issue()
	slog.Info("Admin login succeeded")
	writeJSON(w, map[string]string{"token": token})
}

// verifyPassword checks a candidate against the stored secret, which is
// either a bcrypt hash or the first-boot plaintext bootstrap value.
func (h *Handler) verifyPassword(settings *config.Settings, candidate string) bool {
	if settings.SecretHashed() {
		return bcrypt.CompareHashAndPassword([]byte(settings.AdminSecret), []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(settings.AdminSecret), []byte(candidate)) == 1
}

func (h *Handler) setPassword(plaintext string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcryptCost)
	if err != nil {
		return err
	}
	_, err = h.store.Update(func(s *config.Settings) error {
		s.AdminSecret = string(hash)
		return nil
	})
	return err
}

// GetConfig serves GET /api/config. The admin secret is omitted.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	settings := h.store.Get()
	writeJSON(w, settings.Redacted())
}

// UpdateConfig serves POST /api/config: a merge patch over the current
// settings. Secrets managed by their own endpoints cannot be patched here.
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var patch map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeErr(w, http.StatusBadRequest, "validation_error", "patch body is not valid JSON")
		return
	}
	delete(patch, "adminSecret")
	delete(patch, "localApiKey")

	_, err := h.store.Update(func(s *config.Settings) error {
		applyPatch(s, patch)
		return nil
	})
	if err != nil {
		writeErr(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	settings := h.store.Get()
	slog.Info("Settings updated", "upstream", settings.UpstreamBaseURL, "model", settings.DefaultModel)
	writeJSON(w, settings.Redacted())
}

// applyPatch overlays patch fields onto the settings via JSON round-trip, so
// field names match the wire shape exactly.
func applyPatch(s *config.Settings, patch map[string]json.RawMessage) {
	current, err := json.Marshal(s)
	if err != nil {
		return
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(current, &merged); err != nil {
		return
	}
	for key, value := range patch {
		merged[key] = value
	}
	encoded, err := json.Marshal(merged)
	if err != nil {
		return
	}
	json.Unmarshal(encoded, s)
}

// TestConnection serves POST /api/test-connection.
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.probe(r))
}

// GenerateKey serves POST /api/generate-key: rotates the local API key.
func (h *Handler) GenerateKey(w http.ResponseWriter, r *http.Request) {
	newKey := config.GenerateAPIKey()
	_, err := h.store.Update(func(s *config.Settings) error {
		s.LocalAPIKey = newKey
		return nil
	})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "server_error", "could not persist settings")
		return
	}
	slog.Info("Local API key rotated")
	writeJSON(w, map[string]string{"localApiKey": newKey})
}

// ChangePassword serves POST /api/change-password. Every live session is
// invalidated, including the caller's.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.NewPassword == "" {
		writeErr(w, http.StatusBadRequest, "validation_error", "currentPassword and newPassword are required")
		return
	}

	settings := h.store.Get()
	if !h.verifyPassword(&settings, body.CurrentPassword) {
		writeErr(w, http.StatusUnauthorized, "authentication_error", "wrong password")
		return
	}

	if err := h.setPassword(body.NewPassword); err != nil {
		writeErr(w, http.StatusInternalServerError, "server_error", "could not persist settings")
		return
	}

	h.sessions.Clear()
	slog.Info("Admin password changed; all sessions cleared")
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func writeErr(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dialect.ErrorEnvelope{
		Type:  "error",
		Error: dialect.APIError{Type: kind, Message: message},
	})
}
