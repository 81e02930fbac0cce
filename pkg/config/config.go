// Package config holds the gateway's single process-wide settings record.
//
// Settings are loaded at startup from defaults, an optional bootstrap file and
// the environment, persisted as one JSON document, and mutated only through
// the admin surface. Readers always observe a snapshot-consistent copy.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

const (
	// SchemaVersion is the current settings document version.
	SchemaVersion = "1"

	// DefaultUpstreamBaseURL is the Generative Language API endpoint.
	DefaultUpstreamBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultModel is used when a request does not name a model.
	DefaultModel = "gemini-2.5-pro"

	// DefaultPort is the gateway listen port.
	DefaultPort = 8082

	// DefaultMaxBodyBytes caps inbound request bodies. Large tool catalogs
	// and code contexts need room.
	DefaultMaxBodyBytes = 200 << 20

	// DefaultAdminPassword is the first-boot bootstrap password. It is
	// stored as plaintext until the first successful login rehashes it.
	DefaultAdminPassword = "admin"
)

// Settings is the persistent configuration record.
type Settings struct {
	UpstreamBaseURL string `json:"upstreamBaseURL" koanf:"upstreamBaseURL"`
	UpstreamAPIKey  string `json:"upstreamApiKey" koanf:"upstreamApiKey"`
	DefaultModel    string `json:"defaultModel" koanf:"defaultModel"`
	LocalAPIKey     string `json:"localApiKey" koanf:"localApiKey"`
	AdminSecret     string `json:"adminSecret" koanf:"adminSecret"`
	Schema          string `json:"schemaVersion" koanf:"schemaVersion"`

	Port         int   `json:"port" koanf:"port"`
	MaxBodyBytes int64 `json:"maxBodyBytes" koanf:"maxBodyBytes"`
}

// SetDefaults fills zero-valued fields. Secrets that are still empty are
// generated here so a fresh install is usable without manual setup.
func (s *Settings) SetDefaults() {
	if s.UpstreamBaseURL == "" {
		s.UpstreamBaseURL = DefaultUpstreamBaseURL
	}
	if s.DefaultModel == "" {
		s.DefaultModel = DefaultModel
	}
	if s.Port == 0 {
		s.Port = DefaultPort
	}
	if s.MaxBodyBytes == 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.Schema == "" {
		s.Schema = SchemaVersion
	}
	if s.LocalAPIKey == "" {
		s.LocalAPIKey = GenerateAPIKey()
	}
	if s.AdminSecret == "" {
		s.AdminSecret = DefaultAdminPassword
	}
}

// Validate checks the invariants the admin surface must uphold.
func (s *Settings) Validate() error {
	u, err := url.Parse(s.UpstreamBaseURL)
	if err != nil {
		return fmt.Errorf("invalid upstream base URL: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("upstream base URL must use https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("upstream base URL has no host")
	}
	if s.DefaultModel == "" {
		return fmt.Errorf("default model is required")
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("port %d out of range", s.Port)
	}
	if s.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}
	return nil
}

// Redacted returns a copy safe to hand to clients: the admin secret is
// omitted entirely.
func (s *Settings) Redacted() Settings {
	out := *s
	out.AdminSecret = ""
	return out
}

// SecretHashed reports whether the admin secret is a bcrypt hash rather than
// a first-boot plaintext bootstrap value.
func (s *Settings) SecretHashed() bool {
	return strings.HasPrefix(s.AdminSecret, "$2a$") ||
		strings.HasPrefix(s.AdminSecret, "$2b$") ||
		strings.HasPrefix(s.AdminSecret, "$2y$")
}

// GenerateAPIKey returns a fresh 32-byte random key as hex.
func GenerateAPIKey() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(buf)
}
