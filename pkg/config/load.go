package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	kjson "github.com/knadh/koanf/parsers/json"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix namespaces the environment variables the gateway reads.
const EnvPrefix = "LLMRELAY_"

// envKeys maps environment variable suffixes to settings keys.
var envKeys = map[string]string{
	"UPSTREAM_BASE_URL": "upstreamBaseURL",
	"UPSTREAM_API_KEY":  "upstreamApiKey",
	"DEFAULT_MODEL":     "defaultModel",
	"LOCAL_API_KEY":     "localApiKey",
	"ADMIN_PASSWORD":    "adminSecret",
	"PORT":              "port",
	"MAX_BODY_BYTES":    "maxBodyBytes",
}

// Load assembles a Settings record from layered sources, lowest precedence
// first: built-in defaults, the optional bootstrap file (YAML), the persisted
// settings document (JSON, if present), then the environment.
func Load(settingsPath, bootstrapPath string) (*Settings, error) {
	// A .env file next to the binary is honored, matching local dev setups.
	_ = godotenv.Load()

	k := koanf.New(".")

	defaults := map[string]interface{}{
		"upstreamBaseURL": DefaultUpstreamBaseURL,
		"defaultModel":    DefaultModel,
		"port":            DefaultPort,
		"maxBodyBytes":    DefaultMaxBodyBytes,
		"schemaVersion":   SchemaVersion,
	}
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if bootstrapPath != "" {
		if err := k.Load(file.Provider(bootstrapPath), kyaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load bootstrap config %s: %w", bootstrapPath, err)
		}
	}

	if settingsPath != "" {
		if _, err := os.Stat(settingsPath); err == nil {
			if err := k.Load(file.Provider(settingsPath), kjson.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load settings %s: %w", settingsPath, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		if key, ok := envKeys[strings.TrimPrefix(s, EnvPrefix)]; ok {
			return key
		}
		return ""
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var settings Settings
	if err := k.Unmarshal("", &settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	settings.SetDefaults()
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return &settings, nil
}
