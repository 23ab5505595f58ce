package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// AuthKind selects how a provider authenticates.
type AuthKind string

const (
	AuthRotatingKeys AuthKind = "rotating_keys"
	AuthOAuth        AuthKind = "oauth"
)

// Provider describes one upstream target.
type Provider struct {
	// BaseURL is the OpenAI-compatible API root, without /chat/completions.
	BaseURL string `yaml:"base_url"`

	// Auth selects rotating static keys or a refreshable OAuth session.
	Auth AuthKind `yaml:"auth"`

	// KeysEnv names the env var holding comma-separated API keys
	// (rotating_keys only).
	KeysEnv string `yaml:"keys_env"`

	// CredsPath and RefreshURL configure the OAuth session (oauth only).
	CredsPath  string `yaml:"creds_path"`
	RefreshURL string `yaml:"refresh_url"`

	// MergeRoles enables the consecutive-same-role merge pass for
	// upstreams that reject adjacent turns with the same role.
	MergeRoles bool `yaml:"merge_roles"`

	// ExtraBody is attached verbatim to the upstream payload under
	// "extra_body" (e.g. a thinking budget flag). Opaque to the gateway.
	ExtraBody map[string]any `yaml:"extra_body"`
}

// Config is the process configuration, resolved once at startup.
type Config struct {
	Port         int
	StateDir     string // shared rotation cursor files
	ModelsPath   string // optional models.json catalog override
	TelemetryDB  string // sqlite telemetry database ("" disables)
	MaxAttempts  int
	RetryBackoff time.Duration

	Providers map[string]Provider
}

// builtinProviders is the static upstream table. A YAML file named by
// GATEWAY_PROVIDERS_FILE can override or extend it.
func builtinProviders() map[string]Provider {
	return map[string]Provider{
		"google": {
			BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai",
			Auth:    AuthRotatingKeys,
			KeysEnv: "GOOGLE_API_KEYS",
			ExtraBody: map[string]any{
				"google": map[string]any{
					"thinking_config": map[string]any{
						"include_thoughts": true,
						"thinking_budget":  DefaultThinkingBudget,
					},
				},
			},
		},
		"openrouter": {
			BaseURL: "https://openrouter.ai/api/v1",
			Auth:    AuthRotatingKeys,
			KeysEnv: "OPENROUTER_API_KEYS",
		},
		"akash": {
			BaseURL: "https://chatapi.akash.network/api/v1",
			Auth:    AuthRotatingKeys,
			KeysEnv: "AKASH_API_KEYS",
		},
		"cohere": {
			BaseURL: "https://api.cohere.ai/compatibility/v1",
			Auth:    AuthRotatingKeys,
			KeysEnv: "COHERE_API_KEYS",
		},
		"codestral": {
			BaseURL: "https://codestral.mistral.ai/v1",
			Auth:    AuthRotatingKeys,
			KeysEnv: "CODESTRAL_API_KEYS",
		},
		"perplexity": {
			BaseURL:    "https://api.perplexity.ai",
			Auth:       AuthRotatingKeys,
			KeysEnv:    "PERPLEXITY_API_KEYS",
			MergeRoles: true,
		},
		"qwen": {
			BaseURL:    "https://portal.qwen.ai/v1",
			Auth:       AuthOAuth,
			CredsPath:  expandHome("~/.qwen/oauth_creds.json"),
			RefreshURL: DefaultQwenRefreshURL,
		},
	}
}

// Load resolves the configuration from the environment and the optional
// providers file. It never fails on missing credentials; a provider without
// keys only errors when a request for it arrives.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         envInt("PORT", DefaultPort),
		StateDir:     envStr("GATEWAY_STATE_DIR", os.TempDir()),
		ModelsPath:   envStr("GATEWAY_MODELS_FILE", "models.json"),
		TelemetryDB:  envStr("GATEWAY_TELEMETRY_DB", ""),
		MaxAttempts:  envInt("GATEWAY_MAX_ATTEMPTS", DefaultMaxAttempts),
		RetryBackoff: DefaultRetryBackoff,
		Providers:    builtinProviders(),
	}

	if path := os.Getenv("GATEWAY_PROVIDERS_FILE"); path != "" {
		if err := cfg.mergeProvidersFile(path); err != nil {
			return nil, fmt.Errorf("providers file %s: %w", path, err)
		}
	}

	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return cfg, nil
}

// mergeProvidersFile overlays provider definitions from a YAML file.
// Entries replace builtins of the same name wholesale.
func (c *Config) mergeProvidersFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file struct {
		Providers map[string]Provider `yaml:"providers"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}
	for name, p := range file.Providers {
		if p.BaseURL == "" {
			return fmt.Errorf("provider %q: base_url is required", name)
		}
		if p.Auth == "" {
			p.Auth = AuthRotatingKeys
		}
		if p.CredsPath != "" {
			p.CredsPath = expandHome(p.CredsPath)
		}
		c.Providers[name] = p
		log.Info().Str("provider", name).Str("base_url", p.BaseURL).Msg("provider override loaded")
	}
	return nil
}

// Keys reads the comma-separated key list for a rotating-keys provider.
func (p Provider) Keys() []string {
	if p.KeysEnv == "" {
		return nil
	}
	raw := os.Getenv(p.KeysEnv)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	keys := make([]string, 0, len(parts))
	for _, k := range parts {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func envStr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("var", name).Str("value", v).Msg("not an integer, using default")
		return fallback
	}
	return n
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
