package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration sourced from environment variables.
type Config struct {
	Environment  string
	HTTPPort     string
	DatabasePath string
	LogDir       string
	Debug        bool
	GateEnabled  bool

	JWTSecret string
	TokenTTL  time.Duration

	Actions   ActionsConfig
	Effectors EffectorsConfig
	Notify    NotifyConfig
}

// ActionsConfig controls the action lifecycle: effector timeouts, locking and expiry.
type ActionsConfig struct {
	EffectorTimeout time.Duration
	SuggestionTTL   time.Duration
	ExpirySchedule  string
	LockMode        string // "memory" or "lease"
	LockLease       time.Duration
	CatalogFile     string

	// UndoWindows and Reversible hold per-type overrides keyed by action type
	// (e.g. "block_ip"). Missing keys keep the catalog defaults.
	UndoWindows map[string]time.Duration
	Reversible  map[string]bool
}

// EffectorsConfig points the built-in effectors at their backends.
type EffectorsConfig struct {
	QuarantineDir    string
	TicketWebhookURL string
	DockerHost       string

	// GitHub issues take precedence over the webhook when a repo is set.
	TicketGitHubRepo  string
	TicketGitHubToken string

	// BlockIP refuses CIDR blocks broader than these prefix lengths.
	BlockMinPrefixV4 int
	BlockMinPrefixV6 int
}

// NotifyConfig lists shoutrrr URLs that receive transition notifications.
type NotifyConfig struct {
	URLs []string
}

// knownActionTypes are the env suffixes scanned for per-type overrides.
var knownActionTypes = []string{"block_ip", "isolate_host", "quarantine_file", "add_to_watchlist", "create_ticket"}

// Load reads env vars and falls back to defaults so the server can boot with zero configuration.
func Load() (Config, error) {
	cfg := Config{
		Environment:  getEnv("AEGIS_ENV", "development"),
		HTTPPort:     getEnv("AEGIS_HTTP_PORT", "8080"),
		DatabasePath: getEnv("AEGIS_DB_PATH", filepath.Join("data", "aegis.db")),
		LogDir:       getEnv("AEGIS_LOG_DIR", filepath.Join("data", "logs")),
		Debug:        getEnvBool("AEGIS_DEBUG", false),
		GateEnabled:  getEnvBool("AEGIS_GATE_ENABLED", true),
		JWTSecret:    getEnv("AEGIS_JWT_SECRET", "change-me-in-production"),
		Effectors: EffectorsConfig{
			QuarantineDir:     getEnv("AEGIS_QUARANTINE_DIR", filepath.Join("data", "quarantine")),
			TicketWebhookURL:  getEnv("AEGIS_TICKET_WEBHOOK_URL", ""),
			DockerHost:        getEnv("AEGIS_DOCKER_HOST", ""),
			TicketGitHubRepo:  getEnv("AEGIS_TICKET_GITHUB_REPO", ""),
			TicketGitHubToken: getEnv("AEGIS_TICKET_GITHUB_TOKEN", ""),
		},
		Notify: NotifyConfig{
			URLs: splitList(getEnv("AEGIS_NOTIFY_URLS", "")),
		},
	}

	var err error
	if cfg.TokenTTL, err = getEnvDuration("AEGIS_TOKEN_TTL", 12*time.Hour); err != nil {
		return Config{}, err
	}

	actions := ActionsConfig{
		ExpirySchedule: getEnv("AEGIS_EXPIRY_SCHEDULE", "@every 1m"),
		LockMode:       strings.ToLower(getEnv("AEGIS_LOCK_MODE", "memory")),
		CatalogFile:    getEnv("AEGIS_CATALOG_FILE", ""),
		UndoWindows:    map[string]time.Duration{},
		Reversible:     map[string]bool{},
	}
	if actions.EffectorTimeout, err = getEnvDuration("AEGIS_EFFECTOR_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if actions.SuggestionTTL, err = getEnvDuration("AEGIS_SUGGESTION_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if actions.LockLease, err = getEnvDuration("AEGIS_LOCK_LEASE", 2*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.Effectors.BlockMinPrefixV4, err = getEnvInt("AEGIS_BLOCK_MIN_PREFIX_V4", 8, 1, 32); err != nil {
		return Config{}, err
	}
	if cfg.Effectors.BlockMinPrefixV6, err = getEnvInt("AEGIS_BLOCK_MIN_PREFIX_V6", 32, 1, 128); err != nil {
		return Config{}, err
	}
	if actions.LockMode != "memory" && actions.LockMode != "lease" {
		return Config{}, fmt.Errorf("invalid AEGIS_LOCK_MODE %q: must be memory or lease", actions.LockMode)
	}

	for _, t := range knownActionTypes {
		suffix := strings.ToUpper(t)
		if raw := os.Getenv("AEGIS_UNDO_WINDOW_" + suffix); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil || d < 0 {
				return Config{}, fmt.Errorf("invalid AEGIS_UNDO_WINDOW_%s %q", suffix, raw)
			}
			actions.UndoWindows[t] = d
		}
		if raw := os.Getenv("AEGIS_REVERSIBLE_" + suffix); raw != "" {
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return Config{}, fmt.Errorf("invalid AEGIS_REVERSIBLE_%s %q", suffix, raw)
			}
			actions.Reversible[t] = b
		}
	}
	cfg.Actions = actions

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return Config{}, fmt.Errorf("ensure data directory: %w", err)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	return d, nil
}

func getEnvInt(key string, fallback, lo, hi int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s %q: must be an integer in [%d, %d]", key, val, lo, hi)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
