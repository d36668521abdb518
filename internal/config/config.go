// Package config turns the process environment (and an optional YAML file) into an explicit
// Config value. Required keys are checked once at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort              = "18911"
	DefaultModel             = "gemini-2.5-flash"
	DefaultInitialCredits    = 3
	DefaultSessionTTL        = 7 * 24 * time.Hour
	DefaultGenerationTimeout = 90 * time.Second
	DefaultMaxUploadBytes    = 20 << 20
	DefaultCleanupInterval   = time.Hour
)

// Generation modes select the prompt variant and how the response is parsed.
const (
	ModeStructured = "structured"
	ModeMarkers    = "markers"
	ModePlain      = "plain"
)

type Config struct {
	DatabaseURL string `yaml:"-"`
	GenAIAPIKey string `yaml:"-"`
	AccessCode  string `yaml:"-"`

	Port               string   `yaml:"port"`
	Model              string   `yaml:"model"`
	PaywallURL         string   `yaml:"paywall_url"`
	PaywallPriceLabel  string   `yaml:"paywall_price_label"`
	InitialCredits     int      `yaml:"initial_credits"`
	GenerationMode     string   `yaml:"generation_mode"`
	GenerationRPS      float64  `yaml:"generation_rps"`
	GenerationBurst    int      `yaml:"generation_burst"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	LogLevel           string   `yaml:"log_level"`
	CookieSecure       bool     `yaml:"cookie_secure"`
	LockHistory        bool     `yaml:"history_requires_entitlement"`

	GenerationTimeout time.Duration `yaml:"-"`
	SessionTTL        time.Duration `yaml:"-"`
	CleanupInterval   time.Duration `yaml:"-"`
	MaxUploadBytes    int64         `yaml:"-"`

	StripeWebhookSecret string `yaml:"-"`
}

// MissingKeysError lists every required key that was absent.
type MissingKeysError struct {
	Keys []string
}

func (e *MissingKeysError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Keys, ", "))
}

// Defaults returns a Config with every optional value set.
func Defaults() Config {
	return Config{
		Port:               DefaultPort,
		Model:              DefaultModel,
		PaywallPriceLabel:  "R$ 29,90",
		InitialCredits:     DefaultInitialCredits,
		GenerationMode:     ModeStructured,
		GenerationRPS:      1,
		GenerationBurst:    2,
		LogLevel:           "info",
		GenerationTimeout:  DefaultGenerationTimeout,
		SessionTTL:         DefaultSessionTTL,
		CleanupInterval:    DefaultCleanupInterval,
		MaxUploadBytes:     DefaultMaxUploadBytes,
	}
}

// LoadFile overlays the non-secret settings of a YAML file on base.
func LoadFile(path string, base Config) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, &base); err != nil {
		return base, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return base, nil
}

// Load reads configuration through getenv. When CONFIG_FILE is set its values are applied
// first and the environment wins.
func Load(getenv func(string) string) (Config, error) {
	cfg := Defaults()
	if getenv == nil {
		getenv = os.Getenv
	}
	env := func(k string) string { return strings.TrimSpace(getenv(k)) }

	if p := env("CONFIG_FILE"); p != "" {
		var err error
		if cfg, err = LoadFile(p, cfg); err != nil {
			return cfg, err
		}
	}

	cfg.DatabaseURL = env("DATABASE_URL")
	cfg.GenAIAPIKey = env("GEMINI_API_KEY")
	if cfg.GenAIAPIKey == "" {
		cfg.GenAIAPIKey = env("GOOGLE_API_KEY")
	}
	cfg.AccessCode = env("ACCESS_CODE")
	cfg.StripeWebhookSecret = env("STRIPE_WEBHOOK_SECRET")

	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.GenAIAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if len(missing) > 0 {
		return cfg, &MissingKeysError{Keys: missing}
	}

	if v := env("PORT"); v != "" {
		cfg.Port = v
	}
	if v := env("GEMINI_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := env("PAYWALL_URL"); v != "" {
		cfg.PaywallURL = v
	}
	if v := env("PAYWALL_PRICE_LABEL"); v != "" {
		cfg.PaywallPriceLabel = v
	}
	if v := env("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := env("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitList(v)
	}
	if v := env("GENERATION_MODE"); v != "" {
		cfg.GenerationMode = v
	}
	switch cfg.GenerationMode {
	case ModeStructured, ModeMarkers, ModePlain:
	default:
		return cfg, fmt.Errorf("invalid GENERATION_MODE %q (must be structured, markers or plain)", cfg.GenerationMode)
	}

	cfg.InitialCredits = intFromEnv(env, "INITIAL_CREDITS", cfg.InitialCredits, 0)
	cfg.GenerationBurst = intFromEnv(env, "GENERATION_BURST", cfg.GenerationBurst, 1)
	if v := env("GENERATION_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.GenerationRPS = f
		}
	}
	cfg.GenerationTimeout = secondsFromEnv(env, "GENERATION_TIMEOUT_SECONDS", cfg.GenerationTimeout)
	cfg.CleanupInterval = secondsFromEnv(env, "SESSION_CLEANUP_INTERVAL_SECONDS", cfg.CleanupInterval)
	if n := intFromEnv(env, "SESSION_TTL_HOURS", 0, 1); n > 0 {
		cfg.SessionTTL = time.Duration(n) * time.Hour
	}
	if n := intFromEnv(env, "MAX_UPLOAD_MB", 0, 1); n > 0 {
		cfg.MaxUploadBytes = int64(n) << 20
	}
	cfg.CookieSecure = boolFromEnv(env, "COOKIE_SECURE", cfg.CookieSecure)
	cfg.LockHistory = boolFromEnv(env, "HISTORY_REQUIRES_ENTITLEMENT", cfg.LockHistory)

	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// intFromEnv returns def when the key is unset, unparsable or below min.
func intFromEnv(env func(string) string, key string, def, min int) int {
	v := env(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min {
		return def
	}
	return n
}

func secondsFromEnv(env func(string) string, key string, def time.Duration) time.Duration {
	n := intFromEnv(env, key, 0, 1)
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

func boolFromEnv(env func(string) string, key string, def bool) bool {
	v := env(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
