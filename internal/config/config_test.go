package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_MissingRequiredKeysReportedTogether(t *testing.T) {
	_, err := Load(envMap(nil))
	var mk *MissingKeysError
	if !errors.As(err, &mk) {
		t.Fatalf("expected MissingKeysError, got %v", err)
	}
	if diff := cmp.Diff([]string{"DATABASE_URL", "GEMINI_API_KEY"}, mk.Keys); diff != "" {
		t.Fatalf("missing keys mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(envMap(map[string]string{
		"DATABASE_URL":   "postgres://example",
		"GOOGLE_API_KEY": "k",
	}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GenAIAPIKey != "k" {
		t.Fatalf("expected GOOGLE_API_KEY fallback, got %q", cfg.GenAIAPIKey)
	}
	if cfg.Port != DefaultPort || cfg.Model != DefaultModel {
		t.Fatalf("unexpected defaults port=%q model=%q", cfg.Port, cfg.Model)
	}
	if cfg.InitialCredits != 3 {
		t.Fatalf("expected 3 initial credits got %d", cfg.InitialCredits)
	}
	if cfg.GenerationMode != ModeStructured {
		t.Fatalf("expected structured mode got %q", cfg.GenerationMode)
	}
	if cfg.Addr() != ":18911" {
		t.Fatalf("unexpected addr %q", cfg.Addr())
	}
	if len(cfg.CORSAllowedOrigins) != 0 {
		t.Fatalf("expected no cross-origin access by default, got %v", cfg.CORSAllowedOrigins)
	}
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(envMap(map[string]string{
		"DATABASE_URL":                 "postgres://example",
		"GEMINI_API_KEY":               "k",
		"PORT":                         "9000",
		"GEMINI_MODEL":                 "gemini-2.5-pro",
		"ACCESS_CODE":                  " secret ",
		"INITIAL_CREDITS":              "1",
		"GENERATION_MODE":              "markers",
		"GENERATION_TIMEOUT_SECONDS":   "30",
		"GENERATION_RPS":               "0.5",
		"SESSION_TTL_HOURS":            "2",
		"MAX_UPLOAD_MB":                "5",
		"COOKIE_SECURE":                "true",
		"HISTORY_REQUIRES_ENTITLEMENT": "1",
		"CORS_ALLOWED_ORIGINS":         "https://a.example, https://b.example",
	}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9000" || cfg.Model != "gemini-2.5-pro" || cfg.AccessCode != "secret" {
		t.Fatalf("unexpected cfg %#v", cfg)
	}
	if cfg.InitialCredits != 1 || cfg.GenerationMode != ModeMarkers {
		t.Fatalf("unexpected credits/mode %d %q", cfg.InitialCredits, cfg.GenerationMode)
	}
	if cfg.GenerationTimeout != 30*time.Second || cfg.SessionTTL != 2*time.Hour {
		t.Fatalf("unexpected durations %s %s", cfg.GenerationTimeout, cfg.SessionTTL)
	}
	if cfg.GenerationRPS != 0.5 || cfg.MaxUploadBytes != 5<<20 {
		t.Fatalf("unexpected rps/upload %v %d", cfg.GenerationRPS, cfg.MaxUploadBytes)
	}
	if !cfg.CookieSecure || !cfg.LockHistory {
		t.Fatalf("expected bool overrides")
	}
	if diff := cmp.Diff([]string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins); diff != "" {
		t.Fatalf("origins mismatch:\n%s", diff)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	cfg, err := Load(envMap(map[string]string{
		"DATABASE_URL":               "postgres://example",
		"GEMINI_API_KEY":             "k",
		"INITIAL_CREDITS":            "-4",
		"GENERATION_TIMEOUT_SECONDS": "abc",
		"COOKIE_SECURE":              "maybe",
	}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.InitialCredits != DefaultInitialCredits {
		t.Fatalf("expected default credits got %d", cfg.InitialCredits)
	}
	if cfg.GenerationTimeout != DefaultGenerationTimeout {
		t.Fatalf("expected default timeout got %s", cfg.GenerationTimeout)
	}
	if cfg.CookieSecure {
		t.Fatalf("expected default cookie secure")
	}
}

func TestLoad_InvalidMode(t *testing.T) {
	_, err := Load(envMap(map[string]string{
		"DATABASE_URL":    "postgres://example",
		"GEMINI_API_KEY":  "k",
		"GENERATION_MODE": "freestyle",
	}))
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoad_ConfigFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "techpost.yaml")
	body := "model: gemini-file\npaywall_url: https://pay.example/x\ninitial_credits: 5\nport: \"7000\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(envMap(map[string]string{
		"CONFIG_FILE":    path,
		"DATABASE_URL":   "postgres://example",
		"GEMINI_API_KEY": "k",
		"PORT":           "7100",
	}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "gemini-file" || cfg.PaywallURL != "https://pay.example/x" || cfg.InitialCredits != 5 {
		t.Fatalf("file values not applied: %#v", cfg)
	}
	if cfg.Port != "7100" {
		t.Fatalf("expected env to win for port, got %q", cfg.Port)
	}
}

func TestLoad_ConfigFileMissing(t *testing.T) {
	_, err := Load(envMap(map[string]string{"CONFIG_FILE": "/does/not/exist.yaml"}))
	if err == nil {
		t.Fatalf("expected error")
	}
}
