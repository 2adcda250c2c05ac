package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"PORT", "SECRET_KEY", "ACCESS_TOKEN_TTL", "REFRESH_TOKEN_TTL",
		"SESSION_KEY", "COOKIE_SECURE", "COOKIE_SAMESITE", "LOG_DIR",
		"DATABASE_URL", "POSTGRES_URL", "REDIS_URL", "ALLOWED_ORIGINS",
		"MAX_INSPECT_BYTES", "BOOTSTRAP_ADMIN", "INITIAL_ADMIN_PASSWORD_PATH",
		"CONFIG_FILE",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8000" {
		t.Errorf("Port = %q, want 8000", cfg.Port)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Errorf("AccessTokenTTL = %v, want 15m", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 7*24*time.Hour {
		t.Errorf("RefreshTokenTTL = %v, want 168h", cfg.RefreshTokenTTL)
	}
	if cfg.CookieSameSite != "Strict" {
		t.Errorf("CookieSameSite = %q, want Strict", cfg.CookieSameSite)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("AllowedOrigins = %v, want two localhost entries", cfg.AllowedOrigins)
	}
	if cfg.MaxInspectBytes != 1<<20 {
		t.Errorf("MaxInspectBytes = %d, want 1MiB", cfg.MaxInspectBytes)
	}
	if !cfg.BootstrapAdminEnabled {
		t.Error("BootstrapAdminEnabled should default to true")
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("SECRET_KEY", "env-secret")
	t.Setenv("ACCESS_TOKEN_TTL", "30m")
	t.Setenv("COOKIE_SECURE", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://crm.example.com, https://admin.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9000" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.SecretKey != "env-secret" {
		t.Errorf("SecretKey = %q", cfg.SecretKey)
	}
	if cfg.AccessTokenTTL != 30*time.Minute {
		t.Errorf("AccessTokenTTL = %v", cfg.AccessTokenTTL)
	}
	if !cfg.CookieSecure {
		t.Error("CookieSecure should be true")
	}
	want := []string{"https://crm.example.com", "https://admin.example.com"}
	if len(cfg.AllowedOrigins) != len(want) {
		t.Fatalf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	for i, o := range want {
		if cfg.AllowedOrigins[i] != o {
			t.Errorf("AllowedOrigins[%d] = %q, want %q", i, cfg.AllowedOrigins[i], o)
		}
	}
}

func TestLoadConfigFileOverridesEnv(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("SECRET_KEY", "env-secret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
port: "9100"
secret_key: file-secret
access_token_ttl: 5m
allowed_origins:
  - https://file.example.com
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9100" {
		t.Errorf("Port = %q, want file value", cfg.Port)
	}
	if cfg.SecretKey != "file-secret" {
		t.Errorf("SecretKey = %q, want file value", cfg.SecretKey)
	}
	if cfg.AccessTokenTTL != 5*time.Minute {
		t.Errorf("AccessTokenTTL = %v, want 5m", cfg.AccessTokenTTL)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://file.example.com" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	// Fields absent from the file keep their env/default values.
	if cfg.RefreshTokenTTL != 7*24*time.Hour {
		t.Errorf("RefreshTokenTTL = %v, want default", cfg.RefreshTokenTTL)
	}
}

func TestLoadBadConfigFile(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("access_token_ttl: nonsense\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unparseable ttl")
	}

	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing file")
	}
}
