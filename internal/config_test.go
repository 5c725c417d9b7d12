package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/joshrotenberg/skillet/internal/trust"
	pkgconfig "github.com/joshrotenberg/skillet/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenMode(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}

	cfg.Token = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
	if cfg.Refresh.Interval.Std() != 5*time.Minute {
		t.Errorf("interval = %v", cfg.Refresh.Interval)
	}
	if !strings.HasSuffix(cfg.Trust.DBPath, filepath.Join("skillet", "trust.db")) {
		t.Errorf("trust db = %q", cfg.Trust.DBPath)
	}
	if cfg.Trust.Policy() != trust.PolicyWarn {
		t.Errorf("policy = %q", cfg.Trust.Policy())
	}
	if !cfg.Registries.Empty() || !cfg.Registries.EmbeddedDefaults {
		t.Errorf("registries = %+v", cfg.Registries)
	}
}

func TestConfig_Invalid(t *testing.T) {
	cases := map[string]func(*Config){
		"auth token missing": func(c *Config) { c.Auth.Mode = AuthModeToken },
		"bad port":           func(c *Config) { c.App.HTTP.Port = 70000 },
		"blank remote url":   func(c *Config) { c.Registries.Remote = []RemoteConfig{{Subdir: "skills"}} },
		"blank local path":   func(c *Config) { c.Registries.Local = []string{""} },
		"zero pull timeout":  func(c *Config) { c.Refresh.PullTimeout = 0 },
		"cache without dir":  func(c *Config) { c.Cache.Dir = "" },
		"unknown policy":     func(c *Config) { c.Trust.UnknownPolicy = "ignore" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestConfig_LoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("SKILLET_TEST_TOKEN", "s3cret")
	yaml := `
app:
  http:
    port: 9090
auth:
  mode: token
  token: ${SKILLET_TEST_TOKEN}
registries:
  local: [./skills]
  remote:
    - url: https://github.com/acme/skills.git
      subdir: registry
refresh:
  interval: "0"
  pull_timeout: 30s
cache:
  enabled: false
  ttl: 90
trust:
  db_path: ""
  unknown_policy: block
watch:
  enabled: true
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 || cfg.Auth.Token != "s3cret" {
		t.Errorf("app/auth = %+v %+v", cfg.App, cfg.Auth)
	}
	if cfg.Refresh.Interval != 0 || cfg.Refresh.PullTimeout.Std() != 30*time.Second {
		t.Errorf("refresh = %+v", cfg.Refresh)
	}
	if cfg.Cache.TTL.Std() != 90*time.Second || cfg.Cache.Enabled {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Trust.Policy() != trust.PolicyBlock || cfg.Trust.DBPath != "" {
		t.Errorf("trust = %+v", cfg.Trust)
	}
	if len(cfg.Registries.Remote) != 1 || cfg.Registries.Remote[0].Subdir != "registry" {
		t.Errorf("remotes = %+v", cfg.Registries.Remote)
	}
	// Unset keys keep their defaults.
	if cfg.Watch.Debounce.Std() != 500*time.Millisecond {
		t.Errorf("debounce = %v", cfg.Watch.Debounce)
	}
}
