package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/joshrotenberg/skillet/internal/trust"
	pkgconfig "github.com/joshrotenberg/skillet/pkg/config"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Auth       AuthConfig        `yaml:"auth"`
	Registries RegistriesConfig  `yaml:"registries"`
	Refresh    RefreshConfig     `yaml:"refresh"`
	Cache      CacheConfig       `yaml:"cache"`
	Trust      TrustConfig       `yaml:"trust"`
	Watch      WatchConfig       `yaml:"watch"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App, &c.Auth, &c.Registries, &c.Refresh, &c.Cache, &c.Trust,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// RegistriesConfig lists the skill sources. Local paths come first, then
// remotes, in the order given; earlier sources win duplicate skills.
type RegistriesConfig struct {
	Local  []string       `yaml:"local"`
	Remote []RemoteConfig `yaml:"remote"`
	// Subdir is the default subdirectory for sources that don't set one.
	Subdir string `yaml:"subdir"`
	// EmbeddedDefaults serves the built-in registry when nothing else is
	// configured.
	EmbeddedDefaults bool `yaml:"embedded_defaults"`
}

// Validate validates the registries configuration.
func (c *RegistriesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Local, validation.Each(validation.Required)),
		validation.Field(&c.Remote),
	)
}

// Empty reports whether no local or remote registry is configured.
func (c *RegistriesConfig) Empty() bool {
	return len(c.Local) == 0 && len(c.Remote) == 0
}

// RemoteConfig is one git registry.
type RemoteConfig struct {
	URL    string `yaml:"url"`
	Subdir string `yaml:"subdir"`
}

// Validate validates a remote registry entry.
func (c RemoteConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.URL, validation.Required),
	)
}

// RefreshConfig controls background refresh.
type RefreshConfig struct {
	// Interval between pulls. "0" disables automatic refresh.
	Interval    pkgconfig.Duration `yaml:"interval"`
	PullTimeout pkgconfig.Duration `yaml:"pull_timeout"`
}

// Validate validates the refresh configuration.
func (c *RefreshConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PullTimeout, validation.Required),
	)
}

// CacheConfig controls the on-disk index cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	// TTL is the maximum age of a usable cache file. "0" never expires.
	TTL pkgconfig.Duration `yaml:"ttl"`
	Dir string             `yaml:"dir"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.When(c.Enabled, validation.Required)),
	)
}

// ReposDir is where remote registries are cloned. Clones live under the
// cache dir even when the index cache itself is disabled.
func (c *CacheConfig) ReposDir() string {
	dir := c.Dir
	if dir == "" {
		dir = filepath.Join(xdg.CacheHome, "skillet")
	}
	return filepath.Join(dir, "repos")
}

// TrustConfig configures the trust store. An empty DBPath disables trust
// bookkeeping and enforcement.
type TrustConfig struct {
	DBPath        string `yaml:"db_path"`
	UnknownPolicy string `yaml:"unknown_policy"`
}

// Validate validates the trust configuration.
func (c *TrustConfig) Validate() error {
	if c.UnknownPolicy == "" {
		c.UnknownPolicy = string(trust.PolicyWarn)
	}
	_, err := trust.ParsePolicy(c.UnknownPolicy)
	return err
}

// Policy returns the parsed unknown-skill policy.
func (c *TrustConfig) Policy() trust.Policy {
	p, err := trust.ParsePolicy(c.UnknownPolicy)
	if err != nil {
		return trust.PolicyWarn
	}
	return p
}

// WatchConfig enables filesystem watching of local registries.
type WatchConfig struct {
	Enabled  bool               `yaml:"enabled"`
	Debounce pkgconfig.Duration `yaml:"debounce"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Registries: RegistriesConfig{
			EmbeddedDefaults: true,
		},
		Refresh: RefreshConfig{
			Interval:    pkgconfig.Duration(5 * time.Minute),
			PullTimeout: pkgconfig.Duration(60 * time.Second),
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     pkgconfig.Duration(5 * time.Minute),
			Dir:     filepath.Join(xdg.CacheHome, "skillet"),
		},
		Trust: TrustConfig{
			DBPath:        filepath.Join(xdg.DataHome, "skillet", "trust.db"),
			UnknownPolicy: string(trust.PolicyWarn),
		},
		Watch: WatchConfig{
			Debounce: pkgconfig.Duration(500 * time.Millisecond),
		},
	}
}
