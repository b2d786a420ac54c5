// Package config loads the service configuration from the environment (and
// optionally command-line flags) using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Provider modes
const (
	ProviderHTTP = "http"
	ProviderStub = "stub"
)

// Config holds the application configuration
type Config struct {
	// Port is the HTTP listen port
	Port string `mapstructure:"PORT"`
	// DatabaseURL is the Postgres DSN for the session store
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// ResetStorage drops and recreates the session table at startup
	ResetStorage bool `mapstructure:"RESET_STORAGE"`
	// ClearDB is the legacy spelling of ResetStorage ("1" enables it)
	ClearDB string `mapstructure:"CLEAR_DB"`

	// ProviderMode selects the provider gateway: "http" or "stub"
	ProviderMode    string        `mapstructure:"PROVIDER_MODE"`
	ProviderURL     string        `mapstructure:"PROVIDER_URL"`
	APIID           int           `mapstructure:"API_ID"`
	APIHash         string        `mapstructure:"API_HASH"`
	ProviderTimeout time.Duration `mapstructure:"PROVIDER_TIMEOUT"`
	// StubCode is the code accepted in stub mode
	StubCode string `mapstructure:"STUB_CODE"`

	AdminPassword  string        `mapstructure:"ADMIN_PASSWORD"`
	AdminJWTSecret string        `mapstructure:"ADMIN_JWT_SECRET"`
	AdminTokenTTL  time.Duration `mapstructure:"ADMIN_TOKEN_TTL"`

	// AttemptMaxAge bounds how long an unfinished login may hold its phone number
	AttemptMaxAge time.Duration `mapstructure:"ATTEMPT_MAX_AGE"`
	SweepInterval time.Duration `mapstructure:"SWEEP_INTERVAL"`
}

var defaults = map[string]interface{}{
	"PORT":             "8000",
	"DATABASE_URL":     "",
	"RESET_STORAGE":    false,
	"CLEAR_DB":         "",
	"PROVIDER_MODE":    ProviderHTTP,
	"PROVIDER_URL":     "",
	"API_ID":           0,
	"API_HASH":         "",
	"PROVIDER_TIMEOUT": 15 * time.Second,
	"STUB_CODE":        "12345",
	"ADMIN_PASSWORD":   "admin123",
	"ADMIN_JWT_SECRET": "",
	"ADMIN_TOKEN_TTL":  12 * time.Hour,
	"ATTEMPT_MAX_AGE":  10 * time.Minute,
	"SWEEP_INTERVAL":   time.Minute,
}

// flagKeys maps command-line flags to configuration keys
var flagKeys = map[string]string{
	"port":          "PORT",
	"reset-storage": "RESET_STORAGE",
	"provider-mode": "PROVIDER_MODE",
}

// Load reads configuration from environment variables. Flags present in flags
// (may be nil) override the environment when set explicitly.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("config: DATABASE_URL environment variable is required")
	}
	if c.Port == "" {
		return errors.New("config: PORT must not be empty")
	}
	if c.ClearDB == "1" {
		c.ResetStorage = true
	}

	c.ProviderMode = strings.ToLower(strings.TrimSpace(c.ProviderMode))
	switch c.ProviderMode {
	case ProviderHTTP:
		if c.ProviderURL == "" {
			return errors.New("config: PROVIDER_URL is required when PROVIDER_MODE=http")
		}
		if c.APIID == 0 || c.APIHash == "" {
			return errors.New("config: API_ID and API_HASH are required when PROVIDER_MODE=http")
		}
	case ProviderStub:
	default:
		return fmt.Errorf("config: PROVIDER_MODE must be %q or %q, got %q", ProviderHTTP, ProviderStub, c.ProviderMode)
	}

	if c.AdminPassword == "" {
		return errors.New("config: ADMIN_PASSWORD must not be empty")
	}
	if c.AttemptMaxAge <= 0 {
		return errors.New("config: ATTEMPT_MAX_AGE must be positive")
	}
	if c.SweepInterval <= 0 {
		return errors.New("config: SWEEP_INTERVAL must be positive")
	}
	return nil
}
