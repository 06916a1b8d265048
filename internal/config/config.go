package config

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`
	// PublicURL is advertised as the server in the OpenAPI document.
	PublicURL string `mapstructure:"PUBLIC_URL"`

	FHIRServerURL   string        `mapstructure:"FHIR_SERVER_URL"`
	UpstreamTimeout time.Duration `mapstructure:"UPSTREAM_TIMEOUT"`
	UpstreamRetries int           `mapstructure:"UPSTREAM_RETRIES"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	TemplatesFile         string   `mapstructure:"TEMPLATES_FILE"`
	FuzzyMaxSuggestions   int      `mapstructure:"FUZZY_MAX_SUGGESTIONS"`
	FuzzyThreshold        float64  `mapstructure:"FUZZY_THRESHOLD"`
	SuggestionCacheSize   int      `mapstructure:"SUGGESTION_CACHE_SIZE"`
	CodedParams           []string `mapstructure:"CODED_PARAMS"`
	CodeSystems           []string `mapstructure:"CODE_SYSTEMS"`
	RejectDuplicateParams bool     `mapstructure:"REJECT_DUPLICATE_PARAMS"`
	RequireSearchParams   bool     `mapstructure:"REQUIRE_SEARCH_PARAMS"`
	SoftEmptyStatus       int      `mapstructure:"SOFT_EMPTY_STATUS"`

	RefreshInterval time.Duration `mapstructure:"REFRESH_INTERVAL"`
	AdminJWTSecret  string        `mapstructure:"ADMIN_JWT_SECRET"`

	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8888")
	v.SetDefault("ENV", "development")
	v.SetDefault("UPSTREAM_TIMEOUT", "10s")
	v.SetDefault("UPSTREAM_RETRIES", 2)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("FUZZY_MAX_SUGGESTIONS", 3)
	v.SetDefault("FUZZY_THRESHOLD", 0.6)
	v.SetDefault("SUGGESTION_CACHE_SIZE", 1024)
	v.SetDefault("CODED_PARAMS", "Observation.code=http://loinc.org")
	v.SetDefault("REJECT_DUPLICATE_PARAMS", false)
	v.SetDefault("REQUIRE_SEARCH_PARAMS", false)
	v.SetDefault("SOFT_EMPTY_STATUS", http.StatusOK)
	v.SetDefault("REFRESH_INTERVAL", "0s")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "PUBLIC_URL",
		"FHIR_SERVER_URL", "UPSTREAM_TIMEOUT", "UPSTREAM_RETRIES",
		"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"TEMPLATES_FILE", "FUZZY_MAX_SUGGESTIONS", "FUZZY_THRESHOLD", "SUGGESTION_CACHE_SIZE",
		"CODED_PARAMS", "CODE_SYSTEMS", "REJECT_DUPLICATE_PARAMS", "REQUIRE_SEARCH_PARAMS",
		"SOFT_EMPTY_STATUS", "REFRESH_INTERVAL", "ADMIN_JWT_SECRET",
		"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// List values are comma separated in the environment.
	cfg.CodedParams = splitList(v.GetString("CODED_PARAMS"))
	cfg.CodeSystems = splitList(v.GetString("CODE_SYSTEMS"))
	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))

	if cfg.FHIRServerURL == "" {
		return nil, fmt.Errorf("FHIR_SERVER_URL is required")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the proxy is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// HasDatabase reports whether template records and reference codes can be
// read from Postgres.
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	u, err := url.Parse(c.FHIRServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("FHIR_SERVER_URL must be an absolute http(s) URL, got %q", c.FHIRServerURL)
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive, got %s", c.UpstreamTimeout)
	}
	if c.UpstreamRetries < 0 {
		return fmt.Errorf("UPSTREAM_RETRIES must not be negative, got %d", c.UpstreamRetries)
	}
	if c.FuzzyThreshold <= 0 || c.FuzzyThreshold > 1 {
		return fmt.Errorf("FUZZY_THRESHOLD must be in (0, 1], got %v", c.FuzzyThreshold)
	}
	if c.FuzzyMaxSuggestions < 1 {
		return fmt.Errorf("FUZZY_MAX_SUGGESTIONS must be at least 1, got %d", c.FuzzyMaxSuggestions)
	}
	if c.SuggestionCacheSize < 1 {
		return fmt.Errorf("SUGGESTION_CACHE_SIZE must be at least 1, got %d", c.SuggestionCacheSize)
	}
	if c.SoftEmptyStatus < 200 || c.SoftEmptyStatus > 599 {
		return fmt.Errorf("SOFT_EMPTY_STATUS must be an HTTP status, got %d", c.SoftEmptyStatus)
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("REFRESH_INTERVAL must not be negative, got %s", c.RefreshInterval)
	}
	if c.IsProduction() && c.AdminJWTSecret != "" && len(c.AdminJWTSecret) < 32 {
		return fmt.Errorf("ADMIN_JWT_SECRET must be at least 32 characters in production")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
