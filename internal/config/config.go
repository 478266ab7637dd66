package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/foundry/artifactview/internal/core/diffbudget"
	"github.com/foundry/artifactview/internal/core/views"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ARTIFACTVIEW_"

type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Backend   BackendConfig   `yaml:"backend" envPrefix:"BACKEND_"`
	Views     ViewsConfig     `yaml:"views" envPrefix:"VIEWS_"`
	Auth      AuthConfig      `yaml:"auth" envPrefix:"AUTH_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

type ServerConfig struct {
	Port int `yaml:"port" env:"PORT"`

	// RateLimit is requests per minute per client IP; 0 disables limiting.
	RateLimit      int      `yaml:"rateLimit" env:"RATE_LIMIT"`
	Compress       bool     `yaml:"compress" env:"COMPRESS"`
	AllowedOrigins []string `yaml:"allowedOrigins" env:"ALLOWED_ORIGINS"`
}

type BackendConfig struct {
	URL     string        `yaml:"url" env:"URL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type ViewsConfig struct {
	PageSize        int   `yaml:"pageSize" env:"PAGE_SIZE"`
	DiffBodyLines   int   `yaml:"diffBodyLines" env:"DIFF_BODY_LINES"`
	DiffHeaderLines int   `yaml:"diffHeaderLines" env:"DIFF_HEADER_LINES"`
	LogChunkSize    int64 `yaml:"logChunkSize" env:"LOG_CHUNK_SIZE"`
	InitialLogSize  int64 `yaml:"initialLogSize" env:"INITIAL_LOG_SIZE"`
	ElideLength     int   `yaml:"elideLength" env:"ELIDE_LENGTH"`
}

type AuthConfig struct {
	Tokens []string `yaml:"tokens" env:"TOKENS"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlpEndpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string `yaml:"serviceName" env:"SERVICE_NAME"`
}

// Default returns the configuration used for any value not set in the
// file or environment.
func Default() *Config {
	v := views.DefaultConfig()
	return &Config{
		Server:  ServerConfig{Port: 8080, RateLimit: 600, Compress: true},
		Backend: BackendConfig{Timeout: 30 * time.Second},
		Views: ViewsConfig{
			PageSize:        v.PageSize,
			DiffBodyLines:   v.DiffBudget.BodyLines,
			DiffHeaderLines: v.DiffBudget.HeaderLines,
			LogChunkSize:    v.LogChunkSize,
			InitialLogSize:  v.InitialLogSize,
			ElideLength:     v.ElideLength,
		},
		Telemetry: TelemetryConfig{ServiceName: "artifactview"},
	}
}

// Load reads the YAML file at path, when given, and applies ARTIFACTVIEW_*
// overrides from environ on top of it.
func Load(path string, environ []string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	err := env.ParseWithOptions(cfg, env.Options{
		Environment: env.ToMap(environ),
		Prefix:      EnvPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Backend.URL == "" {
		errs = append(errs, errors.New("backend url is required"))
	} else if u, err := url.Parse(c.Backend.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend url %q must be absolute", c.Backend.URL))
	}
	if c.Backend.Timeout <= 0 {
		errs = append(errs, errors.New("backend timeout must be positive"))
	}
	if countTokens(c.Auth.Tokens) == 0 {
		errs = append(errs, errors.New("no auth tokens configured"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, errors.New("rate limit must not be negative"))
	}
	v := c.Views
	if v.PageSize <= 0 || v.DiffBodyLines <= 0 || v.DiffHeaderLines < 0 ||
		v.LogChunkSize <= 0 || v.InitialLogSize <= 0 || v.ElideLength <= 0 {
		errs = append(errs, errors.New("views sizes must be positive"))
	}
	return errors.Join(errs...)
}

func countTokens(tokens []string) int {
	n := 0
	for _, t := range tokens {
		if strings.TrimSpace(t) != "" {
			n++
		}
	}
	return n
}

// ViewConfig converts the views section for views.New.
func (c *Config) ViewConfig() views.Config {
	return views.Config{
		PageSize: c.Views.PageSize,
		DiffBudget: diffbudget.Budget{
			BodyLines:   c.Views.DiffBodyLines,
			HeaderLines: c.Views.DiffHeaderLines,
		},
		LogChunkSize:   c.Views.LogChunkSize,
		InitialLogSize: c.Views.InitialLogSize,
		ElideLength:    c.Views.ElideLength,
	}
}
