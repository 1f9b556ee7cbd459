// Package config holds the service configuration: a YAML file, optional
// .env files, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Store     StoreConfig     `yaml:"store"`
	Wizard    WizardConfig    `yaml:"wizard"`
	Insight   InsightConfig   `yaml:"insight"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Addr   string `yaml:"addr"`
	WebDir string `yaml:"web_dir"`
	// ShareBaseURL is the public results page share links point at.
	ShareBaseURL string `yaml:"share_base_url"`
	// SecureCookies is required when the wizard is framed by an HTTPS host.
	SecureCookies bool `yaml:"secure_cookies"`
}

type WebhookConfig struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout"`
}

type StoreConfig struct {
	Driver           string   `yaml:"driver"` // sqlite or file
	Path             string   `yaml:"path"`
	CookieName       string   `yaml:"cookie_name"`
	CookieMaxBytes   int      `yaml:"cookie_max_bytes"`
	CookieMaxAgeDays int      `yaml:"cookie_max_age_days"`
	Prefixes         []string `yaml:"prefixes"`
	// RetentionDays drops durable entries untouched for this long; 0 keeps them.
	RetentionDays int `yaml:"retention_days"`
}

type WizardConfig struct {
	Source          string `yaml:"source"`
	ProcessingDelay string `yaml:"processing_delay"`
}

type InsightConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"-"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:   ":8090",
			WebDir: "web/wizard",
		},
		Webhook: WebhookConfig{
			Timeout: "15s",
		},
		Store: StoreConfig{
			Driver:           "sqlite",
			Path:             "data/wizard-state.db",
			CookieName:       "valuation_wizard_state",
			CookieMaxBytes:   3800,
			CookieMaxAgeDays: 180,
			Prefixes:         []string{"valuation_", "vw_"},
			RetentionDays:    180,
		},
		Wizard: WizardConfig{
			Source:          "valuation-wizard",
			ProcessingDelay: "3m",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "valuation-wizard",
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// LoadDotEnv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("WIZARD_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("WIZARD_WEBHOOK_URL"); v != "" {
		c.Webhook.URL = v
	}
	if v := os.Getenv("WIZARD_SHARE_BASE_URL"); v != "" {
		c.Server.ShareBaseURL = v
	}
	if v := os.Getenv("WIZARD_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("WIZARD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
		c.Insight.APIKey = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.OTLPEndpoint = v
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.ShareBaseURL != "" {
		if err := checkURL(c.Server.ShareBaseURL); err != nil {
			errs = append(errs, fmt.Errorf("server.share_base_url: %w", err))
		}
	}
	if c.Webhook.URL != "" {
		if err := checkURL(c.Webhook.URL); err != nil {
			errs = append(errs, fmt.Errorf("webhook.url: %w", err))
		}
	}
	if _, err := parsePositive(c.Webhook.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("webhook.timeout: %w", err))
	}
	if _, err := parsePositive(c.Wizard.ProcessingDelay); err != nil {
		errs = append(errs, fmt.Errorf("wizard.processing_delay: %w", err))
	}
	switch c.Store.Driver {
	case "sqlite", "file":
	default:
		errs = append(errs, fmt.Errorf("store.driver must be sqlite or file, got %q", c.Store.Driver))
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if strings.TrimSpace(c.Store.CookieName) == "" {
		errs = append(errs, errors.New("store.cookie_name is required"))
	}
	if c.Store.CookieMaxBytes < 256 || c.Store.CookieMaxBytes > 4096 {
		errs = append(errs, fmt.Errorf("store.cookie_max_bytes must be in [256, 4096], got %d", c.Store.CookieMaxBytes))
	}
	if c.Store.CookieMaxAgeDays <= 0 {
		errs = append(errs, errors.New("store.cookie_max_age_days must be positive"))
	}
	if c.Store.RetentionDays < 0 {
		errs = append(errs, errors.New("store.retention_days must not be negative"))
	}
	if c.Insight.Enabled && c.Insight.APIKey == "" {
		errs = append(errs, errors.New("insight.enabled requires ANTHROPIC_API_KEY"))
	}
	return errors.Join(errs...)
}

// WebhookTimeout returns the parsed webhook timeout.
func (c *Config) WebhookTimeout() time.Duration {
	d, _ := parsePositive(c.Webhook.Timeout)
	return d
}

// ProcessingDelay is how long the waiting screen runs before results show.
func (c *Config) ProcessingDelay() time.Duration {
	d, _ := parsePositive(c.Wizard.ProcessingDelay)
	return d
}

func (c *Config) CookieMaxAge() time.Duration {
	return time.Duration(c.Store.CookieMaxAgeDays) * 24 * time.Hour
}

func (c *Config) Retention() time.Duration {
	return time.Duration(c.Store.RetentionDays) * 24 * time.Hour
}

func parsePositive(s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}
