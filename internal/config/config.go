package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr       string
	AllowedOrigins []string
	DatabaseURL    string
	Gateway        GatewayConfig
	Webhook        WebhookConfig
	Nats           NatsConfig
	Sweeper        SweeperConfig
	PublicBaseURL  string
	TxRefNamespace string
	LogLevel       string
}

type GatewayConfig struct {
	Mode             string // "http" or "mock"
	BaseURL          string
	SecretKey        string
	ReturnURL        string
	Timeout          time.Duration
	MaxRetries       int
	FailureThreshold int
	OpenTimeout      time.Duration
}

type WebhookConfig struct {
	Secret string
}

type NatsConfig struct {
	URL           string
	SubjectPrefix string
}

type SweeperConfig struct {
	Enabled   bool
	Interval  time.Duration
	OlderThan time.Duration
	BatchSize int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("GATEWAY_MODE", "http")
	v.SetDefault("GATEWAY_BASE_URL", "https://api.chapa.co")
	v.SetDefault("GATEWAY_TIMEOUT", "10s")
	v.SetDefault("GATEWAY_MAX_RETRIES", 2)
	v.SetDefault("GATEWAY_FAILURE_THRESHOLD", 5)
	v.SetDefault("GATEWAY_OPEN_TIMEOUT", "30s")
	v.SetDefault("NATS_SUBJECT_PREFIX", "payments")
	v.SetDefault("SWEEPER_ENABLED", true)
	v.SetDefault("SWEEPER_INTERVAL", "1m")
	v.SetDefault("SWEEPER_OLDER_THAN", "10m")
	v.SetDefault("SWEEPER_BATCH_SIZE", 50)
	v.SetDefault("TX_REF_NAMESPACE", "yetuga")
	v.SetDefault("LOG_LEVEL", "info")
}

// Load reads a .env file when one exists and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded, using process environment", "error", err)
	}
	return FromViper(viper.New())
}

// FromViper builds the configuration from v after applying defaults and
// binding the environment.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		HTTPAddr:       v.GetString("HTTP_ADDR"),
		AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
		DatabaseURL:    v.GetString("DATABASE_URL"),
		Gateway: GatewayConfig{
			Mode:             strings.ToLower(v.GetString("GATEWAY_MODE")),
			BaseURL:          strings.TrimSuffix(v.GetString("GATEWAY_BASE_URL"), "/"),
			SecretKey:        v.GetString("GATEWAY_SECRET_KEY"),
			ReturnURL:        v.GetString("GATEWAY_RETURN_URL"),
			Timeout:          v.GetDuration("GATEWAY_TIMEOUT"),
			MaxRetries:       v.GetInt("GATEWAY_MAX_RETRIES"),
			FailureThreshold: v.GetInt("GATEWAY_FAILURE_THRESHOLD"),
			OpenTimeout:      v.GetDuration("GATEWAY_OPEN_TIMEOUT"),
		},
		Webhook: WebhookConfig{
			Secret: v.GetString("WEBHOOK_SECRET"),
		},
		Nats: NatsConfig{
			URL:           v.GetString("NATS_URL"),
			SubjectPrefix: v.GetString("NATS_SUBJECT_PREFIX"),
		},
		Sweeper: SweeperConfig{
			Enabled:   v.GetBool("SWEEPER_ENABLED"),
			Interval:  v.GetDuration("SWEEPER_INTERVAL"),
			OlderThan: v.GetDuration("SWEEPER_OLDER_THAN"),
			BatchSize: v.GetInt("SWEEPER_BATCH_SIZE"),
		},
		PublicBaseURL:  strings.TrimSuffix(v.GetString("PUBLIC_BASE_URL"), "/"),
		TxRefNamespace: v.GetString("TX_REF_NAMESPACE"),
		LogLevel:       v.GetString("LOG_LEVEL"),
	}
	return cfg, nil
}

// Validate checks the inputs every command needs before talking to the
// database or the gateway.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.PublicBaseURL == "" {
		errs = append(errs, errors.New("PUBLIC_BASE_URL is required"))
	}
	if c.Webhook.Secret == "" {
		errs = append(errs, errors.New("WEBHOOK_SECRET is required"))
	}
	switch c.Gateway.Mode {
	case "http":
		if c.Gateway.SecretKey == "" {
			errs = append(errs, errors.New("GATEWAY_SECRET_KEY is required"))
		}
	case "mock":
	default:
		errs = append(errs, fmt.Errorf("GATEWAY_MODE %q is not one of http, mock", c.Gateway.Mode))
	}
	for _, o := range c.AllowedOrigins {
		if o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			errs = append(errs, fmt.Errorf("ALLOWED_ORIGINS entry %q must be * or an http(s) origin", o))
		}
	}
	if c.Gateway.Timeout <= 0 {
		errs = append(errs, errors.New("GATEWAY_TIMEOUT must be positive"))
	}
	if c.Sweeper.Enabled {
		if c.Sweeper.Interval <= 0 {
			errs = append(errs, errors.New("SWEEPER_INTERVAL must be positive when the sweeper is enabled"))
		}
		if c.Sweeper.BatchSize <= 0 {
			errs = append(errs, errors.New("SWEEPER_BATCH_SIZE must be positive when the sweeper is enabled"))
		}
	}
	return errors.Join(errs...)
}

// SlogLevel converts LogLevel, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
