package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Geocode    GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	Soil       SoilConfig       `yaml:"soil" mapstructure:"soil"`
	Overpass   OverpassConfig   `yaml:"overpass" mapstructure:"overpass"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Upstream   UpstreamConfig   `yaml:"upstream" mapstructure:"upstream"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// GeocodeConfig configures the Nominatim geocoder.
type GeocodeConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	Country     string  `yaml:"country" mapstructure:"country"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SoilConfig configures the Soil Data Access client.
type SoilConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxDepthCM  int    `yaml:"max_depth_cm" mapstructure:"max_depth_cm"`
}

// OverpassConfig configures neighborhood discovery. An empty base URL
// disables it and ingestion falls back to canned neighborhoods.
type OverpassConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	RadiusM     int     `yaml:"radius_m" mapstructure:"radius_m"`
	MaxResults  int     `yaml:"max_results" mapstructure:"max_results"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// NotionConfig holds the optional lead mirror credentials.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	LeadDB string `yaml:"lead_db" mapstructure:"lead_db"`
}

// Enabled reports whether leads are mirrored to Notion.
func (n NotionConfig) Enabled() bool {
	return n.Token != "" && n.LeadDB != ""
}

// UpstreamConfig configures retries and circuit breakers for the geocoder,
// soil and neighborhood services. MaxAttempts defaults to 1: a transient
// failure surfaces as "not found" unless the operator opts into retries.
type UpstreamConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AdminSecret    string   `yaml:"admin_secret" mapstructure:"admin_secret"`
}

// IngestConfig configures bulk location ingestion.
type IngestConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	DelayMS     int `yaml:"delay_ms" mapstructure:"delay_ms"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MonitoringConfig configures the coverage checker and its webhook.
type MonitoringConfig struct {
	WebhookURL          string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs   int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	MinSoilCoverage     float64 `yaml:"min_soil_coverage" mapstructure:"min_soil_coverage"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SOILRISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org/search")
	v.SetDefault("geocode.user_agent", "FoundationRiskApp/1.0")
	v.SetDefault("geocode.country", "us")
	v.SetDefault("geocode.rate_limit", 1.0)
	v.SetDefault("geocode.timeout_secs", 10)
	v.SetDefault("soil.base_url", "https://sdmdataaccess.nrcs.usda.gov/Tabular/post.rest")
	v.SetDefault("soil.timeout_secs", 30)
	v.SetDefault("soil.max_depth_cm", 50)
	v.SetDefault("overpass.base_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.radius_m", 6000)
	v.SetDefault("overpass.max_results", 8)
	v.SetDefault("overpass.rate_limit", 0.5)
	v.SetDefault("overpass.timeout_secs", 20)
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.lead_db", "")
	v.SetDefault("upstream.max_attempts", 1)
	v.SetDefault("upstream.initial_backoff_ms", 1000)
	v.SetDefault("upstream.max_backoff_ms", 10000)
	v.SetDefault("upstream.failure_threshold", 5)
	v.SetDefault("upstream.reset_timeout_secs", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.admin_secret", "")
	v.SetDefault("ingest.concurrency", 2)
	v.SetDefault("ingest.delay_ms", 1000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.min_soil_coverage", 0.8)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the keys a command needs. mode is one of "store",
// "serve" or "lookup".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "store":
		errs = append(errs, c.validateStore()...)
	case "serve":
		errs = append(errs, c.validateStore()...)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Ingest.Concurrency < 1 || c.Ingest.Concurrency > 16 {
			errs = append(errs, "ingest.concurrency must be between 1 and 16")
		}
		if c.Monitoring.MinSoilCoverage < 0 || c.Monitoring.MinSoilCoverage > 1 {
			errs = append(errs, "monitoring.min_soil_coverage must be between 0 and 1")
		}
	case "lookup":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Geocode.BaseURL == "" {
		errs = append(errs, "geocode.base_url is required")
	}
	if c.Soil.BaseURL == "" {
		errs = append(errs, "soil.base_url is required")
	}
	if c.Upstream.MaxAttempts < 0 || c.Upstream.MaxAttempts > 10 {
		errs = append(errs, "upstream.max_attempts must be between 0 and 10")
	}
	if (c.Notion.Token == "") != (c.Notion.LeadDB == "") {
		errs = append(errs, "notion.token and notion.lead_db must be set together")
	}

	if len(errs) > 0 {
		return eris.New(fmt.Sprintf("config: %s", strings.Join(errs, "; ")))
	}
	return nil
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
	case "sqlite":
		// An empty path opens soilrisk.db in the working directory.
	default:
		return []string{fmt.Sprintf("store.driver %q must be postgres or sqlite", c.Store.Driver)}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
