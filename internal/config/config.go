package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Settings is the process-wide configuration for the port orchestration
// core: cache/sweep timing, the BIB XML config directory, the per-run log
// base directory, and the metrics endpoint.
type Settings struct {
	Hardware    HardwareConfig    `mapstructure:"hardware"`
	Resolver    ResolverConfig    `mapstructure:"resolver"`
	Reservation ReservationConfig `mapstructure:"reservation"`
	BibConfig   BibConfigConfig   `mapstructure:"bib_config"`
	RunLog      RunLogConfig      `mapstructure:"run_log"`
	Log         LogConfig         `mapstructure:"log"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	App         AppConfig         `mapstructure:"app"`
}

// HardwareConfig controls the hardware metadata cache (internal/hardware).
type HardwareConfig struct {
	CacheTTL      time.Duration `mapstructure:"cache_ttl" validate:"gt=0"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
	MaxCacheSize  int           `mapstructure:"max_cache_size" validate:"gt=0"`
}

// ResolverConfig controls the BIB resolver cache (internal/resolver).
type ResolverConfig struct {
	CacheTTL     time.Duration `mapstructure:"cache_ttl" validate:"gt=0"`
	DefaultUutID string        `mapstructure:"default_uut_id" validate:"required"`
}

// ReservationConfig controls the reservation layer's lease defaults and
// expiry sweep (internal/reservation).
type ReservationConfig struct {
	DefaultLeaseDuration time.Duration `mapstructure:"default_lease_duration" validate:"gt=0"`
	MaxLeaseDuration     time.Duration `mapstructure:"max_lease_duration" validate:"gt=0"`
	SweepInterval        time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
}

// BibConfigConfig controls the XML configuration store (internal/bibconfig).
type BibConfigConfig struct {
	ConfigDir    string `mapstructure:"config_dir" validate:"required"`
	CacheSize    int    `mapstructure:"cache_size" validate:"gt=0"`
}

// RunLogConfig controls the per-run structured logger (internal/runlog).
type RunLogConfig struct {
	BaseDir               string        `mapstructure:"base_dir" validate:"required"`
	DegradedWarnThrottle  time.Duration `mapstructure:"degraded_warn_throttle" validate:"gt=0"`
	ProbeRetryMaxAttempts int           `mapstructure:"probe_retry_max_attempts" validate:"gte=0"`
}

// LogConfig holds structured-logging configuration for the shared logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig holds the Prometheus scrape endpoint configuration.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Path     string `mapstructure:"path"`
	BindAddr string `mapstructure:"bind_addr"`
}

// AppConfig holds process identity used in logs and metrics labels.
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// LoadSettings loads configuration from defaults, an optional file and
// environment variables; environment variables take precedence over the
// file, and the file over defaults.
func LoadSettings(configPath string) (*Settings, error) {
	setDefaults()

	viper.SetEnvPrefix("PORTCORE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		viper.SetConfigFile(configPath)
		viper.SetConfigType("yaml")

		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("settings validation failed: %w", err)
	}

	return &s, nil
}

// setDefaults seeds Viper with default settings values.
func setDefaults() {
	viper.SetDefault("hardware.cache_ttl", "5m")
	viper.SetDefault("hardware.sweep_interval", "60s")
	viper.SetDefault("hardware.max_cache_size", 1024)

	viper.SetDefault("resolver.cache_ttl", "5m")
	viper.SetDefault("resolver.default_uut_id", "production_uut")

	viper.SetDefault("reservation.default_lease_duration", "10m")
	viper.SetDefault("reservation.max_lease_duration", "2h")
	viper.SetDefault("reservation.sweep_interval", "5m")

	viper.SetDefault("bib_config.config_dir", "/etc/portcore/bibs")
	viper.SetDefault("bib_config.cache_size", 256)

	viper.SetDefault("run_log.base_dir", "/var/log/portcore/runs")
	viper.SetDefault("run_log.degraded_warn_throttle", "5m")
	viper.SetDefault("run_log.probe_retry_max_attempts", 2)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("metrics.bind_addr", ":9110")

	viper.SetDefault("app.name", "portcore")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)
}

// Validate checks leaf-field constraints with validator/v10, then applies
// the cross-field rules a struct tag can't express.
func (s *Settings) Validate() error {
	v := validator.New()
	if err := v.Struct(s); err != nil {
		return fmt.Errorf("field validation: %w", err)
	}

	if s.Reservation.MaxLeaseDuration < s.Reservation.DefaultLeaseDuration {
		return fmt.Errorf("reservation.max_lease_duration (%s) must be >= reservation.default_lease_duration (%s)",
			s.Reservation.MaxLeaseDuration, s.Reservation.DefaultLeaseDuration)
	}

	if s.Log.Level == "" {
		return fmt.Errorf("log level cannot be empty")
	}

	return nil
}

// IsDevelopment returns true if the application is running in development mode.
func (s *Settings) IsDevelopment() bool {
	return s.App.Environment == "development"
}

// IsProduction returns true if the application is running in production mode.
func (s *Settings) IsProduction() bool {
	return s.App.Environment == "production"
}

// IsDebug returns true if debug mode is enabled.
func (s *Settings) IsDebug() bool {
	return s.App.Debug || s.IsDevelopment()
}
