package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Mapbox   MapboxConfig   `yaml:"mapbox" mapstructure:"mapbox"`
	Listings ListingsConfig `yaml:"listings" mapstructure:"listings"`
	Commute  CommuteConfig  `yaml:"commute" mapstructure:"commute"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Retry    RetryConfig    `yaml:"retry" mapstructure:"retry"`
}

// StoreConfig configures the database backend. For sqlite DatabaseURL is a
// file path.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// MapboxConfig holds Mapbox API credentials and client settings.
type MapboxConfig struct {
	Token string `yaml:"token" mapstructure:"token"`
	// TokenFile is read when Token is empty.
	TokenFile            string  `yaml:"token_file" mapstructure:"token_file"`
	BaseURL              string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit            float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Country              string  `yaml:"country" mapstructure:"country"`
	RestrictToArea       bool    `yaml:"restrict_to_area" mapstructure:"restrict_to_area"`
	GeocodeCacheTTLHours int     `yaml:"geocode_cache_ttl_hours" mapstructure:"geocode_cache_ttl_hours"`
}

// ListingsConfig configures synthetic listing generation.
type ListingsConfig struct {
	CountPerType  int    `yaml:"count_per_type" mapstructure:"count_per_type"`
	RentSpread    int    `yaml:"rent_spread" mapstructure:"rent_spread"`
	StudioLowRent int    `yaml:"studio_low_rent" mapstructure:"studio_low_rent"`
	OneBRLowRent  int    `yaml:"one_br_low_rent" mapstructure:"one_br_low_rent"`
	TwoBRLowRent  int    `yaml:"two_br_low_rent" mapstructure:"two_br_low_rent"`
	Seed          uint64 `yaml:"seed" mapstructure:"seed"`
	// Reuse serves the cached listing set instead of regenerating per estimate.
	Reuse bool `yaml:"reuse" mapstructure:"reuse"`
}

// CommuteConfig holds the form defaults.
type CommuteConfig struct {
	DefaultStreet string  `yaml:"default_street" mapstructure:"default_street"`
	DefaultCity   string  `yaml:"default_city" mapstructure:"default_city"`
	DefaultState  string  `yaml:"default_state" mapstructure:"default_state"`
	DefaultZip    string  `yaml:"default_zip" mapstructure:"default_zip"`
	HourlyWage    float64 `yaml:"hourly_wage" mapstructure:"hourly_wage"`
	SpeedMPH      float64 `yaml:"speed_mph" mapstructure:"speed_mph"`
	Mode          string  `yaml:"mode" mapstructure:"mode"`
	Policy        string  `yaml:"policy" mapstructure:"policy"`
	MinRent       int     `yaml:"min_rent" mapstructure:"min_rent"`
	MaxRent       int     `yaml:"max_rent" mapstructure:"max_rent"`
	RentFloor     int     `yaml:"rent_floor" mapstructure:"rent_floor"`
	RentCeiling   int     `yaml:"rent_ceiling" mapstructure:"rent_ceiling"`
	TopN          int     `yaml:"top_n" mapstructure:"top_n"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int      `yaml:"port" mapstructure:"port"`
	ReadTimeoutSecs int      `yaml:"read_timeout_secs" mapstructure:"read_timeout_secs"`
	CORSOrigins     []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// RetryConfig configures retries against Mapbox.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("COMMUTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "commute-rent.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("mapbox.token", "")
	v.SetDefault("mapbox.token_file", "mapbox_key.txt")
	v.SetDefault("mapbox.base_url", "https://api.mapbox.com")
	v.SetDefault("mapbox.rate_limit", 10)
	v.SetDefault("mapbox.country", "us")
	v.SetDefault("mapbox.restrict_to_area", false)
	v.SetDefault("mapbox.geocode_cache_ttl_hours", 24*30)
	v.SetDefault("listings.count_per_type", 1000)
	v.SetDefault("listings.rent_spread", 1000)
	v.SetDefault("listings.studio_low_rent", 1500)
	v.SetDefault("listings.one_br_low_rent", 1700)
	v.SetDefault("listings.two_br_low_rent", 2200)
	v.SetDefault("listings.seed", 0)
	v.SetDefault("listings.reuse", false)
	v.SetDefault("commute.default_street", "932 N Kenmore St")
	v.SetDefault("commute.default_city", "Arlington")
	v.SetDefault("commute.default_state", "VA")
	v.SetDefault("commute.default_zip", "22201")
	v.SetDefault("commute.hourly_wage", 40)
	v.SetDefault("commute.speed_mph", 40)
	v.SetDefault("commute.mode", "driving")
	v.SetDefault("commute.policy", "isochrone")
	v.SetDefault("commute.min_rent", 1500)
	v.SetDefault("commute.max_rent", 3500)
	v.SetDefault("commute.rent_floor", 1400)
	v.SetDefault("commute.rent_ceiling", 4000)
	v.SetDefault("commute.top_n", 3)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout_secs", 30)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 250)
	v.SetDefault("retry.max_backoff_ms", 2000)

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

	if err := cfg.Mapbox.resolveToken(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Missing files are skipped and variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return eris.Wrapf(err, "config: load %s", p)
		}
	}
	return nil
}

func (m *MapboxConfig) resolveToken() error {
	if m.Token != "" || m.TokenFile == "" {
		return nil
	}
	data, err := os.ReadFile(m.TokenFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return eris.Wrapf(err, "config: read mapbox token file %s", m.TokenFile)
	}
	m.Token = strings.TrimSpace(string(data))
	return nil
}

// Validate checks settings that commands cannot run without.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required")
	}
	if c.Commute.RentFloor > c.Commute.RentCeiling {
		return eris.New("config: commute.rent_floor exceeds commute.rent_ceiling")
	}
	return nil
}

// RequireMapbox reports an error when no Mapbox token is configured.
func (c *Config) RequireMapbox() error {
	if c.Mapbox.Token == "" {
		return eris.New("config: mapbox token missing (set COMMUTE_MAPBOX_TOKEN or mapbox.token_file)")
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
