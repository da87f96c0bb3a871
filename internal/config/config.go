package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/parcel-screen/internal/geo"
	"github.com/sells-group/parcel-screen/internal/ingest"
	"github.com/sells-group/parcel-screen/internal/risk"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Precision PrecisionConfig `yaml:"precision" mapstructure:"precision"`
	Ladder    LadderConfig    `yaml:"ladder" mapstructure:"ladder"`
	Ingest    ingest.Mapping  `yaml:"ingest" mapstructure:"ingest"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	PostGIS   PostGISConfig   `yaml:"postgis" mapstructure:"postgis"`
	Elevation ElevationConfig `yaml:"elevation" mapstructure:"elevation"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
}

// PipelineConfig configures the screening pipeline.
type PipelineConfig struct {
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	Projection  string `yaml:"projection" mapstructure:"projection"`
}

// PrecisionConfig configures how distances are shortened for output.
type PrecisionConfig struct {
	Decimals int    `yaml:"decimals" mapstructure:"decimals"`
	Mode     string `yaml:"mode" mapstructure:"mode"`
}

// LadderConfig selects the severity ladder. File takes precedence over
// inline tiers; with neither, the default ladder is used.
type LadderConfig struct {
	File  string      `yaml:"file" mapstructure:"file"`
	Tiers []risk.Tier `yaml:"tiers" mapstructure:"tiers"`
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	Driver        string        `yaml:"driver" mapstructure:"driver"`
	DSN           string        `yaml:"dsn" mapstructure:"dsn"`
	RedisAddr     string        `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string        `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int           `yaml:"redis_db" mapstructure:"redis_db"`
	TTL           time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// PostGISConfig configures candidate loading from a PostGIS table.
type PostGISConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Table       string `yaml:"table" mapstructure:"table"`
	Limit       int    `yaml:"limit" mapstructure:"limit"`
}

// ElevationConfig configures USGS elevation enrichment.
type ElevationConfig struct {
	Enabled   bool    `yaml:"enabled" mapstructure:"enabled"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, file, and environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load(".env")

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PARCEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pipeline.concurrency", 0)
	v.SetDefault("pipeline.projection", geo.Equirectangular{}.Name())
	v.SetDefault("precision.decimals", 3)
	v.SetDefault("precision.mode", string(geo.ModeTruncate))
	v.SetDefault("ladder.file", "")
	v.SetDefault("ingest.id_column", "")
	v.SetDefault("ingest.lat_column", "")
	v.SetDefault("ingest.lng_column", "")
	v.SetDefault("ingest.confidence_column", "")
	v.SetDefault("ingest.min_confidence", 0.0)
	v.SetDefault("ingest.sheet_name", "")
	v.SetDefault("ingest.charset", "")
	v.SetDefault("cache.driver", "none")
	v.SetDefault("cache.dsn", "parcel-screen.db")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("postgis.database_url", "")
	v.SetDefault("postgis.table", "geo.epa_sites")
	v.SetDefault("postgis.limit", 5000)
	v.SetDefault("elevation.enabled", false)
	v.SetDefault("elevation.base_url", "https://epqs.nationalmap.gov/v1/json")
	v.SetDefault("elevation.rate_limit", 10.0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{})

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

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var problems []string
	switch mode {
	case "screen", "serve", "ladder":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Pipeline.Concurrency < 0 || c.Pipeline.Concurrency > 256 {
		problems = append(problems, "pipeline.concurrency must be between 0 and 256")
	}
	if _, err := geo.ProjectorByName(c.Pipeline.Projection); err != nil {
		problems = append(problems, "pipeline.projection: "+err.Error())
	}
	if c.Precision.Decimals < 0 || c.Precision.Decimals > 12 {
		problems = append(problems, "precision.decimals must be between 0 and 12")
	}
	if _, err := geo.ParseRoundMode(c.Precision.Mode); err != nil {
		problems = append(problems, "precision.mode must be round or truncate")
	}
	if c.Ingest.MinConfidence < 0 {
		problems = append(problems, "ingest.min_confidence must be >= 0")
	}

	switch strings.ToLower(c.Cache.Driver) {
	case "", "none":
	case "sqlite":
		if c.Cache.DSN == "" {
			problems = append(problems, "cache.dsn is required for the sqlite cache")
		}
	case "redis":
		if c.Cache.RedisAddr == "" {
			problems = append(problems, "cache.redis_addr is required for the redis cache")
		}
	default:
		problems = append(problems, "cache.driver must be none, sqlite, or redis")
	}
	if c.Cache.TTL < 0 {
		problems = append(problems, "cache.ttl must be >= 0")
	}

	if c.Elevation.Enabled && c.Elevation.RateLimit <= 0 {
		problems = append(problems, "elevation.rate_limit must be > 0")
	}

	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		problems = append(problems, "server.port must be > 0 and <= 65535")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// PrecisionPolicy converts the precision section to a geo.Precision.
func (c *Config) PrecisionPolicy() (geo.Precision, error) {
	mode, err := geo.ParseRoundMode(c.Precision.Mode)
	if err != nil {
		return geo.Precision{}, err
	}
	if c.Precision.Decimals < 0 || c.Precision.Decimals > 12 {
		return geo.Precision{}, eris.Errorf("config: precision.decimals %d out of range", c.Precision.Decimals)
	}
	return geo.Precision{Decimals: uint8(c.Precision.Decimals), Mode: mode}, nil
}

// LoadLadder resolves the configured ladder.
func (c *Config) LoadLadder() (*risk.Ladder, error) {
	switch {
	case c.Ladder.File != "":
		return risk.LoadLadder(c.Ladder.File)
	case len(c.Ladder.Tiers) > 0:
		return risk.NewLadder(c.Ladder.Tiers...)
	default:
		return risk.DefaultLadder(), nil
	}
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
