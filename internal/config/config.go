package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data      DataConfig      `yaml:"data" mapstructure:"data"`
	Region    RegionConfig    `yaml:"region" mapstructure:"region"`
	Elevation ElevationConfig `yaml:"elevation" mapstructure:"elevation"`
	Rainfall  RainfallConfig  `yaml:"rainfall" mapstructure:"rainfall"`
	Overpass  OverpassConfig  `yaml:"overpass" mapstructure:"overpass"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Model     ModelConfig     `yaml:"model" mapstructure:"model"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// DataConfig points at the local geometry layers. An absent file switches
// the owning component into fallback mode; it never aborts startup.
type DataConfig struct {
	Dir            string   `yaml:"dir" mapstructure:"dir"`
	ZonesPath      string   `yaml:"zones_path" mapstructure:"zones_path"`
	WaterwaysPath  string   `yaml:"waterways_path" mapstructure:"waterways_path"`
	FootprintsPath string   `yaml:"footprints_path" mapstructure:"footprints_path"`
	RasterPattern  string   `yaml:"raster_pattern" mapstructure:"raster_pattern"`
	FloodYears     []int    `yaml:"flood_years" mapstructure:"flood_years"`
}

// RegionConfig bounds the study area.
type RegionConfig struct {
	MinLat float64 `yaml:"min_lat" mapstructure:"min_lat"`
	MaxLat float64 `yaml:"max_lat" mapstructure:"max_lat"`
	MinLon float64 `yaml:"min_lon" mapstructure:"min_lon"`
	MaxLon float64 `yaml:"max_lon" mapstructure:"max_lon"`
}

// ElevationConfig configures the Open-Meteo elevation provider.
type ElevationConfig struct {
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	BatchSize      int     `yaml:"batch_size" mapstructure:"batch_size"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	CacheTTLDays   int     `yaml:"cache_ttl_days" mapstructure:"cache_ttl_days"`
	SlopeRadiusM   float64 `yaml:"slope_radius_m" mapstructure:"slope_radius_m"`
}

// RainfallConfig configures the Open-Meteo archive rainfall provider.
// Disabled by default: the schema v2 rainfall columns only exist when the
// model was trained with them.
type RainfallConfig struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CacheTTLDays int    `yaml:"cache_ttl_days" mapstructure:"cache_ttl_days"`
	Years        int    `yaml:"years" mapstructure:"years"`
}

// OverpassConfig configures the one-shot waterway download.
type OverpassConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// EnrichConfig configures bulk feature enrichment.
type EnrichConfig struct {
	BatchSize      int     `yaml:"batch_size" mapstructure:"batch_size"`
	Concurrency    int     `yaml:"concurrency" mapstructure:"concurrency"`
	BatchPauseSecs float64 `yaml:"batch_pause_secs" mapstructure:"batch_pause_secs"`
}

// ModelConfig configures the risk classifier boundary. An empty endpoint
// selects the built-in heuristic classifier.
type ModelConfig struct {
	Endpoint      string `yaml:"endpoint" mapstructure:"endpoint"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	SchemaVersion int    `yaml:"schema_version" mapstructure:"schema_version"`
}

// StoreConfig configures the checkpoint store.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the prediction server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SAFELAND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.zones_path", "data/ksdma_flood_zones.geojson")
	v.SetDefault("data.waterways_path", "data/kerala_osm_waterways.geojson")
	v.SetDefault("data.footprints_path", "data/kerala_flood_footprints.geojson")
	v.SetDefault("data.raster_pattern", "data/kerala_flood_%d_raster.asc")
	v.SetDefault("data.flood_years", []int{2018, 2019, 2021})
	v.SetDefault("region.min_lat", 8.2)
	v.SetDefault("region.max_lat", 12.8)
	v.SetDefault("region.min_lon", 74.8)
	v.SetDefault("region.max_lon", 77.5)
	v.SetDefault("elevation.base_url", "https://api.open-meteo.com/v1/elevation")
	v.SetDefault("elevation.batch_size", 100)
	v.SetDefault("elevation.timeout_secs", 30)
	v.SetDefault("elevation.requests_per_sec", 5)
	v.SetDefault("elevation.cache_ttl_days", 30)
	v.SetDefault("elevation.slope_radius_m", 500)
	v.SetDefault("rainfall.enabled", false)
	v.SetDefault("rainfall.base_url", "https://archive-api.open-meteo.com/v1/archive")
	v.SetDefault("rainfall.timeout_secs", 30)
	v.SetDefault("rainfall.cache_ttl_days", 7)
	v.SetDefault("rainfall.years", 10)
	v.SetDefault("overpass.url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.timeout_secs", 180)
	v.SetDefault("enrich.batch_size", 100)
	v.SetDefault("enrich.concurrency", 4)
	v.SetDefault("enrich.batch_pause_secs", 2)
	v.SetDefault("model.timeout_secs", 10)
	v.SetDefault("model.schema_version", 1)
	v.SetDefault("store.path", "safeland.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
