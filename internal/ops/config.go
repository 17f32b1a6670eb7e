package ops

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/yanun0323/errors"

	"aggregator/pkg/exception"
)

const envPrefix = "AGGREGATOR"

// Config is the process configuration. It is loaded once in main and passed
// down explicitly.
type Config struct {
	TradingPair string          `mapstructure:"trading_pair" validate:"required,alphanum,lowercase"`
	App         AppConfig       `mapstructure:"app"`
	Binance     BinanceConfig   `mapstructure:"binance"`
	Bitstamp    BitstampConfig  `mapstructure:"bitstamp"`
	Server      ServerConfig    `mapstructure:"server"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	Profiling   ProfilingConfig `mapstructure:"profiling"`
}

type AppConfig struct {
	// SummarySize is the number of levels kept per side.
	SummarySize       int `mapstructure:"summary_size" validate:"required,gte=1"`
	QueueCapacity     int `mapstructure:"queue_capacity" validate:"required,gte=1"`
	BroadcastCapacity int `mapstructure:"broadcast_capacity" validate:"required,gte=1"`
}

type BinanceConfig struct {
	Depth    int    `mapstructure:"depth" validate:"required,oneof=5 10 20"`
	Latency  string `mapstructure:"latency" validate:"required,oneof=100ms 1000ms"`
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`
}

type BitstampConfig struct {
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`
}

type ServerConfig struct {
	Address string `mapstructure:"address" validate:"required,hostname_port"`
}

// MetricsConfig enables the Prometheus listener when Address is set.
type MetricsConfig struct {
	Address string `mapstructure:"address" validate:"omitempty,hostname_port"`
}

// ProfilingConfig enables continuous profiling when ServerAddress is set.
type ProfilingConfig struct {
	ServerAddress   string `mapstructure:"server_address" validate:"omitempty,url"`
	ApplicationName string `mapstructure:"application_name"`
}

var keys = []string{
	"trading_pair",
	"app.summary_size",
	"app.queue_capacity",
	"app.broadcast_capacity",
	"binance.depth",
	"binance.latency",
	"binance.endpoint",
	"bitstamp.endpoint",
	"server.address",
	"metrics.address",
	"profiling.server_address",
	"profiling.application_name",
}

// bindEnv makes every key visible to environment overrides. Only the profiling
// application name has a default; required keys stay empty when missing.
func bindEnv(v *viper.Viper) error {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return errors.Wrap(exception.ErrInvalidConfig, err.Error())
		}
	}
	v.SetDefault("profiling.application_name", "orderbook-aggregator")
	return nil
}

// Load reads the file at path (toml, yaml or json by extension), applies
// AGGREGATOR_<SECTION>_<KEY> environment overrides and validates the result.
// Unknown keys are rejected and missing required keys are not filled in.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrap(exception.ErrInvalidConfig, err.Error()).With("path", path)
		}
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return Config{}, errors.Wrap(exception.ErrInvalidConfig, err.Error())
	}
	cfg.TradingPair = strings.TrimSpace(cfg.TradingPair)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return errors.Wrap(exception.ErrInvalidConfig, err.Error())
	}
	return nil
}
