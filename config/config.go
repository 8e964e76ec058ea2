package config

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/uptime-monitor/internal/endpoint"
	"github.com/angeloszaimis/uptime-monitor/internal/httpserver"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	FlagConfig   = "config"
	FlagAddress  = "address"
	FlagLogLevel = "log-level"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type RegistryConfig struct {
	File string `mapstructure:"file"`
}

type ProbeConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	ImageFallback  bool          `mapstructure:"image_fallback"`
	ImageThreshold time.Duration `mapstructure:"image_threshold"`
}

type FleetConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	HistorySize    int           `mapstructure:"history_size"`
}

type ProxyConfig struct {
	Path         string        `mapstructure:"path"`
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`

	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

type FeedConfig struct {
	URL            string        `mapstructure:"url"`
	Origin         string        `mapstructure:"origin"`
	EndpointID     int           `mapstructure:"endpoint_id"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

type MetricsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Registry RegistryConfig `mapstructure:"registry"`
	Probe    ProbeConfig    `mapstructure:"probe"`
	Fleet    FleetConfig    `mapstructure:"fleet"`
	Proxy    ProxyConfig    `mapstructure:"proxy"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// RegisterFlags adds the command line flags understood by the loader.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP(FlagConfig, "c", "", "path to the config file (default: search ./config and .)")
	flags.String(FlagAddress, "", "listen address, overrides server.address")
	flags.String(FlagLogLevel, "", "log level, overrides logging.level")
}

// Loader reads configuration from defaults, an optional YAML file, the
// environment and command line flags, in increasing order of precedence.
type Loader struct {
	v *viper.Viper
}

// NewLoader prepares a loader reading files through fsys. flags may be nil.
func NewLoader(fsys afero.Fs, flags *pflag.FlagSet) (*Loader, error) {
	v := viper.New()
	v.SetFs(fsys)

	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("registry.file", "./config/endpoints.yaml")
	v.SetDefault("probe.timeout", "10s")
	v.SetDefault("probe.user_agent", "UptimeMonitor/1.0")
	v.SetDefault("probe.image_fallback", false)
	v.SetDefault("probe.image_threshold", "5s")
	v.SetDefault("fleet.interval", "30s")
	v.SetDefault("fleet.max_concurrency", 0)
	v.SetDefault("fleet.history_size", 60)
	v.SetDefault("proxy.path", "/proxy")
	v.SetDefault("proxy.timeout", "15s")
	v.SetDefault("proxy.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	v.SetDefault("proxy.max_body_bytes", 10<<20)
	v.SetDefault("proxy.breaker_threshold", 5)
	v.SetDefault("proxy.breaker_cooldown", "30s")
	v.SetDefault("feed.url", "")
	v.SetDefault("feed.origin", "http://localhost/")
	v.SetDefault("feed.endpoint_id", 0)
	v.SetDefault("feed.reconnect_delay", "2s")
	v.SetDefault("metrics.buffer_size", 1000)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	if flags != nil {
		if f := flags.Lookup(FlagConfig); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
		}
		bindings := map[string]string{
			"server.address": FlagAddress,
			"logging.level":  FlagLogLevel,
		}
		for key, name := range bindings {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	return &Loader{v: v}, nil
}

// Load is a shorthand for NewLoader followed by Loader.Load.
func Load(fsys afero.Fs, flags *pflag.FlagSet) (*Config, error) {
	l, err := NewLoader(fsys, flags)
	if err != nil {
		return nil, err
	}
	return l.Load()
}

func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", l.v.ConfigFileUsed()))
	}

	return l.decode()
}

// Watch re-reads the config file whenever it changes on disk and hands the
// validated result to onChange. Invalid edits are logged and ignored.
func (l *Loader) Watch(onChange func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			slog.Warn("ignoring invalid config change",
				slog.String("file", e.Name),
				slog.String("error", err.Error()))
			return
		}
		onChange(cfg)
	})
	l.v.WatchConfig()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := l.v.Unmarshal(&cfg, hook); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server),
		validation.Field(&c.Logging),
		validation.Field(&c.Registry),
		validation.Field(&c.Probe),
		validation.Field(&c.Fleet),
		validation.Field(&c.Proxy),
		validation.Field(&c.Feed),
		validation.Field(&c.Metrics),
	)
}

func (sc ServerConfig) Validate() error {
	return validation.ValidateStruct(&sc,
		validation.Field(&sc.Environment,
			validation.Required,
			validation.In(EnvDev, EnvStaging, EnvProd),
		),
		validation.Field(&sc.Address,
			validation.Required,
			validation.By(httpserver.ValidateAddress),
		),
	)
}

func (lc LoggingConfig) Validate() error {
	return validation.ValidateStruct(&lc,
		validation.Field(&lc.Level,
			validation.Required,
			validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
		),
	)
}

func (rc RegistryConfig) Validate() error {
	return validation.ValidateStruct(&rc,
		validation.Field(&rc.File, validation.Required),
	)
}

func (pc ProbeConfig) Validate() error {
	return validation.ValidateStruct(&pc,
		validation.Field(&pc.Timeout, validation.Required, validation.Min(100*time.Millisecond)),
		validation.Field(&pc.UserAgent, validation.Required),
		validation.Field(&pc.ImageThreshold,
			validation.When(pc.ImageFallback, validation.Required, validation.Min(100*time.Millisecond)),
		),
	)
}

func (fc FleetConfig) Validate() error {
	return validation.ValidateStruct(&fc,
		validation.Field(&fc.Interval, validation.Required, validation.Min(time.Second)),
		validation.Field(&fc.MaxConcurrency, validation.Min(0)),
		validation.Field(&fc.HistorySize, validation.Required, validation.Min(1)),
	)
}

func (pc ProxyConfig) Validate() error {
	return validation.ValidateStruct(&pc,
		validation.Field(&pc.Path,
			validation.Required,
			validation.By(func(value interface{}) error {
				if p, _ := value.(string); !strings.HasPrefix(p, "/") {
					return validation.NewError("validation_invalid_path", "must start with /")
				}
				return nil
			}),
		),
		validation.Field(&pc.Timeout, validation.Required, validation.Min(100*time.Millisecond)),
		validation.Field(&pc.UserAgent, validation.Required),
		validation.Field(&pc.MaxBodyBytes, validation.Required, validation.Min(int64(1024))),
		validation.Field(&pc.BreakerThreshold, validation.Required, validation.Min(1)),
		validation.Field(&pc.BreakerCooldown, validation.Required, validation.Min(time.Second)),
	)
}

func (fc FeedConfig) Validate() error {
	enabled := fc.URL != ""
	return validation.ValidateStruct(&fc,
		validation.Field(&fc.URL, validation.When(enabled, validation.By(endpoint.ValidateWebsocketURL))),
		validation.Field(&fc.Origin, validation.When(enabled, validation.Required, is.RequestURL)),
		validation.Field(&fc.EndpointID, validation.When(enabled, validation.Required, validation.Min(1))),
		validation.Field(&fc.ReconnectDelay, validation.When(enabled, validation.Required, validation.Min(10*time.Millisecond))),
	)
}

func (mc MetricsConfig) Validate() error {
	return validation.ValidateStruct(&mc,
		validation.Field(&mc.BufferSize, validation.Required, validation.Min(1)),
	)
}
