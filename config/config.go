package config

import (
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/library-gateway/internal/strategy"
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
	DependencyLibrary     = "library"
	DependencyReservation = "reservation"
	DependencyRating      = "rating"
)

func init() {
	// Report field errors under their config keys.
	validation.ErrorTag = "mapstructure"
}

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type AuthConfig struct {
	JWTSecret     string `mapstructure:"jwt_secret"`
	UsernameClaim string `mapstructure:"username_claim"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type QueueConfig struct {
	KeyPrefix    string `mapstructure:"key_prefix"`
	Instance     string `mapstructure:"instance"`
	PollInterval string `mapstructure:"poll_interval"`
	MaxAttempts  int    `mapstructure:"max_attempts"`
}

func (q QueueConfig) PollEvery() time.Duration {
	return mustDuration(q.PollInterval)
}

type HealthCheckConfig struct {
	Interval string `mapstructure:"interval"`
}

func (h HealthCheckConfig) Every() time.Duration {
	return mustDuration(h.Interval)
}

type StrategyConfig struct {
	Type string `mapstructure:"type"`
}

// DependencyConfig lists the replicas of one downstream service and how
// its breaker trips.
type DependencyConfig struct {
	URLs             []string `mapstructure:"urls"`
	Timeout          string   `mapstructure:"timeout"`
	FailureThreshold int      `mapstructure:"failure_threshold"`
	OpenTimeout      string   `mapstructure:"open_timeout"`
}

func (d DependencyConfig) CallTimeout() time.Duration {
	return mustDuration(d.Timeout)
}

func (d DependencyConfig) CoolDown() time.Duration {
	return mustDuration(d.OpenTimeout)
}

type DependenciesConfig struct {
	Library     DependencyConfig `mapstructure:"library"`
	Reservation DependencyConfig `mapstructure:"reservation"`
	Rating      DependencyConfig `mapstructure:"rating"`
}

// ByName returns the dependencies keyed by their client name.
func (d DependenciesConfig) ByName() map[string]DependencyConfig {
	return map[string]DependencyConfig{
		DependencyLibrary:     d.Library,
		DependencyReservation: d.Reservation,
		DependencyRating:      d.Rating,
	}
}

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Queue        QueueConfig        `mapstructure:"queue"`
	HealthCheck  HealthCheckConfig  `mapstructure:"health_check"`
	Strategy     StrategyConfig     `mapstructure:"strategy"`
	Dependencies DependenciesConfig `mapstructure:"dependencies"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("auth.username_claim", "preferred_username")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("queue.key_prefix", "library-gateway:retry")
	v.SetDefault("queue.instance", "gateway")
	v.SetDefault("queue.poll_interval", "10s")
	v.SetDefault("queue.max_attempts", 50)
	v.SetDefault("health_check.interval", "2s")
	v.SetDefault("strategy.type", strategy.RoundRobin)

	ports := map[string]string{
		DependencyLibrary:     "8060",
		DependencyReservation: "8070",
		DependencyRating:      "8050",
	}
	for name, port := range ports {
		prefix := "dependencies." + name + "."
		v.SetDefault(prefix+"urls", []string{"http://localhost:" + port})
		v.SetDefault(prefix+"timeout", "5s")
		v.SetDefault(prefix+"failure_threshold", 5)
		v.SetDefault(prefix+"open_timeout", "30s")
	}
}

// Load reads config.yaml from ./config or the working directory, applies
// environment overrides (server.address is SERVER_ADDRESS) and validates
// the result. A missing file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	_ = v.BindEnv("auth.jwt_secret")
	_ = v.BindEnv("redis.password")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
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
		validation.Field(&c.Server, validation.By(func(value interface{}) error {
			sc := value.(ServerConfig)
			return validation.ValidateStruct(&sc,
				validation.Field(&sc.Environment,
					validation.Required,
					validation.In(EnvDev, EnvStaging, EnvProd),
				),
				validation.Field(&sc.Address,
					validation.Required,
					validation.By(validateHostPort),
				),
			)
		})),
		validation.Field(&c.Logging, validation.By(func(value interface{}) error {
			lc := value.(LoggingConfig)
			return validation.ValidateStruct(&lc,
				validation.Field(&lc.Level,
					validation.Required,
					validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
				),
			)
		})),
		validation.Field(&c.Auth, validation.By(func(value interface{}) error {
			ac := value.(AuthConfig)
			return validation.ValidateStruct(&ac,
				validation.Field(&ac.JWTSecret, validation.Required, validation.Length(16, 0)),
				validation.Field(&ac.UsernameClaim, validation.Required),
			)
		})),
		validation.Field(&c.Redis, validation.By(func(value interface{}) error {
			rc := value.(RedisConfig)
			return validation.ValidateStruct(&rc,
				validation.Field(&rc.Address, validation.Required, validation.By(validateHostPort)),
				validation.Field(&rc.DB, validation.Min(0), validation.Max(15)),
			)
		})),
		validation.Field(&c.Queue, validation.By(func(value interface{}) error {
			qc := value.(QueueConfig)
			return validation.ValidateStruct(&qc,
				validation.Field(&qc.KeyPrefix, validation.Required),
				validation.Field(&qc.Instance, validation.Required, is.PrintableASCII),
				validation.Field(&qc.PollInterval, validation.Required, validation.By(validateDuration)),
				validation.Field(&qc.MaxAttempts, validation.Required, validation.Min(1)),
			)
		})),
		validation.Field(&c.HealthCheck, validation.By(func(value interface{}) error {
			hc := value.(HealthCheckConfig)
			return validation.ValidateStruct(&hc,
				validation.Field(&hc.Interval, validation.Required, validation.By(validateDuration)),
			)
		})),
		validation.Field(&c.Strategy, validation.By(func(value interface{}) error {
			sc := value.(StrategyConfig)
			names := make([]interface{}, 0, len(strategy.Names))
			for _, name := range strategy.Names {
				names = append(names, name)
			}
			return validation.ValidateStruct(&sc,
				validation.Field(&sc.Type, validation.Required, validation.In(names...)),
			)
		})),
		validation.Field(&c.Dependencies, validation.By(func(value interface{}) error {
			dc := value.(DependenciesConfig)
			return validation.ValidateStruct(&dc,
				validation.Field(&dc.Library, validation.By(validateDependency)),
				validation.Field(&dc.Reservation, validation.By(validateDependency)),
				validation.Field(&dc.Rating, validation.By(validateDependency)),
			)
		})),
	)
}

func validateDependency(value interface{}) error {
	dep, ok := value.(DependencyConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a DependencyConfig")
	}

	return validation.ValidateStruct(&dep,
		validation.Field(&dep.URLs,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.By(validateServerURL)),
		),
		validation.Field(&dep.Timeout, validation.Required, validation.By(validateDuration)),
		validation.Field(&dep.FailureThreshold, validation.Required, validation.Min(1)),
		validation.Field(&dep.OpenTimeout, validation.Required, validation.By(validateDuration)),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}
	if d <= 0 {
		return validation.NewError("validation_invalid_duration", "must be positive")
	}

	return nil
}

func validateServerURL(value interface{}) error {
	serverURL, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if serverURL == "" {
		return validation.NewError("validation_empty_url", "server URL cannot be empty")
	}

	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}

// mustDuration is only called on values Validate has accepted.
func mustDuration(raw string) time.Duration {
	d, _ := time.ParseDuration(raw)
	return d
}
