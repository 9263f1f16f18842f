package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/as3contender/alex-orator-bot/pkg/logger"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. ORATOR_WORKER_BATCH_SIZE.
const EnvPrefix = "ORATOR"

type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Redis     RedisConfig     `mapstructure:"redis"`
	FlowState FlowStateConfig `mapstructure:"flow_state"`
	Pairing   PairingConfig   `mapstructure:"pairing"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Port     int    `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`
}

type TelegramConfig struct {
	Token              string  `mapstructure:"token"`
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second"`
}

type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	File      string `mapstructure:"file"`
	GormLevel string `mapstructure:"gorm_level"`
}

// RedisConfig is optional; an empty Addr keeps flow state in the database.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Flow state backends. The memory backend is per process and lost on
// restart, so it only suits a single bot instance.
const (
	FlowStateAuto     = ""
	FlowStateRedis    = "redis"
	FlowStateDatabase = "database"
	FlowStateMemory   = "memory"
)

// FlowStateConfig selects where conversational state lives. The auto backend
// uses Redis when redis.addr is set and the database otherwise.
type FlowStateConfig struct {
	Backend string `mapstructure:"backend"`
}

type PairingConfig struct {
	MaxPairsPerUser         int `mapstructure:"max_pairs_per_user"`
	MaxCandidatesPerRequest int `mapstructure:"max_candidates_per_request"`
	OfferTTLSeconds         int `mapstructure:"offer_ttl_seconds"`
}

type WorkerConfig struct {
	BatchSize              int `mapstructure:"batch_size"`
	Concurrency            int `mapstructure:"concurrency"`
	CheckIntervalSeconds   int `mapstructure:"check_interval_seconds"`
	DrainTimeoutSeconds    int `mapstructure:"drain_timeout_seconds"`
	ClaimTTLSeconds        int `mapstructure:"claim_ttl_seconds"`
	MaxAttempts            int `mapstructure:"max_attempts"`
	DispatchTimeoutSeconds int `mapstructure:"dispatch_timeout_seconds"`
}

func (w WorkerConfig) CheckInterval() time.Duration {
	return time.Duration(w.CheckIntervalSeconds) * time.Second
}

func (w WorkerConfig) DrainTimeout() time.Duration {
	return time.Duration(w.DrainTimeoutSeconds) * time.Second
}

func (w WorkerConfig) ClaimTTL() time.Duration {
	return time.Duration(w.ClaimTTLSeconds) * time.Second
}

func (w WorkerConfig) DispatchTimeout() time.Duration {
	return time.Duration(w.DispatchTimeoutSeconds) * time.Second
}

func (p PairingConfig) OfferTTL() time.Duration {
	return time.Duration(p.OfferTTLSeconds) * time.Second
}

var AppConfig = Default()

// Default returns the configuration used when a key is absent from both the
// file and the environment.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Host: "localhost", Port: 5432, SSLMode: "disable"},
		Telegram: TelegramConfig{RateLimitPerSecond: 25},
		Logging:  LoggingConfig{Level: "info", GormLevel: "warn"},
		Pairing: PairingConfig{
			MaxPairsPerUser:         3,
			MaxCandidatesPerRequest: 3,
			OfferTTLSeconds:         900,
		},
		Worker: WorkerConfig{
			BatchSize:            50,
			Concurrency:          10,
			CheckIntervalSeconds: 2,
			DrainTimeoutSeconds:  30,
			ClaimTTLSeconds:      300,
		},
	}
}

func LoadConfig(filename string) error {
	cfg, err := Load(filename)
	if err != nil {
		return err
	}
	AppConfig = cfg
	return nil
}

// Load reads filename as JSON and applies ORATOR_* environment overrides on
// top of it.
func Load(filename string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(filename)
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		logger.Error("failed to read config file", "file", filename, "error", err)
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		logger.Error("failed to decode config file", "file", filename, "error", err)
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	positive := map[string]int{
		"pairing.max_pairs_per_user":         c.Pairing.MaxPairsPerUser,
		"pairing.max_candidates_per_request": c.Pairing.MaxCandidatesPerRequest,
		"worker.batch_size":                  c.Worker.BatchSize,
		"worker.concurrency":                 c.Worker.Concurrency,
		"worker.check_interval_seconds":      c.Worker.CheckIntervalSeconds,
		"worker.claim_ttl_seconds":           c.Worker.ClaimTTLSeconds,
		"worker.drain_timeout_seconds":       c.Worker.DrainTimeoutSeconds,
	}
	for key, value := range positive {
		if value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", key, value))
		}
	}
	nonNegative := map[string]int{
		"worker.max_attempts":             c.Worker.MaxAttempts,
		"worker.dispatch_timeout_seconds": c.Worker.DispatchTimeoutSeconds,
	}
	for key, value := range nonNegative {
		if value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %d", key, value))
		}
	}
	switch c.FlowState.Backend {
	case FlowStateAuto, FlowStateDatabase, FlowStateMemory:
	case FlowStateRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("flow_state.backend redis requires redis.addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown flow_state.backend %q", c.FlowState.Backend))
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.dbname", d.Database.DBName)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.sslmode", d.Database.SSLMode)

	v.SetDefault("telegram.token", d.Telegram.Token)
	v.SetDefault("telegram.rate_limit_per_second", d.Telegram.RateLimitPerSecond)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.gorm_level", d.Logging.GormLevel)

	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)

	v.SetDefault("flow_state.backend", d.FlowState.Backend)

	v.SetDefault("pairing.max_pairs_per_user", d.Pairing.MaxPairsPerUser)
	v.SetDefault("pairing.max_candidates_per_request", d.Pairing.MaxCandidatesPerRequest)
	v.SetDefault("pairing.offer_ttl_seconds", d.Pairing.OfferTTLSeconds)

	v.SetDefault("worker.batch_size", d.Worker.BatchSize)
	v.SetDefault("worker.concurrency", d.Worker.Concurrency)
	v.SetDefault("worker.check_interval_seconds", d.Worker.CheckIntervalSeconds)
	v.SetDefault("worker.drain_timeout_seconds", d.Worker.DrainTimeoutSeconds)
	v.SetDefault("worker.claim_ttl_seconds", d.Worker.ClaimTTLSeconds)
	v.SetDefault("worker.max_attempts", d.Worker.MaxAttempts)
	v.SetDefault("worker.dispatch_timeout_seconds", d.Worker.DispatchTimeoutSeconds)
}
