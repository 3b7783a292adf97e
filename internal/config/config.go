package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Queue     QueueConfig
	Redis     RedisConfig
	Worker    WorkerConfig
	Scheduler SchedulerConfig
}

type ServerConfig struct {
	Port     string
	LogLevel string
}

type DatabaseConfig struct {
	Driver string // sqlite or postgres
	DSN    string
}

type QueueConfig struct {
	Backend string // gorm or redis
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type WorkerConfig struct {
	Count        int
	PollInterval time.Duration
	OpTimeout    time.Duration
	LookbackDays int
}

type SchedulerConfig struct {
	Cron             string
	ActiveWindowDays int
}

// Load reads configuration from an optional config.yaml plus
// environment variables, with environment winning.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("database.driver", "DATABASE_DRIVER")
	_ = v.BindEnv("database.dsn", "DATABASE_DSN")
	_ = v.BindEnv("queue.backend", "QUEUE_BACKEND")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("worker.count", "WORKER_COUNT")
	_ = v.BindEnv("worker.poll_interval", "WORKER_POLL_INTERVAL")
	_ = v.BindEnv("worker.op_timeout", "WORKER_OP_TIMEOUT")
	_ = v.BindEnv("worker.lookback_days", "WORKER_LOOKBACK_DAYS")
	_ = v.BindEnv("scheduler.cron", "SCHEDULER_CRON")
	_ = v.BindEnv("scheduler.active_window_days", "SCHEDULER_ACTIVE_WINDOW_DAYS")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "orchestrator.db")
	v.SetDefault("queue.backend", "gorm")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("worker.count", 2)
	v.SetDefault("worker.poll_interval", "5s")
	v.SetDefault("worker.op_timeout", "30s")
	v.SetDefault("worker.lookback_days", 30)
	v.SetDefault("scheduler.cron", "0 * * * *")
	v.SetDefault("scheduler.active_window_days", 7)

	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     v.GetString("server.port"),
			LogLevel: v.GetString("server.log_level"),
		},
		Database: DatabaseConfig{
			Driver: v.GetString("database.driver"),
			DSN:    v.GetString("database.dsn"),
		},
		Queue: QueueConfig{
			Backend: v.GetString("queue.backend"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Worker: WorkerConfig{
			Count:        v.GetInt("worker.count"),
			PollInterval: v.GetDuration("worker.poll_interval"),
			OpTimeout:    v.GetDuration("worker.op_timeout"),
			LookbackDays: v.GetInt("worker.lookback_days"),
		},
		Scheduler: SchedulerConfig{
			Cron:             v.GetString("scheduler.cron"),
			ActiveWindowDays: v.GetInt("scheduler.active_window_days"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that name a capability this build
// cannot provide. There is no silent fallback to another backend.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}

	switch c.Queue.Backend {
	case "gorm":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("config: queue backend %q requires redis.addr", c.Queue.Backend)
		}
	default:
		return fmt.Errorf("config: unsupported queue backend %q", c.Queue.Backend)
	}

	if c.Worker.Count < 1 {
		return fmt.Errorf("config: worker count must be at least 1, got %d", c.Worker.Count)
	}
	return nil
}
