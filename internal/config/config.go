package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Status   StatusConfig   `mapstructure:"status"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString builds a pgx-compatible connection string.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Name          string        `mapstructure:"name"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type QueueConfig struct {
	Stream           string        `mapstructure:"stream"`
	Subject          string        `mapstructure:"subject"`
	Consumer         string        `mapstructure:"consumer"`
	VisibilityWindow time.Duration `mapstructure:"visibility_window"`
	MaxReceiveCount  int           `mapstructure:"max_receive_count"`
	Retention        time.Duration `mapstructure:"retention"`
}

type CaptureConfig struct {
	SourceID      string        `mapstructure:"source_id"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	FetchLimit    int           `mapstructure:"fetch_limit"`
	Subscriptions string        `mapstructure:"subscriptions"`
}

type WorkerConfig struct {
	Concurrency      int               `mapstructure:"concurrency"`
	ReceiveBatch     int               `mapstructure:"receive_batch"`
	ReceiveWait      time.Duration     `mapstructure:"receive_wait"`
	OperationTimeout time.Duration     `mapstructure:"operation_timeout"`
	OperationURLs    map[string]string `mapstructure:"operation_urls"`
}

type StatusConfig struct {
	RecordTTL      time.Duration `mapstructure:"record_ttl"`
	ReaperInterval time.Duration `mapstructure:"reaper_interval"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "strategiq")
	v.SetDefault("postgres.database", "strategiq")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.name", "strategiq")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.timeout", "5s")
	v.SetDefault("queue.stream", "CAMPAIGN_TASKS")
	v.SetDefault("queue.subject", "campaign.tasks")
	v.SetDefault("queue.consumer", "campaign-workers")
	v.SetDefault("queue.visibility_window", "30s")
	v.SetDefault("queue.max_receive_count", 3)
	v.SetDefault("queue.retention", "336h") // 14 days
	v.SetDefault("capture.source_id", "campaign-records")
	v.SetDefault("capture.poll_interval", "1s")
	v.SetDefault("capture.fetch_limit", 100)
	v.SetDefault("capture.subscriptions", "subscriptions.yaml")
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.receive_batch", 10)
	v.SetDefault("worker.receive_wait", "5s")
	v.SetDefault("worker.operation_timeout", "25s")
	v.SetDefault("status.record_ttl", "720h") // 30 days
	v.SetDefault("status.reaper_interval", "5m")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/strategiq")
	}

	// Environment variables override
	v.SetEnvPrefix("STRATEGIQ")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
