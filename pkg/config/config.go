package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Market    MarketConfig    `mapstructure:"market"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Client    ClientConfig    `mapstructure:"client"`
	Profiling ProfilingConfig `mapstructure:"profiling"`
}

type AppConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // e.g., "local", "prod"
}

type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type MarketConfig struct {
	TickInterval     time.Duration `mapstructure:"tick_interval"`
	DefaultBasePrice float64       `mapstructure:"default_base_price"`
	// Instruments entries are "Name[:SYMBOL[:BASE_PRICE]]". Empty means any name may be joined.
	Instruments []string `mapstructure:"instruments"`
}

type WalletConfig struct {
	MinBalance int64 `mapstructure:"min_balance"`
	MaxBalance int64 `mapstructure:"max_balance"`
}

type RedisConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Addr         string `mapstructure:"addr"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	JournalKey   string `mapstructure:"journal_key"`
	JournalLimit int64  `mapstructure:"journal_limit"`
}

type KafkaConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Brokers           []string      `mapstructure:"brokers"`
	Topic             string        `mapstructure:"topic"`
	GroupID           string        `mapstructure:"group_id"`
	Partitions        int           `mapstructure:"partitions"`
	ReplicationFactor int           `mapstructure:"replication_factor"`
	TopicReadyChecks  int           `mapstructure:"topic_ready_checks"`
	TopicReadyBackoff time.Duration `mapstructure:"topic_ready_backoff"`
}

type JournalConfig struct {
	NumWorkers int `mapstructure:"num_workers"`
}

type ClientConfig struct {
	URL            string        `mapstructure:"url"`
	HistoryURL     string        `mapstructure:"history_url"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	Instrument     string        `mapstructure:"instrument"`
	OrderInterval  time.Duration `mapstructure:"order_interval"`
}

type ProfilingConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ServerAddress string `mapstructure:"server_address"`
	AppName       string `mapstructure:"app_name"`
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// .env is optional; real env vars always win over defaults
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	v.SetDefault("app.port", ":8080")
	v.SetDefault("app.env", "local")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.development", false)

	v.SetDefault("market.tick_interval", 5*time.Second)
	v.SetDefault("market.default_base_price", 500.0)
	v.SetDefault("market.instruments", []string{})

	v.SetDefault("wallet.min_balance", 10000)
	v.SetDefault("wallet.max_balance", 50000)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.journal_key", "trades:recent")
	v.SetDefault("redis.journal_limit", 500)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "executed_trades")
	v.SetDefault("kafka.group_id", "trade-journal-group")
	v.SetDefault("kafka.partitions", 4)
	v.SetDefault("kafka.replication_factor", 1)
	v.SetDefault("kafka.topic_ready_checks", 5)
	v.SetDefault("kafka.topic_ready_backoff", 200*time.Millisecond)

	v.SetDefault("journal.num_workers", 4)

	v.SetDefault("client.url", "ws://localhost:8080/ws")
	v.SetDefault("client.history_url", "http://localhost:8080/transactions")
	v.SetDefault("client.connect_timeout", 3*time.Second)
	v.SetDefault("client.max_attempts", 3)
	v.SetDefault("client.instrument", "TCS")
	v.SetDefault("client.order_interval", 7*time.Second)

	v.SetDefault("profiling.enabled", false)
	v.SetDefault("profiling.server_address", "http://localhost:4040")
	v.SetDefault("profiling.app_name", "stock-rooms.gateway")

	// "app.port" -> "APP_PORT"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Flat env vars only reach nested keys once bound
	bindEnv(v, "app.port", "app.env")
	bindEnv(v, "logger.level", "logger.development")
	bindEnv(v, "market.tick_interval", "market.default_base_price", "market.instruments")
	bindEnv(v, "wallet.min_balance", "wallet.max_balance")
	bindEnv(v, "redis.enabled", "redis.addr", "redis.password", "redis.db", "redis.journal_key", "redis.journal_limit")
	bindEnv(v, "kafka.enabled", "kafka.brokers", "kafka.topic", "kafka.group_id",
		"kafka.partitions", "kafka.replication_factor", "kafka.topic_ready_checks", "kafka.topic_ready_backoff")
	bindEnv(v, "journal.num_workers")
	bindEnv(v, "client.url", "client.history_url", "client.connect_timeout", "client.max_attempts", "client.instrument", "client.order_interval")
	bindEnv(v, "profiling.enabled", "profiling.server_address", "profiling.app_name")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints that defaults alone cannot guarantee.
func (c *Config) Validate() error {
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers cannot be empty")
	}
	if c.Kafka.Enabled && (c.Kafka.Partitions < 1 || c.Kafka.ReplicationFactor < 1) {
		return fmt.Errorf("kafka topic needs positive partitions and replication factor, got %d/%d",
			c.Kafka.Partitions, c.Kafka.ReplicationFactor)
	}
	if c.Wallet.MinBalance < 0 || c.Wallet.MinBalance >= c.Wallet.MaxBalance {
		return fmt.Errorf("wallet balance range [%d, %d) is invalid", c.Wallet.MinBalance, c.Wallet.MaxBalance)
	}
	if c.Market.TickInterval <= 0 {
		return fmt.Errorf("market tick interval must be positive")
	}
	if c.Market.DefaultBasePrice < 1 {
		return fmt.Errorf("market default base price must be at least 1")
	}
	if c.Client.MaxAttempts < 1 {
		return fmt.Errorf("client max attempts must be at least 1")
	}
	if c.Journal.NumWorkers < 1 {
		return fmt.Errorf("journal needs at least one worker")
	}
	return nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
