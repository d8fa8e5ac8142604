package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env         string `env:"ENV" env-default:"local"`
	GRPC        GRPCConfig
	HTTP        HTTPConfig
	Redis       RedisConfig
	Database    DBConfig
	Security    SecConfig
	Feed        FeedConfig
	Competition CompetitionConfig
	Outbox      OutboxConfig
	Kafka       KafkaConfig
	ClickHouse  ClickHouseConfig
}

type GRPCConfig struct {
	Port            uint16        `env:"GRPC_PORT" env-default:"50053"`
	Timeout         time.Duration `env:"GRPC_TIMEOUT" env-default:"10s"`
	AuthServiceAddr string        `env:"AUTH_SERVICE_ADDR" env-required:"true"`
}

type HTTPConfig struct {
	Port    uint16        `env:"HTTP_PORT" env-default:"8080"`
	Timeout time.Duration `env:"HTTP_TIMEOUT" env-default:"30s"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD" env-default:""`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

// DBConfig selects the local store for the leaderboard mirror.
type DBConfig struct {
	Driver     string `env:"DB_DRIVER" env-default:"sqlite"`
	SQLitePath string `env:"SQLITE_PATH" env-default:"arena.db"`
	Host       string `env:"POSTGRES_HOST" env-default:"localhost"`
	Port       uint16 `env:"POSTGRES_PORT" env-default:"5433"`
	User       string `env:"POSTGRES_USER" env-default:"postgres"`
	Password   string `env:"POSTGRES_PASSWORD" env-default:"postgres"`
	DBName     string `env:"POSTGRES_DB" env-default:"arena_db"`
}

type SecConfig struct {
	JWTSecret string `env:"JWT_SECRET" env-required:"true"`
}

type FeedConfig struct {
	BaseURL  string        `env:"FEED_BASE_URL" env-default:"https://api.binance.com"`
	Symbols  []string      `env:"FEED_SYMBOLS" env-separator:"," env-default:"BTCUSDT,ETHUSDT,BNBUSDT,SOLUSDT,XRPUSDT,ADAUSDT,DOGEUSDT"`
	Interval time.Duration `env:"FEED_INTERVAL" env-default:"10s"`
	Timeout  time.Duration `env:"FEED_TIMEOUT" env-default:"5s"`
}

type CompetitionConfig struct {
	EntryFee         string        `env:"COMPETITION_ENTRY_FEE" env-default:"10"`
	BaselineNetWorth string        `env:"COMPETITION_BASELINE" env-default:"10000"`
	StartingBalance  string        `env:"STARTING_BALANCE" env-default:"10000"`
	Duration         time.Duration `env:"COMPETITION_DURATION" env-default:"1m"`
	BotPattern       string        `env:"COMPETITION_BOT_PATTERN" env-default:"AlgoTrader"`
}

type OutboxConfig struct {
	MinBackoff time.Duration `env:"OUTBOX_MIN_BACKOFF" env-default:"250ms"`
	MaxBackoff time.Duration `env:"OUTBOX_MAX_BACKOFF" env-default:"30s"`
	OpTimeout  time.Duration `env:"OUTBOX_OP_TIMEOUT" env-default:"5s"`
	// FlushTimeout bounds the final drain when a session is torn down.
	FlushTimeout time.Duration `env:"OUTBOX_FLUSH_TIMEOUT" env-default:"3s"`
}

// KafkaConfig enables the transaction stream when Brokers is not empty.
type KafkaConfig struct {
	Brokers      []string      `env:"KAFKA_BROKERS" env-separator:","`
	Topic        string        `env:"KAFKA_TOPIC" env-default:"arena.transactions"`
	BatchTimeout time.Duration `env:"KAFKA_BATCH_TIMEOUT" env-default:"1s"`
	WriteTimeout time.Duration `env:"KAFKA_WRITE_TIMEOUT" env-default:"10s"`
}

// ClickHouseConfig enables the analytics sink when Addr is set.
type ClickHouseConfig struct {
	Addr          string        `env:"CLICKHOUSE_ADDR"`
	Database      string        `env:"CLICKHOUSE_DB" env-default:"default"`
	User          string        `env:"CLICKHOUSE_USER" env-default:"default"`
	Password      string        `env:"CLICKHOUSE_PASSWORD" env-default:""`
	Table         string        `env:"CLICKHOUSE_TABLE" env-default:"arena_transactions"`
	BatchSize     int           `env:"CLICKHOUSE_BATCH_SIZE" env-default:"500"`
	FlushInterval time.Duration `env:"CLICKHOUSE_FLUSH_INTERVAL" env-default:"5s"`
}

func MustLoad() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment variables")
	}

	var cfg Config

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("failed to read environment variables", "error", err)
		os.Exit(1)
	}

	return &cfg
}
