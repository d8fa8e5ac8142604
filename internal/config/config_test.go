package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMustLoadDefaults(t *testing.T) {
	t.Setenv("AUTH_SERVICE_ADDR", "auth-service:50051")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("FEED_SYMBOLS", "BTCUSDT,ETHUSDT")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg := MustLoad()

	assert.Equal(t, uint16(8080), cfg.HTTP.Port)
	assert.Equal(t, "auth-service:50051", cfg.GRPC.AuthServiceAddr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Feed.Symbols)
	assert.Equal(t, 10*time.Second, cfg.Feed.Interval)
	assert.Equal(t, "10000", cfg.Competition.BaselineNetWorth)
	assert.Equal(t, "AlgoTrader", cfg.Competition.BotPattern)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "arena.transactions", cfg.Kafka.Topic)
	assert.Empty(t, cfg.ClickHouse.Addr)
}
