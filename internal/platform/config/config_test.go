package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "profilevault.security", cfg.Kafka.Topic)
}

func TestFromEnv_NormalizesBrokerList(t *testing.T) {
	t.Setenv("PROFILEVAULT_KAFKA_BROKERS", " Kafka-1:9092, kafka-2:9092 ,,kafka-1:9092")

	cfg := FromEnv()
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
}
