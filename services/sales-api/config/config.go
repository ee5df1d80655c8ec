package config

import (
	"os"
	"strings"
)

type Config struct {
	Port          string
	Env           string
	RedisURL      string
	KafkaBrokers  []string
	EventsTopic   string
	PaymentsTopic string
	PaymentsGroup string
}

func Load() Config {
	return Config{
		Port:          getEnv("PORT", "8092"),
		Env:           getEnv("APP_ENV", "development"),
		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
		KafkaBrokers:  strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		EventsTopic:   getEnv("EVENTS_TOPIC", "pdv.events"),
		PaymentsTopic: getEnv("PAYMENTS_TOPIC", "payments.results"),
		PaymentsGroup: getEnv("PAYMENTS_GROUP", "sales-api"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
