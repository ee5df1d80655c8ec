package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port             string
	Env              string
	InventoryTable   string
	ReservationTable string
	ReservationTTL   time.Duration
	KafkaBrokers     []string
	EventsTopic      string
	AlertTopicArn    string
}

func Load() Config {
	return Config{
		Port:             getEnv("PORT", "8091"),
		Env:              getEnv("APP_ENV", "development"),
		InventoryTable:   getEnv("DDB_TABLE_INVENTORY", "Inventory"),
		ReservationTable: getEnv("DDB_TABLE_RESERVATIONS", "StockReservations"),
		ReservationTTL:   getEnvDuration("RESERVATION_TTL_MINUTES", 15) * time.Minute,
		KafkaBrokers:     strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		EventsTopic:      getEnv("EVENTS_TOPIC", "pdv.events"),
		AlertTopicArn:    os.Getenv("SNS_LOW_STOCK_TOPIC_ARN"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvDuration(key string, defaultMinutes int) time.Duration {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return time.Duration(n)
		}
	}
	return time.Duration(defaultMinutes)
}
