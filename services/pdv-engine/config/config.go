package config

import (
	"os"
	"strings"
)

type Config struct {
	Port            string
	Env             string
	TerminalID      string
	LedgerURL       string
	SalesAPIURL     string
	KafkaBrokers    []string
	EventsTopic     string
	ConsumerGroup   string
	RequireCustomer bool
}

func Load() Config {
	terminalID := getEnv("TERMINAL_ID", "terminal-1")
	return Config{
		Port:            getEnv("PORT", "8090"),
		Env:             getEnv("APP_ENV", "development"),
		TerminalID:      terminalID,
		LedgerURL:       getEnv("STOCK_LEDGER_URL", "http://stock-ledger:8091"),
		SalesAPIURL:     getEnv("SALES_API_URL", "http://sales-api:8092"),
		KafkaBrokers:    strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		EventsTopic:     getEnv("EVENTS_TOPIC", "pdv.events"),
		ConsumerGroup:   getEnv("EVENTS_GROUP", "pdv-"+terminalID),
		RequireCustomer: getEnv("REQUIRE_CUSTOMER", "false") == "true",
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
