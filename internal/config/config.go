package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Port           string
	StoreDriver    string
	DatabaseURL    string
	SQLitePath     string
	RequestTimeout time.Duration

	KafkaBrokers string
	KafkaTopic   string
	KafkaGroupID string
	AMQPURL      string
	AMQPExchange string

	OutboxInterval time.Duration
	OutboxBatch    int

	LogLevel string
}

// Load reads the environment once at start-up.
func Load() (Config, error) {
	c := Config{
		Port:         getenv("PORT", "8080"),
		StoreDriver:  strings.ToLower(getenv("STORE_DRIVER", DriverPostgres)),
		DatabaseURL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SQLitePath:   getenv("SQLITE_PATH", "agrimarket.db"),
		KafkaBrokers: strings.TrimSpace(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getenv("KAFKA_TOPIC", "agrimarket.orders"),
		KafkaGroupID: getenv("KAFKA_GROUP_ID", "notification-service"),
		AMQPURL:      strings.TrimSpace(os.Getenv("AMQP_URL")),
		AMQPExchange: getenv("AMQP_EXCHANGE", "agrimarket.orders"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
	}

	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return Config{}, errors.New("DATABASE_URL is required")
		}
	case DriverSQLite:
	default:
		return Config{}, fmt.Errorf("STORE_DRIVER must be %s or %s, got %q", DriverPostgres, DriverSQLite, c.StoreDriver)
	}

	var err error
	if c.RequestTimeout, err = millis("REQUEST_TIMEOUT_MS", 5000); err != nil {
		return Config{}, err
	}
	if c.OutboxInterval, err = millis("OUTBOX_INTERVAL_MS", 1000); err != nil {
		return Config{}, err
	}
	if c.OutboxBatch, err = positive("OUTBOX_BATCH", 100); err != nil {
		return Config{}, err
	}
	return c, nil
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func positive(k string, def int) (int, error) {
	n, err := strconv.Atoi(getenv(k, strconv.Itoa(def)))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", k)
	}
	return n, nil
}

func millis(k string, def int) (time.Duration, error) {
	n, err := positive(k, def)
	return time.Duration(n) * time.Millisecond, err
}
