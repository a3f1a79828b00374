package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Config is read from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
type Config struct {
	HTTPAddr string
	GRPCAddr string

	StorageDriver        string
	MySQLDSN             string
	MySQLMaxOpenConns    int
	MySQLMaxIdleConns    int
	MySQLConnMaxLifetime time.Duration

	// RedisAddr empty disables idempotency keys and the reconcile lock.
	RedisAddr     string
	RedisPoolSize int

	LogLevel string

	// PubSubProjectID empty publishes movements to the log instead.
	PubSubProjectID string
	PubSubTopic     string

	PublishWorkers    int
	MovementQueueSize int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:        getEnv("GRPC_ADDR", ":50051"),
		StorageDriver:   getEnv("STORAGE_DRIVER", DriverMySQL),
		MySQLDSN:        getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/stockledger?parseTime=true"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		PubSubProjectID: pubSubProjectID(),
		PubSubTopic:     getEnv("PUBSUB_TOPIC", "stock-movements"),
	}

	ints := []struct {
		key  string
		def  int
		dest *int
	}{
		{"MYSQL_MAX_OPEN_CONNS", 50, &cfg.MySQLMaxOpenConns},
		{"MYSQL_MAX_IDLE_CONNS", 25, &cfg.MySQLMaxIdleConns},
		{"REDIS_POOL_SIZE", 100, &cfg.RedisPoolSize},
		{"PUBLISH_WORKERS", 4, &cfg.PublishWorkers},
		{"MOVEMENT_QUEUE_SIZE", 10000, &cfg.MovementQueueSize},
	}
	for _, v := range ints {
		n, err := getEnvInt(v.key, v.def)
		if err != nil {
			return Config{}, err
		}
		*v.dest = n
	}

	lifetime, err := time.ParseDuration(getEnv("MYSQL_CONN_MAX_LIFETIME", "5m"))
	if err != nil {
		return Config{}, fmt.Errorf("MYSQL_CONN_MAX_LIFETIME: %w", err)
	}
	cfg.MySQLConnMaxLifetime = lifetime

	switch cfg.StorageDriver {
	case DriverMySQL, DriverMemory:
	default:
		return Config{}, fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", DriverMySQL, DriverMemory, cfg.StorageDriver)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %d", key, n)
	}
	return n, nil
}

func pubSubProjectID() string {
	// Prefer explicit override.
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	return os.Getenv("GOOGLE_CLOUD_PROJECT")
}
