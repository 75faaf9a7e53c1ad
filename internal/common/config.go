package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort      int
	MetricsPort   int
	DatabaseURL   string
	KafkaBrokers  []string
	OutboundTopic string
	EventsTopic   string
	DLQTopic      string
	OTLPEndpoint  string
	ServiceName   string
	ServerID      string
	LogLevel      string

	WSPath       string
	WSFrameRate  int
	WSFrameBurst int

	DirectoryURL  string
	DirectoryFile string
}

func LoadConfig(service string) (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := &Config{ServiceName: service}

	httpPort, err := getEnvInt("HTTP_PORT", 8080)
	if err != nil {
		return nil, err
	}
	cfg.HTTPPort = httpPort

	metricsPort, err := getEnvInt("METRICS_PORT", httpPort+1000)
	if err != nil {
		return nil, err
	}
	cfg.MetricsPort = metricsPort

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.OTLPEndpoint = os.Getenv("OTLP_ENDPOINT")
	cfg.DirectoryURL = os.Getenv("DIRECTORY_URL")
	cfg.DirectoryFile = os.Getenv("DIRECTORY_FILE")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		cfg.KafkaBrokers = []string{"localhost:9092"}
	} else {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	cfg.OutboundTopic = getEnv("OUTBOUND_TOPIC", "ucs.outbound")
	cfg.EventsTopic = getEnv("EVENTS_TOPIC", "ucs.events")
	cfg.DLQTopic = getEnv("DLQ_TOPIC", "dlq.ucs")

	cfg.WSPath = getEnv("WS_PATH", "/ucs")
	if !strings.HasPrefix(cfg.WSPath, "/") {
		return nil, fmt.Errorf("invalid value for WS_PATH: %q must start with /", cfg.WSPath)
	}
	if cfg.WSFrameRate, err = getEnvInt("WS_FRAME_RATE", 20); err != nil {
		return nil, err
	}
	if cfg.WSFrameBurst, err = getEnvInt("WS_FRAME_BURST", 40); err != nil {
		return nil, err
	}

	host, _ := os.Hostname()
	cfg.ServerID = getEnv("SERVER_ID", host)
	if cfg.ServerID == "" {
		cfg.ServerID = service
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	if v := os.Getenv(key); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid value for %s: %w", key, err)
		}
		return parsed, nil
	}
	return fallback, nil
}
