package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Backend  BackendConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Journal  JournalConfig
	Workflow WorkflowConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// BackendConfig points at the EventEase backend this gateway drives. All
// requests carry the session cookie; the gateway never manages auth itself.
type BackendConfig struct {
	BaseURL        string
	SessionCookie  string
	RequestTimeout time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers  []string
	Topics   TopicConfig
	MockMode bool
	Enabled  bool
}

type TopicConfig struct {
	BookingCreated   string
	PaymentConfirmed string
}

type JournalConfig struct {
	Path string
}

type WorkflowConfig struct {
	// How long the success message stays up before the session closes.
	ConfirmDelay   time.Duration
	BookingLockTTL time.Duration
}

func Load() *Config {
	kafkaEnabled := getEnvBool("KAFKA_ENABLED", true)
	mockMode := getEnvBool("KAFKA_MOCK_MODE", false)

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8090"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Backend: BackendConfig{
			BaseURL:        getEnv("BACKEND_BASE_URL", "http://localhost:5000"),
			SessionCookie:  getEnv("BACKEND_SESSION_COOKIE", ""),
			RequestTimeout: time.Duration(getEnvInt("BACKEND_TIMEOUT_SECONDS", 15)) * time.Second,
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Kafka: KafkaConfig{
			Brokers:  strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			Enabled:  kafkaEnabled,
			MockMode: mockMode,
			Topics: TopicConfig{
				BookingCreated:   getEnv("KAFKA_TOPIC_BOOKING_CREATED", "booking-created"),
				PaymentConfirmed: getEnv("KAFKA_TOPIC_PAYMENT_CONFIRMED", "payment-confirmed"),
			},
		},
		Journal: JournalConfig{
			Path: getEnv("JOURNAL_DB_PATH", "file:booking-journal.db"),
		},
		Workflow: WorkflowConfig{
			ConfirmDelay:   time.Duration(getEnvInt("CONFIRM_DELAY_MS", 2500)) * time.Millisecond,
			BookingLockTTL: time.Duration(getEnvInt("BOOKING_LOCK_TTL_MINUTES", 5)) * time.Minute,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
