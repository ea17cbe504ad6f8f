package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env    string
	Server ServerConfig
	Redis  RedisConfig
	Engine EngineConfig
	Token  TokenConfig
	Log    LogConfig
	Kafka  KafkaConfig
}

type ServerConfig struct {
	HTTPPort     int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
}

type EngineConfig struct {
	LockWaitTimeout    time.Duration
	LockLeaseTimeout   time.Duration
	NoShowTimeout      time.Duration
	ChannelBufferSize  int
	ChannelIdleTimeout time.Duration
	ResetHour          int
	ResetParallelism   int
}

type TokenConfig struct {
	Secret string
	TTL    time.Duration
}

type KafkaConfig struct {
	Brokers      []string
	RetryMax     int
	RequiredAcks int
	Enabled      bool
}

type LogConfig struct {
	Level    string
	Mode     string
	Encoding string
}

func Load() (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfg := &Config{
		Env: getEnv("ENV", "development"),
		Server: ServerConfig{
			HTTPPort:     getEnvAsInt("SERVER_HTTP_PORT", 8086),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			MaxRetries:   getEnvAsInt("REDIS_MAX_RETRIES", 3),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		Engine: EngineConfig{
			LockWaitTimeout:    getEnvAsDuration("ENGINE_LOCK_WAIT_TIMEOUT", 3*time.Second),
			LockLeaseTimeout:   getEnvAsDuration("ENGINE_LOCK_LEASE_TIMEOUT", 10*time.Second),
			NoShowTimeout:      getEnvAsDuration("ENGINE_NO_SHOW_TIMEOUT", 5*time.Minute),
			ChannelBufferSize:  getEnvAsInt("ENGINE_CHANNEL_BUFFER_SIZE", 16),
			ChannelIdleTimeout: getEnvAsDuration("ENGINE_CHANNEL_IDLE_TIMEOUT", 30*time.Minute),
			ResetHour:          getEnvAsInt("ENGINE_RESET_HOUR", 4),
			ResetParallelism:   getEnvAsInt("ENGINE_RESET_PARALLELISM", 8),
		},
		Token: TokenConfig{
			Secret: getEnv("TOKEN_SECRET", "admission-token-secret"),
			TTL:    getEnvAsDuration("TOKEN_TTL", 10*time.Minute),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Mode:     getEnv("LOG_MODE", "development"),
			Encoding: getEnv("LOG_ENCODING", "console"),
		},
		Kafka: KafkaConfig{
			Brokers:      getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			RetryMax:     getEnvAsInt("KAFKA_PRODUCER_RETRY_MAX", 3),
			RequiredAcks: getEnvAsInt("KAFKA_PRODUCER_REQUIRED_ACKS", 1),
			Enabled:      getEnvAsBool("KAFKA_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.HTTPPort)
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.Engine.LockLeaseTimeout <= c.Engine.LockWaitTimeout {
		return fmt.Errorf("lock lease timeout must exceed lock wait timeout")
	}

	if c.Engine.ResetHour < 0 || c.Engine.ResetHour > 23 {
		return fmt.Errorf("invalid reset hour: %d", c.Engine.ResetHour)
	}

	if c.Engine.ResetParallelism <= 0 {
		return fmt.Errorf("invalid reset parallelism: %d", c.Engine.ResetParallelism)
	}

	if c.Env == "production" && c.Token.Secret == "admission-token-secret" {
		return fmt.Errorf("token secret must be set in production")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
