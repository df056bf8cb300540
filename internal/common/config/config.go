package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Service  ServiceConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	JWT      JWTConfig
	Payments PaymentsConfig
	Fraud    FraudConfig
	Ops      OpsConfig
}

type ServiceConfig struct {
	Name string
	Port string
	Env  string // dev, staging, prod
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
}

type JWTConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
}

// PaymentsConfig holds provider selection. Per-provider secrets live in
// files under SecretsDir and are loaded by the provider package.
type PaymentsConfig struct {
	Provider      string
	Mode          string // mock or live
	PublicURL     string
	SecretsDir    string
	WebhookSecret string
	Currency      string
}

type FraudConfig struct {
	MaxAmount    float64
	RiderPerMin  int
	RiderPerDay  int
	DevicePerDay int
	PhonePerDay  int
	HoldScore    int
	BlockScore   int
	HomeCountry  string
}

type OpsConfig struct {
	APIKeyHash             string
	InvariantCheckInterval time.Duration
	OutboxInterval         time.Duration
	TreasuryMinReserve     float64
}

const (
	ModeMock = "mock"
	ModeLive = "live"
)

// Load reads configuration from environment variables.
// NOTE: call godotenv.Load() before this to pick up a local .env file
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name: serviceName,
			Port: getEnv("PORT", "8080"),
			Env:  strings.ToLower(getEnv("APP_ENV", "dev")),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "movegh"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			GroupID: getEnv("KAFKA_GROUP_ID", serviceName+"-group"),
		},
		JWT: JWTConfig{
			Secret:         getEnv("JWT_SECRET", ""),
			AccessTokenTTL: getEnvAsDuration("JWT_ACCESS_TTL", 15*time.Minute),
		},
		Payments: PaymentsConfig{
			Provider:      strings.ToLower(getEnv("PAYMENTS_PROVIDER", "mock")),
			Mode:          strings.ToLower(getEnv("PAYMENTS_PROVIDER_MODE", "")),
			PublicURL:     getEnv("PAYMENTS_PUBLIC_URL", ""),
			SecretsDir:    getEnv("PAYMENTS_SECRETS_DIR", "secrets"),
			WebhookSecret: getEnv("PAYMENTS_WEBHOOK_SECRET", "movegh-dev-webhook"),
			Currency:      strings.ToUpper(getEnv("PAYMENTS_CURRENCY", "GHS")),
		},
		Fraud: FraudConfig{
			MaxAmount:    getEnvAsFloat("FRAUD_MAX_AMOUNT", 500),
			RiderPerMin:  getEnvAsInt("FRAUD_RIDER_PER_MIN", 3),
			RiderPerDay:  getEnvAsInt("FRAUD_RIDER_PER_DAY", 20),
			DevicePerDay: getEnvAsInt("FRAUD_DEVICE_PER_DAY", 10),
			PhonePerDay:  getEnvAsInt("FRAUD_PHONE_PER_DAY", 10),
			HoldScore:    getEnvAsInt("FRAUD_HOLD_SCORE", 30),
			BlockScore:   getEnvAsInt("FRAUD_BLOCK_SCORE", 90),
			HomeCountry:  strings.ToUpper(getEnv("FRAUD_HOME_COUNTRY", "GH")),
		},
		Ops: OpsConfig{
			APIKeyHash:             getEnv("OPS_API_KEY_HASH", ""),
			InvariantCheckInterval: getEnvAsDuration("INVARIANT_CHECK_INTERVAL", time.Minute),
			OutboxInterval:         getEnvAsDuration("OUTBOX_INTERVAL", 5*time.Second),
			TreasuryMinReserve:     getEnvAsFloat("TREASURY_MIN_RESERVE", 500),
		},
	}

	if cfg.Payments.Mode == "" {
		if cfg.Service.Env == "dev" {
			cfg.Payments.Mode = ModeMock
		} else {
			cfg.Payments.Mode = ModeLive
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate enforces environment/mode pairing rules
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	switch c.Payments.Mode {
	case ModeMock, ModeLive:
	default:
		return fmt.Errorf("PAYMENTS_PROVIDER_MODE must be mock or live, got %q", c.Payments.Mode)
	}

	if c.Service.Env == "dev" && c.Payments.Mode != ModeMock {
		return fmt.Errorf("PAYMENTS_PROVIDER_MODE must be mock in dev")
	}
	if (c.Service.Env == "staging" || c.Service.Env == "prod") && c.Payments.Mode != ModeLive {
		return fmt.Errorf("PAYMENTS_PROVIDER_MODE must be live in %s", c.Service.Env)
	}

	if c.Payments.Mode == ModeLive {
		if !strings.HasPrefix(c.Payments.PublicURL, "https://") {
			return fmt.Errorf("PAYMENTS_PUBLIC_URL must be https:// in live mode")
		}
		if c.Payments.Provider == ModeMock {
			return fmt.Errorf("PAYMENTS_PROVIDER cannot be mock in live mode")
		}
	}

	if c.Fraud.HoldScore > c.Fraud.BlockScore {
		return fmt.Errorf("FRAUD_HOLD_SCORE must not exceed FRAUD_BLOCK_SCORE")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr := getEnv(key, ""); valueStr != "" {
		if duration, err := time.ParseDuration(valueStr); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
