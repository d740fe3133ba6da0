package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Provider ProviderConfig
	Chain    ChainConfig
	Locks    LockConfig
	Jobs     JobConfig
}

type ServerConfig struct {
	Port string
	Host string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// ProviderConfig points at the sports results provider.
type ProviderConfig struct {
	BaseURL string
	APIKey  string
	Timeout int
}

// ChainConfig points at the resolution relayer that signs and submits
// transactions on our behalf.
type ChainConfig struct {
	RelayerURL   string
	APIKey       string
	Timeout      int
	MaxBatchSize int
	BatchSubmit  bool
}

// LockConfig selects the distributed lock backend. The default Postgres
// lease table needs no extra settings; the Redis backend needs an address.
type LockConfig struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// JobConfig carries the coordination knobs shared by all jobs. Per-job
// overrides happen at registration.
type JobConfig struct {
	LockTTL             time.Duration
	MaxRetries          int
	RetryBackoffBase    time.Duration
	RetryBackoffCap     time.Duration
	DependencyFreshness time.Duration
	LedgerRetentionDays int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "localhost"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "tenmatch"),
			Password: getEnv("DB_PASSWORD", "tenmatch123"),
			DBName:   getEnv("DB_NAME", "tenmatch_core"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Provider: ProviderConfig{
			BaseURL: getEnv("RESULTS_API_URL", "https://api.sportsfeed.dev"),
			APIKey:  getEnv("RESULTS_API_KEY", ""),
			Timeout: getEnvAsInt("RESULTS_API_TIMEOUT", 30),
		},
		Chain: ChainConfig{
			RelayerURL:   getEnv("CHAIN_RELAYER_URL", "http://localhost:8545"),
			APIKey:       getEnv("CHAIN_RELAYER_KEY", ""),
			Timeout:      getEnvAsInt("CHAIN_RELAYER_TIMEOUT", 60),
			MaxBatchSize: getEnvAsInt("CHAIN_MAX_BATCH_SIZE", 50),
			BatchSubmit:  getEnvAsBool("CHAIN_BATCH_SUBMIT", false),
		},
		Locks: LockConfig{
			Backend:       getEnv("LOCK_BACKEND", "postgres"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
		},
		Jobs: JobConfig{
			LockTTL:             time.Duration(getEnvAsInt("JOB_LOCK_TTL_SECONDS", 600)) * time.Second,
			MaxRetries:          getEnvAsInt("JOB_MAX_RETRIES", 2),
			RetryBackoffBase:    time.Duration(getEnvAsInt("JOB_RETRY_BACKOFF_MS", 1000)) * time.Millisecond,
			RetryBackoffCap:     time.Duration(getEnvAsInt("JOB_RETRY_BACKOFF_CAP_MS", 30000)) * time.Millisecond,
			DependencyFreshness: time.Duration(getEnvAsInt("JOB_DEPENDENCY_FRESHNESS_MINUTES", 45)) * time.Minute,
			LedgerRetentionDays: getEnvAsInt("JOB_LEDGER_RETENTION_DAYS", 90),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func (c *Config) DatabaseURL() string {
	// If DATABASE_URL is set, use it directly
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		return databaseURL
	}

	// Otherwise, construct from individual components
	return "postgres://" + c.Database.User + ":" + c.Database.Password +
		"@" + c.Database.Host + ":" + c.Database.Port +
		"/" + c.Database.DBName + "?sslmode=" + c.Database.SSLMode
}
