package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"todo-api/internal/database"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config holds application configuration from environment.
type Config struct {
	HTTPPort    string `toml:"port"`
	AppEnv      string `toml:"app_env"`
	LogLevel    string `toml:"log_level"`
	FrontendURL string `toml:"frontend_url"`

	DBDriver         string        `toml:"db_driver"`
	DatabaseURL      string        `toml:"database_url"`
	DBHost           string        `toml:"db_host"`
	DBPort           int           `toml:"db_port"`
	DBUser           string        `toml:"db_user"`
	DBPassword       string        `toml:"db_password"`
	DBName           string        `toml:"db_name"`
	DBSSLMode        string        `toml:"db_sslmode"`
	DBPoolSize       int           `toml:"db_pool_size"`
	DBAcquireTimeout time.Duration `toml:"db_acquire_timeout"`

	RedisURL       string        `toml:"redis_url"`
	RedisPoolSize  int           `toml:"redis_pool_size"`
	IdempotencyTTL time.Duration `toml:"idempotency_ttl"`

	KafkaBrokers    []string `toml:"kafka_brokers"`
	KafkaTopic      string   `toml:"kafka_topic"`
	KafkaPartitions int      `toml:"kafka_partitions"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		HTTPPort:         "3001",
		AppEnv:           EnvProduction,
		LogLevel:         "info",
		FrontendURL:      "http://localhost:5173",
		DBDriver:         database.DriverPostgres,
		DBHost:           "localhost",
		DBPort:           5432,
		DBUser:           "postgres",
		DBName:           "todo_app_db",
		DBSSLMode:        "disable",
		DBPoolSize:       10,
		DBAcquireTimeout: 10 * time.Second,
		RedisPoolSize:    10,
		IdempotencyTTL:   24 * time.Hour,
		KafkaTopic:       "todo-events",
		KafkaPartitions:  3,
	}
}

// LoadEnvFile loads a .env file without overriding variables that are already set.
// A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return godotenv.Load(path)
}

// Load builds the config from defaults, the optional TOML file named by
// CONFIG_FILE, and then the environment.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg.HTTPPort = getEnv("PORT", cfg.HTTPPort)
	cfg.AppEnv = getEnv("APP_ENV", cfg.AppEnv)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.FrontendURL = getEnv("FRONTEND_URL", cfg.FrontendURL)

	cfg.DBDriver = getEnv("DB_DRIVER", cfg.DBDriver)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.DBHost = getEnv("DB_HOST", cfg.DBHost)
	cfg.DBPort = getIntEnv("DB_PORT", cfg.DBPort)
	cfg.DBUser = getEnv("DB_USER", cfg.DBUser)
	cfg.DBPassword = getEnv("DB_PASSWORD", cfg.DBPassword)
	cfg.DBName = getEnv("DB_NAME", cfg.DBName)
	cfg.DBSSLMode = getEnv("DB_SSLMODE", cfg.DBSSLMode)
	cfg.DBPoolSize = getIntEnv("DB_POOL_SIZE", cfg.DBPoolSize)
	cfg.DBAcquireTimeout = getDurationEnv("DB_ACQUIRE_TIMEOUT", cfg.DBAcquireTimeout)

	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.RedisPoolSize = getIntEnv("REDIS_POOL_SIZE", cfg.RedisPoolSize)
	cfg.IdempotencyTTL = getDurationEnv("IDEMPOTENCY_TTL", cfg.IdempotencyTTL)

	cfg.KafkaBrokers = getSliceEnv("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.KafkaPartitions = getIntEnv("KAFKA_PARTITIONS", cfg.KafkaPartitions)

	if cfg.DBDriver != database.DriverPostgres && cfg.DBDriver != database.DriverSQLite {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.DBPoolSize <= 0 {
		cfg.DBPoolSize = Defaults().DBPoolSize
	}
	return cfg, nil
}

// IsDevelopment reports whether error details may be returned to callers.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// DSN returns DATABASE_URL when set, otherwise a connection string built from
// the individual DB_* settings for the configured driver.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	if c.DBDriver == database.DriverSQLite {
		return "file:" + c.DBName + ".db?_busy_timeout=5000"
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort)),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": {c.DBSSLMode}}.Encode(),
	}
	if c.DBPassword != "" {
		u.User = url.UserPassword(c.DBUser, c.DBPassword)
	} else {
		u.User = url.User(c.DBUser)
	}
	return u.String()
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return defaultVal
}

func getSliceEnv(key string, defaultVal []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
