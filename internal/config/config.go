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
	App struct {
		ENV string
	}

	Log struct {
		Level     string
		Format    string
		Component string
		Source    bool
	}

	DB struct {
		Driver     string
		DSN        string
		Host       string
		Port       string
		User       string
		Password   string
		Name       string
		SQLitePath string
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	HTTP struct {
		Host string
		Port string
	}

	GRPC struct {
		Host string
		Port string
	}

	Access struct {
		BioLimit int
	}

	Unlock struct {
		PriceCents int64
		// Duration of a purchased unlock. Zero means permanent.
		Duration time.Duration
	}

	Notify struct {
		DebounceWindow time.Duration
	}

	Rewards struct {
		FreeSpinCooldown   time.Duration
		PaidSpinPriceCents int64
		CatalogueFile      string
	}

	Payments struct {
		URL      string
		APIKey   string
		Currency string
		Timeout  time.Duration
	}

	Push struct {
		URL     string
		APIKey  string
		Timeout time.Duration
	}

	Secrets struct {
		Webhook string
		Trigger string
		Admin   string
	}
}

func New() *Config {
	// .env is optional; real environment always wins.
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.App.ENV = getEnvDefault("APP_ENV", "production")

	// Logger
	cfg.Log.Level = getEnvDefault("LOG_LEVEL", "info")
	cfg.Log.Format = getEnvDefault("LOG_FORMAT", "text")
	cfg.Log.Component = getEnvDefault("LOG_COMPONENT", "engagement")
	cfg.Log.Source = isTruthy(os.Getenv("LOG_SOURCE"))

	// Database
	cfg.DB.Driver = strings.ToLower(getEnvDefault("DB_DRIVER", "mysql"))
	cfg.DB.SQLitePath = getEnvDefault("SQLITE_PATH", "engagement.db")
	cfg.DB.DSN = os.Getenv("MYSQL_DSN")
	if cfg.DB.DSN == "" {
		cfg.DB.Host = getEnvDefault("DB_HOST", "localhost")
		cfg.DB.Port = getEnvDefault("DB_PORT", "3306")
		cfg.DB.User = getEnvDefault("DB_USER", "root")
		cfg.DB.Password = getEnvDefault("DB_PASSWORD", "root")
		cfg.DB.Name = getEnvDefault("DB_NAME", "muzz")

		cfg.DB.DSN = fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
			cfg.DB.User, cfg.DB.Password, cfg.DB.Host, cfg.DB.Port, cfg.DB.Name,
		)
	}

	// Redis
	cfg.Redis.Addr = getEnvDefault("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvDefault("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	// HTTP + gRPC health
	cfg.HTTP.Host = getEnvDefault("HTTP_HOST", "127.0.0.1")
	cfg.HTTP.Port = getEnvDefault("HTTP_PORT", "8080")
	cfg.GRPC.Host = getEnvDefault("GRPC_HOST", "127.0.0.1")
	cfg.GRPC.Port = getEnvDefault("GRPC_PORT", "50051")

	// Engine policy
	cfg.Access.BioLimit = getEnvInt("ACCESS_BIO_LIMIT", 120)
	cfg.Unlock.PriceCents = int64(getEnvInt("UNLOCK_PRICE_CENTS", 499))
	cfg.Unlock.Duration = getEnvDuration("UNLOCK_DURATION", 0)
	cfg.Notify.DebounceWindow = getEnvDuration("DEBOUNCE_WINDOW", 10*time.Minute)
	cfg.Rewards.FreeSpinCooldown = getEnvDuration("FREE_SPIN_COOLDOWN", 24*time.Hour)
	cfg.Rewards.PaidSpinPriceCents = int64(getEnvInt("PAID_SPIN_PRICE_CENTS", 99))
	cfg.Rewards.CatalogueFile = getEnvDefault("REWARDS_CATALOGUE_FILE", "")

	// External collaborators
	cfg.Payments.URL = getEnvDefault("PAYMENTS_URL", "")
	cfg.Payments.APIKey = getEnvDefault("PAYMENTS_API_KEY", "")
	cfg.Payments.Currency = strings.ToUpper(getEnvDefault("CURRENCY", "USD"))
	cfg.Payments.Timeout = getEnvDuration("PAYMENTS_TIMEOUT", 10*time.Second)
	cfg.Push.URL = getEnvDefault("PUSH_GATEWAY_URL", "")
	cfg.Push.APIKey = getEnvDefault("PUSH_API_KEY", "")
	cfg.Push.Timeout = getEnvDuration("PUSH_TIMEOUT", 5*time.Second)

	cfg.Secrets.Webhook = getEnvDefault("WEBHOOK_SECRET", "")
	cfg.Secrets.Trigger = getEnvDefault("TRIGGER_SECRET", "")
	cfg.Secrets.Admin = getEnvDefault("ADMIN_TOKEN", "")

	return cfg
}

func getEnvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

// getEnvDuration accepts Go duration strings ("10m", "24h").
// Invalid or negative values fall back to def.
func getEnvDuration(k string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			return d
		}
	}
	return def
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
