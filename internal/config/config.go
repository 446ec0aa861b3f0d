package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the bot and supporting services.
type Config struct {
	BotToken    string
	DatabaseURL string

	ConnectTimeout    time.Duration
	IdleInTxTimeout   time.Duration
	ReconnectDelay    time.Duration
	MaxConnectRetries int

	CommissionPercent int
	ActiveOrderSweep  time.Duration

	AdminListenAddr string
	AdminUsername   string
	AdminPassword   string

	LogLevel string
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ConnectTimeout:    time.Second * time.Duration(getInt("DB_CONNECT_TIMEOUT_SECONDS", 10)),
		IdleInTxTimeout:   time.Second * time.Duration(getInt("DB_IDLE_IN_TX_TIMEOUT_SECONDS", 30)),
		ReconnectDelay:    time.Second * time.Duration(getInt("DB_RECONNECT_DELAY_SECONDS", 10)),
		MaxConnectRetries: getInt("DB_MAX_CONNECT_RETRIES", 3),
		CommissionPercent: getInt("REFERRAL_COMMISSION_PERCENT", 5),
		ActiveOrderSweep:  time.Second * time.Duration(getInt("ACTIVE_ORDER_SWEEP_SECONDS", 60)),
		AdminListenAddr:   getEnv("ADMIN_LISTEN_ADDR", ":8080"),
		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:     getEnv("ADMIN_PASSWORD", "change-me"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}

	cfg.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	var missing []string
	if cfg.BotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	// Running purely off the process environment is fine.
	return nil
}
