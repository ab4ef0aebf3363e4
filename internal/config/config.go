// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Storage drivers accepted in STORAGE_DRIVER.
const (
	StorageMySQL  = "mysql"
	StorageMemory = "memory"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable.
type Config struct {
	Env           string // APP_ENV (dev, test, prod)
	Port          string // APP_PORT
	LogLevel      string // LOG_LEVEL, default info
	StorageDriver string // STORAGE_DRIVER: mysql (default) or memory

	DBUser string // required for mysql
	DBPass string // empty allowed
	DBHost string
	DBPort string
	DBName string

	JWTSecret      string
	AccessTTLMin   int // access token TTL in minutes
	RefreshTTLDays int // refresh token TTL in days
	BcryptCost     int

	AdminLimitPerCity  int    // 0 disables the limit
	AdminCodesFile     string // optional YAML seed file
	TokenPurgeSchedule string // cron expression, empty disables the job

	RabbitURL      string // RABBITMQ_URL, empty disables publishing
	NotifyConsumer bool   // run the report.completed consumer in-process
	NotifyLogPath  string
}

// Load reads the configuration from the process environment. Missing or
// malformed required variables are fatal.
func Load() Config {
	cfg, err := Parse(os.LookupEnv)
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	return cfg
}

// Parse builds a Config from lookup, which has the signature of
// os.LookupEnv.
func Parse(lookup func(string) (string, bool)) (Config, error) {
	e := env{lookup: lookup}
	cfg := Config{
		Env:           e.must("APP_ENV"),
		Port:          e.must("APP_PORT"),
		LogLevel:      e.get("LOG_LEVEL", "info"),
		StorageDriver: strings.ToLower(e.get("STORAGE_DRIVER", StorageMySQL)),

		JWTSecret:      e.must("JWT_SECRET"),
		AccessTTLMin:   e.mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: e.mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:     e.mustInt("BCRYPT_COST"),

		AdminLimitPerCity:  e.intOr("ADMIN_LIMIT_PER_CITY", 0),
		AdminCodesFile:     e.get("ADMIN_CODES_FILE", ""),
		TokenPurgeSchedule: e.get("TOKEN_PURGE_SCHEDULE", "@every 1h"),

		RabbitURL:      e.get("RABBITMQ_URL", ""),
		NotifyConsumer: e.get("NOTIFY_CONSUMER", "false") == "true",
		NotifyLogPath:  e.get("NOTIFY_LOG_PATH", "logs/notifications.log"),
	}

	switch cfg.StorageDriver {
	case StorageMySQL:
		cfg.DBUser = e.must("DB_USER")
		cfg.DBPass = e.get("DB_PASS", "")
		cfg.DBHost = e.must("DB_HOST")
		cfg.DBPort = e.must("DB_PORT")
		cfg.DBName = e.must("DB_NAME")
	case StorageMemory:
	default:
		e.fail("STORAGE_DRIVER must be mysql or memory, got %q", cfg.StorageDriver)
	}
	if cfg.AdminLimitPerCity < 0 {
		e.fail("ADMIN_LIMIT_PER_CITY must not be negative")
	}

	if len(e.errs) > 0 {
		return Config{}, fmt.Errorf("config: %s", strings.Join(e.errs, "; "))
	}
	return cfg, nil
}

// env collects every problem instead of stopping at the first one.
type env struct {
	lookup func(string) (string, bool)
	errs   []string
}

func (e *env) fail(format string, args ...any) {
	e.errs = append(e.errs, fmt.Sprintf(format, args...))
}

func (e *env) get(key, def string) string {
	if v, ok := e.lookup(key); ok && v != "" {
		return v
	}
	return def
}

// must retrieves the value of a required variable.
func (e *env) must(key string) string {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		e.fail("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must but converts the value into an integer.
func (e *env) mustInt(key string) int {
	s := e.must(key)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		e.fail("invalid int for %s: %q", key, s)
	}
	return n
}

func (e *env) intOr(key string, def int) int {
	s := e.get(key, "")
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		e.fail("invalid int for %s: %q", key, s)
	}
	return n
}
