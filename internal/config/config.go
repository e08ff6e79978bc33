// Package config handles application configuration from environment variables
// and the YAML supplier catalog.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"catalog_sync/internal/fetcher"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the application configuration.
type Config struct {
	DatabaseDriver   string
	DatabasePath     string
	DatabaseURL      string
	SuppliersFile    string
	LogLevel         string
	TelegramBotToken string
	AllowedUsers     []int64
	ReportChatID     int64
	FeedMaxBytes     int64
	FetchTimeout     time.Duration
	Archive          ArchiveConfig
}

// ArchiveConfig locates the S3 bucket receiving raw feed snapshots.
type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Enabled reports whether feed archiving is configured.
func (a ArchiveConfig) Enabled() bool {
	return a.Endpoint != ""
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	driver := strings.ToLower(envOrDefault("DATABASE_DRIVER", DriverSQLite))
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, driver)
	}

	dbURL := os.Getenv("DATABASE_URL")
	if driver == DriverPostgres && dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for the postgres driver")
	}

	var allowedUsers []int64
	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			allowedUsers = append(allowedUsers, uid)
		}
	}

	var reportChatID int64
	if raw := os.Getenv("REPORT_CHAT_ID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid REPORT_CHAT_ID %q: %w", raw, err)
		}
		reportChatID = id
	}

	maxBytes := int64(fetcher.DefaultMaxBytes)
	if raw := os.Getenv("FEED_MAX_BYTES"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid FEED_MAX_BYTES %q", raw)
		}
		maxBytes = n
	}

	var fetchTimeout time.Duration
	if raw := os.Getenv("FETCH_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("invalid FETCH_TIMEOUT %q", raw)
		}
		fetchTimeout = d
	}

	archive := ArchiveConfig{
		Endpoint:  os.Getenv("ARCHIVE_S3_ENDPOINT"),
		AccessKey: os.Getenv("ARCHIVE_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("ARCHIVE_S3_SECRET_KEY"),
		Bucket:    os.Getenv("ARCHIVE_S3_BUCKET"),
		Region:    os.Getenv("ARCHIVE_S3_REGION"),
		UseSSL:    true,
	}
	if raw := os.Getenv("ARCHIVE_S3_USE_SSL"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid ARCHIVE_S3_USE_SSL %q: %w", raw, err)
		}
		archive.UseSSL = v
	}
	if archive.Enabled() && archive.Bucket == "" {
		return nil, fmt.Errorf("ARCHIVE_S3_BUCKET is required when ARCHIVE_S3_ENDPOINT is set")
	}

	return &Config{
		DatabaseDriver:   driver,
		DatabasePath:     envOrDefault("DATABASE_PATH", "./data/catalog.db"),
		DatabaseURL:      dbURL,
		SuppliersFile:    envOrDefault("SUPPLIERS_FILE", "./suppliers.yaml"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		AllowedUsers:     allowedUsers,
		ReportChatID:     reportChatID,
		FeedMaxBytes:     maxBytes,
		FetchTimeout:     fetchTimeout,
		Archive:          archive,
	}, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
