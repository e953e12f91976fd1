// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dukerupert/haccp/internal/backup"
	"github.com/dukerupert/haccp/internal/logging"
)

const DefaultTokenURL = "https://oauth2.googleapis.com/token"

// Config holds everything the server and CLI read from the environment.
// The backup settings themselves (spreadsheet, service account, schedule,
// structures) live in the database.
type Config struct {
	Port      string
	DBPath    string
	LogLevel  string
	LogFormat string
	Location  *time.Location

	// TokenURL is used when the service account JSON has no token_uri.
	TokenURL string
	// SheetsEndpoint overrides the Sheets API base URL. Empty uses Google's.
	SheetsEndpoint string

	CallTimeout       time.Duration
	DocumentTimeout   time.Duration
	BackupConcurrency int

	Snapshot           backup.S3Config
	SnapshotPassphrase string

	Postmark PostmarkConfig

	// AdminToken, when set, is required as a bearer token on /api.
	AdminToken string

	// WebSocketOrigins are extra origin patterns allowed to open /ws.
	WebSocketOrigins []string
}

type PostmarkConfig struct {
	ServerToken string
	FromEmail   string
	AlertEmail  string
}

// Load reads a .env file in the working directory when present, then the
// environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return LoadFromEnv()
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Port:           getEnvOrDefault("HACCP_PORT", "8080"),
		DBPath:         getEnvOrDefault("HACCP_DB_PATH", "haccp.db"),
		LogLevel:       getEnvOrDefault("HACCP_LOG_LEVEL", "info"),
		LogFormat:      getEnvOrDefault("HACCP_LOG_FORMAT", "text"),
		TokenURL:       getEnvOrDefault("HACCP_TOKEN_URL", DefaultTokenURL),
		SheetsEndpoint: os.Getenv("HACCP_SHEETS_ENDPOINT"),
		Snapshot: backup.S3Config{
			Endpoint:  os.Getenv("HACCP_SNAPSHOT_S3_ENDPOINT"),
			Bucket:    os.Getenv("HACCP_SNAPSHOT_S3_BUCKET"),
			Region:    getEnvOrDefault("HACCP_SNAPSHOT_S3_REGION", "auto"),
			AccessKey: os.Getenv("HACCP_SNAPSHOT_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("HACCP_SNAPSHOT_S3_SECRET_KEY"),
		},
		SnapshotPassphrase: os.Getenv("HACCP_SNAPSHOT_PASSPHRASE"),
		Postmark: PostmarkConfig{
			ServerToken: os.Getenv("HACCP_POSTMARK_TOKEN"),
			FromEmail:   os.Getenv("HACCP_FROM_EMAIL"),
			AlertEmail:  os.Getenv("HACCP_ALERT_EMAIL"),
		},
		AdminToken:       os.Getenv("HACCP_ADMIN_TOKEN"),
		WebSocketOrigins: splitList(os.Getenv("HACCP_WS_ORIGINS")),
	}

	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("HACCP_LOG_LEVEL: %w", err)
	}

	var err error
	if cfg.Location, err = loadLocation(getEnvOrDefault("HACCP_TIMEZONE", "Local")); err != nil {
		return nil, err
	}
	if cfg.CallTimeout, err = getDuration("HACCP_CALL_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.DocumentTimeout, err = getDuration("HACCP_DOCUMENT_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.BackupConcurrency, err = getInt("HACCP_BACKUP_CONCURRENCY", 2); err != nil {
		return nil, err
	}
	if cfg.BackupConcurrency < 1 {
		return nil, fmt.Errorf("HACCP_BACKUP_CONCURRENCY must be at least 1, got %d", cfg.BackupConcurrency)
	}

	return cfg, nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("HACCP_TIMEZONE: %w", err)
	}
	return loc, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, raw)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
