// internal/config/config.go
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"eventsite/internal/logger"
)

// Config holds every runtime setting. Values come from the environment,
// optionally seeded from a .env file.
type Config struct {
	Environment string // SITE_ENVIRONMENT (dev or prod, default dev)
	Host        string // SITE_HOST (default 127.0.0.1)
	Port        string // SITE_PORT (default 5000)

	ConfigFile   string // SITE_CONFIG_FILE (default config.ini)
	PasswordFile string // SITE_PASSWORD_FILE (default password.txt)
	UploadDir    string // SITE_UPLOAD_DIR (default static)
	DataDir      string // SITE_DATA_DIR (default data)
	HistoryDB    string // SITE_HISTORY_DB (default <data dir>/history.db, "off" disables)
	HistoryKeep  int    // SITE_HISTORY_KEEP (default 200)
	DefaultsFile string // SITE_DEFAULTS_FILE (optional TOML overlay)

	LogsDirectory string // SITE_LOGS_DIRECTORY_<ENV> (empty = console only)
	LogFileFormat string // SITE_LOG_FILE_FORMAT_<ENV> (default eventsite_%s.log)
	TimeZone      string // SITE_TIME_ZONE (default Europe/Berlin)
	Debug         bool   // SITE_DEBUG

	BootstrapPassword string        // SITE_BOOTSTRAP_PASSWORD (default rave24)
	BcryptCost        int           // SITE_BCRYPT_COST (default 12)
	SessionTTL        time.Duration // SITE_SESSION_TTL (default 12h)
	CSRFKey           []byte        // SITE_CSRF_KEY (64 hex chars; random when unset)
	SecureCookies     bool          // SITE_SECURE_COOKIES (default true in prod)
	MaxUploadBytes    int64         // SITE_MAX_UPLOAD_BYTES (default 16 MiB)

	BackupS3Bucket   string // SITE_BACKUP_S3_BUCKET (enables S3 backup when set)
	BackupS3Key      string // SITE_BACKUP_S3_KEY (default eventsite/config.ini)
	BackupS3Region   string // SITE_BACKUP_S3_REGION (default eu-central-1)
	BackupS3Endpoint string // SITE_BACKUP_S3_ENDPOINT (custom endpoint for MinIO)
}

// =============================================================================
// UTILITY HELPERS
// =============================================================================

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Environment returns the SITE_ENVIRONMENT value, "dev" when unset.
func Environment() string {
	env := strings.ToLower(os.Getenv("SITE_ENVIRONMENT"))
	if env == "" {
		env = "dev"
	}
	return env
}

// GetEnvBasedSetting reads <base>_<ENV>, falling back to <base>.
func GetEnvBasedSetting(base string) string {
	if v := os.Getenv(fmt.Sprintf("%s_%s", base, strings.ToUpper(Environment()))); v != "" {
		return v
	}
	return os.Getenv(base)
}

// LogCurrentEnvironment logs which environment is running.
func LogCurrentEnvironment() {
	if Environment() == "dev" {
		logger.LogInfo("Running in development environment")
	} else {
		logger.LogInfo("Running in production environment")
	}
}

// =============================================================================
// LOADERS
// =============================================================================

// LoadEnv reads a .env file from the working directory if there is one.
func LoadEnv() {
	wd, err := os.Getwd()
	if err != nil {
		log.Printf("Could not determine working directory: %v", err)
	}

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("No .env file found in %s. Using system environment variables.", wd)
	} else {
		log.Printf("Loaded environment variables from .env file in %s", wd)
	}
}

// Load builds the Config from the environment.
func Load() (*Config, error) {
	env := Environment()
	if env != "dev" && env != "prod" {
		return nil, fmt.Errorf("SITE_ENVIRONMENT: unknown environment %q (must be dev or prod)", env)
	}

	c := &Config{
		Environment:       env,
		Host:              envOrDefault("SITE_HOST", "127.0.0.1"),
		Port:              envOrDefault("SITE_PORT", "5000"),
		ConfigFile:        envOrDefault("SITE_CONFIG_FILE", "config.ini"),
		PasswordFile:      envOrDefault("SITE_PASSWORD_FILE", "password.txt"),
		UploadDir:         envOrDefault("SITE_UPLOAD_DIR", "static"),
		DataDir:           envOrDefault("SITE_DATA_DIR", "data"),
		DefaultsFile:      os.Getenv("SITE_DEFAULTS_FILE"),
		LogsDirectory:     GetEnvBasedSetting("SITE_LOGS_DIRECTORY"),
		LogFileFormat:     GetEnvBasedSetting("SITE_LOG_FILE_FORMAT"),
		TimeZone:          envOrDefault("SITE_TIME_ZONE", "Europe/Berlin"),
		BootstrapPassword: envOrDefault("SITE_BOOTSTRAP_PASSWORD", "rave24"),
		BackupS3Bucket:    os.Getenv("SITE_BACKUP_S3_BUCKET"),
		BackupS3Key:       envOrDefault("SITE_BACKUP_S3_KEY", "eventsite/config.ini"),
		BackupS3Region:    envOrDefault("SITE_BACKUP_S3_REGION", "eu-central-1"),
		BackupS3Endpoint:  os.Getenv("SITE_BACKUP_S3_ENDPOINT"),
	}
	c.HistoryDB = envOrDefault("SITE_HISTORY_DB", filepath.Join(c.DataDir, "history.db"))

	var err error
	if c.Debug, err = parseBool("SITE_DEBUG", false); err != nil {
		return nil, err
	}
	if c.SecureCookies, err = parseBool("SITE_SECURE_COOKIES", env == "prod"); err != nil {
		return nil, err
	}
	if c.HistoryKeep, err = parseInt("SITE_HISTORY_KEEP", 200); err != nil {
		return nil, err
	}
	if c.BcryptCost, err = parseInt("SITE_BCRYPT_COST", 12); err != nil {
		return nil, err
	}
	maxUpload, err := parseInt("SITE_MAX_UPLOAD_BYTES", 16*1024*1024)
	if err != nil {
		return nil, err
	}
	c.MaxUploadBytes = int64(maxUpload)

	ttl := envOrDefault("SITE_SESSION_TTL", "12h")
	if c.SessionTTL, err = time.ParseDuration(ttl); err != nil {
		return nil, fmt.Errorf("SITE_SESSION_TTL: %w", err)
	}

	if key := os.Getenv("SITE_CSRF_KEY"); key != "" {
		c.CSRFKey, err = hex.DecodeString(key)
		if err != nil || len(c.CSRFKey) != 32 {
			return nil, fmt.Errorf("SITE_CSRF_KEY must be 64 hex characters")
		}
	} else {
		c.CSRFKey = make([]byte, 32)
		if _, err := rand.Read(c.CSRFKey); err != nil {
			return nil, fmt.Errorf("generate CSRF key: %w", err)
		}
	}

	return c, nil
}

// LoggerConfig returns a logger.Config populated from c.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		LogsDirectory: c.LogsDirectory,
		LogFileFormat: c.LogFileFormat,
		TimeZone:      c.TimeZone,
		Debug:         c.Debug,
	}
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// HistoryEnabled reports whether revisions are recorded.
func (c *Config) HistoryEnabled() bool {
	return c.HistoryDB != "" && c.HistoryDB != "off"
}

// BackupEnabled reports whether S3 backup is configured.
func (c *Config) BackupEnabled() bool {
	return c.BackupS3Bucket != ""
}

func parseBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func parseInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
