package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventsite/internal/configstore"
)

var siteEnvVars = []string{
	"SITE_ENVIRONMENT", "SITE_HOST", "SITE_PORT", "SITE_CONFIG_FILE", "SITE_PASSWORD_FILE",
	"SITE_UPLOAD_DIR", "SITE_DATA_DIR", "SITE_HISTORY_DB", "SITE_HISTORY_KEEP", "SITE_DEFAULTS_FILE",
	"SITE_LOGS_DIRECTORY", "SITE_LOGS_DIRECTORY_DEV", "SITE_LOGS_DIRECTORY_PROD",
	"SITE_LOG_FILE_FORMAT", "SITE_TIME_ZONE", "SITE_DEBUG", "SITE_BOOTSTRAP_PASSWORD",
	"SITE_BCRYPT_COST", "SITE_SESSION_TTL", "SITE_CSRF_KEY", "SITE_SECURE_COOKIES",
	"SITE_MAX_UPLOAD_BYTES", "SITE_BACKUP_S3_BUCKET", "SITE_BACKUP_S3_KEY",
	"SITE_BACKUP_S3_REGION", "SITE_BACKUP_S3_ENDPOINT",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range siteEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearAllEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Environment)
	assert.Equal(t, "127.0.0.1:5000", cfg.Addr())
	assert.Equal(t, "config.ini", cfg.ConfigFile)
	assert.Equal(t, "password.txt", cfg.PasswordFile)
	assert.Equal(t, "static", cfg.UploadDir)
	assert.Equal(t, filepath.Join("data", "history.db"), cfg.HistoryDB)
	assert.True(t, cfg.HistoryEnabled())
	assert.False(t, cfg.BackupEnabled())
	assert.Equal(t, "Europe/Berlin", cfg.TimeZone)
	assert.Equal(t, "rave24", cfg.BootstrapPassword)
	assert.Equal(t, 12*time.Hour, cfg.SessionTTL)
	assert.Equal(t, int64(16*1024*1024), cfg.MaxUploadBytes)
	assert.Len(t, cfg.CSRFKey, 32)
	assert.False(t, cfg.SecureCookies)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	clearAllEnv(t)
	t.Setenv("SITE_ENVIRONMENT", "prod")
	t.Setenv("SITE_LOGS_DIRECTORY", "/var/log/generic")
	t.Setenv("SITE_LOGS_DIRECTORY_PROD", "/var/log/eventsite")
	t.Setenv("SITE_HISTORY_DB", "off")
	t.Setenv("SITE_CSRF_KEY", "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/var/log/eventsite", cfg.LogsDirectory)
	assert.True(t, cfg.SecureCookies)
	assert.False(t, cfg.HistoryEnabled())
	assert.Equal(t, byte(0x11), cfg.CSRFKey[1])
}

func TestLoadRejectsBadValues(t *testing.T) {
	for _, tc := range []struct {
		key, value string
	}{
		{"SITE_ENVIRONMENT", "staging"},
		{"SITE_SESSION_TTL", "forever"},
		{"SITE_HISTORY_KEEP", "many"},
		{"SITE_DEBUG", "maybe"},
		{"SITE_CSRF_KEY", "short"},
	} {
		t.Run(tc.key, func(t *testing.T) {
			clearAllEnv(t)
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadDefaultsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defaults.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
sections = ["SPONSORS"]

[[default]]
section = "HOME"
key = "text"
value = "Welcome to Summer Rave!"

[[default]]
section = "SPONSORS"
key = "main"
value = "Club Mate"
`), 0o644))

	sections, defaults, err := LoadDefaults(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"SPONSORS"}, sections)
	assert.Equal(t, []configstore.Default{
		{Section: "HOME", Key: "text", Value: "Welcome to Summer Rave!"},
		{Section: "SPONSORS", Key: "main", Value: "Club Mate"},
	}, defaults)
}

func TestLoadDefaultsFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defaults.toml")
	require.NoError(t, os.WriteFile(path, []byte("colour = \"red\"\n"), 0o644))
	_, _, err := LoadDefaults(path)
	assert.Error(t, err)
}
