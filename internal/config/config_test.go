package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_ValidJSON(t *testing.T) {
	path := writeConfig(t, `{
		"database_url": "postgres://localhost/board",
		"port": 9090,
		"job_snapshot_limit": 25,
		"resubscribe_initial": "250ms",
		"allowed_origins": ["http://localhost:5173"]
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "postgres://localhost/board", cfg.DatabaseURL)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 25, cfg.JobSnapshotLimit)
	assert.Equal(t, Duration(250*time.Millisecond), cfg.ResubscribeInitial)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.AllowedOrigins)
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `{ invalid json }`))
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config JSON")
}

func TestLoadConfig_BadDuration(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `{"resubscribe_max": "soon"}`))
	assert.Error(t, err)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.json")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "config path is empty")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `{"port": 9090, "job_snapshot_limit": 25}`)
	t.Setenv("PORT", "7070")
	t.Setenv("HIRING_BOARD_RESUBSCRIBE_MAX", "1m")
	t.Setenv("HIRING_BOARD_ALLOWED_ORIGINS", "http://a.test,http://b.test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, 25, cfg.JobSnapshotLimit, "unset variables keep file values")
	assert.Equal(t, Duration(time.Minute), cfg.ResubscribeMax)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, DefaultEnrichCacheSize, cfg.EnrichCacheSize)
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/board")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/board", cfg.DatabaseURL)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultJobSnapshotLimit, cfg.JobSnapshotLimit)
	assert.Equal(t, Duration(DefaultResubscribeInitial), cfg.ResubscribeInitial)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("PORT", "eighty")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse environment")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"defaults", Defaults(), ""},
		{"port too large", Config{Port: 70000}, "port"},
		{"negative limit", Config{JobSnapshotLimit: -1}, "job_snapshot_limit"},
		{"negative cache", Config{EnrichCacheSize: -1}, "enrich_cache_size"},
		{"negative interval", Config{ResubscribeInitial: -1}, "non-negative"},
		{
			"initial above max",
			Config{ResubscribeInitial: Duration(time.Minute), ResubscribeMax: Duration(time.Second)},
			"exceeds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMergeWithDefaults(t *testing.T) {
	cfg := &Config{Port: 9000, AllowedOrigins: []string{"http://x.test"}}
	defaults := Defaults()
	defaults.DatabaseURL = "postgres://default"
	defaults.AllowedOrigins = []string{"*"}

	merged := cfg.MergeWithDefaults(defaults)

	assert.Equal(t, 9000, merged.Port)
	assert.Equal(t, "postgres://default", merged.DatabaseURL)
	assert.Equal(t, DefaultJobSnapshotLimit, merged.JobSnapshotLimit)
	assert.Equal(t, []string{"http://x.test"}, merged.AllowedOrigins)
	assert.Equal(t, 0, cfg.JobSnapshotLimit, "receiver is not modified")
}
