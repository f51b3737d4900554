package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupEnv sets the given environment variables for the duration of the test.
// An empty value unsets the variable.
func setupEnv(t *testing.T, envVars map[string]string) {
	t.Helper()
	for key, value := range envVars {
		t.Setenv(key, value)
		if value == "" {
			os.Unsetenv(key)
		}
	}
}

func serverEnv() map[string]string {
	return map[string]string{
		"BADGEHOUSE_API_KEY": "s3cret",
	}
}

func TestLoad_InvalidMode(t *testing.T) {
	cfg, err := Load("invalid-mode", nil)
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid mode")
}

func TestLoad_ServerDefaults(t *testing.T) {
	setupEnv(t, serverEnv())

	cfg, err := Load(ModeServer, nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.False(t, cfg.Debug)
	assert.Equal(t, "s3cret", cfg.APIKey)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "https://img.shields.io", cfg.Render.URL)
	assert.Equal(t, 5*time.Second, cfg.Render.Timeout)
	assert.Equal(t, 0, cfg.Render.Retries)
	assert.Equal(t, 4, cfg.Render.Concurrency)
	assert.Equal(t, StorageTypeFilesystem, cfg.Storage.Type)
	assert.Equal(t, "./badges", cfg.Storage.Root)
	assert.False(t, cfg.Storage.Index)
	assert.Equal(t, 0, cfg.Storage.CacheSize)
	assert.Equal(t, EventsTypeNone, cfg.Events.Type)
}

func TestLoad_ServerFromEnv(t *testing.T) {
	setupEnv(t, map[string]string{
		"BADGEHOUSE_PORT":               "9090",
		"BADGEHOUSE_DEBUG":              "true",
		"BADGEHOUSE_API_KEY":            "s3cret",
		"BADGEHOUSE_LOG_FORMAT":         "text",
		"BADGEHOUSE_RENDER_URL":         "http://shields.internal",
		"BADGEHOUSE_RENDER_TIMEOUT":     "2s",
		"BADGEHOUSE_RENDER_RETRIES":     "3",
		"BADGEHOUSE_STORAGE_TYPE":       "redis",
		"BADGEHOUSE_STORAGE_REDIS_ADDR": "redis:6379",
		"BADGEHOUSE_STORAGE_INDEX":      "true",
		"BADGEHOUSE_STORAGE_CACHE_SIZE": "256",
		"BADGEHOUSE_EVENTS_TYPE":        "inmemory",
	})

	cfg, err := Load(ModeServer, nil)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "http://shields.internal", cfg.Render.URL)
	assert.Equal(t, 2*time.Second, cfg.Render.Timeout)
	assert.Equal(t, 3, cfg.Render.Retries)
	assert.Equal(t, StorageTypeRedis, cfg.Storage.Type)
	assert.Equal(t, "redis:6379", cfg.Storage.RedisAddr)
	assert.True(t, cfg.Storage.Index)
	assert.Equal(t, 256, cfg.Storage.CacheSize)
	assert.Equal(t, EventsTypeInMemory, cfg.Events.Type)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	setupEnv(t, map[string]string{
		"BADGEHOUSE_API_KEY":      "s3cret",
		"BADGEHOUSE_PORT":         "9090",
		"BADGEHOUSE_STORAGE_ROOT": "/from/env",
	})

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 8080, "")
	flags.String("storage-root", "./badges", "")
	require.NoError(t, flags.Parse([]string{"--port", "7070"}))

	cfg, err := Load(ModeServer, flags)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Port, "explicit flag wins over env")
	assert.Equal(t, "/from/env", cfg.Storage.Root, "unset flag does not shadow env")
}

func TestLoad_ConfigFile(t *testing.T) {
	setupEnv(t, map[string]string{"BADGEHOUSE_STORAGE_ROOT": ""})

	path := filepath.Join(t.TempDir(), "badgehouse.yaml")
	content := "api_key: from-file\nstorage:\n  root: /srv/badges\n  cache_size: 64\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("config", "", "")
	require.NoError(t, flags.Parse([]string{"--config", path}))

	cfg, err := Load(ModeServer, flags)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.APIKey)
	assert.Equal(t, "/srv/badges", cfg.Storage.Root)
	assert.Equal(t, 64, cfg.Storage.CacheSize)
}

func TestLoad_InvalidPort(t *testing.T) {
	setupEnv(t, map[string]string{
		"BADGEHOUSE_API_KEY": "s3cret",
		"BADGEHOUSE_PORT":    "not-a-number",
	})

	cfg, err := Load(ModeServer, nil)
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_ServerErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing api key",
			env:     map[string]string{"BADGEHOUSE_API_KEY": ""},
			wantErr: "BADGEHOUSE_API_KEY is required",
		},
		{
			name:    "port out of range",
			env:     map[string]string{"BADGEHOUSE_API_KEY": "k", "BADGEHOUSE_PORT": "70000"},
			wantErr: "invalid port",
		},
		{
			name:    "unknown storage type",
			env:     map[string]string{"BADGEHOUSE_API_KEY": "k", "BADGEHOUSE_STORAGE_TYPE": "ftp"},
			wantErr: "invalid storage type",
		},
		{
			name:    "gcs without bucket",
			env:     map[string]string{"BADGEHOUSE_API_KEY": "k", "BADGEHOUSE_STORAGE_TYPE": "gcs"},
			wantErr: "BADGEHOUSE_STORAGE_GCS_BUCKET is required",
		},
		{
			name:    "minio without endpoint",
			env:     map[string]string{"BADGEHOUSE_API_KEY": "k", "BADGEHOUSE_STORAGE_TYPE": "minio"},
			wantErr: "BADGEHOUSE_STORAGE_MINIO_ENDPOINT is required",
		},
		{
			name: "minio without secret",
			env: map[string]string{
				"BADGEHOUSE_API_KEY":                  "k",
				"BADGEHOUSE_STORAGE_TYPE":             "minio",
				"BADGEHOUSE_STORAGE_MINIO_ENDPOINT":   "localhost:9000",
				"BADGEHOUSE_STORAGE_MINIO_ACCESS_KEY": "minioadmin",
			},
			wantErr: "BADGEHOUSE_STORAGE_MINIO_SECRET_KEY is required",
		},
		{
			name:    "negative cache size",
			env:     map[string]string{"BADGEHOUSE_API_KEY": "k", "BADGEHOUSE_STORAGE_CACHE_SIZE": "-1"},
			wantErr: "invalid storage cache size",
		},
		{
			name:    "zero render timeout",
			env:     map[string]string{"BADGEHOUSE_API_KEY": "k", "BADGEHOUSE_RENDER_TIMEOUT": "0s"},
			wantErr: "invalid render timeout",
		},
		{
			name:    "unknown events type",
			env:     map[string]string{"BADGEHOUSE_API_KEY": "k", "BADGEHOUSE_EVENTS_TYPE": "kafka"},
			wantErr: "invalid events type",
		},
		{
			name:    "pubsub events without project",
			env:     map[string]string{"BADGEHOUSE_API_KEY": "k", "BADGEHOUSE_EVENTS_TYPE": "pubsub"},
			wantErr: "BADGEHOUSE_EVENTS_PUBSUB_PROJECT_ID is required",
		},
		{
			name:    "invalid log format",
			env:     map[string]string{"BADGEHOUSE_API_KEY": "k", "BADGEHOUSE_LOG_FORMAT": "xml"},
			wantErr: "invalid log format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupEnv(t, tt.env)

			cfg, err := Load(ModeServer, nil)
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_WatcherMode(t *testing.T) {
	t.Run("requires a durable transport", func(t *testing.T) {
		setupEnv(t, map[string]string{"BADGEHOUSE_EVENTS_TYPE": "inmemory"})

		_, err := Load(ModeWatcher, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot be used in watcher mode")
	})

	t.Run("pubsub requires subscription", func(t *testing.T) {
		setupEnv(t, map[string]string{
			"BADGEHOUSE_EVENTS_TYPE":              "pubsub",
			"BADGEHOUSE_EVENTS_PUBSUB_PROJECT_ID": "my-project",
		})

		_, err := Load(ModeWatcher, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "BADGEHOUSE_EVENTS_PUBSUB_SUBSCRIPTION is required")
	})

	t.Run("redis", func(t *testing.T) {
		setupEnv(t, map[string]string{
			"BADGEHOUSE_EVENTS_TYPE":       "redis",
			"BADGEHOUSE_EVENTS_REDIS_ADDR": "redis:6379",
		})

		cfg, err := Load(ModeWatcher, nil)
		require.NoError(t, err)
		assert.Equal(t, "badgehouse-events", cfg.Events.RedisStream)
		assert.Equal(t, "badgehouse-watchers", cfg.Events.RedisGroup)
	})

	t.Run("does not need an api key", func(t *testing.T) {
		setupEnv(t, map[string]string{
			"BADGEHOUSE_API_KEY":                    "",
			"BADGEHOUSE_EVENTS_TYPE":                "pubsub",
			"BADGEHOUSE_EVENTS_PUBSUB_PROJECT_ID":   "my-project",
			"BADGEHOUSE_EVENTS_PUBSUB_SUBSCRIPTION": "badgehouse-watcher",
		})

		_, err := Load(ModeWatcher, nil)
		require.NoError(t, err)
	})
}

func TestLoad_PushMode(t *testing.T) {
	setupEnv(t, map[string]string{"BADGEHOUSE_API_KEY": ""})

	_, err := Load(ModePush, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BADGEHOUSE_API_KEY is required in push mode")

	setupEnv(t, map[string]string{
		"BADGEHOUSE_API_KEY": "s3cret",
		"BADGEHOUSE_SERVER":  "https://badges.example.com",
	})
	cfg, err := Load(ModePush, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://badges.example.com", cfg.Server)
}
