package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
// Nested keys use underscores, e.g. storage.root -> BADGEHOUSE_STORAGE_ROOT.
const EnvPrefix = "BADGEHOUSE"

// Mode represents the process being configured
type Mode string

const (
	ModeServer  Mode = "server"
	ModeWatcher Mode = "watcher"
	ModePush    Mode = "push"
)

// StorageType represents the badge storage backend to use
type StorageType string

const (
	StorageTypeFilesystem StorageType = "filesystem"
	StorageTypeGCS        StorageType = "gcs"
	StorageTypeMinio      StorageType = "minio"
	StorageTypeRedis      StorageType = "redis"
)

// EventsType represents the transport used for badge change events
type EventsType string

const (
	EventsTypeNone     EventsType = "none"
	EventsTypeInMemory EventsType = "inmemory"
	EventsTypeRedis    EventsType = "redis"
	EventsTypePubSub   EventsType = "pubsub"
)

// Config holds all configuration for badgehouse
type Config struct {
	// Port for the HTTP server
	Port int `mapstructure:"port"`

	// Debug enables verbose error responses (never in production)
	Debug bool `mapstructure:"debug"`

	// APIKey is the shared secret expected in the X-API-KEY header
	APIKey string `mapstructure:"api_key"`

	// Server is the base URL of a badgehouse server (push mode)
	Server string `mapstructure:"server"`

	Log     LogConfig     `mapstructure:"log"`
	Render  RenderConfig  `mapstructure:"render"`
	Storage StorageConfig `mapstructure:"storage"`
	Events  EventsConfig  `mapstructure:"events"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level"`

	// Format is json or text
	Format string `mapstructure:"format"`
}

// RenderConfig holds configuration of the external rendering service
type RenderConfig struct {
	URL         string        `mapstructure:"url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Retries     int           `mapstructure:"retries"`
	Concurrency int           `mapstructure:"concurrency"`
}

// StorageConfig holds badge storage configuration
type StorageConfig struct {
	Type StorageType `mapstructure:"type"`

	// Root is the badge directory of the filesystem backend
	Root string `mapstructure:"root"`

	// Prefix is prepended to object names (gcs, minio) and keys (redis)
	Prefix string `mapstructure:"prefix"`

	// Index keeps an in-memory presence map built at startup
	Index bool `mapstructure:"index"`

	// CacheSize is the number of badges kept in the LRU cache (0 disables it)
	CacheSize int `mapstructure:"cache_size"`

	// GCS configuration
	GCSBucket string `mapstructure:"gcs_bucket"`

	// MinIO configuration
	MinIOEndpoint  string `mapstructure:"minio_endpoint"`
	MinIOAccessKey string `mapstructure:"minio_access_key"`
	MinIOSecretKey string `mapstructure:"minio_secret_key"`
	MinIOBucket    string `mapstructure:"minio_bucket"`
	MinIOUseSSL    bool   `mapstructure:"minio_use_ssl"`

	// Redis configuration
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// EventsConfig holds badge change event configuration
type EventsConfig struct {
	Type EventsType `mapstructure:"type"`

	// Redis configuration
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisStream   string `mapstructure:"redis_stream"`
	RedisGroup    string `mapstructure:"redis_group"`

	// Pub/Sub configuration
	PubSubProjectID    string `mapstructure:"pubsub_project_id"`
	PubSubTopicID      string `mapstructure:"pubsub_topic_id"`
	PubSubSubscription string `mapstructure:"pubsub_subscription"`
}

// flagKeys maps command line flags to configuration keys.
// Flags missing from the set passed to Load are skipped.
var flagKeys = map[string]string{
	"port":         "port",
	"debug":        "debug",
	"api-key":      "api_key",
	"server":       "server",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"render-url":   "render.url",
	"storage-type": "storage.type",
	"storage-root": "storage.root",
	"events-type":  "events.type",
}

// Load loads configuration for the specified mode from, in order of
// precedence: explicitly set flags, BADGEHOUSE_* environment variables,
// the config file named by the "config" flag, and defaults.
func Load(mode Mode, flags *pflag.FlagSet) (*Config, error) {
	if err := validateMode(mode); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	if flags != nil {
		if err := bindFlags(flags, v); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
		if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("debug", false)
	v.SetDefault("api_key", "")
	v.SetDefault("server", "http://localhost:8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("render.url", "https://img.shields.io")
	v.SetDefault("render.timeout", 5*time.Second)
	v.SetDefault("render.retries", 0)
	v.SetDefault("render.concurrency", 4)

	v.SetDefault("storage.type", string(StorageTypeFilesystem))
	v.SetDefault("storage.root", "./badges")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("storage.index", false)
	v.SetDefault("storage.cache_size", 0)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.minio_endpoint", "")
	v.SetDefault("storage.minio_access_key", "")
	v.SetDefault("storage.minio_secret_key", "")
	v.SetDefault("storage.minio_bucket", "badgehouse")
	v.SetDefault("storage.minio_use_ssl", false)
	v.SetDefault("storage.redis_addr", "localhost:6379")
	v.SetDefault("storage.redis_password", "")
	v.SetDefault("storage.redis_db", 0)

	v.SetDefault("events.type", string(EventsTypeNone))
	v.SetDefault("events.redis_addr", "localhost:6379")
	v.SetDefault("events.redis_password", "")
	v.SetDefault("events.redis_db", 0)
	v.SetDefault("events.redis_stream", "badgehouse-events")
	v.SetDefault("events.redis_group", "badgehouse-watchers")
	v.SetDefault("events.pubsub_project_id", "")
	v.SetDefault("events.pubsub_topic_id", "badgehouse-events")
	v.SetDefault("events.pubsub_subscription", "")
}

func bindFlags(flags *pflag.FlagSet, v *viper.Viper) error {
	for flag, key := range flagKeys {
		f := flags.Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// validateMode validates that the mode is valid
func validateMode(mode Mode) error {
	switch mode {
	case ModeServer, ModeWatcher, ModePush:
		return nil
	default:
		return fmt.Errorf("invalid mode: %s (must be server, watcher, or push)", mode)
	}
}

// Validate validates the complete configuration for the specified mode
func (c *Config) Validate(mode Mode) error {
	if err := validateMode(mode); err != nil {
		return err
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Log.Format)
	}

	switch mode {
	case ModeServer:
		if c.Port < 1 || c.Port > 65535 {
			return fmt.Errorf("invalid port: %d (must be between 1 and 65535)", c.Port)
		}
		if c.APIKey == "" {
			return fmt.Errorf("%s_API_KEY is required in server mode", EnvPrefix)
		}
		if err := c.validateRender(); err != nil {
			return err
		}
		if err := c.validateStorage(); err != nil {
			return err
		}
		if err := c.validateEvents(mode); err != nil {
			return err
		}

	case ModeWatcher:
		if err := c.validateEvents(mode); err != nil {
			return err
		}
		switch c.Events.Type {
		case EventsTypeNone, EventsTypeInMemory:
			return fmt.Errorf("%s events cannot be used in watcher mode (must be redis or pubsub)", c.Events.Type)
		}

	case ModePush:
		if c.Server == "" {
			return fmt.Errorf("server URL is required in push mode")
		}
		if c.APIKey == "" {
			return fmt.Errorf("%s_API_KEY is required in push mode", EnvPrefix)
		}
	}

	return nil
}

func (c *Config) validateRender() error {
	if c.Render.URL == "" {
		return fmt.Errorf("%s_RENDER_URL is required", EnvPrefix)
	}
	if c.Render.Timeout <= 0 {
		return fmt.Errorf("invalid render timeout: %s (must be positive)", c.Render.Timeout)
	}
	if c.Render.Retries < 0 {
		return fmt.Errorf("invalid render retries: %d (must not be negative)", c.Render.Retries)
	}
	if c.Render.Concurrency < 1 {
		return fmt.Errorf("invalid render concurrency: %d (must be at least 1)", c.Render.Concurrency)
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.CacheSize < 0 {
		return fmt.Errorf("invalid storage cache size: %d (must not be negative)", c.Storage.CacheSize)
	}

	switch c.Storage.Type {
	case StorageTypeFilesystem:
		if c.Storage.Root == "" {
			return fmt.Errorf("%s_STORAGE_ROOT is required for filesystem storage", EnvPrefix)
		}
	case StorageTypeGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("%s_STORAGE_GCS_BUCKET is required for gcs storage", EnvPrefix)
		}
	case StorageTypeMinio:
		if c.Storage.MinIOEndpoint == "" {
			return fmt.Errorf("%s_STORAGE_MINIO_ENDPOINT is required for minio storage", EnvPrefix)
		}
		if c.Storage.MinIOAccessKey == "" {
			return fmt.Errorf("%s_STORAGE_MINIO_ACCESS_KEY is required for minio storage", EnvPrefix)
		}
		if c.Storage.MinIOSecretKey == "" {
			return fmt.Errorf("%s_STORAGE_MINIO_SECRET_KEY is required for minio storage", EnvPrefix)
		}
		if c.Storage.MinIOBucket == "" {
			return fmt.Errorf("%s_STORAGE_MINIO_BUCKET is required for minio storage", EnvPrefix)
		}
	case StorageTypeRedis:
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("%s_STORAGE_REDIS_ADDR is required for redis storage", EnvPrefix)
		}
	default:
		return fmt.Errorf("invalid storage type: %s", c.Storage.Type)
	}
	return nil
}

func (c *Config) validateEvents(mode Mode) error {
	switch c.Events.Type {
	case EventsTypeNone, EventsTypeInMemory:
	case EventsTypeRedis:
		if c.Events.RedisAddr == "" {
			return fmt.Errorf("%s_EVENTS_REDIS_ADDR is required for redis events", EnvPrefix)
		}
		if c.Events.RedisStream == "" {
			return fmt.Errorf("%s_EVENTS_REDIS_STREAM is required for redis events", EnvPrefix)
		}
		if mode == ModeWatcher && c.Events.RedisGroup == "" {
			return fmt.Errorf("%s_EVENTS_REDIS_GROUP is required in watcher mode", EnvPrefix)
		}
	case EventsTypePubSub:
		if c.Events.PubSubProjectID == "" {
			return fmt.Errorf("%s_EVENTS_PUBSUB_PROJECT_ID is required for pubsub events", EnvPrefix)
		}
		if c.Events.PubSubTopicID == "" {
			return fmt.Errorf("%s_EVENTS_PUBSUB_TOPIC_ID is required for pubsub events", EnvPrefix)
		}
		// Subscription is only needed by consumers
		if mode == ModeWatcher && c.Events.PubSubSubscription == "" {
			return fmt.Errorf("%s_EVENTS_PUBSUB_SUBSCRIPTION is required in watcher mode", EnvPrefix)
		}
	default:
		return fmt.Errorf("invalid events type: %s", c.Events.Type)
	}
	return nil
}
