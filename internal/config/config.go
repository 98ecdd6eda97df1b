// Package config loads service configuration from a YAML file, environment
// variables (SHELFBOT_ prefix) and defaults, in that order of precedence
// from lowest to highest.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage mode selects the drive backend.
const (
	StorageYandex = "yandex"
	StorageLocal  = "local"
)

// Config is the full knob set, populated by Load.
type Config struct {
	BotToken          string
	AdminIDs          []int64
	AdminNotifyChatID int64

	StorageMode      string
	YandexOAuthToken string
	YandexBasePath   string
	LocalRoot        string

	DBPath   string
	RedisURL string
	QueueKey string

	AccessEnabled     bool
	AccessTTLDays     int
	AccessWarnBefore  time.Duration
	AccessWarnCheckIn time.Duration

	CatalogPageSize     int
	CatalogSyncInterval time.Duration
	CatalogSyncMaxNodes int

	NetRetryAttempts int
	NetRetryMaxWait  time.Duration

	LogLevel string
	LogFile  string

	HealthAddr string
}

// RootPath is the catalog root to sync: the remote base path in yandex
// mode, "/" in local mode.
func (c *Config) RootPath() string {
	if c.StorageMode == StorageLocal {
		return "/"
	}
	if c.YandexBasePath == "" {
		return "/"
	}
	return c.YandexBasePath
}

// Load reads the configuration. path may be empty; then only defaults and
// environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix("SHELFBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("bot-token", "")
	v.SetDefault("admin-ids", []int64{})
	v.SetDefault("admin-notify-chat-id", 0)

	v.SetDefault("storage-mode", StorageYandex)
	v.SetDefault("yandex-oauth-token", "")
	v.SetDefault("yandex-base-path", "/")
	v.SetDefault("local-root", "/data/storage")

	v.SetDefault("db-path", "shelfbot.db")
	v.SetDefault("redis-url", "redis://localhost:6379/0")
	v.SetDefault("queue-key", "shelfbot:jobs")

	v.SetDefault("access-enabled", false)
	v.SetDefault("access-default-ttl-days", 30)
	v.SetDefault("access-warn-before", "24h")
	v.SetDefault("access-warn-interval", "1h")

	v.SetDefault("catalog-page-size", 10)
	v.SetDefault("catalog-sync-interval", "0s")
	v.SetDefault("catalog-sync-max-nodes", 5000)

	v.SetDefault("net-retry-attempts", 3)
	v.SetDefault("net-retry-max-wait", "30s")

	v.SetDefault("log-level", "info")
	v.SetDefault("log-file", "")
	v.SetDefault("health-addr", ":8081")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		BotToken:          v.GetString("bot-token"),
		AdminNotifyChatID: v.GetInt64("admin-notify-chat-id"),

		StorageMode:      strings.ToLower(strings.TrimSpace(v.GetString("storage-mode"))),
		YandexOAuthToken: v.GetString("yandex-oauth-token"),
		YandexBasePath:   strings.TrimSpace(v.GetString("yandex-base-path")),
		LocalRoot:        v.GetString("local-root"),

		DBPath:   v.GetString("db-path"),
		RedisURL: v.GetString("redis-url"),
		QueueKey: v.GetString("queue-key"),

		AccessEnabled:     v.GetBool("access-enabled"),
		AccessTTLDays:     v.GetInt("access-default-ttl-days"),
		AccessWarnBefore:  v.GetDuration("access-warn-before"),
		AccessWarnCheckIn: v.GetDuration("access-warn-interval"),

		CatalogPageSize:     v.GetInt("catalog-page-size"),
		CatalogSyncInterval: v.GetDuration("catalog-sync-interval"),
		CatalogSyncMaxNodes: v.GetInt("catalog-sync-max-nodes"),

		NetRetryAttempts: v.GetInt("net-retry-attempts"),
		NetRetryMaxWait:  v.GetDuration("net-retry-max-wait"),

		LogLevel:   v.GetString("log-level"),
		LogFile:    v.GetString("log-file"),
		HealthAddr: v.GetString("health-addr"),
	}
	for _, id := range v.GetIntSlice("admin-ids") {
		cfg.AdminIDs = append(cfg.AdminIDs, int64(id))
	}
	return cfg, nil
}

// Validate checks the invariants a worker process needs. Fatal misconfig
// surfaces here rather than as a runtime surprise.
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("bot-token is required")
	}
	switch c.StorageMode {
	case StorageLocal:
		if c.LocalRoot == "" {
			return fmt.Errorf("local-root is required in local storage mode")
		}
	case StorageYandex:
		if c.YandexOAuthToken == "" {
			return fmt.Errorf("yandex-oauth-token is required in yandex storage mode")
		}
	default:
		return fmt.Errorf("unknown storage-mode %q", c.StorageMode)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db-path is required")
	}
	return nil
}
