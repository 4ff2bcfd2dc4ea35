package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/AzielCF/az-publish/publishing/domain"
	"github.com/spf13/viper"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App        AppConfig
	Paths      PathsConfig
	Database   DatabaseConfig
	Valkey     ValkeyConfig
	Auth       AuthConfig
	Publishing PublishingConfig
	Reconciler ReconcilerConfig
	Relay      RelayConfig
	WorkerPool WorkerPoolConfig
}

type AppConfig struct {
	Version            string
	Port               string
	Debug              bool
	Environment        string
	BasePath           string
	TrustedProxies     []string
	BaseUrl            string
	CorsAllowedOrigins []string
	ServerID           string
}

type PathsConfig struct {
	BaseDir   string
	Storages  string
	Artifacts string
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string // File path for SQLite, DB Name for Postgres
	// URI, when set with the postgres driver, is opened through lib/pq.
	URI string
}

type ValkeyConfig struct {
	Enabled   bool
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

type AuthConfig struct {
	JWTSecret      string
	Issuer         string
	CallbackSecret string
}

type PublishingConfig struct {
	DefaultProviders       []string
	MediaRequiredProviders []string
	SweepInterval          time.Duration
	SweepBatch             int
	PreviewWait            time.Duration
	// ProviderEndpoints maps provider name -> HTTP endpoint of its adapter.
	ProviderEndpoints map[string]string
	IdentityBrokerURL string
	IdentityBrokerKey string
}

type ReconcilerConfig struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	StatusURL   string
	APIKey      string
}

type RelayConfig struct {
	PollInterval time.Duration
	Keepalive    time.Duration
	MaxDuration  time.Duration
}

type WorkerPoolConfig struct {
	Size      int
	QueueSize int
}

var defaultProviders = []string{"facebook", "instagram", "tiktok", "youtube", "pinterest", "threads"}

var mediaRequiredProviders = []string{"instagram", "pinterest", "tiktok", "youtube"}

// LoadConfig reads configuration from v (environment, .env, flags bound by cmd)
// and falls back to defaults.
func LoadConfig(v *viper.Viper) (*Config, error) {
	e := env{v: v}

	baseDir := e.str("APP_BASE_DIR", "storages")

	cors := []string{"http://localhost:3000", "http://localhost:5173"}
	if origins := e.list("APP_CORS_ALLOWED_ORIGINS"); len(origins) > 0 {
		cors = origins
	}

	appCfg := AppConfig{
		Version:            "v1.0.0",
		Port:               e.str("APP_PORT", "3000"),
		Debug:              e.boolean("APP_DEBUG", false),
		Environment:        e.str("APP_ENV", "development"),
		BasePath:           e.str("APP_BASE_PATH", ""),
		TrustedProxies:     e.list("APP_TRUSTED_PROXIES"),
		BaseUrl:            e.str("APP_BASE_URL", "http://localhost:3000"),
		CorsAllowedOrigins: cors,
		ServerID:           e.str("SERVER_ID", ""),
	}

	pathsCfg := PathsConfig{
		BaseDir:   baseDir,
		Storages:  baseDir,
		Artifacts: e.str("PATH_ARTIFACTS", filepath.Join(baseDir, "media", "tasks")),
	}

	dbCfg := DatabaseConfig{
		Driver:   e.str("DB_DRIVER", "sqlite"),
		Name:     e.str("DB_NAME", filepath.Join(pathsCfg.Storages, "publish.db")),
		Host:     e.str("DB_HOST", "localhost"),
		Port:     e.integer("DB_PORT", 5432),
		User:     e.str("DB_USER", "postgres"),
		Password: e.str("DB_PASSWORD", ""),
		URI:      e.str("DB_URI", ""),
	}

	vkCfg := ValkeyConfig{
		Enabled:   e.boolean("VALKEY_ENABLED", false),
		Address:   e.str("VALKEY_ADDRESS", "localhost:6379"),
		Password:  e.str("VALKEY_PASSWORD", ""),
		DB:        e.integer("VALKEY_DB", 0),
		KeyPrefix: e.str("VALKEY_KEY_PREFIX", "azpub:"),
	}

	authCfg := AuthConfig{
		JWTSecret:      e.str("AUTH_JWT_SECRET", ""),
		Issuer:         e.str("AUTH_JWT_ISSUER", "az-publish"),
		CallbackSecret: e.str("TASK_CALLBACK_SECRET", ""),
	}

	pubCfg := PublishingConfig{
		DefaultProviders:       defaultProviders,
		MediaRequiredProviders: mediaRequiredProviders,
		SweepInterval:          e.duration("PUBLISH_SWEEP_INTERVAL", 30*time.Second),
		SweepBatch:             e.integer("PUBLISH_SWEEP_BATCH", 25),
		PreviewWait:            e.duration("PUBLISH_PREVIEW_WAIT", 20*time.Second),
		ProviderEndpoints:      e.pairs("PUBLISH_PROVIDER_ENDPOINTS"),
		IdentityBrokerURL:      e.str("IDENTITY_BROKER_URL", ""),
		IdentityBrokerKey:      e.str("IDENTITY_BROKER_KEY", ""),
	}
	if p := e.list("PUBLISH_DEFAULT_PROVIDERS"); len(p) > 0 {
		pubCfg.DefaultProviders = domain.NormalizeProviders(p)
	}
	if p := e.list("PUBLISH_MEDIA_REQUIRED_PROVIDERS"); len(p) > 0 {
		pubCfg.MediaRequiredProviders = domain.NormalizeProviders(p)
	}

	recCfg := ReconcilerConfig{
		BaseDelay:   e.duration("TASK_POLL_BASE_DELAY", 5*time.Second),
		MaxDelay:    e.duration("TASK_POLL_MAX_DELAY", 30*time.Second),
		MaxAttempts: e.integer("TASK_POLL_MAX_ATTEMPTS", 40),
		StatusURL:   e.str("TASK_STATUS_URL", ""),
		APIKey:      e.str("TASK_API_KEY", ""),
	}

	relayCfg := RelayConfig{
		PollInterval: e.duration("RELAY_POLL_INTERVAL", time.Second),
		Keepalive:    e.duration("RELAY_KEEPALIVE", 15*time.Second),
		MaxDuration:  e.duration("RELAY_MAX_DURATION", 10*time.Minute),
	}

	cfg := &Config{
		App:        appCfg,
		Paths:      pathsCfg,
		Database:   dbCfg,
		Valkey:     vkCfg,
		Auth:       authCfg,
		Publishing: pubCfg,
		Reconciler: recCfg,
		Relay:      relayCfg,
		WorkerPool: WorkerPoolConfig{Size: e.integer("JOB_WORKER_POOL_SIZE", 8), QueueSize: e.integer("JOB_WORKER_QUEUE_SIZE", 256)},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Publishing.SweepBatch <= 0 {
		return fmt.Errorf("PUBLISH_SWEEP_BATCH must be positive")
	}
	if c.Relay.PollInterval <= 0 || c.Relay.MaxDuration <= 0 {
		return fmt.Errorf("relay intervals must be positive")
	}
	if c.App.Environment == "production" && strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required in production")
	}
	return nil
}

// Settings returns the per request view of the publishing configuration.
func (c *Config) Settings() domain.PublishSettings {
	return domain.PublishSettings{
		DefaultProviders:       c.Publishing.DefaultProviders,
		MediaRequiredProviders: c.Publishing.MediaRequiredProviders,
		PreviewWait:            c.Publishing.PreviewWait,
	}
}
