package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig holds synchronization settings.
type AppConfig struct {
	ZoneID            string        `mapstructure:"zone_id"`
	ImportConcurrency int           `mapstructure:"import_concurrency"`
	RemoteTimeout     time.Duration `mapstructure:"remote_timeout"`
	DefaultTTL        int           `mapstructure:"default_ttl"`
}

// LoggingConfig holds the logging-related configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

// EtcdConfig holds etcd-related configuration.
type EtcdConfig struct {
	Endpoints         []string `mapstructure:"endpoints"`
	DialTimeout       float64  `mapstructure:"dial_timeout"`
	PathPrefix        string   `mapstructure:"path_prefix"`
	LockPrefix        string   `mapstructure:"lock_prefix"`
	LockTTL           float64  `mapstructure:"lock_ttl"`
	LockTimeout       float64  `mapstructure:"lock_timeout"`
	LockRetryInterval float64  `mapstructure:"lock_retry_interval"`
	MaxTxnOps         int      `mapstructure:"max_txn_ops"`
}

// SQLConfig holds the gorm store configuration.
type SQLConfig struct {
	Dialect     string `mapstructure:"dialect"`
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
	BatchSize   int    `mapstructure:"batch_size"`
}

// Route53Config holds AWS credentials for the route53 provider. Empty
// credentials fall back to the default AWS credential chain.
type Route53Config struct {
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Endpoint        string `mapstructure:"endpoint"`
}

// CloudflareConfig holds Cloudflare credentials. APIToken takes precedence
// over the legacy APIKey/APIEmail pair.
type CloudflareConfig struct {
	APIToken string `mapstructure:"api_token"`
	APIKey   string `mapstructure:"api_key"`
	APIEmail string `mapstructure:"api_email"`
}

// ProviderConfig is passed to the remote DNS client at construction.
type ProviderConfig struct {
	Name       string           `mapstructure:"name"`
	ZoneID     string           `mapstructure:"-"`
	Route53    Route53Config    `mapstructure:"route53"`
	Cloudflare CloudflareConfig `mapstructure:"cloudflare"`
}

// HTTPConfig holds the HTTP surface configuration.
type HTTPConfig struct {
	ListenAddress  string `mapstructure:"listen_address"`
	JWTSecret      string `mapstructure:"jwt_secret"`
	OwnerClaim     string `mapstructure:"owner_claim"`
	UploadDir      string `mapstructure:"upload_dir"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

// Config is the top-level configuration struct.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  LoggingConfig  `mapstructure:"log"`
	Store    StoreConfig    `mapstructure:"store"`
	Etcd     EtcdConfig     `mapstructure:"etcd"`
	SQL      SQLConfig      `mapstructure:"sql"`
	Provider ProviderConfig `mapstructure:"provider"`
	HTTP     HTTPConfig     `mapstructure:"http"`
}

// SetDefaults registers the default value of every setting on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.zone_id", "")
	v.SetDefault("app.import_concurrency", 4)
	v.SetDefault("app.remote_timeout", 10*time.Second)
	v.SetDefault("app.default_ttl", 3600)
	v.SetDefault("log.level", "INFO")
	v.SetDefault("store.backend", "memory")
	v.SetDefault("etcd.endpoints", []string{"localhost:2379"})
	v.SetDefault("etcd.dial_timeout", 2.0)
	v.SetDefault("etcd.path_prefix", "/dns-record-sync/records")
	v.SetDefault("etcd.lock_prefix", "/dns-record-sync/locks")
	v.SetDefault("etcd.lock_ttl", 10.0)
	v.SetDefault("etcd.lock_timeout", 5.0)
	v.SetDefault("etcd.lock_retry_interval", 0.1)
	v.SetDefault("etcd.max_txn_ops", 128)
	v.SetDefault("sql.dialect", "sqlite")
	v.SetDefault("sql.dsn", "dns-records.db")
	v.SetDefault("sql.auto_migrate", true)
	v.SetDefault("sql.batch_size", 100)
	v.SetDefault("provider.name", "memory")
	v.SetDefault("provider.route53.region", "us-east-1")
	v.SetDefault("http.listen_address", ":5000")
	v.SetDefault("http.owner_claim", "userId")
	v.SetDefault("http.upload_dir", "uploads")
	v.SetDefault("http.max_upload_bytes", 10<<20)
}

// InitConfig performs the initial configuration: setting defaults, specifying the config file, and reading it.
func InitConfig(v *viper.Viper, configFile string) error {
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config") // Looks for config.yaml
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// If the file is not found, just continue with defaults and env vars.
	}

	v.SetEnvPrefix("DNS_SYNC")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return nil
}

// Load unmarshals the configuration into the Config struct.
func Load(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	config.Provider.ZoneID = config.App.ZoneID
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings the application cannot run with.
func (c *Config) Validate() error {
	if c.App.ImportConcurrency <= 0 {
		return fmt.Errorf("app.import_concurrency must be positive, got %d", c.App.ImportConcurrency)
	}
	if c.App.RemoteTimeout <= 0 {
		return fmt.Errorf("app.remote_timeout must be positive, got %s", c.App.RemoteTimeout)
	}
	if c.App.DefaultTTL <= 0 {
		return fmt.Errorf("app.default_ttl must be positive, got %d", c.App.DefaultTTL)
	}
	if c.Provider.Name != "memory" && c.App.ZoneID == "" {
		return fmt.Errorf("app.zone_id is required for provider %q", c.Provider.Name)
	}
	switch c.Store.Backend {
	case "memory", "etcd", "sql":
	default:
		return fmt.Errorf("unsupported store backend %q", c.Store.Backend)
	}
	return nil
}
