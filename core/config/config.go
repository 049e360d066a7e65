package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App         AppConfig
	Paths       PathsConfig
	Database    DatabaseConfig
	Cache       CacheConfig
	Rehydrate   RehydrateConfig
	Fetch       FetchConfig
	ObjectStore ObjectStoreConfig
}

type AppConfig struct {
	Version   string
	Port      string
	Debug     bool
	BasicAuth []string
	BasePath  string
}

type PathsConfig struct {
	BaseDir string
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string // File path for SQLite, DB Name for Postgres
	ValkeyAddress   string
	ValkeyPassword  string
	ValkeyDB        int
	ValkeyKeyPrefix string
}

type CacheConfig struct {
	Store           string // memory | sqlite | gorm | valkey
	MaxSizeBytes    int64
	MaxAge          time.Duration
	AgeWeight       float64
	AccessWeight    float64
	SafetyMargin    float64
	CleanupInterval time.Duration
}

type RehydrateConfig struct {
	BatchSize  int
	BatchDelay time.Duration
	RearmDelay time.Duration
}

type FetchConfig struct {
	Timeout      time.Duration
	MaxBytes     int64
	MaxDimension int
	UserAgent    string
}

type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreGorm   = "gorm"
	StoreValkey = "valkey"
)

// Global provides access to the loaded configuration globally.
var Global *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_port", "3000")
	v.SetDefault("app_debug", false)
	v.SetDefault("app_basic_auth", "")
	v.SetDefault("app_base_path", "")
	v.SetDefault("app_base_dir", "storages")

	v.SetDefault("cache_store", StoreSQLite)
	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", 5432)
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_password", "")
	v.SetDefault("db_name", "")
	v.SetDefault("valkey_address", "localhost:6379")
	v.SetDefault("valkey_password", "")
	v.SetDefault("valkey_db", 0)
	v.SetDefault("valkey_key_prefix", "azmc:")

	v.SetDefault("cache_max_size", "50MiB")
	v.SetDefault("cache_max_age", "30d")
	v.SetDefault("cache_age_weight", 0.5)
	v.SetDefault("cache_access_weight", 0.5)
	v.SetDefault("cache_safety_margin", 0.2)
	v.SetDefault("cache_cleanup_interval", "1h")

	v.SetDefault("rehydrate_batch_size", 3)
	v.SetDefault("rehydrate_batch_delay", "1s")
	v.SetDefault("rehydrate_rearm_delay", "500ms")

	v.SetDefault("fetch_timeout", "15s")
	v.SetDefault("fetch_max_size", "20MiB")
	v.SetDefault("fetch_max_dimension", 0)
	v.SetDefault("fetch_user_agent", "az-mediacache/1.0")

	v.SetDefault("s3_endpoint", "")
	v.SetDefault("s3_access_key", "")
	v.SetDefault("s3_secret_key", "")
	v.SetDefault("s3_use_ssl", true)
	v.SetDefault("s3_region", "")
}

// LoadConfig reads .env (when present), the optional config file and the
// environment, in increasing order of precedence.
func LoadConfig(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !isNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	cfg, err := fromViper(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	Global = cfg
	return cfg, nil
}

func fromViper(v *viper.Viper) (*Config, error) {
	baseDir := v.GetString("app_base_dir")

	var basicAuth []string
	if raw := v.GetString("app_basic_auth"); raw != "" {
		basicAuth = strings.Split(raw, ",")
	}

	dbName := v.GetString("db_name")
	if dbName == "" {
		dbName = filepath.Join(baseDir, "mediacache.db")
	}

	p := parser{v: v}
	cfg := &Config{
		App: AppConfig{
			Version:   "v1.0.0",
			Port:      v.GetString("app_port"),
			Debug:     v.GetBool("app_debug"),
			BasicAuth: basicAuth,
			BasePath:  v.GetString("app_base_path"),
		},
		Paths: PathsConfig{BaseDir: baseDir},
		Database: DatabaseConfig{
			Driver:          v.GetString("db_driver"),
			Host:            v.GetString("db_host"),
			Port:            v.GetInt("db_port"),
			User:            v.GetString("db_user"),
			Password:        v.GetString("db_password"),
			Name:            dbName,
			ValkeyAddress:   v.GetString("valkey_address"),
			ValkeyPassword:  v.GetString("valkey_password"),
			ValkeyDB:        v.GetInt("valkey_db"),
			ValkeyKeyPrefix: v.GetString("valkey_key_prefix"),
		},
		Cache: CacheConfig{
			Store:           strings.ToLower(v.GetString("cache_store")),
			MaxSizeBytes:    p.bytes("cache_max_size"),
			MaxAge:          p.duration("cache_max_age"),
			AgeWeight:       v.GetFloat64("cache_age_weight"),
			AccessWeight:    v.GetFloat64("cache_access_weight"),
			SafetyMargin:    v.GetFloat64("cache_safety_margin"),
			CleanupInterval: p.duration("cache_cleanup_interval"),
		},
		Rehydrate: RehydrateConfig{
			BatchSize:  v.GetInt("rehydrate_batch_size"),
			BatchDelay: p.duration("rehydrate_batch_delay"),
			RearmDelay: p.duration("rehydrate_rearm_delay"),
		},
		Fetch: FetchConfig{
			Timeout:      p.duration("fetch_timeout"),
			MaxBytes:     p.bytes("fetch_max_size"),
			MaxDimension: v.GetInt("fetch_max_dimension"),
			UserAgent:    v.GetString("fetch_user_agent"),
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:  v.GetString("s3_endpoint"),
			AccessKey: v.GetString("s3_access_key"),
			SecretKey: v.GetString("s3_secret_key"),
			UseSSL:    v.GetBool("s3_use_ssl"),
			Region:    v.GetString("s3_region"),
		},
	}
	if p.err != nil {
		return nil, p.err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Cache,
		validation.Field(&c.Cache.Store, validation.Required, validation.In(StoreMemory, StoreSQLite, StoreGorm, StoreValkey)),
		validation.Field(&c.Cache.MaxSizeBytes, validation.Min(int64(0))),
		validation.Field(&c.Cache.AgeWeight, validation.Min(0.0)),
		validation.Field(&c.Cache.AccessWeight, validation.Min(0.0)),
		validation.Field(&c.Cache.SafetyMargin, validation.Min(0.0), validation.Max(0.95)),
	); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := validation.ValidateStruct(&c.Rehydrate,
		validation.Field(&c.Rehydrate.BatchSize, validation.Required, validation.Min(1)),
	); err != nil {
		return fmt.Errorf("rehydrate: %w", err)
	}
	if err := validation.ValidateStruct(&c.Database,
		validation.Field(&c.Database.Driver, validation.In("sqlite", "postgres")),
	); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	return validation.ValidateStruct(&c.Fetch,
		validation.Field(&c.Fetch.Timeout, validation.Required),
		validation.Field(&c.Fetch.MaxBytes, validation.Required, validation.Min(int64(1))),
		validation.Field(&c.Fetch.MaxDimension, validation.Min(0)),
	)
}
