package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"deltaframe/internal/storage"
)

const envPrefix = "DELTAFRAME"

var secretKeys = []string{
	"storage.s3.access_key",
	"storage.s3.secret_key",
	"storage.s3.session_token",
	"storage.s3.endpoint_url",
	"storage.minio.endpoint",
	"storage.minio.access_key",
	"storage.minio.secret_key",
	"storage.azure.account_name",
	"storage.azure.account_key",
	"storage.oss.endpoint",
	"storage.oss.access_key_id",
	"storage.oss.access_key_secret",
	"storage.cos.secret_id",
	"storage.cos.secret_key",
	"storage.cos.region",
	"catalog.host",
	"catalog.username",
	"catalog.password",
	"security.jwt_secret",
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Reader   ReaderConfig   `mapstructure:"reader"`
	Storage  storage.Config `mapstructure:"storage"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port" validate:"required,numeric"`
	Mode         string        `mapstructure:"mode" validate:"oneof=debug release test"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ReaderConfig tunes table resolution and frame computation
type ReaderConfig struct {
	Concurrency  int           `mapstructure:"concurrency" validate:"gte=0"`
	BatchSize    int           `mapstructure:"batch_size" validate:"gte=0"`
	CacheEnabled bool          `mapstructure:"cache_enabled"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	MaxReadRows  int           `mapstructure:"max_read_rows" validate:"gte=0"`
}

// CatalogConfig selects where registered tables are kept
type CatalogConfig struct {
	Driver   string `mapstructure:"driver" validate:"oneof=memory mysql"`
	Host     string `mapstructure:"host" validate:"required_if=Driver mysql"`
	Port     string `mapstructure:"port"`
	Database string `mapstructure:"database" validate:"required_if=Driver mysql"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type SecurityConfig struct {
	JWTSecret          string        `mapstructure:"jwt_secret" validate:"required_if=EnableAuth true"`
	JWTIssuer          string        `mapstructure:"jwt_issuer"`
	JWTExpiration      time.Duration `mapstructure:"jwt_expiration"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" validate:"gte=0"`
	RateLimitBurst     int           `mapstructure:"rate_limit_burst" validate:"gte=0"`
	EnableAuth         bool          `mapstructure:"enable_auth"`
	EnableRateLimit    bool          `mapstructure:"enable_rate_limit"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// Load reads the optional YAML file at path (or ./config.yaml,
// ./configs/config.yaml when path is empty), then DELTAFRAME_* environment
// variables, over the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	// DELTAFRAME_SERVER_PORT overrides server.port
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range secretKeys {
		// keys without a default are only read from the environment once bound
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the struct tags of cfg
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "5m")

	// Reader defaults
	v.SetDefault("reader.concurrency", 0)
	v.SetDefault("reader.batch_size", 1024)
	v.SetDefault("reader.cache_enabled", true)
	v.SetDefault("reader.cache_ttl", "5m")
	v.SetDefault("reader.max_read_rows", 100000)

	// Storage defaults
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.max_retries", 3)
	v.SetDefault("storage.hdfs.user", "hdfs")

	// Catalog defaults
	v.SetDefault("catalog.driver", "memory")
	v.SetDefault("catalog.port", "3306")
	v.SetDefault("catalog.database", "deltaframe")

	// Security defaults
	v.SetDefault("security.jwt_issuer", "deltaframe")
	v.SetDefault("security.jwt_expiration", "24h")
	v.SetDefault("security.rate_limit_per_minute", 600)
	v.SetDefault("security.rate_limit_burst", 50)
	v.SetDefault("security.enable_auth", false)
	v.SetDefault("security.enable_rate_limit", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
