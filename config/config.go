package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultAppUserPassword is the application secret used when no external
// secret source is configured.
const DefaultAppUserPassword = "elise_can_open_doors"

// Supported secret providers
const (
	SecretProviderConfig = "config"
	SecretProviderEnv    = "env"
	SecretProviderVault  = "vault"
	SecretProviderAWS    = "aws"
)

// Config holds all configuration for a bootstrap run
type Config struct {
	MongoDB struct {
		URI              string        `mapstructure:"uri"`
		Database         string        `mapstructure:"database"`
		ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
		OperationTimeout time.Duration `mapstructure:"operation_timeout"`
		ConnectRetries   int           `mapstructure:"connect_retries"`
		MaxPoolSize      uint64        `mapstructure:"max_pool_size"`
	} `mapstructure:"mongodb"`

	AppUser struct {
		Password string `mapstructure:"password"`
	} `mapstructure:"app_user"`

	Plan struct {
		File string `mapstructure:"file"` // empty = built-in elise_db layout
	} `mapstructure:"plan"`

	Secrets struct {
		Provider string `mapstructure:"provider"` // config, env, vault, aws
		Vault    struct {
			Address string `mapstructure:"address"`
			Token   string `mapstructure:"token"`
			Path    string `mapstructure:"path"`
			Key     string `mapstructure:"key"`
		} `mapstructure:"vault"`
		AWS struct {
			Region    string `mapstructure:"region"`
			AccessKey string `mapstructure:"access_key"`
			SecretKey string `mapstructure:"secret_key"`
			SecretID  string `mapstructure:"secret_id"`
			Key       string `mapstructure:"key"`
			Endpoint  string `mapstructure:"endpoint"`
		} `mapstructure:"aws"`
	} `mapstructure:"secrets"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"` // console or json
	} `mapstructure:"log"`

	Metrics struct {
		PushgatewayURL string `mapstructure:"pushgateway_url"`
		Job            string `mapstructure:"job"`
	} `mapstructure:"metrics"`

	Tracing struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"tracing"`
}

func setDefaults() {
	viper.SetDefault("mongodb.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongodb.database", "elise_db")
	viper.SetDefault("mongodb.connect_timeout", 10*time.Second)
	viper.SetDefault("mongodb.operation_timeout", 30*time.Second)
	viper.SetDefault("mongodb.connect_retries", 0)
	viper.SetDefault("mongodb.max_pool_size", 4)
	viper.SetDefault("app_user.password", DefaultAppUserPassword)
	viper.SetDefault("plan.file", "")
	viper.SetDefault("secrets.provider", SecretProviderConfig)
	viper.SetDefault("secrets.vault.address", "")
	viper.SetDefault("secrets.vault.token", "")
	viper.SetDefault("secrets.vault.path", "secret/elisedb")
	viper.SetDefault("secrets.vault.key", "password")
	viper.SetDefault("secrets.aws.region", "us-east-1")
	viper.SetDefault("secrets.aws.access_key", "")
	viper.SetDefault("secrets.aws.secret_key", "")
	viper.SetDefault("secrets.aws.secret_id", "elisedb/app-user")
	viper.SetDefault("secrets.aws.key", "password")
	viper.SetDefault("secrets.aws.endpoint", "")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("metrics.pushgateway_url", "")
	viper.SetDefault("metrics.job", "elisedb_bootstrap")
	viper.SetDefault("tracing.enabled", false)
}

func loadFromEnv() {
	viper.SetEnvPrefix("ELISEDB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// mongodb.uri carries administrative credentials, so it never falls back
	// to the application's MONGO_URI.
	_ = viper.BindEnv("mongodb.uri", "ELISEDB_MONGODB_URI")
	// Shorter names used by container images
	_ = viper.BindEnv("mongodb.database", "ELISEDB_MONGODB_DATABASE", "MONGO_DB_NAME")
	_ = viper.BindEnv("secrets.vault.token", "ELISEDB_SECRETS_VAULT_TOKEN", "VAULT_TOKEN")
}

// LoadConfig reads configuration from configFile (or config.yaml in . and
// ./config when empty), environment variables and defaults, then validates it.
func LoadConfig(configFile string) (*Config, error) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		// An explicitly named file must exist; otherwise defaults and env vars apply
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || configFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// validateConfig validates the configuration for correctness
func validateConfig(config *Config) error {
	if !strings.HasPrefix(config.MongoDB.URI, "mongodb://") && !strings.HasPrefix(config.MongoDB.URI, "mongodb+srv://") {
		return fmt.Errorf("invalid MongoDB URI: must start with mongodb:// or mongodb+srv://")
	}
	parsed, err := url.Parse(config.MongoDB.URI)
	if err != nil {
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid MongoDB URI: missing host")
	}
	if config.MongoDB.Database == "" {
		return fmt.Errorf("MongoDB database cannot be empty")
	}
	if config.MongoDB.ConnectTimeout <= 0 {
		return fmt.Errorf("mongodb.connect_timeout must be positive, got %v", config.MongoDB.ConnectTimeout)
	}
	if config.MongoDB.OperationTimeout <= 0 {
		return fmt.Errorf("mongodb.operation_timeout must be positive, got %v", config.MongoDB.OperationTimeout)
	}
	if config.MongoDB.ConnectRetries < 0 || config.MongoDB.ConnectRetries > 10 {
		return fmt.Errorf("mongodb.connect_retries must be between 0 and 10, got %d", config.MongoDB.ConnectRetries)
	}

	switch config.Secrets.Provider {
	case SecretProviderConfig:
		if config.AppUser.Password == "" {
			return fmt.Errorf("app_user.password cannot be empty when secrets.provider is %q", SecretProviderConfig)
		}
	case SecretProviderEnv:
	case SecretProviderVault:
		if config.Secrets.Vault.Address == "" {
			return fmt.Errorf("secrets.vault.address is required when secrets.provider is %q", SecretProviderVault)
		}
	case SecretProviderAWS:
		if config.Secrets.AWS.Region == "" {
			return fmt.Errorf("secrets.aws.region is required when secrets.provider is %q", SecretProviderAWS)
		}
	default:
		return fmt.Errorf("unsupported secret provider: %s", config.Secrets.Provider)
	}

	switch strings.ToLower(config.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", config.Log.Level)
	}
	if config.Log.Format != "console" && config.Log.Format != "json" {
		return fmt.Errorf("log.format must be console or json, got %q", config.Log.Format)
	}

	if config.Metrics.PushgatewayURL != "" {
		if _, err := url.ParseRequestURI(config.Metrics.PushgatewayURL); err != nil {
			return fmt.Errorf("invalid metrics.pushgateway_url: %w", err)
		}
		if config.Metrics.Job == "" {
			return fmt.Errorf("metrics.job cannot be empty when a pushgateway is configured")
		}
	}

	return nil
}
