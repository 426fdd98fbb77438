package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for meditrackd
type Config struct {
	App      AppConfig      `mapstructure:"app" yaml:"app"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Security SecurityConfig `mapstructure:"security" yaml:"security"`
	Mail     MailConfig     `mapstructure:"mail" yaml:"mail"`
	Cron     CronConfig     `mapstructure:"cron" yaml:"cron"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// AppConfig names the key namespace and environment.
//
// Namespace and Environment prefix every key written to the store, so
// two environments sharing one data directory can never collide.
type AppConfig struct {
	Namespace   string `mapstructure:"namespace" yaml:"namespace"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Address      string `mapstructure:"address" yaml:"address"`
	Port         int    `mapstructure:"port" yaml:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	DataDir     string `mapstructure:"data_dir" yaml:"data_dir"`
	BadgerPath  string `mapstructure:"badger_path" yaml:"badger_path"`
	RefDataPath string `mapstructure:"refdata_path" yaml:"refdata_path"`
	InMemory    bool   `mapstructure:"in_memory" yaml:"in_memory"`
}

// SecurityConfig holds auth settings
type SecurityConfig struct {
	JWTSecret     string   `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	TokenTTLHours int      `mapstructure:"token_ttl_hours" yaml:"token_ttl_hours"`
	AllowOrigins  []string `mapstructure:"allow_origins" yaml:"allow_origins"`
}

// MailConfig holds outbound email settings
type MailConfig struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	SendGridAPIKey string `mapstructure:"sendgrid_api_key" yaml:"sendgrid_api_key"`
	FromAddress    string `mapstructure:"from_address" yaml:"from_address"`
	FromName       string `mapstructure:"from_name" yaml:"from_name"`
}

// CronConfig holds background job settings
type CronConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	ExpirySweep string `mapstructure:"expiry_sweep" yaml:"expiry_sweep"`
	WarnDays    int    `mapstructure:"warn_days" yaml:"warn_days"`
}

// MetricsConfig holds the Prometheus exposition settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.Set("storage.data_dir", dataDir)
	v.SetDefault("storage.badger_path", filepath.Join(dataDir, "badger"))
	v.SetDefault("storage.refdata_path", filepath.Join(dataDir, "medicines.db"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "meditrack.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Environment variables (MEDITRACK_SERVER_PORT, MEDITRACK_MAIL_SENDGRID_API_KEY, ...)
	v.SetEnvPrefix("MEDITRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// WriteStarter writes a commented-out starter config file if none exists.
func WriteStarter(configPath string, cfg *Config) error {
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render starter config: %w", err)
	}

	return os.WriteFile(configPath, data, 0o600)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.namespace", "meditrack")
	v.SetDefault("app.environment", "prod")

	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	v.SetDefault("security.token_ttl_hours", 72)
	v.SetDefault("security.allow_origins", []string{"*"})

	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.from_address", "noreply@meditrack.local")
	v.SetDefault("mail.from_name", "MediTrack")

	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.expiry_sweep", "0 8 * * *")
	v.SetDefault("cron.warn_days", 7)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.address", "127.0.0.1:9090")
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "meditrack")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "meditrack")
}

func validate(cfg *Config) error {
	if cfg.App.Namespace == "" {
		return fmt.Errorf("app.namespace must not be empty")
	}
	if cfg.App.Environment == "" {
		return fmt.Errorf("app.environment must not be empty")
	}
	if strings.ContainsAny(cfg.App.Namespace, ": ") || strings.ContainsAny(cfg.App.Environment, ": ") {
		return fmt.Errorf("app.namespace and app.environment must not contain ':' or spaces")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	if cfg.Mail.Enabled && cfg.Mail.SendGridAPIKey == "" {
		return fmt.Errorf("mail.sendgrid_api_key required when mail is enabled")
	}

	// Generate a JWT secret if none is configured; an empty HS256 key
	// would make every bearer token forgeable. WriteStarter persists
	// the generated value so tokens survive restarts.
	if cfg.Security.JWTSecret == "" {
		secret, err := generateRandomSecret(32)
		if err != nil {
			return err
		}
		cfg.Security.JWTSecret = secret
	}
	return nil
}

func generateRandomSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate jwt secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
