package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/formdesk/flowengine/pkg/utils"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	SMTP       SMTPConfig       `mapstructure:"smtp"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Escalation EscalationConfig `mapstructure:"escalation"`
	Directory  DirectoryConfig  `mapstructure:"directory"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// SMTPConfig holds outbound mail configuration
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// WebhookConfig holds outbound webhook configuration
type WebhookConfig struct {
	SigningSecret string        `mapstructure:"signing_secret"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// QueueConfig holds background task queue configuration
type QueueConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

// EscalationConfig holds SLA escalation monitor configuration
type EscalationConfig struct {
	Schedule  string   `mapstructure:"schedule"`
	Tenants   []string `mapstructure:"tenants"`
	ScanLimit int      `mapstructure:"scan_limit"`
}

// DirectoryConfig holds the static role directory loaded at startup.
// Each user entry lists the roles they hold within their tenant.
type DirectoryConfig struct {
	Users []DirectoryUser `mapstructure:"users"`
}

// DirectoryUser is one configured user
type DirectoryUser struct {
	ID       string   `mapstructure:"id"`
	TenantID string   `mapstructure:"tenant_id"`
	Name     string   `mapstructure:"name"`
	Email    string   `mapstructure:"email"`
	Roles    []string `mapstructure:"roles"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/flowengine.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	// SMTP defaults
	viper.SetDefault("smtp.port", 587)

	// Webhook defaults
	viper.SetDefault("webhook.timeout", 10*time.Second)

	// Queue defaults
	viper.SetDefault("queue.poll_interval", 5*time.Second)
	viper.SetDefault("queue.batch_size", 20)

	// Escalation defaults
	viper.SetDefault("escalation.schedule", "*/15 * * * *")
	viper.SetDefault("escalation.scan_limit", 500)

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	// Sensitive credentials from environment
	viper.BindEnv("smtp.username", "SMTP_USERNAME")
	viper.BindEnv("smtp.password", "SMTP_PASSWORD")
	viper.BindEnv("smtp.from", "SMTP_FROM")
	viper.BindEnv("webhook.signing_secret", "WEBHOOK_SIGNING_SECRET")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	// Mail is optional, but a configured host needs a sender
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		return fmt.Errorf("smtp.from is required when smtp.host is set")
	}

	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("queue.batch_size must be positive")
	}

	for i, u := range c.Directory.Users {
		if err := utils.ValidateIdentifier(u.ID); err != nil {
			return fmt.Errorf("directory.users[%d]: %w", i, err)
		}
		if err := utils.ValidateIdentifier(u.TenantID); err != nil {
			return fmt.Errorf("directory.users[%d]: %w", i, err)
		}
		if u.Email != "" {
			if err := utils.ValidateEmail(u.Email); err != nil {
				return fmt.Errorf("directory.users[%d]: %w", i, err)
			}
		}
	}

	return nil
}
