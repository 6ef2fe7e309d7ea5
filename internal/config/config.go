package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/garyjia/expense-approval/pkg/utils"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Workflow     WorkflowConfig     `mapstructure:"workflow"`
	Notification NotificationConfig `mapstructure:"notification"`
	Directory    []UserConfig       `mapstructure:"directory"`
	Logger       LoggerConfig       `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"` // empty uses the embedded migrations
}

// WorkflowConfig holds approval policy. Amounts are decimal strings.
type WorkflowConfig struct {
	AutoApproveBelow string        `mapstructure:"auto_approve_below"`
	MaxAmount        string        `mapstructure:"max_amount"`
	RequireReceipt   bool          `mapstructure:"require_receipt"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	HandlerTimeout   time.Duration `mapstructure:"handler_timeout"`
}

// NotificationConfig holds delivery channel configuration
type NotificationConfig struct {
	FinanceEmail string      `mapstructure:"finance_email"`
	FinanceName  string      `mapstructure:"finance_name"`
	BaseURL      string      `mapstructure:"base_url"`
	Email        EmailConfig `mapstructure:"email"`
	Lark         LarkConfig  `mapstructure:"lark"`
	Redis        RedisConfig `mapstructure:"redis"`
}

// EmailConfig holds SMTP configuration
type EmailConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	From          string        `mapstructure:"from"`
	SkipTLSVerify bool          `mapstructure:"skip_tls_verify"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	Domain    string `mapstructure:"domain"` // feishu or lark
}

// RedisConfig holds the event queue configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	QueueKey string `mapstructure:"queue_key"`
	Channel  string `mapstructure:"channel"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// UserConfig is one directory entry
type UserConfig struct {
	ID         string   `mapstructure:"id"`
	Name       string   `mapstructure:"name"`
	Email      string   `mapstructure:"email"`
	LarkOpenID string   `mapstructure:"lark_open_id"`
	ManagerID  string   `mapstructure:"manager_id"`
	Roles      []string `mapstructure:"roles"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

var validRoles = map[string]bool{
	"submitter": true,
	"manager":   true,
	"finance":   true,
	"admin":     true,
	"director":  true,
}

// Load loads configuration from file and environment variables.
// An empty path loads defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EXPENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Override with environment variables
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/expenses.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Workflow defaults
	v.SetDefault("workflow.auto_approve_below", "0")
	v.SetDefault("workflow.max_amount", "0")
	v.SetDefault("workflow.require_receipt", false)
	v.SetDefault("workflow.max_attempts", 3)
	v.SetDefault("workflow.handler_timeout", 30*time.Second)

	// Notification defaults
	v.SetDefault("notification.finance_name", "Finance")
	v.SetDefault("notification.email.port", 587)
	v.SetDefault("notification.email.timeout", 10*time.Second)
	v.SetDefault("notification.lark.domain", "feishu")
	v.SetDefault("notification.redis.addr", "localhost:6379")
	v.SetDefault("notification.redis.queue_key", "expense:notifications")
	v.SetDefault("notification.redis.channel", "expense:events")
	v.SetDefault("notification.redis.max_len", 10000)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds the conventional unprefixed names for secrets
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string][]string{
		"database.dsn":                 {"EXPENSE_DATABASE_DSN", "DATABASE_URL"},
		"notification.finance_email":   {"EXPENSE_NOTIFICATION_FINANCE_EMAIL", "FINANCE_EMAIL"},
		"notification.email.username":  {"EXPENSE_NOTIFICATION_EMAIL_USERNAME", "SMTP_USERNAME"},
		"notification.email.password":  {"EXPENSE_NOTIFICATION_EMAIL_PASSWORD", "SMTP_PASSWORD"},
		"notification.lark.app_id":     {"EXPENSE_NOTIFICATION_LARK_APP_ID", "LARK_APP_ID"},
		"notification.lark.app_secret": {"EXPENSE_NOTIFICATION_LARK_APP_SECRET", "LARK_APP_SECRET"},
		"notification.redis.password":  {"EXPENSE_NOTIFICATION_REDIS_PASSWORD", "REDIS_PASSWORD"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be sqlite, postgres or memory, got %q", c.Database.Driver)
	}

	if _, err := parseAmount("workflow.auto_approve_below", c.Workflow.AutoApproveBelow); err != nil {
		return err
	}
	if _, err := parseAmount("workflow.max_amount", c.Workflow.MaxAmount); err != nil {
		return err
	}
	if c.Workflow.MaxAttempts < 1 {
		return fmt.Errorf("workflow.max_attempts must be at least 1")
	}

	if c.Notification.FinanceEmail != "" {
		if err := utils.ValidateEmail(c.Notification.FinanceEmail); err != nil {
			return fmt.Errorf("notification.finance_email: %w", err)
		}
	}

	seen := make(map[string]bool, len(c.Directory))
	for i, u := range c.Directory {
		if u.ID == "" {
			return fmt.Errorf("directory[%d].id is required", i)
		}
		if seen[u.ID] {
			return fmt.Errorf("directory[%d]: duplicate id %s", i, u.ID)
		}
		seen[u.ID] = true

		if u.Email != "" {
			if err := utils.ValidateEmail(u.Email); err != nil {
				return fmt.Errorf("directory[%d].email: %w", i, err)
			}
		}
		for _, r := range u.Roles {
			if !validRoles[r] {
				return fmt.Errorf("directory[%d]: unknown role %q", i, r)
			}
		}
	}

	return nil
}

// parseAmount accepts an empty string as zero
func parseAmount(key, s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid amount %q", key, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}
