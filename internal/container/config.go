// Package container provides dependency injection and lifecycle management
// for the expense approval service following Clean Architecture principles.
package container

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Database drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Workflow policy configuration
	Workflow WorkflowConfig

	// Notification channels
	Notification NotificationConfig

	// Server configuration
	Server ServerConfig

	// Directory seeds users and roles at startup
	Directory []UserSeed
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver is one of sqlite, postgres or memory
	Driver string

	// Path to SQLite database file
	Path string

	// DSN is the PostgreSQL connection string
	DSN string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// MigrationsDir overrides the embedded SQLite migrations when set
	MigrationsDir string
}

// WorkflowConfig holds organisation policy for the engine.
type WorkflowConfig struct {
	// AutoApproveBelow skips manager review for smaller amounts; zero disables
	AutoApproveBelow decimal.Decimal

	// MaxAmount rejects larger submissions; zero disables
	MaxAmount decimal.Decimal

	// RequireReceipt rejects submissions without receipts
	RequireReceipt bool

	// MaxAttempts bounds optimistic-concurrency retries
	MaxAttempts int

	// HandlerTimeout bounds each notification handler
	HandlerTimeout time.Duration
}

// NotificationConfig holds delivery channel settings.
type NotificationConfig struct {
	FinanceEmail string
	FinanceName  string
	BaseURL      string

	Email EmailConfig
	Lark  LarkConfig
	Redis RedisConfig
}

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Enabled       bool
	Host          string
	Port          int
	Username      string
	Password      string
	From          string
	SkipTLSVerify bool
	Timeout       time.Duration
}

// LarkConfig holds Lark app settings.
type LarkConfig struct {
	Enabled   bool
	AppID     string
	AppSecret string
	Domain    string
}

// RedisConfig holds the event queue settings.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	QueueKey string
	Channel  string
	MaxLen   int64
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind to
	Host string

	// Port to listen on
	Port int

	// ReadTimeout for HTTP server
	ReadTimeout time.Duration

	// WriteTimeout for HTTP server
	WriteTimeout time.Duration
}

// UserSeed is one directory entry loaded at startup
type UserSeed struct {
	ID         string
	Name       string
	Email      string
	LarkOpenID string
	ManagerID  string
	Roles      []string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          DriverSQLite,
			Path:            "data/expenses.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Workflow: WorkflowConfig{
			MaxAttempts:    3,
			HandlerTimeout: 30 * time.Second,
		},
		Notification: NotificationConfig{
			Email: EmailConfig{Port: 587, Timeout: 10 * time.Second},
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				QueueKey: "expense:notifications",
				Channel:  "expense:events",
				MaxLen:   10000,
			},
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}

	if c.Workflow.AutoApproveBelow.IsNegative() {
		return fmt.Errorf("workflow.auto_approve_below must not be negative")
	}
	if c.Workflow.MaxAmount.IsNegative() {
		return fmt.Errorf("workflow.max_amount must not be negative")
	}
	if c.Workflow.MaxAttempts < 1 {
		return fmt.Errorf("workflow.max_attempts must be at least 1")
	}

	// Validate enabled channels
	if email := c.Notification.Email; email.Enabled && (email.Host == "" || email.From == "") {
		return fmt.Errorf("notification.email.host and notification.email.from are required")
	}
	if lark := c.Notification.Lark; lark.Enabled && (lark.AppID == "" || lark.AppSecret == "") {
		return fmt.Errorf("notification.lark.app_id and notification.lark.app_secret are required")
	}
	if redis := c.Notification.Redis; redis.Enabled && redis.Addr == "" {
		return fmt.Errorf("notification.redis.addr is required")
	}

	for _, u := range c.Directory {
		if u.ID == "" {
			return fmt.Errorf("directory entries need an id")
		}
	}

	return nil
}
