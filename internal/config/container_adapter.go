package config

import (
	"github.com/garyjia/expense-approval/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure. Call Validate first.
func (c *Config) ToContainerConfig() *container.Config {
	autoApprove, _ := parseAmount("workflow.auto_approve_below", c.Workflow.AutoApproveBelow)
	maxAmount, _ := parseAmount("workflow.max_amount", c.Workflow.MaxAmount)

	users := make([]container.UserSeed, 0, len(c.Directory))
	for _, u := range c.Directory {
		users = append(users, container.UserSeed{
			ID:         u.ID,
			Name:       u.Name,
			Email:      u.Email,
			LarkOpenID: u.LarkOpenID,
			ManagerID:  u.ManagerID,
			Roles:      u.Roles,
		})
	}

	n := c.Notification
	return &container.Config{
		Database: container.DatabaseConfig{
			Driver:          c.Database.Driver,
			Path:            c.Database.Path,
			DSN:             c.Database.DSN,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			MigrationsDir:   c.Database.MigrationsDir,
		},
		Workflow: container.WorkflowConfig{
			AutoApproveBelow: autoApprove,
			MaxAmount:        maxAmount,
			RequireReceipt:   c.Workflow.RequireReceipt,
			MaxAttempts:      c.Workflow.MaxAttempts,
			HandlerTimeout:   c.Workflow.HandlerTimeout,
		},
		Notification: container.NotificationConfig{
			FinanceEmail: n.FinanceEmail,
			FinanceName:  n.FinanceName,
			BaseURL:      n.BaseURL,
			Email: container.EmailConfig{
				Enabled:       n.Email.Enabled,
				Host:          n.Email.Host,
				Port:          n.Email.Port,
				Username:      n.Email.Username,
				Password:      n.Email.Password,
				From:          n.Email.From,
				SkipTLSVerify: n.Email.SkipTLSVerify,
				Timeout:       n.Email.Timeout,
			},
			Lark: container.LarkConfig{
				Enabled:   n.Lark.Enabled,
				AppID:     n.Lark.AppID,
				AppSecret: n.Lark.AppSecret,
				Domain:    n.Lark.Domain,
			},
			Redis: container.RedisConfig{
				Enabled:  n.Redis.Enabled,
				Addr:     n.Redis.Addr,
				Password: n.Redis.Password,
				DB:       n.Redis.DB,
				QueueKey: n.Redis.QueueKey,
				Channel:  n.Redis.Channel,
				MaxLen:   n.Redis.MaxLen,
			},
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
		Directory: users,
	}
}
