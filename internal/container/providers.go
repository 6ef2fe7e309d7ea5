package container

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/notification"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/memory"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/postgres"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/pkg/database"
)

// PersistenceBundle holds the adapters of the selected storage backend.
type PersistenceBundle struct {
	Requests  port.RequestStore
	Ledger    port.HistoryLedger
	Roles     port.RoleResolver
	Directory port.UserDirectory
	TxManager port.TransactionManager

	upsert func(ctx context.Context, contact entity.Contact, roles ...domainwf.Role) error
	ping   func(ctx context.Context) error
	close  func() error
}

// NotificationBundle holds the enabled delivery channels.
type NotificationBundle struct {
	Senders   []port.MessageSender
	Publisher *notification.RedisPublisher
}

// ProvidePersistence opens the configured backend and applies its schema.
func ProvidePersistence(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*PersistenceBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	switch cfg.Driver {
	case DriverSQLite:
		return provideSQLite(cfg, logger)
	case DriverPostgres:
		return providePostgres(ctx, cfg, logger)
	case DriverMemory:
		return provideMemory(logger), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func provideSQLite(cfg *DatabaseConfig, logger *zap.Logger) (*PersistenceBundle, error) {
	raw, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	// Embedded migrations unless an on-disk directory is configured
	var (
		migrations fs.FS = database.Migrations
		dir              = database.MigrationsDir
	)
	if cfg.MigrationsDir != "" {
		migrations, dir = os.DirFS(cfg.MigrationsDir), "."
	}
	if err := database.NewMigrator(raw, logger).RunMigrations(migrations, dir); err != nil {
		raw.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	db := sqlite.NewDB(raw.DB, logger)
	directory := repository.NewDirectoryRepository(db, logger)

	return &PersistenceBundle{
		Requests:  repository.NewRequestRepository(db, logger),
		Ledger:    repository.NewHistoryRepository(db, logger),
		Roles:     directory,
		Directory: directory,
		TxManager: db,
		upsert:    directory.Upsert,
		ping:      db.PingContext,
		close:     raw.Close,
	}, nil
}

func providePostgres(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*PersistenceBundle, error) {
	pool, err := postgres.NewPool(ctx, postgres.Config{
		DSN:             cfg.DSN,
		MaxConns:        int32(cfg.MaxOpenConns),
		MinConns:        int32(cfg.MaxIdleConns),
		MaxConnLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, err
	}

	db := postgres.NewDB(pool, logger)
	directory := postgres.NewDirectory(db, logger)

	return &PersistenceBundle{
		Requests:  postgres.NewRequestStore(db, logger),
		Ledger:    postgres.NewHistoryLedger(db, logger),
		Roles:     directory,
		Directory: directory,
		TxManager: db,
		upsert:    directory.Upsert,
		ping:      db.Ping,
		close: func() error {
			db.Close()
			return nil
		},
	}, nil
}

func provideMemory(logger *zap.Logger) *PersistenceBundle {
	db := memory.NewDB(logger)
	directory := memory.NewDirectory(db)

	return &PersistenceBundle{
		Requests:  memory.NewRequestStore(db),
		Ledger:    memory.NewHistoryLedger(db),
		Roles:     directory,
		Directory: directory,
		TxManager: db,
		upsert: func(_ context.Context, contact entity.Contact, roles ...domainwf.Role) error {
			directory.AddUser(contact, roles...)
			return nil
		},
		ping:  func(context.Context) error { return nil },
		close: func() error { return nil },
	}
}

// SeedDirectory stores the configured users and their roles.
func SeedDirectory(ctx context.Context, p *PersistenceBundle, seeds []UserSeed, logger *zap.Logger) error {
	for _, u := range seeds {
		roles := make([]domainwf.Role, 0, len(u.Roles))
		for _, r := range u.Roles {
			roles = append(roles, domainwf.Role(r))
		}
		contact := entity.Contact{
			UserID:     u.ID,
			Name:       u.Name,
			Email:      u.Email,
			LarkOpenID: u.LarkOpenID,
			ManagerID:  u.ManagerID,
		}
		if err := p.upsert(ctx, contact, roles...); err != nil {
			return fmt.Errorf("seed user %s: %w", u.ID, err)
		}
	}
	if len(seeds) > 0 {
		logger.Info("Directory seeded", zap.Int("users", len(seeds)))
	}
	return nil
}

// ProvideNotification creates the enabled delivery channels.
func ProvideNotification(cfg *NotificationConfig, logger *zap.Logger) (*NotificationBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("notification config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	bundle := &NotificationBundle{}

	if cfg.Email.Enabled {
		bundle.Senders = append(bundle.Senders, notification.NewEmailSender(notification.EmailConfig{
			Host:          cfg.Email.Host,
			Port:          cfg.Email.Port,
			Username:      cfg.Email.Username,
			Password:      cfg.Email.Password,
			From:          cfg.Email.From,
			SkipTLSVerify: cfg.Email.SkipTLSVerify,
			Timeout:       cfg.Email.Timeout,
		}, logger))
	}

	if cfg.Lark.Enabled {
		messenger := notification.NewLarkMessenger(notification.LarkConfig{
			AppID:     cfg.Lark.AppID,
			AppSecret: cfg.Lark.AppSecret,
			Domain:    cfg.Lark.Domain,
		}, logger)
		bundle.Senders = append(bundle.Senders, notification.NewLarkSender(messenger))
	}

	if cfg.Redis.Enabled {
		bundle.Publisher = notification.NewRedisPublisher(notification.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			QueueKey: cfg.Redis.QueueKey,
			Channel:  cfg.Redis.Channel,
			MaxLen:   cfg.Redis.MaxLen,
		}, logger)
	}

	names := make([]string, 0, len(bundle.Senders))
	for _, s := range bundle.Senders {
		names = append(names, s.Name())
	}
	logger.Info("Notification channels configured",
		zap.Strings("senders", names),
		zap.Bool("redis", bundle.Publisher != nil))

	return bundle, nil
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Requests     service.RequestService
	Notification service.NotificationService
}

// ProvideServices creates the application services.
func ProvideServices(p *PersistenceBundle, n *NotificationBundle, cfg *NotificationConfig, logger *zap.Logger) (*ServiceBundle, error) {
	if p == nil || n == nil || cfg == nil {
		return nil, fmt.Errorf("persistence, notification and config are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	serviceLogger := &zapLoggerAdapter{logger: logger}

	return &ServiceBundle{
		Requests: service.NewRequestService(p.Requests, p.Roles, p.Directory, serviceLogger),
		Notification: service.NewNotificationService(p.Directory, n.Senders, service.NotificationConfig{
			FinanceEmail: cfg.FinanceEmail,
			FinanceName:  cfg.FinanceName,
			BaseURL:      cfg.BaseURL,
		}, serviceLogger),
	}, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(cfg *WorkflowConfig, logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	opts := []dispatcher.Option{dispatcher.WithLogger(&zapLoggerAdapter{logger: logger})}
	if cfg != nil && cfg.HandlerTimeout > 0 {
		opts = append(opts, dispatcher.WithHandlerTimeout(cfg.HandlerTimeout))
	}
	return dispatcher.NewDispatcher(opts...), nil
}

// WorkflowDeps holds dependencies required for creating the workflow engine.
type WorkflowDeps struct {
	Persistence  *PersistenceBundle
	Services     *ServiceBundle
	Notification *NotificationBundle
	Dispatcher   dispatcher.Dispatcher
	Config       *WorkflowConfig
	Logger       *zap.Logger
}

// ProvideWorkflowEngine creates the workflow engine and registers event handlers.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.WorkflowEngine, error) {
	if deps == nil {
		return nil, fmt.Errorf("workflow dependencies are required")
	}
	if deps.Persistence == nil {
		return nil, fmt.Errorf("persistence is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("workflow config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	p := deps.Persistence
	engine := workflow.NewEngine(
		p.Requests,
		p.Ledger,
		p.Roles,
		p.TxManager,
		workflow.WithGateway(workflow.NewDispatcherGateway(deps.Dispatcher)),
		workflow.WithPolicy(domainwf.Policy{
			AutoApproveBelow: deps.Config.AutoApproveBelow,
			MaxAmount:        deps.Config.MaxAmount,
			RequireReceipt:   deps.Config.RequireReceipt,
		}),
		workflow.WithMaxAttempts(deps.Config.MaxAttempts),
		workflow.WithLogger(&zapLoggerAdapter{logger: deps.Logger}),
	)

	for _, t := range []event.Type{event.TypeRequestCreated, event.TypeStatusChanged} {
		if deps.Services != nil {
			deps.Dispatcher.SubscribeNamed(t, "notifier", deps.Services.Notification.HandleStatusChanged)
		}
		if deps.Notification != nil && deps.Notification.Publisher != nil {
			deps.Dispatcher.SubscribeNamed(t, "redis_publisher", deps.Notification.Publisher.Handle)
		}
	}

	return engine, nil
}
