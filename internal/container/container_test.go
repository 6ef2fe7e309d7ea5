package container

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
)

func testConfig(driver string) *Config {
	cfg := DefaultConfig()
	cfg.Database.Driver = driver
	cfg.Directory = []UserSeed{
		{ID: "U1", Name: "Una", Email: "u1@example.com", ManagerID: "M1", Roles: []string{"submitter"}},
		{ID: "M1", Name: "Mia", Email: "m1@example.com", Roles: []string{"manager", "submitter"}},
		{ID: "F1", Name: "Fay", Email: "f1@example.com", Roles: []string{"finance"}},
	}
	return cfg
}

func startContainer(t *testing.T, cfg *Config) *Container {
	t.Helper()

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() {
		if !c.closed.Load() {
			_ = c.Close()
		}
	})
	return c
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(DefaultConfig(), nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Database.Driver = "oracle"
	_, err = NewContainer(cfg, zap.NewNop())
	assert.ErrorContains(t, err, "invalid config")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = DriverPostgres }, "database.dsn"},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"negative threshold", func(c *Config) { c.Workflow.AutoApproveBelow = decimal.NewFromInt(-1) }, "auto_approve_below"},
		{"zero attempts", func(c *Config) { c.Workflow.MaxAttempts = 0 }, "max_attempts"},
		{"email without host", func(c *Config) { c.Notification.Email.Enabled = true }, "email"},
		{"lark without credentials", func(c *Config) { c.Notification.Lark.Enabled = true }, "lark"},
		{"seed without id", func(c *Config) { c.Directory = []UserSeed{{Name: "x"}} }, "directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestContainer_Lifecycle(t *testing.T) {
	c := startContainer(t, testConfig(DriverMemory))

	assert.True(t, c.Ready())
	assert.NotNil(t, c.WorkflowEngine())
	assert.NotNil(t, c.RequestService())
	assert.NotNil(t, c.Dispatcher())
	assert.NotNil(t, c.DB())
	assert.Error(t, c.Start(context.Background()), "second start must fail")

	health := c.Health(context.Background())
	assert.True(t, health.Overall)
	assert.True(t, health.Components["database"].Healthy)
	assert.NotContains(t, health.Components, "redis")
	assert.NoError(t, c.HealthCheck(context.Background()))

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close(), "second close must fail")
	assert.Error(t, c.Start(context.Background()), "start after close must fail")
}

func TestContainer_SeedsDirectory(t *testing.T) {
	c := startContainer(t, testConfig(DriverMemory))
	ctx := context.Background()

	roles, err := c.Persistence().Roles.RolesOf(ctx, "M1")
	require.NoError(t, err)
	assert.True(t, roles.Has(domainwf.RoleManager))

	manages, err := c.Persistence().Roles.IsManagerOf(ctx, "M1", "U1")
	require.NoError(t, err)
	assert.True(t, manages)

	contact, err := c.Persistence().Directory.Contact(ctx, "F1")
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Equal(t, "f1@example.com", contact.Email)
}

func runScenario(t *testing.T, c *Container) {
	t.Helper()
	ctx := context.Background()
	engine := c.WorkflowEngine()

	title := "Taxi"
	category := entity.CategoryTravel
	amount := decimal.RequireFromString("42.50")
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	req, err := engine.CreateDraft(ctx, "U1", entity.DraftFields{
		Title:       &title,
		Category:    &category,
		Amount:      &amount,
		ExpenseDate: &date,
		ReceiptRefs: []string{"r-1"},
	})
	require.NoError(t, err)

	steps := []workflow.TransitionRequest{
		{RequestID: req.ID, Action: domainwf.ActionSubmit, ActorID: "U1"},
		{RequestID: req.ID, Action: domainwf.ActionManagerApprove, ActorID: "M1"},
		{RequestID: req.ID, Action: domainwf.ActionFinanceApprove, ActorID: "F1"},
	}
	for _, step := range steps {
		req, err = engine.ApplyTransition(ctx, step)
		require.NoError(t, err, "action %s", step.Action)
	}
	assert.Equal(t, domainwf.StateApproved.String(), req.Status)

	queue, err := c.RequestService().FinanceQueue(ctx, "F1", 0, 0)
	require.NoError(t, err)
	require.Len(t, queue, 1)

	history, err := engine.History(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, history, 4)

	state, err := engine.Verify(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateApproved, state)
}

func TestContainer_MemoryScenario(t *testing.T) {
	runScenario(t, startContainer(t, testConfig(DriverMemory)))
}

func TestContainer_SQLiteScenario(t *testing.T) {
	cfg := testConfig(DriverSQLite)
	cfg.Database.Path = filepath.Join(t.TempDir(), "nested", "expenses.db")
	cfg.Database.MaxOpenConns = 1

	c := startContainer(t, cfg)
	assert.Equal(t, "sqlite", c.Health(context.Background()).Components["database"].Message)
	runScenario(t, c)
}

func TestConvertToZapFields(t *testing.T) {
	fields := convertToZapFields("a", 1, 2, "skipped", "b")
	require.Len(t, fields, 1)
	assert.Equal(t, "a", fields[0].Key)
}
