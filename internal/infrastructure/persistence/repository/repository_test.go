package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	appwf "github.com/garyjia/expense-approval/internal/application/workflow"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/pkg/database"
)

func setupDB(t *testing.T) *sqlite.DB {
	t.Helper()
	logger := zap.NewNop()

	raw, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "expense.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })

	require.NoError(t, database.NewMigrator(raw, logger).RunMigrations(database.Migrations, database.MigrationsDir))
	return sqlite.NewDB(raw.DB, logger)
}

func seedDirectory(t *testing.T, dir *DirectoryRepository) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, dir.Upsert(ctx, entity.Contact{UserID: "M1", Name: "Mia", Email: "m1@example.com"}, domainwf.RoleManager))
	require.NoError(t, dir.Upsert(ctx, entity.Contact{UserID: "F1", Name: "Fay", Email: "f1@example.com"}, domainwf.RoleFinance))
	require.NoError(t, dir.Upsert(ctx, entity.Contact{UserID: "U1", Name: "Una", Email: "u1@example.com", ManagerID: "M1"}, domainwf.RoleSubmitter))
	require.NoError(t, dir.Upsert(ctx, entity.Contact{UserID: "U2", Name: "Ugo", Email: "u2@example.com", ManagerID: "M1"}, domainwf.RoleSubmitter))
}

func newRequest(id, submitter string, created time.Time) *entity.ReimbursementRequest {
	expense := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &entity.ReimbursementRequest{
		ID:          id,
		SubmitterID: submitter,
		Title:       "Taxi",
		Category:    entity.CategoryTransport,
		Amount:      decimal.RequireFromString("42.50"),
		ExpenseDate: &expense,
		Status:      string(domainwf.StateDraft),
		ReceiptRefs: []string{"r-1"},
		Version:     1,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestRequestRepository_CreateAndGet(t *testing.T) {
	db := setupDB(t)
	repo := NewRequestRepository(db, zap.NewNop())
	ctx := context.Background()

	created := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, newRequest("req-1", "U1", created)))

	got, err := repo.Get(ctx, "req-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "U1", got.SubmitterID)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("42.5")))
	assert.Equal(t, []string{"r-1"}, got.ReceiptRefs)
	assert.Equal(t, int64(1), got.Version)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.Nil(t, got.SubmittedAt)
	require.NotNil(t, got.ExpenseDate)

	missing, err := repo.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRequestRepository_CompareAndSwap(t *testing.T) {
	db := setupDB(t)
	repo := NewRequestRepository(db, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newRequest("req-1", "U1", time.Now().UTC())))

	next, err := repo.Get(ctx, "req-1")
	require.NoError(t, err)
	next.Status = string(domainwf.StatePendingManager)
	submitted := time.Now().UTC()
	next.SubmittedAt = &submitted

	ok, err := repo.CompareAndSwap(ctx, "req-1", 1, next)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.CompareAndSwap(ctx, "req-1", 1, next)
	require.NoError(t, err)
	assert.False(t, ok, "stale version must not win")

	stored, err := repo.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
	assert.Equal(t, "pending_manager", stored.Status)
	assert.NotNil(t, stored.SubmittedAt)
}

func TestRequestRepository_List(t *testing.T) {
	db := setupDB(t)
	repo := NewRequestRepository(db, zap.NewNop())
	ctx := context.Background()

	base := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, newRequest("a", "U1", base)))
	require.NoError(t, repo.Create(ctx, newRequest("b", "U1", base.Add(time.Minute))))
	c := newRequest("c", "U2", base.Add(2*time.Minute))
	c.Status = string(domainwf.StatePendingManager)
	require.NoError(t, repo.Create(ctx, c))

	all, err := repo.List(ctx, port.RequestFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID, "newest first")

	mine, err := repo.List(ctx, port.RequestFilter{SubmitterIDs: []string{"U1"}})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "b", mine[0].ID)

	pending, err := repo.List(ctx, port.RequestFilter{Statuses: []string{"pending_manager"}})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "c", pending[0].ID)

	page, err := repo.List(ctx, port.RequestFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ID)
}

func TestHistoryRepository_AppendOnly(t *testing.T) {
	db := setupDB(t)
	requests := NewRequestRepository(db, zap.NewNop())
	history := NewHistoryRepository(db, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, requests.Create(ctx, newRequest("req-1", "U1", time.Now().UTC())))

	ts := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	old := "draft"
	comment := "go"
	first := &entity.HistoryEntry{ID: "h1", RequestID: "req-1", ActorID: "U1", Action: "create_draft", NewStatus: "draft", Timestamp: ts}
	second := &entity.HistoryEntry{ID: "h2", RequestID: "req-1", ActorID: "U1", Action: "submit", OldStatus: &old, NewStatus: "pending_manager", Comment: &comment, Timestamp: ts}
	require.NoError(t, history.Append(ctx, first))
	require.NoError(t, history.Append(ctx, second))
	assert.Greater(t, second.Sequence, first.Sequence)

	entries, err := history.ListByRequest(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "h1", entries[0].ID, "same timestamp falls back to sequence")
	assert.Nil(t, entries[0].OldStatus)
	require.NotNil(t, entries[1].Comment)
	assert.Equal(t, "go", *entries[1].Comment)

	_, err = db.ExecContext(ctx, `UPDATE request_history SET action = 'x' WHERE id = 'h1'`)
	assert.Error(t, err)
	_, err = db.ExecContext(ctx, `DELETE FROM request_history WHERE id = 'h1'`)
	assert.Error(t, err)
}

func TestDirectoryRepository(t *testing.T) {
	db := setupDB(t)
	dir := NewDirectoryRepository(db, zap.NewNop())
	seedDirectory(t, dir)
	ctx := context.Background()

	roles, err := dir.RolesOf(ctx, "M1")
	require.NoError(t, err)
	assert.True(t, roles.Has(domainwf.RoleManager))
	assert.False(t, roles.Has(domainwf.RoleFinance))

	none, err := dir.RolesOf(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, none)

	linked, err := dir.IsManagerOf(ctx, "M1", "U1")
	require.NoError(t, err)
	assert.True(t, linked)

	linked, err = dir.IsManagerOf(ctx, "F1", "U1")
	require.NoError(t, err)
	assert.False(t, linked)

	contact, err := dir.Contact(ctx, "U1")
	require.NoError(t, err)
	require.NotNil(t, contact)
	assert.Equal(t, "u1@example.com", contact.Email)

	unknown, err := dir.Contact(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, unknown)

	reports, err := dir.DirectReports(ctx, "M1")
	require.NoError(t, err)
	assert.Equal(t, []string{"U1", "U2"}, reports)

	// Upsert replaces roles
	require.NoError(t, dir.Upsert(ctx, entity.Contact{UserID: "M1", Name: "Mia"}, domainwf.RoleAdmin))
	roles, err = dir.RolesOf(ctx, "M1")
	require.NoError(t, err)
	assert.True(t, roles.Has(domainwf.RoleAdmin))
	assert.False(t, roles.Has(domainwf.RoleManager))
}

func TestTransactionRollsBackAllRepositories(t *testing.T) {
	db := setupDB(t)
	requests := NewRequestRepository(db, zap.NewNop())
	history := NewHistoryRepository(db, zap.NewNop())
	ctx := context.Background()

	boom := errors.New("boom")
	err := db.WithTransaction(ctx, func(ctx context.Context) error {
		if err := requests.Create(ctx, newRequest("req-1", "U1", time.Now().UTC())); err != nil {
			return err
		}
		if err := history.Append(ctx, &entity.HistoryEntry{
			ID: "h1", RequestID: "req-1", ActorID: "U1", Action: "create_draft", NewStatus: "draft", Timestamp: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := requests.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	entries, err := history.ListByRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEngineOverSQLite(t *testing.T) {
	db := setupDB(t)
	logger := zap.NewNop()
	dir := NewDirectoryRepository(db, logger)
	seedDirectory(t, dir)

	engine := appwf.NewEngine(
		NewRequestRepository(db, logger),
		NewHistoryRepository(db, logger),
		dir,
		db,
	)
	ctx := context.Background()

	title := "Hotel"
	category := entity.CategoryLodging
	amount := decimal.RequireFromString("250.00")
	expense := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	req, err := engine.CreateDraft(ctx, "U1", entity.DraftFields{Title: &title, Category: &category, Amount: &amount, ExpenseDate: &expense})
	require.NoError(t, err)

	steps := []appwf.TransitionRequest{
		{RequestID: req.ID, Action: domainwf.ActionSubmit, ActorID: "U1"},
		{RequestID: req.ID, Action: domainwf.ActionManagerApprove, ActorID: "M1", Comment: "ok"},
		{RequestID: req.ID, Action: domainwf.ActionFinanceApprove, ActorID: "F1"},
	}
	for _, step := range steps {
		req, err = engine.ApplyTransition(ctx, step)
		require.NoError(t, err, step.Action)
	}

	payDate := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	req, err = engine.ApplyTransition(ctx, appwf.TransitionRequest{
		RequestID: req.ID, Action: domainwf.ActionMarkPaid, ActorID: "F1", PaymentMethod: "pix", PaymentDate: &payDate,
	})
	require.NoError(t, err)
	assert.Equal(t, "paid", req.Status)
	assert.Equal(t, int64(5), req.Version)

	_, err = engine.ApplyTransition(ctx, appwf.TransitionRequest{RequestID: req.ID, Action: domainwf.ActionManagerApprove, ActorID: "M1"})
	assert.ErrorIs(t, err, domainwf.ErrIllegalTransition)

	entries, err := engine.History(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 5)

	state, err := engine.Verify(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domainwf.StatePaid, state)
}
