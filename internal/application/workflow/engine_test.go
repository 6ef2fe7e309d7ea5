package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	domainwf "github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/memory"
)

// Mock implementations

type mockGateway struct {
	mu     sync.Mutex
	events []*event.Event
	err    error
}

func (m *mockGateway) Send(ctx context.Context, evt *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return m.err
}

func (m *mockGateway) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

type mockLogger struct {
	mu     sync.Mutex
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

// barrierStore holds the first two Get calls until both arrived, so two
// callers read the same version
type barrierStore struct {
	port.RequestStore
	calls   atomic.Int32
	arrived sync.WaitGroup
}

func newBarrierStore(inner port.RequestStore) *barrierStore {
	s := &barrierStore{RequestStore: inner}
	s.arrived.Add(2)
	return s
}

func (s *barrierStore) Get(ctx context.Context, id string) (*entity.ReimbursementRequest, error) {
	req, err := s.RequestStore.Get(ctx, id)
	if s.calls.Add(1) <= 2 {
		s.arrived.Done()
		s.arrived.Wait()
	}
	return req, err
}

// staleStore never wins a compare-and-swap
type staleStore struct {
	port.RequestStore
}

func (s *staleStore) CompareAndSwap(ctx context.Context, id string, v int64, req *entity.ReimbursementRequest) (bool, error) {
	return false, nil
}

type failingLedger struct {
	port.HistoryLedger
}

func (l *failingLedger) Append(ctx context.Context, entry *entity.HistoryEntry) error {
	return errors.New("disk full")
}

// Fixtures

type fixture struct {
	db      *memory.DB
	store   port.RequestStore
	ledger  port.HistoryLedger
	dir     *memory.Directory
	gateway *mockGateway
	logger  *mockLogger
	engine  WorkflowEngine
}

func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Minute)
		return t
	}
}

func newFixture(t *testing.T, policy domainwf.Policy, wrap func(port.RequestStore) port.RequestStore) *fixture {
	t.Helper()

	db := memory.NewDB(nil)
	var store port.RequestStore = memory.NewRequestStore(db)
	if wrap != nil {
		store = wrap(store)
	}
	ledger := memory.NewHistoryLedger(db)
	dir := memory.NewDirectory(db)

	dir.AddUser(entity.Contact{UserID: "U1", Name: "Una", Email: "u1@example.com", ManagerID: "M1"}, domainwf.RoleSubmitter)
	dir.AddUser(entity.Contact{UserID: "U2", Name: "Ugo", Email: "u2@example.com", ManagerID: "M2"}, domainwf.RoleSubmitter)
	dir.AddUser(entity.Contact{UserID: "M1", Name: "Mia", Email: "m1@example.com"}, domainwf.RoleManager, domainwf.RoleSubmitter)
	dir.AddUser(entity.Contact{UserID: "M2", Name: "Max", Email: "m2@example.com"}, domainwf.RoleManager)
	dir.AddUser(entity.Contact{UserID: "F1", Name: "Fay", Email: "f1@example.com"}, domainwf.RoleFinance)
	dir.AddUser(entity.Contact{UserID: "A1", Name: "Ada", Email: "a1@example.com"}, domainwf.RoleAdmin)

	f := &fixture{
		db:      db,
		store:   store,
		ledger:  ledger,
		dir:     dir,
		gateway: &mockGateway{},
		logger:  &mockLogger{},
	}
	f.engine = NewEngine(store, ledger, dir, db,
		WithGateway(f.gateway),
		WithPolicy(policy),
		WithLogger(f.logger),
		WithClock(steppingClock()),
	)
	return f
}

func draftFields(amount int64) entity.DraftFields {
	title := "Client dinner"
	category := entity.CategoryMeals
	amt := decimal.NewFromInt(amount)
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return entity.DraftFields{Title: &title, Category: &category, Amount: &amt, ExpenseDate: &date}
}

func (f *fixture) draft(t *testing.T, amount int64) *entity.ReimbursementRequest {
	t.Helper()
	req, err := f.engine.CreateDraft(context.Background(), "U1", draftFields(amount))
	if err != nil {
		t.Fatalf("CreateDraft() failed: %v", err)
	}
	return req
}

func (f *fixture) apply(t *testing.T, tr TransitionRequest) *entity.ReimbursementRequest {
	t.Helper()
	req, err := f.engine.ApplyTransition(context.Background(), tr)
	if err != nil {
		t.Fatalf("ApplyTransition(%s by %s) failed: %v", tr.Action, tr.ActorID, err)
	}
	return req
}

func (f *fixture) pendingManager(t *testing.T) *entity.ReimbursementRequest {
	t.Helper()
	req := f.draft(t, 250)
	return f.apply(t, TransitionRequest{RequestID: req.ID, Action: domainwf.ActionSubmit, ActorID: "U1"})
}

func (f *fixture) pendingFinance(t *testing.T) *entity.ReimbursementRequest {
	t.Helper()
	req := f.pendingManager(t)
	return f.apply(t, TransitionRequest{RequestID: req.ID, Action: domainwf.ActionManagerApprove, ActorID: "M1"})
}

func (f *fixture) approved(t *testing.T) *entity.ReimbursementRequest {
	t.Helper()
	req := f.pendingFinance(t)
	return f.apply(t, TransitionRequest{RequestID: req.ID, Action: domainwf.ActionFinanceApprove, ActorID: "F1"})
}

// Tests

func TestBuildExpenseTable(t *testing.T) {
	table := BuildExpenseTable()

	tests := []struct {
		from    domainwf.State
		action  domainwf.Action
		targets []domainwf.State
		req     domainwf.Requirement
	}{
		{domainwf.StateNone, domainwf.ActionCreateDraft, []domainwf.State{domainwf.StateDraft}, domainwf.RequireSubmitterRole},
		{domainwf.StateDraft, domainwf.ActionSubmit, []domainwf.State{domainwf.StatePendingFinance, domainwf.StatePendingManager}, domainwf.RequireOwner},
		{domainwf.StateChangesRequested, domainwf.ActionSubmit, []domainwf.State{domainwf.StatePendingFinance, domainwf.StatePendingManager}, domainwf.RequireOwner},
		{domainwf.StateDraft, domainwf.ActionUpdateDraft, []domainwf.State{domainwf.StateDraft}, domainwf.RequireOwner},
		{domainwf.StatePendingManager, domainwf.ActionManagerApprove, []domainwf.State{domainwf.StatePendingFinance}, domainwf.RequireManagerOfSubmitter},
		{domainwf.StatePendingManager, domainwf.ActionManagerReject, []domainwf.State{domainwf.StateRejected}, domainwf.RequireManagerOfSubmitter},
		{domainwf.StatePendingManager, domainwf.ActionManagerRequestChanges, []domainwf.State{domainwf.StateChangesRequested}, domainwf.RequireManagerOfSubmitter},
		{domainwf.StatePendingFinance, domainwf.ActionFinanceApprove, []domainwf.State{domainwf.StateApproved}, domainwf.RequireFinance},
		{domainwf.StatePendingFinance, domainwf.ActionFinanceReject, []domainwf.State{domainwf.StateRejected}, domainwf.RequireFinance},
		{domainwf.StateApproved, domainwf.ActionMarkPaid, []domainwf.State{domainwf.StatePaid}, domainwf.RequireFinance},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.action), func(t *testing.T) {
			rule, err := table.Lookup(tt.from, tt.action)
			if err != nil {
				t.Fatalf("Lookup() failed: %v", err)
			}
			if rule.Requirement != tt.req {
				t.Errorf("Requirement = %v, want %v", rule.Requirement, tt.req)
			}
			got := rule.Targets()
			if len(got) != len(tt.targets) {
				t.Fatalf("Targets() = %v, want %v", got, tt.targets)
			}
			for i := range got {
				if got[i] != tt.targets[i] {
					t.Errorf("Targets()[%d] = %v, want %v", i, got[i], tt.targets[i])
				}
			}
		})
	}

	for _, terminal := range []domainwf.State{domainwf.StateRejected, domainwf.StatePaid} {
		if actions := table.PermittedActions(terminal); len(actions) != 0 {
			t.Errorf("PermittedActions(%s) = %v, want none", terminal, actions)
		}
	}
}

func TestEngine_FullScenario(t *testing.T) {
	f := newFixture(t, domainwf.Policy{AutoApproveBelow: decimal.NewFromInt(100)}, nil)
	ctx := context.Background()

	req := f.draft(t, 250)
	if req.Status != "draft" || req.Version != 1 {
		t.Fatalf("draft = %s v%d, want draft v1", req.Status, req.Version)
	}

	req = f.apply(t, TransitionRequest{RequestID: req.ID, Action: domainwf.ActionSubmit, ActorID: "U1"})
	if req.Status != "pending_manager" {
		t.Fatalf("after submit status = %s, want pending_manager", req.Status)
	}
	if req.SubmittedAt == nil {
		t.Error("submit should set SubmittedAt")
	}

	req = f.apply(t, TransitionRequest{RequestID: req.ID, Action: domainwf.ActionManagerApprove, ActorID: "M1", Comment: "ok"})
	if req.Status != "pending_finance" || req.ManagerComment != "ok" {
		t.Fatalf("after manager_approve = %s/%q", req.Status, req.ManagerComment)
	}

	req = f.apply(t, TransitionRequest{RequestID: req.ID, Action: domainwf.ActionFinanceApprove, ActorID: "F1"})
	if req.Status != "approved" || req.ApprovedAt == nil {
		t.Fatalf("after finance_approve = %s approvedAt=%v", req.Status, req.ApprovedAt)
	}

	payDate := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	req = f.apply(t, TransitionRequest{
		RequestID:     req.ID,
		Action:        domainwf.ActionMarkPaid,
		ActorID:       "F1",
		PaymentMethod: "pix",
		PaymentDate:   &payDate,
	})
	if req.Status != "paid" || req.PaidAt == nil || req.PaymentMethod != "pix" || !req.PaymentDate.Equal(payDate) {
		t.Fatalf("after mark_paid = %+v", req)
	}
	if req.Version != 5 {
		t.Errorf("Version = %d, want 5", req.Version)
	}

	history, err := f.engine.History(ctx, req.ID)
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	wantActions := []string{"create_draft", "submit", "manager_approve", "finance_approve", "mark_paid"}
	wantActors := []string{"U1", "U1", "M1", "F1", "F1"}
	if len(history) != len(wantActions) {
		t.Fatalf("history has %d entries, want %d", len(history), len(wantActions))
	}
	for i, h := range history {
		if h.Action != wantActions[i] || h.ActorID != wantActors[i] {
			t.Errorf("history[%d] = %s by %s, want %s by %s", i, h.Action, h.ActorID, wantActions[i], wantActors[i])
		}
	}
	if history[0].OldStatus != nil {
		t.Error("creation entry should have no old status")
	}

	if f.gateway.count() != 5 {
		t.Errorf("notifications = %d, want 5", f.gateway.count())
	}

	state, err := f.engine.Verify(ctx, req.ID)
	if err != nil || state != domainwf.StatePaid {
		t.Errorf("Verify() = %v, %v; want paid", state, err)
	}

	_, err = f.engine.ApplyTransition(ctx, TransitionRequest{RequestID: req.ID, Action: domainwf.ActionFinanceReject, ActorID: "F1", Comment: "late"})
	if !errors.Is(err, domainwf.ErrIllegalTransition) {
		t.Errorf("finance_reject on paid error = %v, want %v", err, domainwf.ErrIllegalTransition)
	}
}

func TestEngine_UnlinkedManagerUnauthorized(t *testing.T) {
	f := newFixture(t, domainwf.Policy{}, nil)
	req := f.pendingManager(t)

	_, err := f.engine.ApplyTransition(context.Background(), TransitionRequest{RequestID: req.ID, Action: domainwf.ActionManagerApprove, ActorID: "M2"})
	if !errors.Is(err, domainwf.ErrUnauthorized) {
		t.Fatalf("error = %v, want %v", err, domainwf.ErrUnauthorized)
	}

	got, _ := f.store.Get(context.Background(), req.ID)
	if got.Status != "pending_manager" || got.Version != req.Version {
		t.Errorf("request changed after rejected attempt: %s v%d", got.Status, got.Version)
	}
}

func TestEngine_AdminActsForManager(t *testing.T) {
	f := newFixture(t, domainwf.Policy{}, nil)
	req := f.pendingManager(t)

	got := f.apply(t, TransitionRequest{RequestID: req.ID, Action: domainwf.ActionManagerApprove, ActorID: "A1"})
	if got.Status != "pending_finance" {
		t.Errorf("status = %s, want pending_finance", got.Status)
	}
}

func TestEngine_CommentGuards(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(f *fixture, t *testing.T) *entity.ReimbursementRequest
		action domainwf.Action
		actor  string
		want   string
	}{
		{"manager_reject", (*fixture).pendingManager, domainwf.ActionManagerReject, "M1", "rejected"},
		{"manager_request_changes", (*fixture).pendingManager, domainwf.ActionManagerRequestChanges, "M1", "changes_requested"},
		{"finance_reject", (*fixture).pendingFinance, domainwf.ActionFinanceReject, "F1", "rejected"},
	}

	for _, tt := range tests {
		for _, blank := range []string{"", "   ", "\n\t"} {
			t.Run(tt.name+"/blank", func(t *testing.T) {
				f := newFixture(t, domainwf.Policy{}, nil)
				req := tt.setup(f, t)

				_, err := f.engine.ApplyTransition(context.Background(), TransitionRequest{RequestID: req.ID, Action: tt.action, ActorID: tt.actor, Comment: blank})
				var ge *domainwf.GuardError
				if !errors.As(err, &ge) || ge.Field != "comment" {
					t.Errorf("error = %v, want GuardError on comment", err)
				}
			})
		}

		t.Run(tt.name+"/with comment", func(t *testing.T) {
			f := newFixture(t, domainwf.Policy{}, nil)
			req := tt.setup(f, t)

			got := f.apply(t, TransitionRequest{RequestID: req.ID, Action: tt.action, ActorID: tt.actor, Comment: "receipt is illegible"})
			if got.Status != tt.want {
				t.Errorf("status = %s, want %s", got.Status, tt.want)
			}
			comment := got.ManagerComment
			if tt.actor == "F1" {
				comment = got.FinanceComment
			}
			if comment != "receipt is illegible" {
				t.Errorf("stored comment = %q", comment)
			}
		})
	}
}

func TestEngine_MarkPaidGuards(t *testing.T) {
	payDate := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		method string
		date   *time.Time
		field  string
	}{
		{"neither", "", nil, "payment_method"},
		{"method only", "pix", nil, "payment_date"},
		{"date only", "", &payDate, "payment_method"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, domainwf.Policy{}, nil)
			req := f.approved(t)

			_, err := f.engine.ApplyTransition(context.Background(), TransitionRequest{
				RequestID: req.ID, Action: domainwf.ActionMarkPaid, ActorID: "F1",
				PaymentMethod: tt.method, PaymentDate: tt.date,
			})
			var ge *domainwf.GuardError
			if !errors.As(err, &ge) || ge.Field != tt.field {
				t.Errorf("error = %v, want GuardError on %s", err, tt.field)
			}

			got, _ := f.store.Get(context.Background(), req.ID)
			if got.PaidAt != nil {
				t.Error("PaidAt must stay unset when the guard fails")
			}
		})
	}
}

func TestEngine_AutoApproval(t *testing.T) {
	f := newFixture(t, domainwf.Policy{AutoApproveBelow: decimal.NewFromInt(100)}, nil)
	ctx := context.Background()

	req := f.draft(t, 50)
	got := f.apply(t, TransitionRequest{RequestID: req.ID, Action: domainwf.ActionSubmit, ActorID: "U1"})
	if got.Status != "pending_finance" {
		t.Fatalf("status = %s, want pending_finance", got.Status)
	}
	if got.SubmittedAt == nil {
		t.Error("auto-approved submit should still set SubmittedAt")
	}

	history, _ := f.engine.History(ctx, req.ID)
	var submits []*entity.HistoryEntry
	for _, h := range history {
		if h.Action == "submit" {
			submits = append(submits, h)
		}
	}
	if len(history) != 2 || len(submits) != 1 {
		t.Fatalf("history = %d entries (%d submit), want 2 with exactly one submit", len(history), len(submits))
	}
	entry := submits[0]
	if *entry.OldStatus != "draft" || entry.NewStatus != "pending_finance" || entry.ActorID != "U1" {
		t.Errorf("submit entry = %s -> %s by %s", *entry.OldStatus, entry.NewStatus, entry.ActorID)
	}
	if entry.Comment == nil || *entry.Comment == "" {
		t.Error("auto-approval entry should carry a system comment")
	}

	// At or above the threshold goes to the manager
	req = f.draft(t, 100)
	got = f.apply(t, TransitionRequest{RequestID: req.ID, Action: domainwf.ActionSubmit, ActorID: "U1"})
	if got.Status != "pending_manager" {
		t.Errorf("amount at threshold: status = %s, want pending_manager", got.Status)
	}
}

func TestEngine_SubmitPolicy(t *testing.T) {
	f := newFixture(t, domainwf.Policy{MaxAmount: decimal.NewFromInt(1000), RequireReceipt: true}, nil)
	ctx := context.Background()

	big := f.draft(t, 5000)
	_, err := f.engine.ApplyTransition(ctx, TransitionRequest{RequestID: big.ID, Action: domainwf.ActionSubmit, ActorID: "U1"})
	var ge *domainwf.GuardError
	if !errors.As(err, &ge) || ge.Field != "amount" {
		t.Errorf("over max error = %v, want GuardError on amount", err)
	}

	small := f.draft(t, 200)
	_, err = f.engine.ApplyTransition(ctx, TransitionRequest{RequestID: small.ID, Action: domainwf.ActionSubmit, ActorID: "U1"})
	if !errors.As(err, &ge) || ge.Field != "receipts" {
		t.Errorf("no receipt error = %v, want GuardError on receipts", err)
	}

	f.apply(t, TransitionRequest{RequestID: small.ID, Action: domainwf.ActionUpdateDraft, ActorID: "U1",
		Draft: &entity.DraftFields{ReceiptRefs: []string{"receipts/1.pdf"}}})
	got := f.apply(t, TransitionRequest{RequestID: small.ID, Action: domainwf.ActionSubmit, ActorID: "U1"})
	if got.Status != "pending_manager" {
		t.Errorf("status = %s, want pending_manager", got.Status)
	}
}

func TestEngine_IllegalTransitionRegardlessOfActor(t *testing.T) {
	f := newFixture(t, domainwf.Policy{}, nil)
	req := f.pendingManager(t)
	f.apply(t, TransitionRequest{RequestID: req.ID, Action: domainwf.ActionManagerReject, ActorID: "M1", Comment: "duplicate"})

	for _, actor := range []string{"U1", "M1", "F1", "A1", "nobody"} {
		for _, action := range []domainwf.Action{domainwf.ActionSubmit, domainwf.ActionManagerApprove, domainwf.ActionFinanceApprove, domainwf.ActionMarkPaid, domainwf.ActionCreateDraft} {
			_, err := f.engine.ApplyTransition(context.Background(), TransitionRequest{RequestID: req.ID, Action: action, ActorID: actor, Comment: "x"})
			if !errors.Is(err, domainwf.ErrIllegalTransition) {
				t.Errorf("%s by %s on rejected: error = %v, want %v", action, actor, err, domainwf.ErrIllegalTransition)
			}
		}
	}
}

func TestEngine_NotFound(t *testing.T) {
	f := newFixture(t, domainwf.Policy{}, nil)
	_, err := f.engine.ApplyTransition(context.Background(), TransitionRequest{RequestID: "missing", Action: domainwf.ActionSubmit, ActorID: "U1"})
	if !errors.Is(err, domainwf.ErrNotFound) {
		t.Errorf("error = %v, want %v", err, domainwf.ErrNotFound)
	}
}

func TestEngine_CreateDraft(t *testing.T) {
	f := newFixture(t, domainwf.Policy{}, nil)
	ctx := context.Background()

	if _, err := f.engine.CreateDraft(ctx, "F1", draftFields(10)); !errors.Is(err, domainwf.ErrUnauthorized) {
		t.Errorf("finance creating draft: error = %v, want %v", err, domainwf.ErrUnauthorized)
	}

	if _, err := f.engine.CreateDraft(ctx, "U1", draftFields(0)); !errors.Is(err, domainwf.ErrGuardViolation) {
		t.Errorf("zero amount: error = %v, want %v", err, domainwf.ErrGuardViolation)
	}

	req := f.draft(t, 10)
	history, _ := f.engine.History(ctx, req.ID)
	if len(history) != 1 || history[0].NewStatus != "draft" {
		t.Errorf("creation history = %+v", history)
	}
	if f.gateway.count() != 1 || f.gateway.events[0].Type != event.TypeRequestCreated {
		t.Errorf("creation should emit one request.created event")
	}
}

func TestEngine_UpdateDraft(t *testing.T) {
	f := newFixture(t, domainwf.Policy{}, nil)
	ctx := context.Background()
	req := f.draft(t, 80)

	amount := decimal.NewFromInt(95)
	_, err := f.engine.ApplyTransition(ctx, TransitionRequest{RequestID: req.ID, Action: domainwf.ActionUpdateDraft, ActorID: "M1",
		Draft: &entity.DraftFields{Amount: &amount}})
	if !errors.Is(err, domainwf.ErrUnauthorized) {
		t.Errorf("non-owner edit: error = %v, want %v", err, domainwf.ErrUnauthorized)
	}

	got := f.apply(t, TransitionRequest{RequestID: req.ID, Action: domainwf.ActionUpdateDraft, ActorID: "U1",
		Draft: &entity.DraftFields{Amount: &amount}})
	if !got.Amount.Equal(amount) || got.Status != "draft" {
		t.Errorf("after edit = %s %s", got.Amount, got.Status)
	}

	negative := decimal.NewFromInt(-1)
	_, err = f.engine.ApplyTransition(ctx, TransitionRequest{RequestID: req.ID, Action: domainwf.ActionUpdateDraft, ActorID: "U1",
		Draft: &entity.DraftFields{Amount: &negative}})
	if !errors.Is(err, domainwf.ErrGuardViolation) {
		t.Errorf("negative edit: error = %v, want %v", err, domainwf.ErrGuardViolation)
	}
}

func TestEngine_ResubmitKeepsSubmittedAt(t *testing.T) {
	f := newFixture(t, domainwf.Policy{}, nil)
	req := f.pendingManager(t)
	firstSubmit := *req.SubmittedAt

	req = f.apply(t, TransitionRequest{RequestID: req.ID, Action: domainwf.ActionManagerRequestChanges, ActorID: "M1", Comment: "attach receipt"})
	req = f.apply(t, TransitionRequest{RequestID: req.ID, Action: domainwf.ActionSubmit, ActorID: "U1"})

	if req.Status != "pending_manager" {
		t.Errorf("status = %s, want pending_manager", req.Status)
	}
	if !req.SubmittedAt.Equal(firstSubmit) {
		t.Errorf("SubmittedAt changed from %v to %v", firstSubmit, *req.SubmittedAt)
	}
	if _, err := f.engine.Verify(context.Background(), req.ID); err != nil {
		t.Errorf("Verify() failed: %v", err)
	}
}

func TestEngine_ConcurrentConflictingTransitions(t *testing.T) {
	var barrier *barrierStore
	f := newFixture(t, domainwf.Policy{}, nil)
	req := f.pendingManager(t)

	barrier = newBarrierStore(f.store)
	engine := NewEngine(barrier, f.ledger, f.dir, f.db, WithGateway(f.gateway))

	actions := []TransitionRequest{
		{RequestID: req.ID, Action: domainwf.ActionManagerApprove, ActorID: "M1"},
		{RequestID: req.ID, Action: domainwf.ActionManagerReject, ActorID: "M1", Comment: "over budget"},
	}

	errs := make([]error, len(actions))
	var wg sync.WaitGroup
	for i, tr := range actions {
		wg.Add(1)
		go func(i int, tr TransitionRequest) {
			defer wg.Done()
			_, errs[i] = engine.ApplyTransition(context.Background(), tr)
		}(i, tr)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, domainwf.ErrIllegalTransition):
			t.Errorf("loser error = %v, want %v", err, domainwf.ErrIllegalTransition)
		}
	}
	if succeeded != 1 {
		t.Fatalf("%d transitions succeeded, want exactly 1 (errors: %v)", succeeded, errs)
	}

	history, _ := engine.History(context.Background(), req.ID)
	if len(history) != 3 {
		t.Errorf("history has %d entries, want 3", len(history))
	}
	if _, err := engine.Verify(context.Background(), req.ID); err != nil {
		t.Errorf("Verify() failed: %v", err)
	}
}

func TestEngine_ConflictAfterMaxAttempts(t *testing.T) {
	f := newFixture(t, domainwf.Policy{}, nil)
	req := f.draft(t, 300)

	engine := NewEngine(&staleStore{RequestStore: f.store}, f.ledger, f.dir, f.db, WithMaxAttempts(2))
	_, err := engine.ApplyTransition(context.Background(), TransitionRequest{RequestID: req.ID, Action: domainwf.ActionSubmit, ActorID: "U1"})
	if !errors.Is(err, domainwf.ErrConflict) {
		t.Errorf("error = %v, want %v", err, domainwf.ErrConflict)
	}
}

func TestEngine_LedgerFailureRollsBack(t *testing.T) {
	f := newFixture(t, domainwf.Policy{}, nil)
	req := f.draft(t, 300)

	engine := NewEngine(f.store, &failingLedger{HistoryLedger: f.ledger}, f.dir, f.db, WithGateway(f.gateway))
	before := f.gateway.count()

	if _, err := engine.ApplyTransition(context.Background(), TransitionRequest{RequestID: req.ID, Action: domainwf.ActionSubmit, ActorID: "U1"}); err == nil {
		t.Fatal("ApplyTransition() should fail when the ledger fails")
	}

	got, _ := f.store.Get(context.Background(), req.ID)
	if got.Status != "draft" || got.Version != 1 {
		t.Errorf("request = %s v%d, want draft v1 after rollback", got.Status, got.Version)
	}
	if f.gateway.count() != before {
		t.Error("no notification may be sent for a rolled back transition")
	}
}

func TestEngine_NotificationFailureIsNotReturned(t *testing.T) {
	f := newFixture(t, domainwf.Policy{}, nil)
	f.gateway.err = errors.New("smtp down")

	req := f.draft(t, 300)
	got := f.apply(t, TransitionRequest{RequestID: req.ID, Action: domainwf.ActionSubmit, ActorID: "U1"})
	if got.Status != "pending_manager" {
		t.Errorf("status = %s, want pending_manager", got.Status)
	}

	f.logger.mu.Lock()
	defer f.logger.mu.Unlock()
	if len(f.logger.errors) != 2 {
		t.Errorf("logged %d notification failures, want 2", len(f.logger.errors))
	}
}

func TestEngine_NotificationPayload(t *testing.T) {
	f := newFixture(t, domainwf.Policy{}, nil)
	req := f.pendingManager(t)
	f.apply(t, TransitionRequest{RequestID: req.ID, Action: domainwf.ActionManagerReject, ActorID: "M1", Comment: "duplicate"})

	last := f.gateway.events[len(f.gateway.events)-1].StatusChange()
	want := event.StatusChange{
		RequestID:   req.ID,
		OldStatus:   "pending_manager",
		NewStatus:   "rejected",
		ActorID:     "M1",
		Action:      "manager_reject",
		Comment:     "duplicate",
		SubmitterID: "U1",
		Title:       "Client dinner",
		Amount:      "250.00",
	}
	if last != want {
		t.Errorf("StatusChange = %+v, want %+v", last, want)
	}
}

func TestEngine_AvailableActions(t *testing.T) {
	f := newFixture(t, domainwf.Policy{}, nil)
	req := f.pendingManager(t)

	tests := []struct {
		actor string
		want  int
	}{
		{"M1", 3},
		{"A1", 3},
		{"M2", 0},
		{"U1", 0},
	}

	for _, tt := range tests {
		t.Run(tt.actor, func(t *testing.T) {
			actions, err := f.engine.AvailableActions(context.Background(), req.ID, tt.actor)
			if err != nil {
				t.Fatalf("AvailableActions() failed: %v", err)
			}
			if len(actions) != tt.want {
				t.Errorf("AvailableActions(%s) = %v, want %d actions", tt.actor, actions, tt.want)
			}
		})
	}
}

func TestAuditRecorder_RejectsIncompleteEntry(t *testing.T) {
	recorder := NewAuditRecorder(memory.NewHistoryLedger(memory.NewDB(nil)))
	if err := recorder.Record(context.Background(), &entity.HistoryEntry{RequestID: "r1"}); err == nil {
		t.Error("Record() should reject an entry without action and status")
	}
}
