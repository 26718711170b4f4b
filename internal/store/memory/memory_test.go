package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"tally/internal/core"
)

func TestStore_UpdateAccountBalance(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.CreateAccount(ctx, core.Account{ID: "acc-1", TenantID: "tn-1", Type: core.AccountBank, Balance: 10000}); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	t.Run("versioned write appends audit entry", func(t *testing.T) {
		entry := core.AuditLogEntry{ID: "audit-1", AccountID: "acc-1", PreviousBalance: 10000, NewBalance: 7500, ChangeAmount: -2500, Reason: "transaction", CreatedAt: time.Now()}
		if err := s.UpdateAccountBalance(ctx, "acc-1", 0, 7500, entry); err != nil {
			t.Fatalf("UpdateAccountBalance() error = %v", err)
		}

		a, err := s.GetAccount(ctx, "acc-1")
		if err != nil {
			t.Fatalf("GetAccount() error = %v", err)
		}
		if a.Balance != 7500 {
			t.Errorf("Balance = %d, want 7500", a.Balance)
		}
		if a.Version != 1 {
			t.Errorf("Version = %d, want 1", a.Version)
		}

		log, err := s.ListAuditLog(ctx, "acc-1")
		if err != nil {
			t.Fatalf("ListAuditLog() error = %v", err)
		}
		if len(log) != 1 || log[0].ChangeAmount != -2500 {
			t.Errorf("audit log = %+v, want one entry with change -2500", log)
		}
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		err := s.UpdateAccountBalance(ctx, "acc-1", 0, 5000, core.AuditLogEntry{ID: "audit-2"})
		if !errors.Is(err, core.ErrWriteConflict) {
			t.Errorf("UpdateAccountBalance() error = %v, want ErrWriteConflict", err)
		}
	})

	t.Run("missing account", func(t *testing.T) {
		err := s.UpdateAccountBalance(ctx, "nope", 0, 0, core.AuditLogEntry{ID: "audit-3"})
		if !errors.Is(err, core.ErrNotFound) {
			t.Errorf("UpdateAccountBalance() error = %v, want ErrNotFound", err)
		}
	})
}

func TestStore_CreateTransaction_OccurrenceKey(t *testing.T) {
	ctx := context.Background()
	s := New()
	due := core.NewDate(2024, 1, 31)

	created, err := s.CreateTransaction(ctx, core.Transaction{
		ID:         "tx-1",
		TenantID:   "tn-1",
		ScheduleID: "sch-1",
		DueDate:    due,
	})
	if err != nil || !created {
		t.Fatalf("CreateTransaction() = (%v, %v), want (true, nil)", created, err)
	}

	// Same schedule and due date, different ID: a retried materialization.
	created, err = s.CreateTransaction(ctx, core.Transaction{
		ID:         "tx-2",
		TenantID:   "tn-1",
		ScheduleID: "sch-1",
		DueDate:    due,
	})
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}
	if created {
		t.Error("CreateTransaction() created a duplicate occurrence")
	}
	if _, err := s.GetTransaction(ctx, "tx-2"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetTransaction(tx-2) error = %v, want ErrNotFound", err)
	}

	// Next occurrence of the same schedule is a distinct pair.
	created, err = s.CreateTransaction(ctx, core.Transaction{
		ID:         "tx-3",
		TenantID:   "tn-1",
		ScheduleID: "sch-1",
		DueDate:    due.AddDays(29),
	})
	if err != nil || !created {
		t.Errorf("CreateTransaction() = (%v, %v), want (true, nil)", created, err)
	}
}

func TestStore_GetOccurrenceTransaction(t *testing.T) {
	ctx := context.Background()
	s := New()
	due := core.NewDate(2024, 1, 31)

	if _, err := s.CreateTransaction(ctx, core.Transaction{
		ID:         "tx-1",
		TenantID:   "tn-1",
		ScheduleID: "sch-1",
		DueDate:    due,
	}); err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}

	got, err := s.GetOccurrenceTransaction(ctx, "sch-1", due)
	if err != nil {
		t.Fatalf("GetOccurrenceTransaction() error = %v", err)
	}
	if got.ID != "tx-1" {
		t.Errorf("GetOccurrenceTransaction() ID = %s, want tx-1", got.ID)
	}

	if _, err := s.GetOccurrenceTransaction(ctx, "sch-1", due.AddDays(29)); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetOccurrenceTransaction() error = %v, want ErrNotFound", err)
	}
}

func TestStore_CreateTransaction_DuplicateIDKeepsOccurrenceFree(t *testing.T) {
	ctx := context.Background()
	s := New()
	due := core.NewDate(2024, 1, 31)

	if _, err := s.CreateTransaction(ctx, core.Transaction{ID: "tx-1", TenantID: "tn-1"}); err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}

	// A rejected duplicate-ID insert must not register its occurrence key.
	if _, err := s.CreateTransaction(ctx, core.Transaction{
		ID:         "tx-1",
		TenantID:   "tn-1",
		ScheduleID: "sch-1",
		DueDate:    due,
	}); err == nil {
		t.Fatal("CreateTransaction() accepted a duplicate ID")
	}

	created, err := s.CreateTransaction(ctx, core.Transaction{
		ID:         "tx-2",
		TenantID:   "tn-1",
		ScheduleID: "sch-1",
		DueDate:    due,
	})
	if err != nil || !created {
		t.Errorf("CreateTransaction() = (%v, %v), want (true, nil)", created, err)
	}
}

func TestStore_AdvanceSchedule(t *testing.T) {
	ctx := context.Background()
	s := New()
	due := core.NewDate(2024, 3, 1)

	if err := s.CreateSchedule(ctx, core.RecurringSchedule{
		ID:          "sch-1",
		TenantID:    "tn-1",
		NextDueDate: due,
		Status:      core.ScheduleActive,
	}); err != nil {
		t.Fatalf("CreateSchedule() error = %v", err)
	}

	now := time.Now()
	next := core.NewDate(2024, 4, 1)
	if err := s.AdvanceSchedule(ctx, "sch-1", due, next, now, core.ScheduleActive); err != nil {
		t.Fatalf("AdvanceSchedule() error = %v", err)
	}

	sc, err := s.GetSchedule(ctx, "sch-1")
	if err != nil {
		t.Fatalf("GetSchedule() error = %v", err)
	}
	if !sc.NextDueDate.Equal(next.Time) {
		t.Errorf("NextDueDate = %s, want %s", sc.NextDueDate, next)
	}
	if sc.LastProcessedDate.IsZero() {
		t.Error("LastProcessedDate not set")
	}

	// A second advance guarded by the already-consumed due date loses.
	err = s.AdvanceSchedule(ctx, "sch-1", due, core.NewDate(2024, 5, 1), now, core.ScheduleActive)
	if !errors.Is(err, core.ErrWriteConflict) {
		t.Errorf("AdvanceSchedule() error = %v, want ErrWriteConflict", err)
	}
}

func TestStore_ListDueSchedules(t *testing.T) {
	ctx := context.Background()
	s := New()
	cutoff := core.NewDate(2024, 3, 1)

	schedules := []core.RecurringSchedule{
		{ID: "due", TenantID: "tn-1", NextDueDate: core.NewDate(2024, 2, 15), Status: core.ScheduleActive},
		{ID: "due-today", TenantID: "tn-1", NextDueDate: cutoff, Status: core.ScheduleActive},
		{ID: "future", TenantID: "tn-1", NextDueDate: core.NewDate(2024, 3, 2), Status: core.ScheduleActive},
		{ID: "paused", TenantID: "tn-1", NextDueDate: core.NewDate(2024, 2, 15), Status: core.SchedulePaused},
		{ID: "other-tenant", TenantID: "tn-2", NextDueDate: core.NewDate(2024, 2, 15), Status: core.ScheduleActive},
	}
	for _, sc := range schedules {
		if err := s.CreateSchedule(ctx, sc); err != nil {
			t.Fatalf("CreateSchedule(%s) error = %v", sc.ID, err)
		}
	}

	due, err := s.ListDueSchedules(ctx, "tn-1", cutoff)
	if err != nil {
		t.Fatalf("ListDueSchedules() error = %v", err)
	}
	got := map[string]bool{}
	for _, sc := range due {
		got[sc.ID] = true
	}
	if len(got) != 2 || !got["due"] || !got["due-today"] {
		t.Errorf("ListDueSchedules() = %v, want [due due-today]", got)
	}

	tenants, err := s.ListScheduleTenants(ctx)
	if err != nil {
		t.Fatalf("ListScheduleTenants() error = %v", err)
	}
	if len(tenants) != 2 {
		t.Errorf("ListScheduleTenants() = %v, want 2 tenants", tenants)
	}
}

func TestStore_ApplySpend(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.CreateBudget(ctx, core.Budget{ID: "b-1", TenantID: "tn-1", Name: "Monthly"}); err != nil {
		t.Fatalf("CreateBudget() error = %v", err)
	}
	if err := s.CreateBudgetItem(ctx, core.BudgetItem{ID: "item-1", BudgetID: "b-1", Name: "Groceries", Amount: 40000}); err != nil {
		t.Fatalf("CreateBudgetItem() error = %v", err)
	}
	if _, err := s.CreateTransaction(ctx, core.Transaction{
		ID:           "tx-1",
		TenantID:     "tn-1",
		Kind:         core.Expense,
		Status:       core.StatusCompleted,
		Amount:       core.Money{Cents: 2500},
		BudgetItemID: "item-1",
	}); err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}

	t.Run("first apply increments item and budget", func(t *testing.T) {
		applied, err := s.ApplySpend(ctx, "item-1", "tx-1", 2500)
		if err != nil || !applied {
			t.Fatalf("ApplySpend() = (%v, %v), want (true, nil)", applied, err)
		}
		item, err := s.GetBudgetItem(ctx, "item-1")
		if err != nil {
			t.Fatalf("GetBudgetItem() error = %v", err)
		}
		if item.Spent != 2500 {
			t.Errorf("item Spent = %d, want 2500", item.Spent)
		}
		b, err := s.GetBudget(ctx, "b-1")
		if err != nil {
			t.Fatalf("GetBudget() error = %v", err)
		}
		if b.TotalSpent != 2500 {
			t.Errorf("budget TotalSpent = %d, want 2500", b.TotalSpent)
		}
	})

	t.Run("second apply is a no-op", func(t *testing.T) {
		applied, err := s.ApplySpend(ctx, "item-1", "tx-1", 2500)
		if err != nil {
			t.Fatalf("ApplySpend() error = %v", err)
		}
		if applied {
			t.Error("ApplySpend() applied the same transaction twice")
		}
		item, _ := s.GetBudgetItem(ctx, "item-1")
		if item.Spent != 2500 {
			t.Errorf("item Spent = %d, want 2500", item.Spent)
		}
	})

	t.Run("unknown transaction", func(t *testing.T) {
		_, err := s.ApplySpend(ctx, "item-1", "nope", 100)
		if !errors.Is(err, core.ErrNotFound) {
			t.Errorf("ApplySpend() error = %v, want ErrNotFound", err)
		}
	})
}

func TestStore_ListUntrackedBudgetTransactions(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.CreateBudget(ctx, core.Budget{ID: "b-1", TenantID: "tn-1", Name: "Monthly"}); err != nil {
		t.Fatalf("CreateBudget() error = %v", err)
	}
	if err := s.CreateBudgetItem(ctx, core.BudgetItem{ID: "item-1", BudgetID: "b-1", Name: "Groceries", Amount: 40000}); err != nil {
		t.Fatalf("CreateBudgetItem() error = %v", err)
	}

	txs := []core.Transaction{
		{ID: "tagged", TenantID: "tn-1", Kind: core.Expense, Status: core.StatusCompleted, Amount: core.Money{Cents: 1000}, BudgetItemID: "item-1"},
		{ID: "untagged", TenantID: "tn-1", Kind: core.Expense, Status: core.StatusCompleted, Amount: core.Money{Cents: 1000}},
		{ID: "income", TenantID: "tn-1", Kind: core.Income, Status: core.StatusCompleted, Amount: core.Money{Cents: 1000}, BudgetItemID: "item-1"},
		{ID: "done", TenantID: "tn-1", Kind: core.Expense, Status: core.StatusCompleted, Amount: core.Money{Cents: 1000}, BudgetItemID: "item-1"},
	}
	for _, tx := range txs {
		if _, err := s.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("CreateTransaction(%s) error = %v", tx.ID, err)
		}
	}
	if _, err := s.ApplySpend(ctx, "item-1", "done", 1000); err != nil {
		t.Fatalf("ApplySpend() error = %v", err)
	}

	untracked, err := s.ListUntrackedBudgetTransactions(ctx, 10)
	if err != nil {
		t.Fatalf("ListUntrackedBudgetTransactions() error = %v", err)
	}
	if len(untracked) != 1 || untracked[0].ID != "tagged" {
		t.Errorf("ListUntrackedBudgetTransactions() = %+v, want only [tagged]", untracked)
	}
}

func TestStore_BudgetItemDeltas(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.CreateBudget(ctx, core.Budget{ID: "b-1", TenantID: "tn-1", Name: "Monthly"}); err != nil {
		t.Fatalf("CreateBudget() error = %v", err)
	}
	if err := s.CreateBudgetItem(ctx, core.BudgetItem{ID: "item-1", BudgetID: "b-1", Name: "Groceries", Amount: 40000, Spent: 5000}); err != nil {
		t.Fatalf("CreateBudgetItem() error = %v", err)
	}
	if err := s.CreateBudgetItem(ctx, core.BudgetItem{ID: "item-2", BudgetID: "b-1", Name: "Rent", Amount: 120000}); err != nil {
		t.Fatalf("CreateBudgetItem() error = %v", err)
	}

	assertTotals := func(t *testing.T, wantBudget, wantSpent int64) {
		t.Helper()
		b, err := s.GetBudget(ctx, "b-1")
		if err != nil {
			t.Fatalf("GetBudget() error = %v", err)
		}
		if b.TotalBudget != wantBudget || b.TotalSpent != wantSpent {
			t.Errorf("totals = (%d, %d), want (%d, %d)", b.TotalBudget, b.TotalSpent, wantBudget, wantSpent)
		}
	}

	assertTotals(t, 160000, 5000)

	if err := s.UpdateBudgetItem(ctx, core.BudgetItem{ID: "item-1", Name: "Groceries", Amount: 35000, Spent: 12000}); err != nil {
		t.Fatalf("UpdateBudgetItem() error = %v", err)
	}
	assertTotals(t, 155000, 12000)

	if err := s.DeleteBudgetItem(ctx, "item-2"); err != nil {
		t.Fatalf("DeleteBudgetItem() error = %v", err)
	}
	assertTotals(t, 35000, 12000)

	if err := s.DeleteBudgetItem(ctx, "item-2"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("DeleteBudgetItem() error = %v, want ErrNotFound", err)
	}
}
