package services

import (
	"context"
	"strconv"
	"testing"
	"time"

	"tally/internal/core"
	"tally/internal/store/memory"
)

func newTestProcessor(t *testing.T) (*RecurringProcessor, *memory.Store) {
	t.Helper()
	st := memory.New()
	ledger := NewLedgerService(st, st)
	transactions := NewTransactionService(st, ledger, nil)
	return NewRecurringProcessor(st, transactions), st
}

func mustCreateSchedule(t *testing.T, st *memory.Store, s core.RecurringSchedule) {
	t.Helper()
	if s.Status == "" {
		s.Status = core.ScheduleActive
	}
	if err := st.CreateSchedule(context.Background(), s); err != nil {
		t.Fatalf("CreateSchedule(%s) error = %v", s.ID, err)
	}
}

func TestRecurringProcessor_MaterializesDueSchedule(t *testing.T) {
	ctx := context.Background()
	processor, st := newTestProcessor(t)

	if err := st.CreateAccount(ctx, core.Account{
		ID: "acc-1", TenantID: "tn-1", Type: core.AccountBank, Balance: 100000,
	}); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	day := 31
	mustCreateSchedule(t, st, core.RecurringSchedule{
		ID:          "sch-1",
		TenantID:    "tn-1",
		AccountID:   "acc-1",
		Description: "Rent",
		Amount:      core.Money{Cents: 120000},
		Kind:        core.Expense,
		Frequency:   core.Monthly,
		Interval:    1,
		DayOfMonth:  &day,
		NextDueDate: core.NewDate(2024, 1, 31),
	})

	now := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)
	batch, err := processor.ProcessDue(ctx, "tn-1", now)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if batch.SuccessCount != 1 || batch.FailureCount != 0 {
		t.Fatalf("batch = %d succeeded / %d failed, want 1/0", batch.SuccessCount, batch.FailureCount)
	}

	result := batch.Results[0]
	if !result.NextDueDate.Equal(core.NewDate(2024, 2, 29).Time) {
		t.Errorf("NextDueDate = %s, want 2024-02-29 (leap-year clamp)", result.NextDueDate)
	}

	tx, err := st.GetTransaction(ctx, result.TransactionID)
	if err != nil {
		t.Fatalf("GetTransaction() error = %v", err)
	}
	if !tx.Date.Equal(core.NewDate(2024, 1, 31).Time) {
		t.Errorf("transaction Date = %s, want the due date 2024-01-31", tx.Date)
	}
	if tx.Status != core.StatusCompleted || !tx.Recurring {
		t.Errorf("transaction = status %s recurring %v, want completed/true", tx.Status, tx.Recurring)
	}
	if tx.ScheduleID != "sch-1" || !tx.DueDate.Equal(core.NewDate(2024, 1, 31).Time) {
		t.Errorf("occurrence key = %s/%s, want sch-1/2024-01-31", tx.ScheduleID, tx.DueDate)
	}

	account, _ := st.GetAccount(ctx, "acc-1")
	if account.Balance != 100000-120000 {
		t.Errorf("account Balance = %d, want %d", account.Balance, 100000-120000)
	}

	schedule, _ := st.GetSchedule(ctx, "sch-1")
	if !schedule.NextDueDate.Equal(core.NewDate(2024, 2, 29).Time) {
		t.Errorf("schedule NextDueDate = %s, want 2024-02-29", schedule.NextDueDate)
	}
	if schedule.Status != core.ScheduleActive {
		t.Errorf("schedule Status = %s, want active", schedule.Status)
	}
	if schedule.LastProcessedDate.IsZero() {
		t.Error("schedule LastProcessedDate should be set")
	}
}

func TestRecurringProcessor_SkipsNotDueAndInactive(t *testing.T) {
	ctx := context.Background()
	processor, st := newTestProcessor(t)

	mustCreateSchedule(t, st, core.RecurringSchedule{
		ID: "future", TenantID: "tn-1", Description: "Later",
		Amount: core.Money{Cents: 100}, Kind: core.Expense,
		Frequency: core.Daily, Interval: 1,
		NextDueDate: core.NewDate(2024, 6, 1),
	})
	mustCreateSchedule(t, st, core.RecurringSchedule{
		ID: "paused", TenantID: "tn-1", Description: "Paused",
		Amount: core.Money{Cents: 100}, Kind: core.Expense,
		Frequency: core.Daily, Interval: 1,
		NextDueDate: core.NewDate(2024, 1, 1),
		Status:      core.SchedulePaused,
	})

	batch, err := processor.ProcessDue(ctx, "tn-1", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if batch.ProcessedCount != 0 {
		t.Errorf("ProcessedCount = %d, want 0", batch.ProcessedCount)
	}
}

func TestRecurringProcessor_FailureIsolation(t *testing.T) {
	ctx := context.Background()
	processor, st := newTestProcessor(t)

	for i := 0; i < 10; i++ {
		interval := 1
		if i == 5 {
			// An invalid rule fails before any write.
			interval = 0
		}
		mustCreateSchedule(t, st, core.RecurringSchedule{
			ID:          "sch-" + strconv.Itoa(i),
			TenantID:    "tn-1",
			Description: "Subscription " + strconv.Itoa(i),
			Amount:      core.Money{Cents: 999},
			Kind:        core.Expense,
			Frequency:   core.Monthly,
			Interval:    interval,
			NextDueDate: core.NewDate(2024, 3, 1),
		})
	}

	batch, err := processor.ProcessDue(ctx, "tn-1", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if batch.ProcessedCount != 10 || batch.SuccessCount != 9 || batch.FailureCount != 1 {
		t.Fatalf("batch = %d/%d/%d, want 10 processed, 9 succeeded, 1 failed",
			batch.ProcessedCount, batch.SuccessCount, batch.FailureCount)
	}

	for _, r := range batch.Results {
		if r.ScheduleID == "sch-5" {
			if r.Success {
				t.Error("sch-5 should have failed")
			}
			if r.Error == "" {
				t.Error("failed result should carry the error")
			}
		}
	}

	// The broken schedule stays put; the rest advanced past the run date.
	broken, _ := st.GetSchedule(ctx, "sch-5")
	if !broken.NextDueDate.Equal(core.NewDate(2024, 3, 1).Time) {
		t.Errorf("failed schedule NextDueDate = %s, want unchanged 2024-03-01", broken.NextDueDate)
	}
	ok, _ := st.GetSchedule(ctx, "sch-0")
	if !ok.NextDueDate.Equal(core.NewDate(2024, 4, 1).Time) {
		t.Errorf("healthy schedule NextDueDate = %s, want 2024-04-01", ok.NextDueDate)
	}
}

func TestRecurringProcessor_RerunDoesNotDuplicate(t *testing.T) {
	ctx := context.Background()
	processor, st := newTestProcessor(t)

	mustCreateSchedule(t, st, core.RecurringSchedule{
		ID: "sch-1", TenantID: "tn-1", Description: "Gym",
		Amount: core.Money{Cents: 4500}, Kind: core.Expense,
		Frequency: core.Weekly, Interval: 1,
		NextDueDate: core.NewDate(2024, 3, 4),
	})

	now := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	first, err := processor.ProcessDue(ctx, "tn-1", now)
	if err != nil {
		t.Fatalf("first ProcessDue() error = %v", err)
	}
	if first.SuccessCount != 1 {
		t.Fatalf("first run SuccessCount = %d, want 1", first.SuccessCount)
	}

	second, err := processor.ProcessDue(ctx, "tn-1", now)
	if err != nil {
		t.Fatalf("second ProcessDue() error = %v", err)
	}
	if second.ProcessedCount != 0 {
		t.Errorf("second run ProcessedCount = %d, want 0 (schedule advanced)", second.ProcessedCount)
	}
}

func TestRecurringProcessor_ResumesAfterPartialRun(t *testing.T) {
	ctx := context.Background()
	processor, st := newTestProcessor(t)

	mustCreateSchedule(t, st, core.RecurringSchedule{
		ID: "sch-1", TenantID: "tn-1", Description: "Hosting",
		Amount: core.Money{Cents: 1200}, Kind: core.Expense,
		Frequency: core.Monthly, Interval: 1,
		NextDueDate: core.NewDate(2024, 3, 1),
	})

	// A prior run materialized the occurrence but crashed before advancing
	// the schedule.
	if _, err := st.CreateTransaction(ctx, core.Transaction{
		ID: "tx-prior", TenantID: "tn-1", Description: "Hosting",
		Amount: core.Money{Cents: 1200}, Kind: core.Expense,
		Status: core.StatusCompleted, Date: core.NewDate(2024, 3, 1),
		ScheduleID: "sch-1", DueDate: core.NewDate(2024, 3, 1), Recurring: true,
	}); err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}

	batch, err := processor.ProcessDue(ctx, "tn-1", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if batch.SuccessCount != 1 {
		t.Fatalf("SuccessCount = %d, want 1", batch.SuccessCount)
	}

	// The result references the transaction the prior run stored, not a
	// fresh ID that was never written.
	if got := batch.Results[0].TransactionID; got != "tx-prior" {
		t.Errorf("result TransactionID = %s, want tx-prior", got)
	}

	schedule, _ := st.GetSchedule(ctx, "sch-1")
	if !schedule.NextDueDate.Equal(core.NewDate(2024, 4, 1).Time) {
		t.Errorf("schedule NextDueDate = %s, want 2024-04-01", schedule.NextDueDate)
	}

	// Only the prior transaction exists for the occurrence.
	history, _ := st.ListCompletedTransactions(ctx, "")
	count := 0
	for _, tx := range history {
		if tx.ScheduleID == "sch-1" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("materialized transactions = %d, want 1", count)
	}
}

func TestRecurringProcessor_EndDateCompletesSchedule(t *testing.T) {
	ctx := context.Background()
	processor, st := newTestProcessor(t)

	mustCreateSchedule(t, st, core.RecurringSchedule{
		ID: "sch-1", TenantID: "tn-1", Description: "Installment",
		Amount: core.Money{Cents: 25000}, Kind: core.Expense,
		Frequency: core.Monthly, Interval: 1,
		NextDueDate: core.NewDate(2024, 6, 15),
		EndDate:     core.NewDate(2024, 6, 30),
	})

	batch, err := processor.ProcessDue(ctx, "tn-1", time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if batch.SuccessCount != 1 {
		t.Fatalf("SuccessCount = %d, want 1", batch.SuccessCount)
	}
	if batch.Results[0].Status != core.ScheduleCompleted {
		t.Errorf("result Status = %s, want completed", batch.Results[0].Status)
	}

	schedule, _ := st.GetSchedule(ctx, "sch-1")
	if schedule.Status != core.ScheduleCompleted {
		t.Errorf("schedule Status = %s, want completed", schedule.Status)
	}

	// Completed schedules never come due again.
	again, err := processor.ProcessDue(ctx, "tn-1", time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if again.ProcessedCount != 0 {
		t.Errorf("ProcessedCount after completion = %d, want 0", again.ProcessedCount)
	}
}

func TestRecurringProcessor_PauseResume(t *testing.T) {
	ctx := context.Background()
	processor, st := newTestProcessor(t)

	mustCreateSchedule(t, st, core.RecurringSchedule{
		ID: "sch-1", TenantID: "tn-1", Description: "Streaming",
		Amount: core.Money{Cents: 1500}, Kind: core.Expense,
		Frequency: core.Monthly, Interval: 1,
		NextDueDate: core.NewDate(2024, 3, 1),
	})

	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	if err := processor.PauseSchedule(ctx, "sch-1"); err != nil {
		t.Fatalf("PauseSchedule() error = %v", err)
	}
	schedule, _ := st.GetSchedule(ctx, "sch-1")
	if schedule.Status != core.SchedulePaused {
		t.Fatalf("schedule Status = %s, want paused", schedule.Status)
	}

	// Pausing an already-paused schedule is rejected.
	if err := processor.PauseSchedule(ctx, "sch-1"); err == nil {
		t.Error("PauseSchedule() accepted a paused schedule")
	}

	batch, err := processor.ProcessDue(ctx, "tn-1", now)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if batch.ProcessedCount != 0 {
		t.Errorf("ProcessedCount while paused = %d, want 0", batch.ProcessedCount)
	}

	if err := processor.ResumeSchedule(ctx, "sch-1"); err != nil {
		t.Fatalf("ResumeSchedule() error = %v", err)
	}

	batch, err = processor.ProcessDue(ctx, "tn-1", now)
	if err != nil {
		t.Fatalf("ProcessDue() error = %v", err)
	}
	if batch.SuccessCount != 1 {
		t.Errorf("SuccessCount after resume = %d, want 1", batch.SuccessCount)
	}

	// An active schedule cannot be resumed, and a missing one is an error.
	if err := processor.ResumeSchedule(ctx, "sch-1"); err == nil {
		t.Error("ResumeSchedule() accepted an active schedule")
	}
	if err := processor.PauseSchedule(ctx, "nope"); err == nil {
		t.Error("PauseSchedule() accepted an unknown schedule")
	}
}

func TestRecurringProcessor_ProcessAllTenants(t *testing.T) {
	ctx := context.Background()
	processor, st := newTestProcessor(t)

	for i, tenant := range []string{"tn-1", "tn-2"} {
		mustCreateSchedule(t, st, core.RecurringSchedule{
			ID: "sch-" + strconv.Itoa(i), TenantID: tenant, Description: "Sub",
			Amount: core.Money{Cents: 500}, Kind: core.Expense,
			Frequency: core.Daily, Interval: 1,
			NextDueDate: core.NewDate(2024, 3, 1),
		})
	}

	batch, err := processor.ProcessAllTenants(ctx, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ProcessAllTenants() error = %v", err)
	}
	if batch.ProcessedCount != 2 || batch.SuccessCount != 2 {
		t.Errorf("batch = %d processed / %d succeeded, want 2/2", batch.ProcessedCount, batch.SuccessCount)
	}
}
