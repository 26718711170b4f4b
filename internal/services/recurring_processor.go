package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tally/internal/core"
	applog "tally/internal/log"
	"tally/internal/recurrence"
	"tally/internal/store"
)

// RecurringProcessor materializes due schedule occurrences into ledger
// transactions and advances the schedules. Schedules are processed
// independently: one schedule's failure is recorded in the batch result and
// never stops the rest.
type RecurringProcessor struct {
	store        store.Store
	transactions *TransactionService
}

func NewRecurringProcessor(st store.Store, transactions *TransactionService) *RecurringProcessor {
	return &RecurringProcessor{
		store:        st,
		transactions: transactions,
	}
}

// ScheduleResult is the per-schedule outcome of a batch run.
type ScheduleResult struct {
	ScheduleID    string
	Success       bool
	TransactionID string
	NextDueDate   core.Date
	Status        core.ScheduleStatus
	Error         string
}

// BatchResult aggregates one ProcessDue run.
type BatchResult struct {
	ProcessedCount int
	SuccessCount   int
	FailureCount   int
	Results        []ScheduleResult
}

func (b *BatchResult) add(r ScheduleResult) {
	b.ProcessedCount++
	if r.Success {
		b.SuccessCount++
	} else {
		b.FailureCount++
	}
	b.Results = append(b.Results, r)
}

// ProcessDue materializes every active schedule of the tenant whose next due
// date is on or before now. Each occurrence becomes a completed transaction
// dated at the schedule's due date (not now); the schedule's occurrence key
// makes a retried batch skip already-materialized occurrences. One occurrence
// is materialized per schedule per run; catching up several missed periods
// takes several runs.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, tenantID string, now time.Time) (BatchResult, error) {
	if p.store == nil || p.transactions == nil {
		return BatchResult{}, fmt.Errorf("processor not properly initialized")
	}

	today := core.DateOf(now)
	due, err := p.store.ListDueSchedules(ctx, tenantID, today)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list due schedules: %w", err)
	}

	slog.InfoContext(ctx, "Processing due schedules",
		applog.FieldTenantID, tenantID,
		applog.FieldCount, len(due),
		"processing_date", today.String())

	var batch BatchResult
	for _, schedule := range due {
		result, err := p.processOne(ctx, schedule, now)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to process schedule",
				applog.FieldScheduleID, schedule.ID,
				"description", schedule.Description,
				applog.FieldError, err)
			batch.add(ScheduleResult{
				ScheduleID: schedule.ID,
				Success:    false,
				Error:      err.Error(),
			})
			continue
		}
		batch.add(result)
	}

	slog.InfoContext(ctx, "Due schedule processing complete",
		applog.FieldTenantID, tenantID,
		"processed", batch.ProcessedCount,
		"succeeded", batch.SuccessCount,
		"failed", batch.FailureCount)

	return batch, nil
}

func (p *RecurringProcessor) processOne(ctx context.Context, schedule core.RecurringSchedule, now time.Time) (ScheduleResult, error) {
	rule := recurrence.RuleFor(schedule)
	nextDue, err := rule.Next(schedule.NextDueDate)
	if err != nil {
		return ScheduleResult{}, fmt.Errorf("compute next occurrence: %w", err)
	}

	t := core.Transaction{
		TenantID:     schedule.TenantID,
		AccountID:    schedule.AccountID,
		Description:  schedule.Description,
		Amount:       schedule.Amount,
		Kind:         schedule.Kind,
		Status:       core.StatusCompleted,
		Date:         schedule.NextDueDate,
		BudgetItemID: schedule.BudgetItemID,
		ScheduleID:   schedule.ID,
		DueDate:      schedule.NextDueDate,
		Recurring:    true,
	}

	recorded, created, err := p.transactions.Record(ctx, t)
	if err != nil {
		return ScheduleResult{}, fmt.Errorf("materialize transaction: %w", err)
	}
	if !created {
		// A prior, partially failed run already materialized this
		// occurrence; only the schedule advance is left to redo.
		slog.InfoContext(ctx, "Occurrence already materialized, re-advancing schedule",
			applog.FieldScheduleID, schedule.ID,
			applog.FieldDueDate, schedule.NextDueDate.String())
	}

	status := core.ScheduleActive
	if !schedule.EndDate.IsEmpty() && nextDue.After(schedule.EndDate.Time) {
		status = core.ScheduleCompleted
	}

	if err := p.store.AdvanceSchedule(ctx, schedule.ID, schedule.NextDueDate, nextDue, now, status); err != nil {
		return ScheduleResult{}, fmt.Errorf("advance schedule: %w", err)
	}

	slog.InfoContext(ctx, "Materialized schedule occurrence",
		applog.FieldScheduleID, schedule.ID,
		applog.FieldTransactionID, recorded.ID,
		"occurrence_date", schedule.NextDueDate.String(),
		applog.FieldNextDueDate, nextDue.String(),
		"status", status)

	return ScheduleResult{
		ScheduleID:    schedule.ID,
		Success:       true,
		TransactionID: recorded.ID,
		NextDueDate:   nextDue,
		Status:        status,
	}, nil
}

// ProcessAllTenants runs ProcessDue for every tenant with active schedules
// and merges the results. A tenant whose listing fails is logged and skipped;
// the other tenants still run.
func (p *RecurringProcessor) ProcessAllTenants(ctx context.Context, now time.Time) (BatchResult, error) {
	tenants, err := p.store.ListScheduleTenants(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list schedule tenants: %w", err)
	}

	var merged BatchResult
	for _, tenantID := range tenants {
		batch, err := p.ProcessDue(ctx, tenantID, now)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to process tenant",
				applog.FieldTenantID, tenantID,
				applog.FieldError, err)
			continue
		}
		merged.ProcessedCount += batch.ProcessedCount
		merged.SuccessCount += batch.SuccessCount
		merged.FailureCount += batch.FailureCount
		merged.Results = append(merged.Results, batch.Results...)
	}
	return merged, nil
}

// PauseSchedule takes an active schedule out of batch processing. Its next
// due date stays where it is, so a later resume picks up from the paused
// occurrence.
func (p *RecurringProcessor) PauseSchedule(ctx context.Context, scheduleID string) error {
	schedule, err := p.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return fmt.Errorf("get schedule: %w", err)
	}
	if schedule.Status != core.ScheduleActive {
		return fmt.Errorf("schedule %s is %s, only active schedules can be paused", scheduleID, schedule.Status)
	}
	if err := p.store.SetScheduleStatus(ctx, scheduleID, core.SchedulePaused); err != nil {
		return fmt.Errorf("pause schedule: %w", err)
	}

	slog.InfoContext(ctx, "Schedule paused",
		applog.FieldScheduleID, scheduleID,
		applog.FieldNextDueDate, schedule.NextDueDate.String())
	return nil
}

// ResumeSchedule reactivates a paused schedule. A completed schedule stays
// completed.
func (p *RecurringProcessor) ResumeSchedule(ctx context.Context, scheduleID string) error {
	schedule, err := p.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return fmt.Errorf("get schedule: %w", err)
	}
	if schedule.Status != core.SchedulePaused {
		return fmt.Errorf("schedule %s is %s, only paused schedules can be resumed", scheduleID, schedule.Status)
	}
	if err := p.store.SetScheduleStatus(ctx, scheduleID, core.ScheduleActive); err != nil {
		return fmt.Errorf("resume schedule: %w", err)
	}

	slog.InfoContext(ctx, "Schedule resumed",
		applog.FieldScheduleID, scheduleID,
		applog.FieldNextDueDate, schedule.NextDueDate.String())
	return nil
}
