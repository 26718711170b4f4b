// Package store declares the ports the services mutate state through. Every
// method that touches more than one field of an aggregate (balance plus audit
// entry, item plus parent budget, the schedule triple) is a single atomic
// operation in each implementation; partial writes are the correctness hazard
// this layer exists to rule out.
package store

import (
	"context"
	"time"

	"tally/internal/core"
)

type (
	AccountStore interface {
		GetAccount(ctx context.Context, id string) (*core.Account, error)
		CreateAccount(ctx context.Context, a core.Account) error

		// UpdateAccountBalance writes the new balance and appends the audit
		// entry in one operation, guarded by the account version read
		// beforehand. Returns core.ErrWriteConflict when the version moved,
		// core.ErrNotFound when the account is missing.
		UpdateAccountBalance(ctx context.Context, accountID string, expectedVersion int64, newBalance int64, entry core.AuditLogEntry) error

		ListAuditLog(ctx context.Context, accountID string) ([]core.AuditLogEntry, error)
	}

	TransactionStore interface {
		GetTransaction(ctx context.Context, id string) (*core.Transaction, error)

		// GetOccurrenceTransaction returns the transaction materialized for
		// the given schedule occurrence, or core.ErrNotFound.
		GetOccurrenceTransaction(ctx context.Context, scheduleID string, due core.Date) (*core.Transaction, error)

		// CreateTransaction inserts the transaction. When ScheduleID and
		// DueDate are set and a transaction for that pair already exists,
		// nothing is written and created is false: that pair is the
		// idempotency key preventing duplicate materialization.
		CreateTransaction(ctx context.Context, t core.Transaction) (created bool, err error)

		// ListCompletedTransactions returns every completed transaction of
		// the account, for balance replay.
		ListCompletedTransactions(ctx context.Context, accountID string) ([]core.Transaction, error)

		// ListUntrackedBudgetTransactions returns expense transactions
		// tagged to a budget item whose spend has not been tracked yet.
		ListUntrackedBudgetTransactions(ctx context.Context, limit int) ([]core.Transaction, error)
	}

	ScheduleStore interface {
		GetSchedule(ctx context.Context, id string) (*core.RecurringSchedule, error)
		CreateSchedule(ctx context.Context, s core.RecurringSchedule) error

		// ListDueSchedules returns active schedules of the tenant whose next
		// due date is on or before the given day.
		ListDueSchedules(ctx context.Context, tenantID string, due core.Date) ([]core.RecurringSchedule, error)

		// ListScheduleTenants returns the distinct tenants that own at least
		// one active schedule.
		ListScheduleTenants(ctx context.Context) ([]string, error)

		// AdvanceSchedule persists nextDueDate, lastProcessedDate and status
		// as one write, guarded by the due date the caller processed. A
		// concurrent advance surfaces as core.ErrWriteConflict.
		AdvanceSchedule(ctx context.Context, id string, processedDue core.Date, nextDue core.Date, processedAt time.Time, status core.ScheduleStatus) error

		SetScheduleStatus(ctx context.Context, id string, status core.ScheduleStatus) error
	}

	BudgetStore interface {
		GetBudget(ctx context.Context, id string) (*core.Budget, error)
		CreateBudget(ctx context.Context, b core.Budget) error
		GetBudgetItem(ctx context.Context, id string) (*core.BudgetItem, error)
		ListBudgetItems(ctx context.Context, budgetID string) ([]core.BudgetItem, error)

		// The item mutations apply the amount/spent deltas to the parent
		// budget inside the same operation as the item write.
		CreateBudgetItem(ctx context.Context, item core.BudgetItem) error
		UpdateBudgetItem(ctx context.Context, item core.BudgetItem) error
		DeleteBudgetItem(ctx context.Context, id string) error

		// ApplySpend increments the item's spent and the parent's totalSpent
		// by the transaction amount, and marks the transaction tracked, all
		// in one operation. A transaction already tracked applies nothing
		// and returns applied=false.
		ApplySpend(ctx context.Context, itemID, transactionID string, amountCents int64) (applied bool, err error)
	}

	// Store is the full persistence surface, implemented by the SQLite
	// repository and the in-memory store.
	Store interface {
		AccountStore
		TransactionStore
		ScheduleStore
		BudgetStore
	}
)
