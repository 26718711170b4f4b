package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"tally/internal/core"
	applog "tally/internal/log"
	"tally/internal/store"
)

// BudgetEventPublisher announces transactions tagged against a budget item so
// the tracking worker can apply the spend. Implemented by the AMQP client;
// may be nil, in which case the backup scan picks the transaction up later.
type BudgetEventPublisher interface {
	PublishTransactionRecorded(ctx context.Context, transactionID, budgetItemID string) error
}

// TransactionService records transactions and routes their side effects: the
// ledger delta for the named account and the budget-tracking event for tagged
// expenses.
type TransactionService struct {
	store     store.Store
	ledger    *LedgerService
	publisher BudgetEventPublisher
}

func NewTransactionService(st store.Store, ledger *LedgerService, publisher BudgetEventPublisher) *TransactionService {
	return &TransactionService{
		store:     st,
		ledger:    ledger,
		publisher: publisher,
	}
}

// Record validates and stores the transaction, applies its ledger delta when
// it names an account, and publishes the budget-tracking event when it is
// tagged to a budget item. When the transaction carries a schedule occurrence
// key that already exists, nothing is written, created is false and the
// transaction materialized by the earlier run is returned. A crash between
// the insert and the ledger delta leaves the balance behind by one
// transaction; LedgerService.Recalculate repairs it from history.
func (s *TransactionService) Record(ctx context.Context, t core.Transaction) (tx *core.Transaction, created bool, err error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := t.Validate(); err != nil {
		return nil, false, fmt.Errorf("validate transaction: %w", err)
	}

	created, err = s.store.CreateTransaction(ctx, t)
	if err != nil {
		return nil, false, fmt.Errorf("create transaction: %w", err)
	}
	if !created {
		slog.InfoContext(ctx, "Transaction occurrence already materialized, skipping",
			applog.FieldScheduleID, t.ScheduleID,
			applog.FieldDueDate, t.DueDate.String())
		existing, err := s.store.GetOccurrenceTransaction(ctx, t.ScheduleID, t.DueDate)
		if err != nil {
			return nil, false, fmt.Errorf("get occurrence transaction: %w", err)
		}
		return existing, false, nil
	}

	if t.AccountID != "" {
		if _, err := s.ledger.ApplyDelta(ctx, t.AccountID, t); err != nil {
			return nil, true, fmt.Errorf("apply ledger delta: %w", err)
		}
	}

	if t.BudgetItemID != "" && t.Kind == core.Expense {
		if err := s.publishBudgetEvent(ctx, t); err != nil {
			// The backup scan covers lost events; the transaction stands.
			slog.ErrorContext(ctx, "Failed to publish budget tracking event",
				applog.FieldTransactionID, t.ID,
				applog.FieldBudgetItemID, t.BudgetItemID,
				applog.FieldError, err)
		}
	}

	slog.InfoContext(ctx, "Transaction recorded",
		applog.FieldTransactionID, t.ID,
		"kind", t.Kind,
		applog.FieldAmountCents, t.Amount.Cents,
		applog.FieldAccountID, t.AccountID,
		"recurring", t.Recurring)

	return &t, true, nil
}

func (s *TransactionService) publishBudgetEvent(ctx context.Context, t core.Transaction) error {
	if s.publisher == nil {
		slog.DebugContext(ctx, "No budget event publisher configured, relying on backup scan",
			applog.FieldTransactionID, t.ID)
		return nil
	}
	return s.publisher.PublishTransactionRecorded(ctx, t.ID, t.BudgetItemID)
}
