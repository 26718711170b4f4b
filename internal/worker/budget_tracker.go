package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tally/internal/amqp"
	"tally/internal/core"
	applog "tally/internal/log"
	"tally/internal/services"
	"tally/internal/store"
)

// BudgetTracker applies recorded expense transactions to their budget items.
// It consumes AMQP notifications and also scans the store for untracked
// transactions, so spends still land when messages are lost.
type BudgetTracker struct {
	transactions store.TransactionStore
	budgets      *services.BudgetService
	batchSize    int
}

func NewBudgetTracker(transactions store.TransactionStore, budgets *services.BudgetService, batchSize int) *BudgetTracker {
	return &BudgetTracker{
		transactions: transactions,
		budgets:      budgets,
		batchSize:    batchSize,
	}
}

// HandleTrackingMessage processes a single transaction recorded message.
func (w *BudgetTracker) HandleTrackingMessage(ctx context.Context, msg *amqp.TransactionRecordedMessage) error {
	slog.InfoContext(ctx, "Processing tracking message",
		applog.FieldTransactionID, msg.TransactionID,
		applog.FieldBudgetItemID, msg.BudgetItemID)

	_, err := w.budgets.TrackSpend(ctx, msg.BudgetItemID, msg.TransactionID)
	if errors.Is(err, core.ErrTrackingRejected) {
		// Non-expense transactions never affect budgets. Ack and move on,
		// requeueing would loop forever.
		slog.WarnContext(ctx, "Tracking rejected",
			applog.FieldTransactionID, msg.TransactionID,
			applog.FieldBudgetItemID, msg.BudgetItemID,
			applog.FieldError, err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("track spend: %w", err)
	}
	return nil
}

// ProcessUntracked applies any expense transactions whose spend has not been
// tracked yet. This is a backup mechanism in case AMQP messages are lost.
func (w *BudgetTracker) ProcessUntracked(ctx context.Context) error {
	return w.processUntrackedBatch(ctx, w.batchSize)
}

// StartupCheck sweeps a larger batch of untracked transactions at worker
// startup, recovering from missed messages or worker downtime.
func (w *BudgetTracker) StartupCheck(ctx context.Context) error {
	slog.InfoContext(ctx, "Running startup check for untracked transactions")
	return w.processUntrackedBatch(ctx, w.batchSize*5)
}

func (w *BudgetTracker) processUntrackedBatch(ctx context.Context, limit int) error {
	untracked, err := w.transactions.ListUntrackedBudgetTransactions(ctx, limit)
	if err != nil {
		return fmt.Errorf("list untracked transactions: %w", err)
	}

	if len(untracked) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing untracked transactions", applog.FieldCount, len(untracked))

	successCount := 0
	errorCount := 0

	for _, t := range untracked {
		if t.BudgetItemID == "" {
			continue
		}
		if _, err := w.budgets.TrackSpend(ctx, t.BudgetItemID, t.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to track spend",
				applog.FieldTransactionID, t.ID,
				applog.FieldBudgetItemID, t.BudgetItemID,
				applog.FieldError, err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Untracked sweep completed",
		"total", len(untracked),
		"tracked", successCount,
		"errors", errorCount)

	return nil
}
