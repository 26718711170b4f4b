package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"tally/internal/cache"
	"tally/internal/core"
	applog "tally/internal/log"
	"tally/internal/store"
)

// BudgetService maintains per-item and per-budget running totals. Every item
// mutation applies its delta to the parent within the same store operation;
// the totals are never recomputed from the children.
type BudgetService struct {
	budgets      store.BudgetStore
	transactions store.TransactionStore
	overviews    cache.Cache[core.BudgetOverview] // optional read-side cache
}

func NewBudgetService(budgets store.BudgetStore, transactions store.TransactionStore, overviews cache.Cache[core.BudgetOverview]) *BudgetService {
	return &BudgetService{
		budgets:      budgets,
		transactions: transactions,
		overviews:    overviews,
	}
}

// CreateItem adds an item and its allocation to the parent budget.
func (s *BudgetService) CreateItem(ctx context.Context, item core.BudgetItem) (*core.BudgetItem, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if err := item.Validate(); err != nil {
		return nil, fmt.Errorf("validate budget item: %w", err)
	}
	if err := s.budgets.CreateBudgetItem(ctx, item); err != nil {
		return nil, fmt.Errorf("create budget item: %w", err)
	}
	s.invalidate(item.BudgetID)

	slog.InfoContext(ctx, "Budget item created",
		applog.FieldBudgetItemID, item.ID,
		applog.FieldBudgetID, item.BudgetID,
		applog.FieldAmountCents, item.Amount)
	return &item, nil
}

// UpdateItem rewrites the item; the amount and spent deltas against the
// stored item propagate to the parent atomically with the item write.
func (s *BudgetService) UpdateItem(ctx context.Context, item core.BudgetItem) (*core.BudgetItem, error) {
	if err := item.Validate(); err != nil {
		return nil, fmt.Errorf("validate budget item: %w", err)
	}
	old, err := s.budgets.GetBudgetItem(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("get budget item: %w", err)
	}
	item.BudgetID = old.BudgetID
	if err := s.budgets.UpdateBudgetItem(ctx, item); err != nil {
		return nil, fmt.Errorf("update budget item: %w", err)
	}
	s.invalidate(old.BudgetID)

	slog.InfoContext(ctx, "Budget item updated",
		applog.FieldBudgetItemID, item.ID,
		applog.FieldBudgetID, old.BudgetID,
		"amount_delta_cents", item.Amount-old.Amount,
		"spent_delta_cents", item.Spent-old.Spent)
	return &item, nil
}

// DeleteItem removes the item, subtracting its allocation and spend from the
// parent.
func (s *BudgetService) DeleteItem(ctx context.Context, itemID string) error {
	item, err := s.budgets.GetBudgetItem(ctx, itemID)
	if err != nil {
		return fmt.Errorf("get budget item: %w", err)
	}
	if err := s.budgets.DeleteBudgetItem(ctx, itemID); err != nil {
		return fmt.Errorf("delete budget item: %w", err)
	}
	s.invalidate(item.BudgetID)

	slog.InfoContext(ctx, "Budget item deleted",
		applog.FieldBudgetItemID, itemID,
		applog.FieldBudgetID, item.BudgetID)
	return nil
}

// TrackSpend applies a transaction's amount to the item's spent and the
// parent's totalSpent. Only expense transactions can be tracked; the spend of
// a given transaction is applied at most once, so retries and duplicate
// events are harmless. Returns whether the spend was applied by this call.
func (s *BudgetService) TrackSpend(ctx context.Context, itemID, transactionID string) (bool, error) {
	t, err := s.transactions.GetTransaction(ctx, transactionID)
	if err != nil {
		return false, fmt.Errorf("get transaction: %w", err)
	}
	if t.Kind != core.Expense {
		return false, fmt.Errorf("transaction %s is %s: %w", transactionID, t.Kind, core.ErrTrackingRejected)
	}

	applied, err := s.budgets.ApplySpend(ctx, itemID, transactionID, t.Amount.Cents)
	if err != nil {
		return false, fmt.Errorf("apply spend: %w", err)
	}
	if !applied {
		slog.DebugContext(ctx, "Spend already tracked, skipping",
			applog.FieldTransactionID, transactionID,
			applog.FieldBudgetItemID, itemID)
		return false, nil
	}
	if item, err := s.budgets.GetBudgetItem(ctx, itemID); err == nil {
		s.invalidate(item.BudgetID)
	}

	slog.InfoContext(ctx, "Spend tracked",
		applog.FieldTransactionID, transactionID,
		applog.FieldBudgetItemID, itemID,
		applog.FieldAmountCents, t.Amount.Cents)
	return true, nil
}

// Overview returns the budget with its items and their read-time status
// classification. Served from the cache when one is configured; every
// mutation of the budget drops the cached entry.
func (s *BudgetService) Overview(ctx context.Context, budgetID string) (core.BudgetOverview, error) {
	if s.overviews != nil {
		if ov, ok := s.overviews.Get(budgetID); ok {
			return ov, nil
		}
	}

	budget, err := s.budgets.GetBudget(ctx, budgetID)
	if err != nil {
		return core.BudgetOverview{}, fmt.Errorf("get budget: %w", err)
	}
	items, err := s.budgets.ListBudgetItems(ctx, budgetID)
	if err != nil {
		return core.BudgetOverview{}, fmt.Errorf("list budget items: %w", err)
	}

	pct, health := core.SpendStatus(budget.TotalBudget, budget.TotalSpent)
	ov := core.BudgetOverview{
		Budget:          *budget,
		SpentPercentage: pct,
		Health:          health,
		Items:           make([]core.ItemStatus, 0, len(items)),
	}
	for _, item := range items {
		ipct, ihealth := core.SpendStatus(item.Amount, item.Spent)
		ov.Items = append(ov.Items, core.ItemStatus{
			Item:            item,
			SpentPercentage: ipct,
			Health:          ihealth,
		})
	}

	if s.overviews != nil {
		s.overviews.Set(budgetID, ov)
	}
	return ov, nil
}

func (s *BudgetService) invalidate(budgetID string) {
	if s.overviews != nil {
		s.overviews.Delete(budgetID)
	}
}
