// Package memory implements the store ports over in-process maps. It backs
// the memory backend and the service-level tests. A single mutex stands in
// for the per-aggregate atomicity the SQLite repository gets from its
// transactions.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tally/internal/core"
)

type Store struct {
	mu sync.Mutex

	accounts     map[string]core.Account
	audit        map[string][]core.AuditLogEntry
	transactions map[string]core.Transaction
	occurrences  map[string]string // scheduleID|dueDate -> transaction ID
	tracked      map[string]bool   // transaction ID -> budget spend applied
	schedules    map[string]core.RecurringSchedule
	budgets      map[string]core.Budget
	items        map[string]core.BudgetItem
}

func New() *Store {
	return &Store{
		accounts:     make(map[string]core.Account),
		audit:        make(map[string][]core.AuditLogEntry),
		transactions: make(map[string]core.Transaction),
		occurrences:  make(map[string]string),
		tracked:      make(map[string]bool),
		schedules:    make(map[string]core.RecurringSchedule),
		budgets:      make(map[string]core.Budget),
		items:        make(map[string]core.BudgetItem),
	}
}

func occurrenceKey(scheduleID string, due core.Date) string {
	return scheduleID + "|" + due.String()
}

func (s *Store) GetAccount(_ context.Context, id string) (*core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, core.ErrNotFound)
	}
	return &a, nil
}

func (s *Store) CreateAccount(_ context.Context, a core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; ok {
		return fmt.Errorf("account %s already exists", a.ID)
	}
	s.accounts[a.ID] = a
	return nil
}

func (s *Store) UpdateAccountBalance(_ context.Context, accountID string, expectedVersion int64, newBalance int64, entry core.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return fmt.Errorf("account %s: %w", accountID, core.ErrNotFound)
	}
	if a.Version != expectedVersion {
		return fmt.Errorf("account %s version %d moved to %d: %w", accountID, expectedVersion, a.Version, core.ErrWriteConflict)
	}
	a.Balance = newBalance
	a.Version++
	s.accounts[accountID] = a
	s.audit[accountID] = append(s.audit[accountID], entry)
	return nil
}

func (s *Store) ListAuditLog(_ context.Context, accountID string) ([]core.AuditLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]core.AuditLogEntry, len(s.audit[accountID]))
	copy(entries, s.audit[accountID])
	return entries, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return &t, nil
}

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[t.ID]; ok {
		return false, fmt.Errorf("transaction %s already exists", t.ID)
	}
	if t.ScheduleID != "" {
		key := occurrenceKey(t.ScheduleID, t.DueDate)
		if _, ok := s.occurrences[key]; ok {
			return false, nil
		}
		s.occurrences[key] = t.ID
	}
	s.transactions[t.ID] = t
	return true, nil
}

func (s *Store) GetOccurrenceTransaction(_ context.Context, scheduleID string, due core.Date) (*core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.occurrences[occurrenceKey(scheduleID, due)]
	if !ok {
		return nil, fmt.Errorf("occurrence %s %s: %w", scheduleID, due, core.ErrNotFound)
	}
	t, ok := s.transactions[id]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return &t, nil
}

func (s *Store) ListCompletedTransactions(_ context.Context, accountID string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, t := range s.transactions {
		if t.AccountID == accountID && t.Status == core.StatusCompleted {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) ListUntrackedBudgetTransactions(_ context.Context, limit int) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, t := range s.transactions {
		if t.BudgetItemID == "" || t.Kind != core.Expense || s.tracked[t.ID] {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) GetSchedule(_ context.Context, id string) (*core.RecurringSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schedules[id]
	if !ok {
		return nil, fmt.Errorf("schedule %s: %w", id, core.ErrNotFound)
	}
	return &sc, nil
}

func (s *Store) CreateSchedule(_ context.Context, sc core.RecurringSchedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.schedules[sc.ID]; ok {
		return fmt.Errorf("schedule %s already exists", sc.ID)
	}
	s.schedules[sc.ID] = sc
	return nil
}

func (s *Store) ListDueSchedules(_ context.Context, tenantID string, due core.Date) ([]core.RecurringSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.RecurringSchedule
	for _, sc := range s.schedules {
		if sc.TenantID != tenantID || sc.Status != core.ScheduleActive {
			continue
		}
		if sc.NextDueDate.After(due.Time) {
			continue
		}
		out = append(out, sc)
	}
	return out, nil
}

func (s *Store) ListScheduleTenants(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	var out []string
	for _, sc := range s.schedules {
		if sc.Status != core.ScheduleActive {
			continue
		}
		if _, ok := seen[sc.TenantID]; ok {
			continue
		}
		seen[sc.TenantID] = struct{}{}
		out = append(out, sc.TenantID)
	}
	return out, nil
}

func (s *Store) AdvanceSchedule(_ context.Context, id string, processedDue core.Date, nextDue core.Date, processedAt time.Time, status core.ScheduleStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schedules[id]
	if !ok {
		return fmt.Errorf("schedule %s: %w", id, core.ErrNotFound)
	}
	if !sc.NextDueDate.Equal(processedDue.Time) {
		return fmt.Errorf("schedule %s due date moved: %w", id, core.ErrWriteConflict)
	}
	sc.NextDueDate = nextDue
	sc.LastProcessedDate = processedAt
	sc.Status = status
	s.schedules[id] = sc
	return nil
}

func (s *Store) SetScheduleStatus(_ context.Context, id string, status core.ScheduleStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schedules[id]
	if !ok {
		return fmt.Errorf("schedule %s: %w", id, core.ErrNotFound)
	}
	sc.Status = status
	s.schedules[id] = sc
	return nil
}

func (s *Store) GetBudget(_ context.Context, id string) (*core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[id]
	if !ok {
		return nil, fmt.Errorf("budget %s: %w", id, core.ErrNotFound)
	}
	return &b, nil
}

func (s *Store) CreateBudget(_ context.Context, b core.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.budgets[b.ID]; ok {
		return fmt.Errorf("budget %s already exists", b.ID)
	}
	s.budgets[b.ID] = b
	return nil
}

func (s *Store) GetBudgetItem(_ context.Context, id string) (*core.BudgetItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("budget item %s: %w", id, core.ErrNotFound)
	}
	return &item, nil
}

func (s *Store) ListBudgetItems(_ context.Context, budgetID string) ([]core.BudgetItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.BudgetItem
	for _, item := range s.items {
		if item.BudgetID == budgetID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *Store) CreateBudgetItem(_ context.Context, item core.BudgetItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[item.BudgetID]
	if !ok {
		return fmt.Errorf("budget %s: %w", item.BudgetID, core.ErrNotFound)
	}
	if _, ok := s.items[item.ID]; ok {
		return fmt.Errorf("budget item %s already exists", item.ID)
	}
	s.items[item.ID] = item
	b.TotalBudget += item.Amount
	b.TotalSpent += item.Spent
	s.budgets[item.BudgetID] = b
	return nil
}

func (s *Store) UpdateBudgetItem(_ context.Context, item core.BudgetItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.items[item.ID]
	if !ok {
		return fmt.Errorf("budget item %s: %w", item.ID, core.ErrNotFound)
	}
	b, ok := s.budgets[old.BudgetID]
	if !ok {
		return fmt.Errorf("budget %s: %w", old.BudgetID, core.ErrNotFound)
	}
	item.BudgetID = old.BudgetID
	s.items[item.ID] = item
	b.TotalBudget += item.Amount - old.Amount
	b.TotalSpent += item.Spent - old.Spent
	s.budgets[old.BudgetID] = b
	return nil
}

func (s *Store) DeleteBudgetItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return fmt.Errorf("budget item %s: %w", id, core.ErrNotFound)
	}
	b, ok := s.budgets[item.BudgetID]
	if !ok {
		return fmt.Errorf("budget %s: %w", item.BudgetID, core.ErrNotFound)
	}
	delete(s.items, id)
	b.TotalBudget -= item.Amount
	b.TotalSpent -= item.Spent
	s.budgets[item.BudgetID] = b
	return nil
}

func (s *Store) ApplySpend(_ context.Context, itemID, transactionID string, amountCents int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[transactionID]; !ok {
		return false, fmt.Errorf("transaction %s: %w", transactionID, core.ErrNotFound)
	}
	if s.tracked[transactionID] {
		return false, nil
	}
	item, ok := s.items[itemID]
	if !ok {
		return false, fmt.Errorf("budget item %s: %w", itemID, core.ErrNotFound)
	}
	b, ok := s.budgets[item.BudgetID]
	if !ok {
		return false, fmt.Errorf("budget %s: %w", item.BudgetID, core.ErrNotFound)
	}
	item.Spent += amountCents
	b.TotalSpent += amountCents
	s.items[itemID] = item
	s.budgets[item.BudgetID] = b
	s.tracked[transactionID] = true
	return true, nil
}
