package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tally/internal/core"
	applog "tally/internal/log"
	"tally/internal/store"
)

// TransactionDelta is the sign rule every balance mutation shares: pending
// and failed transactions contribute nothing; an expense subtracts its
// magnitude; a credit-type account moves opposite to cash/bank accounts for
// the same transaction kind, so the sign flips once more.
func TransactionDelta(accountType core.AccountType, t core.Transaction) int64 {
	if t.Status != core.StatusCompleted {
		return 0
	}
	delta := t.Amount.Cents
	if t.Kind == core.Expense {
		delta = -delta
	}
	if accountType == core.AccountCredit {
		delta = -delta
	}
	return delta
}

// LedgerService mutates account balances. Every change goes through the
// store's balance+audit write, which succeeds or fails as a unit.
type LedgerService struct {
	accounts     store.AccountStore
	transactions store.TransactionStore
}

func NewLedgerService(accounts store.AccountStore, transactions store.TransactionStore) *LedgerService {
	return &LedgerService{
		accounts:     accounts,
		transactions: transactions,
	}
}

// ApplyDelta applies one transaction to its account. Non-completed
// transactions are a no-op and return the account unchanged with no audit
// entry. A concurrent balance write surfaces as core.ErrWriteConflict; the
// caller may retry, re-reading the account.
func (s *LedgerService) ApplyDelta(ctx context.Context, accountID string, t core.Transaction) (*core.Account, error) {
	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	delta := TransactionDelta(account.Type, t)
	if delta == 0 {
		return account, nil
	}

	newBalance := account.Balance + delta
	entry := core.AuditLogEntry{
		ID:              uuid.NewString(),
		AccountID:       accountID,
		PreviousBalance: account.Balance,
		NewBalance:      newBalance,
		ChangeAmount:    delta,
		Reason:          fmt.Sprintf("transaction %s (%s %s)", t.ID, t.Kind, core.FormatCents(t.Amount.Cents)),
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.accounts.UpdateAccountBalance(ctx, accountID, account.Version, newBalance, entry); err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}

	slog.InfoContext(ctx, "Applied balance delta",
		applog.FieldAccountID, accountID,
		applog.FieldTransactionID, t.ID,
		"change_cents", delta,
		"new_balance_cents", newBalance)

	account.Balance = newBalance
	account.Version++
	return account, nil
}

// Recalculate replays the account's full completed-transaction history
// through the sign rule and writes the computed total as the balance, with a
// single audit entry describing the correction. Running it twice with no new
// transactions yields a zero change amount the second time.
func (s *LedgerService) Recalculate(ctx context.Context, accountID string) (*core.Account, error) {
	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}

	history, err := s.transactions.ListCompletedTransactions(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list completed transactions: %w", err)
	}

	var total int64
	for _, t := range history {
		total += TransactionDelta(account.Type, t)
	}

	change := total - account.Balance
	entry := core.AuditLogEntry{
		ID:              uuid.NewString(),
		AccountID:       accountID,
		PreviousBalance: account.Balance,
		NewBalance:      total,
		ChangeAmount:    change,
		Reason:          fmt.Sprintf("balance reconciliation: replayed %d transactions", len(history)),
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.accounts.UpdateAccountBalance(ctx, accountID, account.Version, total, entry); err != nil {
		return nil, fmt.Errorf("write reconciled balance: %w", err)
	}

	if change != 0 {
		slog.WarnContext(ctx, "Reconciliation corrected balance drift",
			applog.FieldAccountID, accountID,
			"drift_cents", change,
			"replayed", len(history))
	} else {
		slog.InfoContext(ctx, "Reconciliation confirmed balance",
			applog.FieldAccountID, accountID,
			"replayed", len(history))
	}

	account.Balance = total
	account.Version++
	return account, nil
}
