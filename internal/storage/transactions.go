package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tally/internal/core"
)

const transactionColumns = `id, tenant_id, account_id, description, amount_cents, kind, status,
	tx_date, budget_item_id, schedule_id, due_date, recurring`

func scanTransaction(row interface{ Scan(...any) error }) (core.Transaction, error) {
	var (
		t         core.Transaction
		accountID sql.NullString
		txDate    string
		itemID    sql.NullString
		schedID   sql.NullString
		dueDate   sql.NullString
	)
	err := row.Scan(&t.ID, &t.TenantID, &accountID, &t.Description, &t.Amount.Cents, &t.Kind, &t.Status,
		&txDate, &itemID, &schedID, &dueDate, &t.Recurring)
	if err != nil {
		return core.Transaction{}, err
	}
	t.AccountID = accountID.String
	t.BudgetItemID = itemID.String
	t.ScheduleID = schedID.String
	if t.Date, err = core.ParseDate(txDate); err != nil {
		return core.Transaction{}, fmt.Errorf("parse transaction date: %w", err)
	}
	if t.DueDate, err = scanDate(dueDate); err != nil {
		return core.Transaction{}, fmt.Errorf("parse due date: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (*core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	return &t, nil
}

func (r *SQLiteRepository) GetOccurrenceTransaction(ctx context.Context, scheduleID string, due core.Date) (*core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE schedule_id = ? AND due_date = ?`,
		scheduleID, due.String())
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("occurrence %s %s: %w", scheduleID, due, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	return &t, nil
}

// CreateTransaction inserts the transaction. The partial unique index on
// (schedule_id, due_date) makes re-materialization of an occurrence a no-op:
// the insert is skipped and created comes back false.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, tenant_id, account_id, description, amount_cents, kind, status,
			tx_date, budget_item_id, schedule_id, due_date, recurring)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (schedule_id, due_date) WHERE schedule_id IS NOT NULL DO NOTHING`,
		t.ID, t.TenantID, nullString(t.AccountID), t.Description, t.Amount.Cents, t.Kind, t.Status,
		t.Date.String(), nullString(t.BudgetItemID), nullString(t.ScheduleID), nullDate(t.DueDate), t.Recurring)
	if err != nil {
		return false, fmt.Errorf("insert transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *SQLiteRepository) ListCompletedTransactions(ctx context.Context, accountID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE account_id = ? AND status = ? ORDER BY tx_date, id`,
		accountID, core.StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("query completed transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (r *SQLiteRepository) ListUntrackedBudgetTransactions(ctx context.Context, limit int) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE budget_item_id IS NOT NULL AND budget_tracked = 0 AND kind = ?
		ORDER BY created_at LIMIT ?`,
		core.Expense, limit)
	if err != nil {
		return nil, fmt.Errorf("query untracked transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
