package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tally/internal/core"
)

func (r *SQLiteRepository) GetBudget(ctx context.Context, id string) (*core.Budget, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, total_budget_cents, total_spent_cents
		FROM budgets WHERE id = ?`, id)

	var b core.Budget
	err := row.Scan(&b.ID, &b.TenantID, &b.Name, &b.TotalBudget, &b.TotalSpent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("budget %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan budget: %w", err)
	}
	return &b, nil
}

func (r *SQLiteRepository) CreateBudget(ctx context.Context, b core.Budget) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budgets (id, tenant_id, name, total_budget_cents, total_spent_cents)
		VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.TenantID, b.Name, b.TotalBudget, b.TotalSpent)
	if err != nil {
		return fmt.Errorf("insert budget: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetBudgetItem(ctx context.Context, id string) (*core.BudgetItem, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, budget_id, name, category, amount_cents, spent_cents
		FROM budget_items WHERE id = ?`, id)

	var item core.BudgetItem
	err := row.Scan(&item.ID, &item.BudgetID, &item.Name, &item.Category, &item.Amount, &item.Spent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("budget item %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan budget item: %w", err)
	}
	return &item, nil
}

func (r *SQLiteRepository) ListBudgetItems(ctx context.Context, budgetID string) ([]core.BudgetItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, budget_id, name, category, amount_cents, spent_cents
		FROM budget_items WHERE budget_id = ? ORDER BY name, id`, budgetID)
	if err != nil {
		return nil, fmt.Errorf("query budget items: %w", err)
	}
	defer rows.Close()

	var out []core.BudgetItem
	for rows.Next() {
		var item core.BudgetItem
		if err := rows.Scan(&item.ID, &item.BudgetID, &item.Name, &item.Category, &item.Amount, &item.Spent); err != nil {
			return nil, fmt.Errorf("scan budget item: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// CreateBudgetItem inserts the item and adds its allocation and spend to the
// parent totals in the same transaction.
func (r *SQLiteRepository) CreateBudgetItem(ctx context.Context, item core.BudgetItem) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireBudget(ctx, tx, item.BudgetID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO budget_items (id, budget_id, name, category, amount_cents, spent_cents)
			VALUES (?, ?, ?, ?, ?, ?)`,
			item.ID, item.BudgetID, item.Name, item.Category, item.Amount, item.Spent)
		if err != nil {
			return fmt.Errorf("insert budget item: %w", err)
		}
		return applyBudgetDeltas(ctx, tx, item.BudgetID, item.Amount, item.Spent)
	})
}

// UpdateBudgetItem rewrites the item and applies the amount/spent deltas to
// the parent in the same transaction.
func (r *SQLiteRepository) UpdateBudgetItem(ctx context.Context, item core.BudgetItem) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var old core.BudgetItem
		err := tx.QueryRowContext(ctx, `
			SELECT budget_id, amount_cents, spent_cents FROM budget_items WHERE id = ?`,
			item.ID).Scan(&old.BudgetID, &old.Amount, &old.Spent)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("budget item %s: %w", item.ID, core.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("read budget item: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE budget_items SET name = ?, category = ?, amount_cents = ?, spent_cents = ?
			WHERE id = ?`,
			item.Name, item.Category, item.Amount, item.Spent, item.ID)
		if err != nil {
			return fmt.Errorf("update budget item: %w", err)
		}
		return applyBudgetDeltas(ctx, tx, old.BudgetID, item.Amount-old.Amount, item.Spent-old.Spent)
	})
}

// DeleteBudgetItem removes the item and subtracts its allocation and spend
// from the parent in the same transaction.
func (r *SQLiteRepository) DeleteBudgetItem(ctx context.Context, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var item core.BudgetItem
		err := tx.QueryRowContext(ctx, `
			SELECT budget_id, amount_cents, spent_cents FROM budget_items WHERE id = ?`,
			id).Scan(&item.BudgetID, &item.Amount, &item.Spent)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("budget item %s: %w", id, core.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("read budget item: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM budget_items WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete budget item: %w", err)
		}
		return applyBudgetDeltas(ctx, tx, item.BudgetID, -item.Amount, -item.Spent)
	})
}

// ApplySpend marks the transaction tracked and increments the item and
// parent spend totals, all in one transaction. A transaction already marked
// leaves everything untouched.
func (r *SQLiteRepository) ApplySpend(ctx context.Context, itemID, transactionID string, amountCents int64) (bool, error) {
	applied := false
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE transactions SET budget_tracked = 1
			WHERE id = ? AND budget_tracked = 0`, transactionID)
		if err != nil {
			return fmt.Errorf("mark transaction tracked: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM transactions WHERE id = ?)`, transactionID).Scan(&exists); err != nil {
				return fmt.Errorf("check transaction: %w", err)
			}
			if !exists {
				return fmt.Errorf("transaction %s: %w", transactionID, core.ErrNotFound)
			}
			// Already tracked; nothing to apply.
			return nil
		}

		var budgetID string
		err = tx.QueryRowContext(ctx,
			`SELECT budget_id FROM budget_items WHERE id = ?`, itemID).Scan(&budgetID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("budget item %s: %w", itemID, core.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("read budget item: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE budget_items SET spent_cents = spent_cents + ? WHERE id = ?`,
			amountCents, itemID)
		if err != nil {
			return fmt.Errorf("increment item spend: %w", err)
		}
		if err := applyBudgetDeltas(ctx, tx, budgetID, 0, amountCents); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

func requireBudget(ctx context.Context, tx *sql.Tx, budgetID string) error {
	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM budgets WHERE id = ?)`, budgetID).Scan(&exists); err != nil {
		return fmt.Errorf("check budget: %w", err)
	}
	if !exists {
		return fmt.Errorf("budget %s: %w", budgetID, core.ErrNotFound)
	}
	return nil
}

func applyBudgetDeltas(ctx context.Context, tx *sql.Tx, budgetID string, budgetDelta, spentDelta int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE budgets SET total_budget_cents = total_budget_cents + ?, total_spent_cents = total_spent_cents + ?
		WHERE id = ?`,
		budgetDelta, spentDelta, budgetID)
	if err != nil {
		return fmt.Errorf("apply budget deltas: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("budget %s: %w", budgetID, core.ErrNotFound)
	}
	return nil
}
