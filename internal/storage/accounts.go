package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"tally/internal/core"
	applog "tally/internal/log"
)

func (r *SQLiteRepository) GetAccount(ctx context.Context, id string) (*core.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, type, balance_cents, currency, version
		FROM accounts WHERE id = ?`, id)

	var a core.Account
	err := row.Scan(&a.ID, &a.TenantID, &a.Name, &a.Type, &a.Balance, &a.Currency, &a.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}

func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.Account) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, tenant_id, name, type, balance_cents, currency, version)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TenantID, a.Name, a.Type, a.Balance, a.Currency, a.Version)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// UpdateAccountBalance writes the balance and appends the audit entry in one
// transaction. The version check turns a lost race into core.ErrWriteConflict
// instead of a silent overwrite.
func (r *SQLiteRepository) UpdateAccountBalance(ctx context.Context, accountID string, expectedVersion int64, newBalance int64, entry core.AuditLogEntry) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE accounts SET balance_cents = ?, version = version + 1
			WHERE id = ? AND version = ?`,
			newBalance, accountID, expectedVersion)
		if err != nil {
			return fmt.Errorf("update account balance: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM accounts WHERE id = ?)`, accountID).Scan(&exists); err != nil {
				return fmt.Errorf("check account: %w", err)
			}
			if !exists {
				return fmt.Errorf("account %s: %w", accountID, core.ErrNotFound)
			}
			return fmt.Errorf("account %s version %d: %w", accountID, expectedVersion, core.ErrWriteConflict)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO audit_log (id, account_id, previous_balance_cents, new_balance_cents, change_cents, reason, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			entry.ID, entry.AccountID, entry.PreviousBalance, entry.NewBalance, entry.ChangeAmount, entry.Reason, entry.CreatedAt)
		if err != nil {
			return fmt.Errorf("append audit entry: %w", err)
		}

		slog.DebugContext(ctx, "Balance written with audit entry",
			applog.FieldAccountID, accountID,
			"new_balance_cents", newBalance,
			"change_cents", entry.ChangeAmount)
		return nil
	})
}

func (r *SQLiteRepository) ListAuditLog(ctx context.Context, accountID string) ([]core.AuditLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, previous_balance_cents, new_balance_cents, change_cents, reason, created_at
		FROM audit_log WHERE account_id = ? ORDER BY created_at, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []core.AuditLogEntry
	for rows.Next() {
		var e core.AuditLogEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.PreviousBalance, &e.NewBalance, &e.ChangeAmount, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
