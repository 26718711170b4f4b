package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tally/internal/core"
)

const scheduleColumns = `id, tenant_id, account_id, description, amount_cents, kind, frequency,
	interval, day_of_week, day_of_month, month_of_year, next_due_date, last_processed_at,
	end_date, status, budget_item_id`

func scanSchedule(row interface{ Scan(...any) error }) (core.RecurringSchedule, error) {
	var (
		s           core.RecurringSchedule
		accountID   sql.NullString
		dayOfWeek   sql.NullInt64
		dayOfMonth  sql.NullInt64
		monthOfYear sql.NullInt64
		nextDue     string
		processedAt sql.NullTime
		endDate     sql.NullString
		itemID      sql.NullString
	)
	err := row.Scan(&s.ID, &s.TenantID, &accountID, &s.Description, &s.Amount.Cents, &s.Kind, &s.Frequency,
		&s.Interval, &dayOfWeek, &dayOfMonth, &monthOfYear, &nextDue, &processedAt,
		&endDate, &s.Status, &itemID)
	if err != nil {
		return core.RecurringSchedule{}, err
	}
	s.AccountID = accountID.String
	s.BudgetItemID = itemID.String
	s.DayOfWeek = scanIntPtr(dayOfWeek)
	s.DayOfMonth = scanIntPtr(dayOfMonth)
	s.MonthOfYear = scanIntPtr(monthOfYear)
	if processedAt.Valid {
		s.LastProcessedDate = processedAt.Time
	}
	if s.NextDueDate, err = core.ParseDate(nextDue); err != nil {
		return core.RecurringSchedule{}, fmt.Errorf("parse next due date: %w", err)
	}
	if s.EndDate, err = scanDate(endDate); err != nil {
		return core.RecurringSchedule{}, fmt.Errorf("parse end date: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) GetSchedule(ctx context.Context, id string) (*core.RecurringSchedule, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	s, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("schedule %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}
	return &s, nil
}

func (r *SQLiteRepository) CreateSchedule(ctx context.Context, s core.RecurringSchedule) error {
	var processedAt any
	if !s.LastProcessedDate.IsZero() {
		processedAt = s.LastProcessedDate
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO schedules (id, tenant_id, account_id, description, amount_cents, kind, frequency,
			interval, day_of_week, day_of_month, month_of_year, next_due_date, last_processed_at,
			end_date, status, budget_item_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.TenantID, nullString(s.AccountID), s.Description, s.Amount.Cents, s.Kind, s.Frequency,
		s.Interval, nullInt(s.DayOfWeek), nullInt(s.DayOfMonth), nullInt(s.MonthOfYear),
		s.NextDueDate.String(), processedAt, nullDate(s.EndDate), s.Status, nullString(s.BudgetItemID))
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListDueSchedules(ctx context.Context, tenantID string, due core.Date) ([]core.RecurringSchedule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+scheduleColumns+` FROM schedules
		WHERE tenant_id = ? AND status = ? AND next_due_date <= ?
		ORDER BY next_due_date, id`,
		tenantID, core.ScheduleActive, due.String())
	if err != nil {
		return nil, fmt.Errorf("query due schedules: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListScheduleTenants(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT tenant_id FROM schedules WHERE status = ? ORDER BY tenant_id`,
		core.ScheduleActive)
	if err != nil {
		return nil, fmt.Errorf("query schedule tenants: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var tenantID string
		if err := rows.Scan(&tenantID); err != nil {
			return nil, fmt.Errorf("scan tenant id: %w", err)
		}
		out = append(out, tenantID)
	}
	return out, rows.Err()
}

// AdvanceSchedule writes the schedule triple (next due date, last processed,
// status) as one guarded update. The guard on the processed due date means a
// concurrent run that already advanced the schedule turns this call into
// core.ErrWriteConflict instead of skipping an occurrence.
func (r *SQLiteRepository) AdvanceSchedule(ctx context.Context, id string, processedDue core.Date, nextDue core.Date, processedAt time.Time, status core.ScheduleStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE schedules SET next_due_date = ?, last_processed_at = ?, status = ?
		WHERE id = ? AND next_due_date = ?`,
		nextDue.String(), processedAt, status, id, processedDue.String())
	if err != nil {
		return fmt.Errorf("advance schedule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM schedules WHERE id = ?)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check schedule: %w", err)
		}
		if !exists {
			return fmt.Errorf("schedule %s: %w", id, core.ErrNotFound)
		}
		return fmt.Errorf("schedule %s due date moved: %w", id, core.ErrWriteConflict)
	}
	return nil
}

func (r *SQLiteRepository) SetScheduleStatus(ctx context.Context, id string, status core.ScheduleStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE schedules SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("set schedule status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("schedule %s: %w", id, core.ErrNotFound)
	}
	return nil
}
