package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

const (
	AccountBank       AccountType = "bank"
	AccountCash       AccountType = "cash"
	AccountCredit     AccountType = "credit"
	AccountInvestment AccountType = "investment"
	AccountOther      AccountType = "other"
)

const (
	Income  TransactionKind = "income"
	Expense TransactionKind = "expense"
)

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

const (
	ScheduleActive    ScheduleStatus = "active"
	SchedulePaused    ScheduleStatus = "paused"
	ScheduleCompleted ScheduleStatus = "completed"
)

type (
	Frequency         string
	AccountType       string
	TransactionKind   string
	TransactionStatus string
	ScheduleStatus    string

	Money struct {
		Cents int64
	}

	// Account holds a running signed balance in cents. Balance is mutated
	// only through the ledger service or reconciliation; Version guards
	// every balance write against concurrent mutation.
	Account struct {
		ID       string
		TenantID string
		Name     string
		Type     AccountType
		Balance  int64
		Currency string
		Version  int64
	}

	// Transaction is a single ledger movement. Amount is a non-negative
	// magnitude; Kind carries the direction. ScheduleID+DueDate identify
	// the schedule occurrence a recurring transaction was materialized
	// from, and the store enforces uniqueness on that pair.
	Transaction struct {
		ID           string
		TenantID     string
		AccountID    string // optional
		Description  string
		Amount       Money
		Kind         TransactionKind
		Status       TransactionStatus
		Date         Date
		BudgetItemID string // optional
		ScheduleID   string // optional
		DueDate      Date   // set when ScheduleID is set
		Recurring    bool
	}

	// AuditLogEntry records one balance change. Entries are append-only
	// and form the ground truth for reconciliation.
	AuditLogEntry struct {
		ID              string
		AccountID       string
		PreviousBalance int64
		NewBalance      int64
		ChangeAmount    int64
		Reason          string
		CreatedAt       time.Time
	}

	// RecurringSchedule is a template describing a repeating obligation.
	// While active, NextDueDate is always the next unprocessed occurrence.
	RecurringSchedule struct {
		ID                string
		TenantID          string
		AccountID         string // optional
		Description       string
		Amount            Money
		Kind              TransactionKind
		Frequency         Frequency
		Interval          int
		DayOfWeek         *int // 0-6, optional
		DayOfMonth        *int // 1-31, optional
		MonthOfYear       *int // 1-12, optional
		NextDueDate       Date
		LastProcessedDate time.Time // zero = never processed
		EndDate           Date      // zero = open-ended
		Status            ScheduleStatus
		BudgetItemID      string // optional
	}

	// Budget aggregates its items. TotalBudget and TotalSpent mirror the
	// sums of the children and are maintained incrementally: every item
	// mutation applies the same delta at both levels in one operation,
	// never by recomputation.
	Budget struct {
		ID          string
		TenantID    string
		Name        string
		TotalBudget int64
		TotalSpent  int64
	}

	BudgetItem struct {
		ID       string
		BudgetID string
		Name     string
		Category string
		Amount   int64
		Spent    int64
	}
)

var (
	ErrNotFound              = errors.New("not found")
	ErrWriteConflict         = errors.New("write conflict")
	ErrTrackingRejected      = errors.New("only expense transactions can be tracked against a budget")
	ErrInvalidRecurrenceRule = errors.New("invalid recurrence rule")

	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
)

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (k TransactionKind) Validate() error {
	switch k {
	case Income, Expense:
		return nil
	default:
		return errors.New("invalid transaction kind")
	}
}

func (s TransactionStatus) Validate() error {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return nil
	default:
		return errors.New("invalid transaction status")
	}
}

func (t AccountType) Validate() error {
	switch t {
	case AccountBank, AccountCash, AccountCredit, AccountInvestment, AccountOther:
		return nil
	default:
		return errors.New("invalid account type")
	}
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := t.Kind.Validate(); err != nil {
		return err
	}
	if err := t.Status.Validate(); err != nil {
		return err
	}
	if t.ScheduleID != "" && t.DueDate.IsEmpty() {
		return errors.New("recurring transaction requires a due date")
	}
	return nil
}

func (s RecurringSchedule) Validate() error {
	if err := s.NextDueDate.Validate(); err != nil {
		return errors.New("invalid next due date: " + err.Error())
	}

	if !s.EndDate.IsEmpty() {
		if err := s.EndDate.Validate(); err != nil {
			return errors.New("invalid end date: " + err.Error())
		}
	}

	switch s.Status {
	case ScheduleActive, SchedulePaused, ScheduleCompleted:
	default:
		return errors.New("invalid schedule status")
	}

	if len(strings.TrimSpace(s.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(s.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}

	if err := s.Amount.Validate(); err != nil {
		return err
	}
	return s.Kind.Validate()
}

func (b BudgetItem) Validate() error {
	if len(strings.TrimSpace(b.Name)) == 0 {
		return errors.New("empty item name")
	}
	if len(b.Name) > 200 {
		return errors.New("item name too long (max 200 characters)")
	}
	if b.Amount < 0 || b.Spent < 0 {
		return ErrInvalidAmount
	}
	return nil
}
