package core

import (
	"math"
	"strings"
	"testing"
)

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Money{Cents: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero")
	}
	if err := (Money{Cents: -100}).Validate(); err == nil {
		t.Fatalf("expected error for negative")
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		Description: "Rent",
		Amount:      Money{Cents: 120000},
		Kind:        Expense,
		Status:      StatusCompleted,
		Date:        NewDate(2024, 3, 1),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Transaction{
		{Description: "a", Amount: Money{Cents: 1}, Kind: Expense, Status: StatusCompleted}, // zero date
		{Description: "", Amount: Money{Cents: 1}, Kind: Expense, Status: StatusCompleted, Date: NewDate(2024, 3, 1)},
		{Description: strings.Repeat("x", 201), Amount: Money{Cents: 1}, Kind: Expense, Status: StatusCompleted, Date: NewDate(2024, 3, 1)},
		{Description: "a", Amount: Money{Cents: 0}, Kind: Expense, Status: StatusCompleted, Date: NewDate(2024, 3, 1)},
		{Description: "a", Amount: Money{Cents: 1}, Kind: "transfer", Status: StatusCompleted, Date: NewDate(2024, 3, 1)},
		{Description: "a", Amount: Money{Cents: 1}, Kind: Expense, Status: "done", Date: NewDate(2024, 3, 1)},
		// a schedule occurrence needs its due date
		{Description: "a", Amount: Money{Cents: 1}, Kind: Expense, Status: StatusCompleted, Date: NewDate(2024, 3, 1), ScheduleID: "sch-1"},
	}
	for i, tx := range bads {
		if err := tx.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestRecurringScheduleValidate(t *testing.T) {
	good := RecurringSchedule{
		Description: "Gym",
		Amount:      Money{Cents: 4500},
		Kind:        Expense,
		Frequency:   Weekly,
		Interval:    1,
		NextDueDate: NewDate(2024, 3, 4),
		Status:      ScheduleActive,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bad := good
	bad.NextDueDate = Date{}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for zero next due date")
	}

	bad = good
	bad.Status = "stopped"
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for unknown status")
	}

	bad = good
	bad.Description = ""
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for empty description")
	}
}

func TestSpendStatus(t *testing.T) {
	cases := []struct {
		name       string
		allocated  int64
		spent      int64
		wantPct    float64
		wantHealth BudgetHealth
	}{
		{"nothing spent", 10000, 0, 0, Good},
		{"under the warning line", 10000, 8999, 89.99, Good},
		{"exactly ninety percent", 10000, 9000, 90, Warning},
		{"just under full", 10000, 9999, 99.99, Warning},
		{"exactly full", 10000, 10000, 100, OverBudget},
		{"overspent", 10000, 15000, 150, OverBudget},
		{"zero allocation", 0, 5000, 0, Good},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pct, health := SpendStatus(tc.allocated, tc.spent)
			if math.Abs(pct-tc.wantPct) > 1e-9 {
				t.Errorf("percentage = %v, want %v", pct, tc.wantPct)
			}
			if health != tc.wantHealth {
				t.Errorf("health = %s, want %s", health, tc.wantHealth)
			}
		})
	}
}
