package core

// Spend-level classification thresholds, applied identically at the item and
// budget level.
const (
	OverBudget BudgetHealth = "over-budget" // spent >= 100% of allocation
	Warning    BudgetHealth = "warning"     // spent >= 90% of allocation
	Good       BudgetHealth = "good"
)

type BudgetHealth string

// SpendStatus classifies an allocation against what has been spent from it.
// The percentage is 0 when nothing is allocated. Derived at read time, never
// stored.
func SpendStatus(allocated, spent int64) (percentage float64, health BudgetHealth) {
	if allocated == 0 {
		return 0, Good
	}
	percentage = float64(spent) / float64(allocated) * 100
	switch {
	case percentage >= 100:
		health = OverBudget
	case percentage >= 90:
		health = Warning
	default:
		health = Good
	}
	return percentage, health
}

// ItemStatus is a budget item together with its derived classification.
type ItemStatus struct {
	Item            BudgetItem
	SpentPercentage float64
	Health          BudgetHealth
}

// BudgetOverview is the read-time view of a budget and its items.
type BudgetOverview struct {
	Budget          Budget
	SpentPercentage float64
	Health          BudgetHealth
	Items           []ItemStatus
}
