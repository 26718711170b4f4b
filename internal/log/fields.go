package log

// Field names shared by every structured log call, so the same concept keys
// the same attribute everywhere.
const (
	FieldComponent     = "component"
	FieldTenantID      = "tenant_id"
	FieldAccountID     = "account_id"
	FieldTransactionID = "transaction_id"
	FieldScheduleID    = "schedule_id"
	FieldBudgetID      = "budget_id"
	FieldBudgetItemID  = "budget_item_id"
	FieldAmountCents   = "amount_cents"
	FieldDueDate       = "due_date"
	FieldNextDueDate   = "next_due_date"
	FieldError         = "error"
	FieldCount         = "count"
)

// Component names, one per binary.
const (
	ComponentApp       = "app"
	ComponentRecurring = "recurring"
	ComponentWorker    = "worker"
)
