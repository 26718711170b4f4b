package amqp

import (
	"encoding/json"
	"time"
)

// TransactionRecordedMessage notifies the budget worker that an expense
// transaction was recorded against a budget item. It carries only IDs, the
// worker fetches the full transaction from the store.
type TransactionRecordedMessage struct {
	TransactionID string    `json:"transaction_id"`
	BudgetItemID  string    `json:"budget_item_id"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewTransactionRecordedMessage(transactionID, budgetItemID string) *TransactionRecordedMessage {
	return &TransactionRecordedMessage{
		TransactionID: transactionID,
		BudgetItemID:  budgetItemID,
		Timestamp:     time.Now(),
	}
}

func (m *TransactionRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionRecordedMessageFromJSON(data []byte) (*TransactionRecordedMessage, error) {
	var msg TransactionRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
