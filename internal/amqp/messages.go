package amqp

import (
	"encoding/json"
	"time"

	"fintrack/internal/core"
)

const (
	EventTransactionAdded   = "transaction_added"
	EventTransactionDeleted = "transaction_deleted"
)

// LedgerEvent is the lightweight message published after a ledger
// mutation. Consumers fetch the full record from the store by path; only
// enough is carried here to locate (or reverse) the entry.
type LedgerEvent struct {
	Kind          string    `json:"kind"`
	Year          int       `json:"year"`
	Month         int       `json:"month"`
	TransactionID string    `json:"transaction_id"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewLedgerEvent(kind string, key core.MonthKey, txnID string) *LedgerEvent {
	return &LedgerEvent{
		Kind:          kind,
		Year:          key.Year,
		Month:         key.Month,
		TransactionID: txnID,
		Timestamp:     time.Now(),
	}
}

// MonthKey rebuilds the ledger key the event refers to.
func (e *LedgerEvent) MonthKey() core.MonthKey {
	return core.MonthKey{Year: e.Year, Month: e.Month}
}

func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var ev LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
