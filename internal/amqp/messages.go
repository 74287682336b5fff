package amqp

import (
	"encoding/json"
	"time"
)

// Event kinds routed through the broker. The worker consumes them for the
// audit log and the statement export.
const (
	EventExpenseCreated  = "expense.created"
	EventExpenseUpdated  = "expense.updated"
	EventExpenseDeleted  = "expense.deleted"
	EventInvoicePaid     = "invoice.paid"
	EventInvoiceCanceled = "invoice.canceled"
)

// Event is a lightweight domain event. It carries identifiers and the moved
// amount; consumers fetch full rows from the database when they need more.
type Event struct {
	Kind        string    `json:"kind"`
	UserID      int64     `json:"user_id"`
	RefID       int64     `json:"ref_id"`
	AmountCents int64     `json:"amount_cents,omitempty"`
	Mes         int       `json:"competencia_mes,omitempty"`
	Ano         int       `json:"competencia_ano,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewEvent(kind string, userID, refID, amountCents int64, mes, ano int) *Event {
	return &Event{
		Kind:        kind,
		UserID:      userID,
		RefID:       refID,
		AmountCents: amountCents,
		Mes:         mes,
		Ano:         ano,
		Timestamp:   time.Now(),
	}
}

func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func EventFromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
