package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"conti/internal/core"

	"github.com/google/uuid"
)

// Kind names the record carried by a RecordEvent.
type Kind string

const (
	KindUser    Kind = "user"
	KindExpense Kind = "expense"
	KindBill    Kind = "bill"
)

// RecordEvent announces a record that was just persisted. Exactly one of
// User, Expense or Bill is set, matching Kind. User events never carry
// the password hash.
type RecordEvent struct {
	ID        uuid.UUID      `json:"id"`
	Kind      Kind           `json:"kind"`
	Username  string         `json:"username"`
	User      *core.UserInfo `json:"user,omitempty"`
	Expense   *core.Expense  `json:"expense,omitempty"`
	Bill      *core.Bill     `json:"bill,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func newEvent(kind Kind, username string) RecordEvent {
	return RecordEvent{ID: uuid.New(), Kind: kind, Username: username, Timestamp: time.Now()}
}

func NewUserEvent(u core.UserInfo) RecordEvent {
	ev := newEvent(KindUser, u.Username)
	ev.User = &u
	return ev
}

func NewExpenseEvent(e core.Expense) RecordEvent {
	ev := newEvent(KindExpense, e.Owner)
	ev.Expense = &e
	return ev
}

func NewBillEvent(b core.Bill) RecordEvent {
	ev := newEvent(KindBill, b.Owner)
	ev.Bill = &b
	return ev
}

// ToJSON converts the event to JSON bytes
func (e RecordEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// RecordEventFromJSON decodes an event and checks its payload matches Kind.
func RecordEventFromJSON(data []byte) (RecordEvent, error) {
	var ev RecordEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return RecordEvent{}, err
	}
	ok := false
	switch ev.Kind {
	case KindUser:
		ok = ev.User != nil
	case KindExpense:
		ok = ev.Expense != nil
	case KindBill:
		ok = ev.Bill != nil
	}
	if !ok {
		return RecordEvent{}, fmt.Errorf("event %s: kind %q without matching payload", ev.ID, ev.Kind)
	}
	return ev, nil
}
