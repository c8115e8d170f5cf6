package amqp

import (
	"encoding/json"
	"time"

	"capex/internal/core"

	"github.com/google/uuid"
)

// LedgerChangedMessage announces a committed ledger write. It carries only
// the keys; consumers re-read the store.
type LedgerChangedMessage struct {
	ID        string            `json:"id"`
	Source    core.ChangeSource `json:"source"`
	Rows      int               `json:"rows"`
	Keys      []core.NaturalKey `json:"keys,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func NewLedgerChangedMessage(source core.ChangeSource, keys []core.NaturalKey) *LedgerChangedMessage {
	return &LedgerChangedMessage{
		ID:        uuid.NewString(),
		Source:    source,
		Rows:      len(keys),
		Keys:      keys,
		Timestamp: time.Now().UTC(),
	}
}

func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
