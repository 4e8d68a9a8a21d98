package events

import (
	"encoding/json"
	"time"
)

// Event is one task lifecycle notification published on the hub.
type Event struct {
	Type   string          `json:"type"`
	At     time.Time       `json:"at"`
	TaskID string          `json:"task_id,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Make renders an event as a single JSON line ready for publishing.
func Make(typ, taskID string, data any) string {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	e := Event{
		Type:   typ,
		At:     time.Now().UTC(),
		TaskID: taskID,
		Data:   raw,
	}
	b, _ := json.Marshal(e)
	return string(b)
}
