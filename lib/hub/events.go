package hub

import (
	"encoding/json"

	"github.com/ma99us/MikeDB/lib/store"
	"github.com/ma99us/MikeDB/lib/value"
)

// ChangeEvent tells subscribers that a key of their database changed
type ChangeEvent struct {
	Event     store.EventType `json:"event"`
	SessionID string          `json:"sessionId"`
	DBName    string          `json:"dbName"`
	Key       string          `json:"key"`
	Value     value.Value     `json:"value"`
}

// SessionEvent announces that a subscriber attached or detached
type SessionEvent struct {
	Event     store.EventType `json:"event"`
	SessionID string          `json:"sessionId"`
}

// ErrorEvent is sent before a connection is closed because of a protocol failure
type ErrorEvent struct {
	Event     store.EventType `json:"event"`
	SessionID string          `json:"sessionId"`
	Exception string          `json:"exception"`
	Message   string          `json:"message"`
}

// encode renders an event. Events only contain encodable fields, so a failure
// is a bug and is logged rather than returned.
func encode(event interface{}) []byte {
	data, err := json.Marshal(event)
	if err != nil {
		Logger.Errorf("failed to encode event %T: %v", event, err)
		return nil
	}
	return data
}
