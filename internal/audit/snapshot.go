package audit

import "encoding/json"

// Snapshot encodes v for the old_state / new_state columns. A nil value or an
// encoding failure yields nil so the entry is still written.
func Snapshot(v interface{}) json.RawMessage {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return nil
	}
	return b
}
