package mqtingestor

import (
	"bytes"
	"encoding/json"
)

// Status holds the projected fields of a telemetry payload.
type Status struct {
	Door  *string
	Relay *string
}

// ParseStatus reads door and relay from a JSON object payload. String
// values are kept as-is, any other JSON value is kept as its compact text,
// and null or missing fields stay nil. ok is false when the payload is not
// a JSON object; the returned Status is then empty.
func ParseStatus(payload string) (status Status, ok bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &fields); err != nil || fields == nil {
		return Status{}, false
	}
	return Status{
		Door:  fieldText(fields["door"]),
		Relay: fieldText(fields["relay"]),
	}, true
}

func fieldText(raw json.RawMessage) *string {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return &s
		}
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil
	}
	s := buf.String()
	return &s
}
