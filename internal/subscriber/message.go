package subscriber

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/tinytelemetry/feedwatch/internal/model"
)

// ErrMalformed marks payloads that are not a {name, type, data} JSON object.
var ErrMalformed = errors.New("subscriber: malformed message")

// Message is one decoded wire message.
type Message struct {
	Name string
	Type string // empty for null; integers keep their JSON text
	Data json.RawMessage
}

// DecodeMessage parses a wire payload. The payload must be a UTF-8 JSON object
// with a string "name", a "type" of any kind, and an object "data".
func DecodeMessage(payload []byte) (Message, error) {
	if !utf8.Valid(payload) {
		return Message{}, fmt.Errorf("%w: invalid UTF-8", ErrMalformed)
	}
	if !gjson.ValidBytes(payload) {
		return Message{}, fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}
	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return Message{}, fmt.Errorf("%w: top level is not an object", ErrMalformed)
	}

	fields := root.Map()
	name, ok := fields["name"]
	if !ok || name.Type != gjson.String {
		return Message{}, fmt.Errorf("%w: missing name", ErrMalformed)
	}
	typ, ok := fields["type"]
	if !ok {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	data, ok := fields["data"]
	if !ok || !data.IsObject() {
		return Message{}, fmt.Errorf("%w: missing data object", ErrMalformed)
	}

	return Message{
		Name: name.Str,
		Type: typeText(typ),
		Data: json.RawMessage(data.Raw),
	}, nil
}

func typeText(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return r.Str
	case gjson.Null:
		return ""
	default:
		return r.Raw
	}
}

// Snapshot returns the finite numeric members of Data. Other members, including
// numbers that overflow a float64, are skipped.
func (m Message) Snapshot() model.Snapshot {
	out := make(model.Snapshot)
	gjson.ParseBytes(m.Data).ForEach(func(key, value gjson.Result) bool {
		if value.Type != gjson.Number {
			return true
		}
		if f := value.Float(); !math.IsInf(f, 0) && !math.IsNaN(f) {
			out[key.String()] = f
		}
		return true
	})
	return out
}
