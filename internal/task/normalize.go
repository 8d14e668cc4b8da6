package task

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/ovaphlow/pitchfork/service-tasks-go/pkg/apperr"
)

const dateOnly = "2006-01-02"

// ParseCompleted maps a raw JSON completed value to a boolean. Only "Yes",
// true and the number 1 are true; anything else, null included, is false.
func ParseCompleted(raw json.RawMessage) bool {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x == "Yes"
	case json.Number:
		f, err := x.Float64()
		return err == nil && f == 1
	}
	return false
}

// ParseDueDate accepts YYYY-MM-DD or RFC 3339. An empty string yields nil.
func ParseDueDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(dateOnly, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, apperr.Validation("dueDate must be YYYY-MM-DD or RFC 3339")
	}
	t = t.UTC()
	return &t, nil
}
