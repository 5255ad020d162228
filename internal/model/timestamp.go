package model

import (
	"encoding/json"
	"strings"
	"time"
)

// timestampLayouts are tried in order when reading a profile timestamp.
// Zone-less layouts are read as UTC; other tools write those.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Timestamp is a profile timestamp. It is always written as RFC 3339 in UTC.
// A value that does not parse reads as the zero time; its raw JSON is kept so
// that saving the document writes it back unchanged.
type Timestamp struct {
	time.Time
	raw json.RawMessage
}

// NewTimestamp wraps t in UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

// IsZero reports whether there is nothing to write: no time and no
// unparsed value.
func (t Timestamp) IsZero() bool {
	return t.Time.IsZero() && len(t.raw) == 0
}

// Valid reports whether the timestamp holds a usable time.
func (t Timestamp) Valid() bool {
	return !t.Time.IsZero()
}

// Unparsed returns the raw JSON of a value that could not be read as a time.
func (t Timestamp) Unparsed() string {
	if t.Valid() {
		return ""
	}
	return string(t.raw)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.Valid() && len(t.raw) > 0 {
		return t.raw, nil
	}
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	*t = Timestamp{}
	if string(data) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		for _, layout := range timestampLayouts {
			if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				t.Time = parsed.UTC()
				return nil
			}
		}
	}

	t.raw = append(json.RawMessage(nil), data...)
	return nil
}
