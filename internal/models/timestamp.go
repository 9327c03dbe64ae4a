package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Layouts tried for timestamps that carry no zone designator. The upstream
// serialises LocalDateTime values which are UTC on the server.
var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses an upstream timestamp. Values without a zone are read as UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}

// Timestamp is a point in time decoded leniently from upstream JSON.
// Decoding never fails; an unparseable value keeps Raw and leaves Valid false.
type Timestamp struct {
	Time  time.Time
	Raw   string
	Valid bool
}

// NewTimestamp wraps a known instant
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC(), Valid: true}
}

// UnmarshalJSON implements json.Unmarshaler
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	*ts = Timestamp{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Java LocalDateTime may be emitted as [y, m, d, h, min, s, nanos]
		var parts []int
		if err := json.Unmarshal(data, &parts); err == nil && len(parts) >= 3 {
			ts.Time = fromParts(parts)
			ts.Valid = true
			return nil
		}
		ts.Raw = string(data)
		return nil
	}

	ts.Raw = s
	if t, err := ParseTimestamp(s); err == nil {
		ts.Time = t
		ts.Valid = true
	}
	return nil
}

// MarshalJSON implements json.Marshaler
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.Valid {
		return json.Marshal(ts.Time.UTC().Format(time.RFC3339Nano))
	}
	if ts.Raw == "" {
		return []byte("null"), nil
	}
	return json.Marshal(ts.Raw)
}

func fromParts(p []int) time.Time {
	get := func(i int) int {
		if i < len(p) {
			return p[i]
		}
		return 0
	}
	return time.Date(get(0), time.Month(get(1)), get(2), get(3), get(4), get(5), get(6), time.UTC)
}

// Millis is an optional duration in milliseconds. Absent, null, zero or
// malformed values all mean "not measured".
type Millis struct {
	Value int64
	Set   bool
}

// NewMillis returns a measured duration
func NewMillis(ms int64) Millis {
	return Millis{Value: ms, Set: true}
}

// Measured returns the duration when it is a positive value
func (m Millis) Measured() (int64, bool) {
	if !m.Set || m.Value <= 0 {
		return 0, false
	}
	return m.Value, true
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Millis) UnmarshalJSON(data []byte) error {
	*m = Millis{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		raw = strings.TrimSpace(s)
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*m = Millis{Value: v, Set: true}
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*m = Millis{Value: int64(f), Set: true}
	}
	return nil
}

// MarshalJSON implements json.Marshaler
func (m Millis) MarshalJSON() ([]byte, error) {
	if !m.Set {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(m.Value, 10)), nil
}
