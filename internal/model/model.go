package model

import (
	"encoding/json"
	"strings"
)

// Meeting is a single raw meeting record as received from the feed.
// Fields are kept as the wire strings; parsing happens in internal/feed.
type Meeting struct {
	ID string `json:"id,omitempty"`

	// Date is an ISO string, either YYYY-MM-DD or a full RFC 3339 timestamp.
	Date string `json:"date"`
	// Time is a 24-hour HH:MM local time of day.
	Time string `json:"time"`

	Type        string `json:"type,omitempty"`
	MeetingType string `json:"meeting_type,omitempty"`
	Priority    string `json:"priority,omitempty"`

	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
}

// UnmarshalJSON accepts "_id" as an alias for "id"; some backends expose
// their document id under that name.
func (m *Meeting) UnmarshalJSON(data []byte) error {
	type plain Meeting
	var aux struct {
		plain
		AltID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = Meeting(aux.plain)
	if m.ID == "" {
		m.ID = aux.AltID
	}
	return nil
}

// Category returns the meeting's category label. The today view of the
// client reads meeting_type, the list view reads type.
func (m Meeting) Category() string {
	if m.MeetingType != "" {
		return m.MeetingType
	}
	return m.Type
}

// HighPriority reports whether the meeting should be highlighted.
func (m Meeting) HighPriority() bool {
	return strings.EqualFold(strings.TrimSpace(m.Priority), "high")
}

// DateKey returns the YYYY-MM-DD prefix of the raw date string, or the
// whole string if it is shorter.
func (m Meeting) DateKey() string {
	d := strings.TrimSpace(m.Date)
	if len(d) > 10 {
		return d[:10]
	}
	return d
}

// Key returns a stable identity for the record. Records without an id get
// a fallback built from all their fields, so records equal on every field
// share a key.
func (m Meeting) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return strings.Join([]string{
		m.DateKey(), strings.TrimSpace(m.Time), m.Category(), m.Location, m.Description, m.Priority,
	}, "|")
}
