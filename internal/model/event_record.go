package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PageNextSong is the page value that marks an actual play event. Only
// NextSong records carry song/artist/length.
const PageNextSong = "NextSong"

// EventRecord is the raw shape of one activity-log NDJSON record.
//
// TS is epoch milliseconds. UserID arrives as either a JSON string or a
// number depending on the log writer, and is empty for anonymous
// sessions; FlexID absorbs all of that.
type EventRecord struct {
	Artist    string  `json:"artist"`
	FirstName string  `json:"firstName"`
	Gender    string  `json:"gender"`
	LastName  string  `json:"lastName"`
	Length    float64 `json:"length"`
	Level     string  `json:"level"`
	Location  string  `json:"location"`
	Page      string  `json:"page"`
	SessionID int     `json:"sessionId"`
	Song      string  `json:"song"`
	TS        int64   `json:"ts"`
	UserAgent string  `json:"userAgent"`
	UserID    FlexID  `json:"userId"`
}

// IsPlay reports whether the record is a NextSong play event. Matching is
// case-sensitive.
func (r *EventRecord) IsPlay() bool { return r.Page == PageNextSong }

// FlexID is a user identifier that tolerates the inconsistent encodings
// seen in activity logs: "7", 7, "", null, or absent.
//
// Null, empty and absent all leave the ID unset. A set FlexID always
// holds a valid integer.
type FlexID struct {
	value int
	set   bool
}

// NewFlexID returns a set FlexID. Intended for tests and fixtures.
func NewFlexID(v int) FlexID { return FlexID{value: v, set: true} }

// Valid reports whether the record carried a usable identifier.
func (f FlexID) Valid() bool { return f.set }

// Int returns the identifier value; only meaningful when Valid.
func (f FlexID) Int() int { return f.value }

// UnmarshalJSON accepts a JSON number, a numeric string, "" or null.
// Anything non-numeric and non-empty is an error so that genuinely
// corrupt records surface as decode failures rather than silent skips.
func (f *FlexID) UnmarshalJSON(data []byte) error {
	*f = FlexID{}

	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	s := string(data)
	if strings.HasPrefix(s, `"`) {
		var unquoted string
		if err := json.Unmarshal(data, &unquoted); err != nil {
			return err
		}
		unquoted = strings.TrimSpace(unquoted)
		if unquoted == "" {
			return nil
		}
		s = unquoted
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("userId: cannot parse %q as integer", s)
	}
	f.value = n
	f.set = true
	return nil
}

// MarshalJSON round-trips an unset ID as null and a set ID as a number.
func (f FlexID) MarshalJSON() ([]byte, error) {
	if !f.set {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(f.value)), nil
}
