// Package schedule derives the running order of the night from the
// DJ SCHEDULE section: who is playing now and how far the night has
// progressed.
package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"eventsite/internal/configstore"
)

const (
	Section = "DJ SCHEDULE"

	// FieldSeparator joins the positional fields of a stored entry.
	FieldSeparator = ", "
)

// clockPattern accepts one or two digits for both hour and minute, so
// "9:30" and "09:5" are valid start times.
var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{1,2})$`)

var errClockFormat = errors.New("want H:MM with hour 0-23 and minute 0-59")

// Entry is one DJ slot. Stored as "time, genre, soundcloud, instagram".
type Entry struct {
	Name       string `json:"name"`
	Time       string `json:"time"`
	Genre      string `json:"genre"`
	SoundCloud string `json:"soundcloud"`
	Instagram  string `json:"instagram"`
}

// ParseEntry splits a stored value into its positional fields. Missing
// trailing fields stay empty; it never fails.
func ParseEntry(name, raw string) Entry {
	parts := strings.Split(raw, FieldSeparator)
	field := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}
	return Entry{
		Name:       name,
		Time:       field(0),
		Genre:      field(1),
		SoundCloud: field(2),
		Instagram:  field(3),
	}
}

// Value serializes the entry. Trailing empty fields are dropped; ParseEntry
// restores them as empty strings.
func (e Entry) Value() string {
	fields := []string{e.Time, e.Genre, e.SoundCloud, e.Instagram}
	for len(fields) > 1 && fields[len(fields)-1] == "" {
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, FieldSeparator)
}

// Get returns the named field ("time", "genre", "soundcloud",
// "instagram").
func (e Entry) Get(name string) (string, bool) {
	switch name {
	case "time":
		return e.Time, true
	case "genre":
		return e.Genre, true
	case "soundcloud":
		return e.SoundCloud, true
	case "instagram":
		return e.Instagram, true
	}
	return "", false
}

// Set updates the named field and reports whether the name is known.
func (e *Entry) Set(name, value string) bool {
	switch name {
	case "time":
		e.Time = value
	case "genre":
		e.Genre = value
	case "soundcloud":
		e.SoundCloud = value
	case "instagram":
		e.Instagram = value
	default:
		return false
	}
	return true
}

// Fields lists the editable field names in storage order.
func Fields() []string {
	return []string{"time", "genre", "soundcloud", "instagram"}
}

// ParseSection parses every entry of the section in stored order.
func ParseSection(entries []configstore.Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, ParseEntry(e.Key, e.Value))
	}
	return out
}

// startMinute parses the slot start as minutes after midnight.
func (e Entry) startMinute() (int, error) {
	m, err := parseClock(e.Time)
	if err != nil {
		return 0, fmt.Errorf("dj %q: invalid time %q: %w", e.Name, e.Time, err)
	}
	return m, nil
}

func parseClock(s string) (int, error) {
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, errClockFormat
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return 0, errClockFormat
	}
	return hour*60 + minute, nil
}

// Resolution is the derived state of the schedule at one instant.
type Resolution struct {
	Current  string  // empty when nobody has started yet
	Active   int     // entries whose start time has passed
	Total    int
	Progress float64 // Active / Total, 0 when there are no entries
}

// Resolve scans entries in stored order. An entry is active when its start
// time is at or before now; the last active entry in stored order is the
// current DJ, even if an earlier entry starts later. Any unparsable time
// fails the whole resolution.
func Resolve(entries []Entry, now time.Time) (Resolution, error) {
	res := Resolution{Total: len(entries)}
	nowMinute := now.Hour()*60 + now.Minute()

	for _, e := range entries {
		start, err := e.startMinute()
		if err != nil {
			return Resolution{}, err
		}
		if start <= nowMinute {
			res.Current = e.Name
			res.Active++
		}
	}
	if res.Total > 0 {
		res.Progress = float64(res.Active) / float64(res.Total)
	}
	return res, nil
}

// ResolveCurrent returns the current DJ, or "" when nobody is playing.
func ResolveCurrent(entries []Entry, now time.Time) (string, error) {
	res, err := Resolve(entries, now)
	return res.Current, err
}

// Progress returns the fraction of DJs that have started.
func Progress(entries []Entry, now time.Time) (float64, error) {
	res, err := Resolve(entries, now)
	return res.Progress, err
}
