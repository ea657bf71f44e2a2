package schedule

import (
	"time"

	"eventsite/internal/configstore"
	"eventsite/internal/logger"
)

const DefaultTimeZone = "Europe/Berlin"

// View is what the schedule page renders. Note is set when the
// resolution failed and the view fell back to its neutral state.
type View struct {
	Entries  []Entry `json:"djs"`
	Current  string  `json:"current_dj,omitempty"`
	Progress float64 `json:"progress"`
	Note     string  `json:"note,omitempty"`
}

// Resolver evaluates the schedule against the clock of a fixed zone.
type Resolver struct {
	loc *time.Location
	now func() time.Time
}

// NewResolver loads the named zone. An empty name means DefaultTimeZone.
func NewResolver(zone string) (*Resolver, error) {
	if zone == "" {
		zone = DefaultTimeZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, err
	}
	return &Resolver{loc: loc, now: time.Now}, nil
}

// WithClock returns a copy of r reading time from now.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	c := *r
	c.now = now
	return &c
}

func (r *Resolver) Location() *time.Location { return r.loc }

// Now is the current time in the resolver's zone.
func (r *Resolver) Now() time.Time {
	return r.now().In(r.loc)
}

// View builds the schedule view from the stored section entries. A
// malformed entry degrades the derived part of the view to no current DJ
// and zero progress; the entries themselves are still listed.
func (r *Resolver) View(section []configstore.Entry) View {
	entries := ParseSection(section)
	view := View{Entries: entries}

	res, err := Resolve(entries, r.Now())
	if err != nil {
		logger.LogWarn("Error calculating current DJ: %v", err)
		view.Note = "Error calculating current DJ: " + err.Error()
		return view
	}
	view.Current = res.Current
	view.Progress = res.Progress
	return view
}
