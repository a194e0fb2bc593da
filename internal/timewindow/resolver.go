// Package timewindow turns named ("thisWeek", "lastMonth", ...) or explicit
// date filters into concrete UTC intervals.
package timewindow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/therapy-scheduler/pkg/clock"
)

const (
	ThisWeek  = "thisWeek"
	LastWeek  = "lastWeek"
	ThisMonth = "thisMonth"
	LastMonth = "lastMonth"
)

// Names lists the supported named windows.
var Names = []string{ThisWeek, LastWeek, ThisMonth, LastMonth}

var ErrInvalidDate = errors.New("invalid date")

const endOfDay = 23*time.Hour + 59*time.Minute + 59*time.Second + 999*time.Millisecond

// Filter is the raw window selection of a request. Named takes precedence
// over the explicit dates.
type Filter struct {
	Named     string
	StartDate string
	EndDate   string
}

func (f Filter) IsZero() bool {
	return f.Named == "" && f.StartDate == "" && f.EndDate == ""
}

// Range is a resolved interval in UTC. A zero bound is unbounded.
type Range struct {
	Start time.Time
	End   time.Time
}

func (r *Range) HasStart() bool { return r != nil && !r.Start.IsZero() }
func (r *Range) HasEnd() bool   { return r != nil && !r.End.IsZero() }

// Closed reports whether both bounds are set.
func (r *Range) Closed() bool { return r.HasStart() && r.HasEnd() }

// Overlaps reports whether [start, end] intersects the range.
func (r *Range) Overlaps(start, end time.Time) bool {
	if r == nil {
		return true
	}
	if r.HasEnd() && start.After(r.End) {
		return false
	}
	if r.HasStart() && end.Before(r.Start) {
		return false
	}
	return true
}

// ContainsStart reports whether t lies within the range, bounds inclusive.
func (r *Range) ContainsStart(t time.Time) bool {
	if r == nil {
		return true
	}
	if r.HasStart() && t.Before(r.Start) {
		return false
	}
	if r.HasEnd() && t.After(r.End) {
		return false
	}
	return true
}

type Resolver struct {
	clock clock.Clock
}

func NewResolver(c clock.Clock) *Resolver {
	if c == nil {
		c = clock.New()
	}
	return &Resolver{clock: c}
}

// Resolve returns nil when the filter selects no window, including unknown
// named windows.
func (r *Resolver) Resolve(f Filter) (*Range, error) {
	if f.Named != "" {
		rng := r.Named(f.Named)
		if rng == nil {
			log.Warn().Str("time_filter", f.Named).Msg("TimeWindow_Resolve_UnknownFilter")
		}
		return rng, nil
	}

	if f.StartDate == "" && f.EndDate == "" {
		return nil, nil
	}

	rng := &Range{}
	if f.StartDate != "" {
		start, err := ParseDate(f.StartDate)
		if err != nil {
			return nil, err
		}
		rng.Start = start
	}
	if f.EndDate != "" {
		end, err := ParseDate(f.EndDate)
		if err != nil {
			return nil, err
		}
		rng.End = end
	}
	return rng, nil
}

// Named resolves one of the named windows relative to the clock, or nil.
func (r *Resolver) Named(name string) *Range {
	now := r.clock.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch name {
	case ThisWeek:
		monday := startOfWeek(today)
		return &Range{Start: monday, End: monday.AddDate(0, 0, 6).Add(endOfDay)}
	case LastWeek:
		monday := startOfWeek(today).AddDate(0, 0, -7)
		return &Range{Start: monday, End: monday.AddDate(0, 0, 6).Add(endOfDay)}
	case ThisMonth:
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		return &Range{Start: first, End: first.AddDate(0, 1, -1).Add(endOfDay)}
	case LastMonth:
		first := time.Date(today.Year(), today.Month()-1, 1, 0, 0, 0, 0, time.UTC)
		return &Range{Start: first, End: first.AddDate(0, 1, -1).Add(endOfDay)}
	default:
		return nil
	}
}

// startOfWeek returns the Monday of the ISO week containing day. Sunday
// belongs to the week that started six days earlier.
func startOfWeek(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDate accepts RFC 3339 timestamps and bare dates (midnight UTC).
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
}
