package availability

import (
	"errors"
	"sort"
	"time"

	"github.com/example/interview-scheduler/internal/persistence"
)

// ErrInvalidDuration indicates the slot duration is not positive.
var ErrInvalidDuration = errors.New("availability: slot duration must be positive")

// ErrInvalidWindow indicates the expansion range is empty or unbounded.
var ErrInvalidWindow = errors.New("availability: expansion range requires start before end")

// ErrInvalidTemplate indicates a weekly window that cannot produce slots.
var ErrInvalidTemplate = errors.New("availability: window must satisfy 0 <= start < end <= 1440")

// Options bounds an expansion.
type Options struct {
	// RangeStart and RangeEnd bound slot starts; both are required.
	RangeStart time.Time
	RangeEnd   time.Time
	Duration   time.Duration
	// Step is the grid between consecutive starts inside a window. Defaults to Duration.
	Step time.Duration
	// ExcludeDates drops whole local calendar days.
	ExcludeDates []time.Time
}

// Occurrence is one bookable interval derived from a weekly window.
type Occurrence struct {
	Start time.Time
	End   time.Time
}

// Engine expands weekly availability windows into concrete intervals.
type Engine struct {
	location *time.Location
}

// NewEngine constructs an Engine evaluating windows in loc. A nil loc means UTC.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{location: loc}
}

// ForTimeZone returns an engine for an IANA zone name, falling back to UTC
// when the name is empty.
func ForTimeZone(name string) (*Engine, error) {
	if name == "" {
		return NewEngine(time.UTC), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, err
	}
	return NewEngine(loc), nil
}

// Validate reports whether every window is well formed.
func Validate(windows []persistence.AvailabilityWindow) error {
	for _, w := range windows {
		if w.Weekday < time.Sunday || w.Weekday > time.Saturday {
			return ErrInvalidTemplate
		}
		if w.StartMinute < 0 || w.EndMinute > 24*60 || w.StartMinute >= w.EndMinute {
			return ErrInvalidTemplate
		}
	}
	return nil
}

// Expand produces every interval of opts.Duration that fits entirely inside a
// window and starts within [RangeStart, RangeEnd]. Results are in UTC and
// ordered by start.
func (e *Engine) Expand(windows []persistence.AvailabilityWindow, opts Options) ([]Occurrence, error) {
	if opts.Duration <= 0 {
		return nil, ErrInvalidDuration
	}
	if opts.RangeStart.IsZero() || opts.RangeEnd.IsZero() || opts.RangeEnd.Before(opts.RangeStart) {
		return nil, ErrInvalidWindow
	}
	if err := Validate(windows); err != nil {
		return nil, err
	}
	step := opts.Step
	if step <= 0 {
		step = opts.Duration
	}

	loc := e.location
	if loc == nil {
		loc = time.UTC
	}

	byDay := make(map[time.Weekday][]persistence.AvailabilityWindow, 7)
	for _, w := range windows {
		byDay[w.Weekday] = append(byDay[w.Weekday], w)
	}
	excluded := make(map[string]struct{}, len(opts.ExcludeDates))
	for _, d := range opts.ExcludeDates {
		excluded[d.In(loc).Format(time.DateOnly)] = struct{}{}
	}

	lower := opts.RangeStart.In(loc)
	upper := opts.RangeEnd.In(loc)
	y, m, d := lower.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)

	occurrences := make([]Occurrence, 0)
	seen := make(map[int64]struct{})
	for !day.After(upper) {
		if _, skip := excluded[day.Format(time.DateOnly)]; !skip {
			for _, w := range byDay[day.Weekday()] {
				windowEnd := atMinute(day, w.EndMinute, loc)
				for start := atMinute(day, w.StartMinute, loc); !start.Add(opts.Duration).After(windowEnd); start = start.Add(step) {
					if start.Before(lower) || start.After(upper) {
						continue
					}
					key := start.Unix()
					if _, dup := seen[key]; dup {
						continue
					}
					seen[key] = struct{}{}
					occurrences = append(occurrences, Occurrence{
						Start: start.UTC(),
						End:   start.Add(opts.Duration).UTC(),
					})
				}
			}
		}
		day = time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, loc)
	}

	sort.Slice(occurrences, func(i, j int) bool { return occurrences[i].Start.Before(occurrences[j].Start) })
	return occurrences, nil
}

func atMinute(day time.Time, minute int, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minute/60, minute%60, 0, 0, loc)
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
