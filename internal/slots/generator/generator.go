// Package generator expands weekly slot patterns into candidate slots.
//
// The generator works purely on tenant-local wall-clock values and performs
// no I/O. Input validation is the caller's job: malformed patterns (window
// start after end, empty weekday set) simply yield fewer or no candidates.
package generator

import (
	"fmt"
	"iter"
	"time"

	"cloud.google.com/go/civil"
)

// DefaultSlotMinutes is the slot length used when neither a service duration
// nor a step is given.
const DefaultSlotMinutes = 30

// Interval is a local time-of-day range [Start, End).
type Interval struct {
	Start civil.Time
	End   civil.Time
}

// Pattern describes a weekly recurrence.
type Pattern struct {
	Weekdays  []time.Weekday
	StartTime civil.Time
	EndTime   civil.Time
	// StepMinutes: nil means not provided, 0 means one slot spanning the window.
	StepMinutes            *int
	ServiceDurationMinutes *int
	Breaks                 []Interval
	WeeksCount             int
	StartDate              civil.Date
}

// Candidate is one generated slot in tenant-local time.
type Candidate struct {
	Date  civil.Date
	Start civil.Time
	End   civil.Time
}

// StartDateTime returns the local start of the candidate.
func (c Candidate) StartDateTime() civil.DateTime {
	return civil.DateTime{Date: c.Date, Time: c.Start}
}

// EndDateTime returns the local end of the candidate.
func (c Candidate) EndDateTime() civil.DateTime {
	return civil.DateTime{Date: c.Date, Time: c.End}
}

func (c Candidate) String() string {
	return fmt.Sprintf("%s %s-%s", c.Date, FormatClock(c.Start), FormatClock(c.End))
}

// EffectiveDuration is the service duration if set, else the step, else DefaultSlotMinutes.
func (p Pattern) EffectiveDuration() int {
	if p.ServiceDurationMinutes != nil && *p.ServiceDurationMinutes > 0 {
		return *p.ServiceDurationMinutes
	}
	if p.StepMinutes != nil && *p.StepMinutes > 0 {
		return *p.StepMinutes
	}
	return DefaultSlotMinutes
}

// EffectiveStep is the step if set, else the effective duration, so slots tile.
func (p Pattern) EffectiveStep() int {
	if p.StepMinutes != nil && *p.StepMinutes > 0 {
		return *p.StepMinutes
	}
	return p.EffectiveDuration()
}

// WholeWindow reports whether the pattern asks for one slot per day.
func (p Pattern) WholeWindow() bool {
	return p.StepMinutes != nil && *p.StepMinutes == 0
}

type span struct {
	start int
	end   int
}

// Generate lazily yields candidates in date then time order. The returned
// sequence can be ranged over any number of times.
func Generate(p Pattern) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		daily := dailySpans(p)
		if len(daily) == 0 {
			return
		}

		matching := make(map[time.Weekday]bool, len(p.Weekdays))
		for _, day := range p.Weekdays {
			matching[day] = true
		}

		for week := 0; week < p.WeeksCount; week++ {
			for offset := 0; offset < 7; offset++ {
				date := p.StartDate.AddDays(week*7 + offset)
				if !matching[date.Weekday()] {
					continue
				}
				for _, s := range daily {
					if !yield(Candidate{Date: date, Start: clockOf(s.start), End: clockOf(s.end)}) {
						return
					}
				}
			}
		}
	}
}

// dailySpans computes the time-of-day ranges emitted on every matching day.
func dailySpans(p Pattern) []span {
	windowStart := minutesOf(p.StartTime)
	windowEnd := minutesOf(p.EndTime)
	if windowStart >= windowEnd {
		return nil
	}

	breaks := make([]span, 0, len(p.Breaks))
	for _, b := range p.Breaks {
		breaks = append(breaks, span{start: minutesOf(b.Start), end: minutesOf(b.End)})
	}

	if p.WholeWindow() {
		whole := span{start: windowStart, end: windowEnd}
		if overlapsAny(whole, breaks) {
			return nil
		}
		return []span{whole}
	}

	duration := p.EffectiveDuration()
	step := p.EffectiveStep()

	var spans []span
	for cursor := windowStart; cursor < windowEnd; cursor += step {
		candidate := span{start: cursor, end: cursor + duration}
		if candidate.end > windowEnd {
			continue
		}
		if overlapsAny(candidate, breaks) {
			continue
		}
		spans = append(spans, candidate)
	}
	return spans
}

// overlapsAny reports whether s starts inside a break, or starts before a
// break and runs into it.
func overlapsAny(s span, breaks []span) bool {
	for _, b := range breaks {
		if s.start >= b.start && s.start < b.end {
			return true
		}
		if s.start < b.start && s.end > b.start {
			return true
		}
	}
	return false
}

func minutesOf(t civil.Time) int {
	return t.Hour*60 + t.Minute
}

func clockOf(minutes int) civil.Time {
	return civil.Time{Hour: minutes / 60, Minute: minutes % 60}
}

// ParseClock parses an HH:MM time of day.
func ParseClock(value string) (civil.Time, error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return civil.Time{}, fmt.Errorf("invalid time of day %q: expected HH:MM", value)
	}
	return civil.Time{Hour: parsed.Hour(), Minute: parsed.Minute()}, nil
}

// FormatClock renders a time of day as HH:MM.
func FormatClock(t civil.Time) string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}
