package generator

import (
	"slices"
	"testing"
	"time"

	"cloud.google.com/go/civil"
)

func intPtr(v int) *int { return &v }

func clock(t *testing.T, value string) civil.Time {
	t.Helper()
	parsed, err := ParseClock(value)
	if err != nil {
		t.Fatalf("parse clock %q: %v", value, err)
	}
	return parsed
}

// 2026-03-02 is a Monday.
var monday = civil.Date{Year: 2026, Month: time.March, Day: 2}

func ranges(candidates []Candidate) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, FormatClock(c.Start)+"-"+FormatClock(c.End))
	}
	return out
}

func TestHourlySlotsSkipTrailingBreak(t *testing.T) {
	p := Pattern{
		Weekdays:    []time.Weekday{time.Monday},
		StartTime:   clock(t, "08:00"),
		EndTime:     clock(t, "12:00"),
		StepMinutes: intPtr(60),
		Breaks:      []Interval{{Start: clock(t, "11:00"), End: clock(t, "12:00")}},
		WeeksCount:  1,
		StartDate:   monday,
	}

	got := slices.Collect(Generate(p))
	want := []string{"08:00-09:00", "09:00-10:00", "10:00-11:00"}
	if !slices.Equal(ranges(got), want) {
		t.Fatalf("expected %v, got %v", want, ranges(got))
	}
	for _, c := range got {
		if c.Date != monday {
			t.Fatalf("expected every slot on %s, got %s", monday, c.Date)
		}
	}
}

func TestServiceDurationLongerThanStepOverlaps(t *testing.T) {
	p := Pattern{
		Weekdays:               []time.Weekday{time.Monday},
		StartTime:              clock(t, "09:00"),
		EndTime:                clock(t, "10:30"),
		StepMinutes:            intPtr(30),
		ServiceDurationMinutes: intPtr(45),
		WeeksCount:             1,
		StartDate:              monday,
	}

	got := ranges(slices.Collect(Generate(p)))
	want := []string{"09:00-09:45", "09:30-10:15"}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestWholeWindowEmitsOneSlotPerMatchingDay(t *testing.T) {
	p := Pattern{
		Weekdays:    []time.Weekday{time.Monday, time.Wednesday, time.Friday},
		StartTime:   clock(t, "13:00"),
		EndTime:     clock(t, "17:00"),
		StepMinutes: intPtr(0),
		WeeksCount:  2,
		StartDate:   monday,
	}

	got := slices.Collect(Generate(p))
	if len(got) != 6 {
		t.Fatalf("expected 6 whole-window slots, got %d", len(got))
	}
	for _, c := range got {
		if FormatClock(c.Start) != "13:00" || FormatClock(c.End) != "17:00" {
			t.Fatalf("expected whole window, got %s", c)
		}
	}
}

func TestWholeWindowSkippedWhenItTouchesABreak(t *testing.T) {
	p := Pattern{
		Weekdays:    []time.Weekday{time.Monday},
		StartTime:   clock(t, "08:00"),
		EndTime:     clock(t, "16:00"),
		StepMinutes: intPtr(0),
		Breaks:      []Interval{{Start: clock(t, "12:00"), End: clock(t, "12:30")}},
		WeeksCount:  4,
		StartDate:   monday,
	}

	if got := slices.Collect(Generate(p)); len(got) != 0 {
		t.Fatalf("expected no slots, got %v", got)
	}
}

func TestDefaultsWithoutStepOrDuration(t *testing.T) {
	p := Pattern{
		Weekdays:   []time.Weekday{time.Tuesday},
		StartTime:  clock(t, "10:00"),
		EndTime:    clock(t, "11:30"),
		WeeksCount: 1,
		StartDate:  monday,
	}

	got := ranges(slices.Collect(Generate(p)))
	want := []string{"10:00-10:30", "10:30-11:00", "11:00-11:30"}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestServiceDurationWithoutStepTiles(t *testing.T) {
	p := Pattern{
		Weekdays:               []time.Weekday{time.Monday},
		StartTime:              clock(t, "09:00"),
		EndTime:                clock(t, "11:00"),
		ServiceDurationMinutes: intPtr(40),
		WeeksCount:             1,
		StartDate:              monday,
	}

	got := ranges(slices.Collect(Generate(p)))
	want := []string{"09:00-09:40", "09:40-10:20", "10:20-11:00"}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestBreakOverlapRules(t *testing.T) {
	// Break 10:15-10:45. With 30 minute slots every 15 minutes:
	// 09:45-10:15 ends at the break start and is kept,
	// 10:00-10:30 runs into the break, 10:15 and 10:30 start inside it,
	// 10:45-11:15 starts at the break end and is kept.
	p := Pattern{
		Weekdays:               []time.Weekday{time.Monday},
		StartTime:              clock(t, "09:45"),
		EndTime:                clock(t, "11:15"),
		StepMinutes:            intPtr(15),
		ServiceDurationMinutes: intPtr(30),
		Breaks:                 []Interval{{Start: clock(t, "10:15"), End: clock(t, "10:45")}},
		WeeksCount:             1,
		StartDate:              monday,
	}

	got := ranges(slices.Collect(Generate(p)))
	want := []string{"09:45-10:15", "10:45-11:15"}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestEmittedSlotsHaveEffectiveDurationAndAvoidBreaks(t *testing.T) {
	breaks := []Interval{
		{Start: civil.Time{Hour: 10}, End: civil.Time{Hour: 10, Minute: 20}},
		{Start: civil.Time{Hour: 13}, End: civil.Time{Hour: 14}},
	}
	for _, step := range []int{5, 10, 15, 20, 30, 45, 60} {
		for _, duration := range []int{10, 20, 25, 30, 50, 90} {
			p := Pattern{
				Weekdays:               []time.Weekday{time.Monday, time.Thursday},
				StartTime:              civil.Time{Hour: 8},
				EndTime:                civil.Time{Hour: 17, Minute: 30},
				StepMinutes:            intPtr(step),
				ServiceDurationMinutes: intPtr(duration),
				Breaks:                 breaks,
				WeeksCount:             2,
				StartDate:              monday,
			}
			for c := range Generate(p) {
				start, end := minutesOf(c.Start), minutesOf(c.End)
				if end-start != duration {
					t.Fatalf("step %d duration %d: slot %s has length %d", step, duration, c, end-start)
				}
				for _, b := range breaks {
					if start < minutesOf(b.End) && end > minutesOf(b.Start) {
						t.Fatalf("step %d duration %d: slot %s overlaps break", step, duration, c)
					}
				}
				if end > 17*60+30 {
					t.Fatalf("slot %s exceeds window", c)
				}
			}
		}
	}
}

func TestWeeksAnchorOnStartDate(t *testing.T) {
	// Start on a Wednesday: the Monday of the first week lies in the past
	// relative to the start date, so the first Monday is 2026-03-09.
	wednesday := civil.Date{Year: 2026, Month: time.March, Day: 4}
	p := Pattern{
		Weekdays:    []time.Weekday{time.Monday, time.Wednesday},
		StartTime:   clock(t, "09:00"),
		EndTime:     clock(t, "10:00"),
		StepMinutes: intPtr(0),
		WeeksCount:  2,
		StartDate:   wednesday,
	}

	var dates []string
	for c := range Generate(p) {
		dates = append(dates, c.Date.String())
	}
	want := []string{"2026-03-04", "2026-03-09", "2026-03-11", "2026-03-16"}
	if !slices.Equal(dates, want) {
		t.Fatalf("expected %v, got %v", want, dates)
	}
}

func TestSundayIsWeekdayZero(t *testing.T) {
	p := Pattern{
		Weekdays:    []time.Weekday{time.Weekday(0)},
		StartTime:   clock(t, "09:00"),
		EndTime:     clock(t, "10:00"),
		StepMinutes: intPtr(0),
		WeeksCount:  1,
		StartDate:   monday,
	}

	got := slices.Collect(Generate(p))
	if len(got) != 1 || got[0].Date != (civil.Date{Year: 2026, Month: time.March, Day: 8}) {
		t.Fatalf("expected a single Sunday slot on 2026-03-08, got %v", got)
	}
}

func TestSequenceIsRestartableAndStopsEarly(t *testing.T) {
	p := Pattern{
		Weekdays:    []time.Weekday{time.Monday, time.Tuesday},
		StartTime:   clock(t, "08:00"),
		EndTime:     clock(t, "12:00"),
		StepMinutes: intPtr(30),
		WeeksCount:  3,
		StartDate:   monday,
	}

	seq := Generate(p)
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	if len(first) != 48 || !slices.Equal(first, second) {
		t.Fatalf("expected two identical runs of 48 slots, got %d and %d", len(first), len(second))
	}

	taken := 0
	for range seq {
		taken++
		if taken == 5 {
			break
		}
	}
	if taken != 5 {
		t.Fatalf("expected early stop after 5, got %d", taken)
	}
}

func TestInvertedWindowYieldsNothing(t *testing.T) {
	p := Pattern{
		Weekdays:   []time.Weekday{time.Monday},
		StartTime:  clock(t, "12:00"),
		EndTime:    clock(t, "08:00"),
		WeeksCount: 1,
		StartDate:  monday,
	}
	if got := slices.Collect(Generate(p)); len(got) != 0 {
		t.Fatalf("expected no slots, got %v", got)
	}
}

func TestParseClockRejectsMalformedInput(t *testing.T) {
	for _, value := range []string{"", "8", "25:00", "08:60", "0800"} {
		if _, err := ParseClock(value); err == nil {
			t.Fatalf("expected error for %q", value)
		}
	}
}
