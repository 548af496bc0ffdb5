package hours

import (
	"fmt"
	"strings"
	"time"
)

const (
	minutesPerDay = 24 * 60
	clockLayout   = "15:04"
)

// TimeOfDay is a wall clock position in UTC, stored as minutes since midnight.
type TimeOfDay uint16

func ParseTimeOfDay(str string) (TimeOfDay, error) {
	str = strings.TrimSpace(str)
	if str == "24:00" {
		return TimeOfDay(minutesPerDay), nil
	}
	t, err := time.Parse(clockLayout, str)
	if err != nil {
		return 0, fmt.Errorf("failed to parse time of day %q: %w", str, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func FromTime(t time.Time) TimeOfDay {
	t = t.UTC()
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

func (tod TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", tod/60, tod%60)
}

// Range is the half open window [From, To). A range where From is after To
// wraps midnight, and From == To covers the whole day.
type Range struct {
	From TimeOfDay
	To   TimeOfDay
}

func ParseRange(from, to string) (Range, error) {
	f, err := ParseTimeOfDay(from)
	if err != nil {
		return Range{}, err
	}
	t, err := ParseTimeOfDay(to)
	if err != nil {
		return Range{}, err
	}
	if f >= minutesPerDay {
		return Range{}, fmt.Errorf("range can't start at %s", f)
	}
	return Range{From: f, To: t % minutesPerDay}, nil
}

func (r Range) String() string {
	return fmt.Sprintf("%s-%s", r.From, r.To)
}

func (r Range) WholeDay() bool {
	return r.From == r.To
}

func (r Range) Contains(t time.Time) bool {
	tod := FromTime(t)
	switch {
	case r.WholeDay():
		return true
	case r.From < r.To:
		return tod >= r.From && tod < r.To
	default:
		return tod >= r.From || tod < r.To
	}
}
