package registration

import (
	"fmt"
	"time"
)

// Week is a Monday-based pairing week. Start is midnight UTC on Monday and
// End is the following Sunday.
type Week struct {
	Start time.Time
	End   time.Time
}

// WeekStart truncates t to midnight UTC of the Monday on or before it.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func WeekOf(t time.Time) Week {
	start := WeekStart(t)
	return Week{Start: start, End: start.AddDate(0, 0, 6)}
}

func CurrentWeek(now time.Time) Week {
	return WeekOf(now)
}

func NextWeek(now time.Time) Week {
	return WeekOf(WeekStart(now).AddDate(0, 0, 7))
}

// Key formats the week for storage keys and logs.
func (w Week) Key() string {
	return w.Start.Format(time.DateOnly)
}

// ParsePreferredTime validates an HH:MM clock time and returns minutes since
// midnight.
func ParsePreferredTime(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil || len(value) != 5 {
		return 0, fmt.Errorf("preferred time %q: expected HH:MM", value)
	}
	return t.Hour()*60 + t.Minute(), nil
}
