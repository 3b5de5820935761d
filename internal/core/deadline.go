package core

import (
	"math"
	"time"
)

// DeadlineInRange reports whether date (YYYY-MM-DD) falls within the next
// days days of now. Whole days are counted down, so a deadline due at midnight
// tonight is zero days away and out of range. Blank or malformed dates are
// never in range.
func DeadlineInRange(date string, days int, now time.Time) bool {
	if date == "" {
		return false
	}
	due, err := time.Parse(DayFormat, date)
	if err != nil {
		return false
	}
	diff := int(math.Floor(due.Sub(now.UTC()).Hours() / 24))
	return diff > 0 && diff <= days
}
