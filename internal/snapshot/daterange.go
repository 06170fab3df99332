package snapshot

import "time"

// Range is a named reporting window ending today.
type Range string

const (
	Range7Days  Range = "7days"
	Range30Days Range = "30days"
	Range90Days Range = "90days"
)

// Dates resolves the range to GA4 YYYY-MM-DD start and end dates.
// Unknown ranges default to 30 days.
func (r Range) Dates() (string, string) {
	return r.datesFrom(time.Now())
}

func (r Range) datesFrom(now time.Time) (string, string) {
	days := 30
	switch r {
	case Range7Days:
		days = 7
	case Range90Days:
		days = 90
	}
	start := now.AddDate(0, 0, -days)
	return start.Format("2006-01-02"), now.Format("2006-01-02")
}
