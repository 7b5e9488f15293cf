package notify

import (
	"sort"
	"time"

	"github.com/dukerupert/stockbook/internal/model"
)

// Window is the set of calendar dates that matter for one evaluation run.
// All dates are UTC midnights representing calendar days in the user's zone.
type Window struct {
	Today   time.Time
	Targets map[string]model.Offset // YYYY-MM-DD -> offset that targets it
	Overdue bool                    // include (-inf, Today)
}

// Today returns the calendar date of now in loc, as a UTC midnight.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CalculateWindow maps each enabled lead-time offset k to today+k days and
// records whether the overdue range is in play. It is pure.
func CalculateWindow(today time.Time, offsets []model.Offset) Window {
	w := Window{
		Today:   today,
		Targets: make(map[string]model.Offset, len(offsets)),
	}
	for _, o := range offsets {
		if o == model.OffsetOverdue {
			w.Overdue = true
			continue
		}
		days, ok := o.Days()
		if !ok {
			continue
		}
		w.Targets[today.AddDate(0, 0, days).Format(model.DateLayout)] = o
	}
	return w
}

// Dates returns the target dates in ascending order.
func (w Window) Dates() []string {
	dates := make([]string, 0, len(w.Targets))
	for d := range w.Targets {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

const secondsPerDay = 24 * 60 * 60

// DayOffset returns the signed number of calendar days from today to date.
// Negative means overdue. It counts whole days on Unix seconds, so dates
// outside the time.Duration range still report the true distance.
func DayOffset(today, date time.Time) int {
	a := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return int((b.Unix() - a.Unix()) / secondsPerDay)
}
