package availability

import (
	"math"
	"time"

	"adspace/internal/shared/errs"
)

const day = 24 * time.Hour

// DateRange is an inclusive range of whole UTC days. Start and End both hold
// the start-of-day instant of their day.
type DateRange struct {
	Start time.Time `json:"start_date"`
	End   time.Time `json:"end_date"`
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewDateRange normalizes both ends to whole days.
func NewDateRange(start, end time.Time) (DateRange, error) {
	if start.IsZero() || end.IsZero() {
		return DateRange{}, errs.Validation("start and end dates are required")
	}
	r := DateRange{Start: StartOfDay(start), End: StartOfDay(end)}
	if r.End.Before(r.Start) {
		return DateRange{}, errs.Validation("end date %s is before start date %s",
			r.End.Format(time.DateOnly), r.Start.Format(time.DateOnly))
	}
	return r, nil
}

// ParseDateRange accepts YYYY-MM-DD or RFC3339 values.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := parseDay(start)
	if err != nil {
		return DateRange{}, errs.Validation("invalid start date %q", start)
	}
	e, err := parseDay(end)
	if err != nil {
		return DateRange{}, errs.Validation("invalid end date %q", end)
	}
	return NewDateRange(s, e)
}

func parseDay(v string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

// EndOfDay is the last instant of the final day.
func (r DateRange) EndOfDay() time.Time {
	return r.End.Add(day - time.Nanosecond)
}

// Days is the billable duration: the ceiling of the start to end-of-day span.
func (r DateRange) Days() int {
	return int(math.Ceil(r.EndOfDay().Sub(r.Start).Hours() / 24))
}

func (r DateRange) Overlaps(o DateRange) bool {
	return !r.Start.After(o.End) && !o.Start.After(r.End)
}

func (r DateRange) Contains(t time.Time) bool {
	d := StartOfDay(t)
	return !d.Before(r.Start) && !d.After(r.End)
}
