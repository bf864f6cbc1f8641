package report

import (
	"errors"
	"fmt"
	"time"
)

// Static errors for date range validation
var (
	ErrRangeRequired = errors.New("start and end dates are required")
	ErrRangeInverted = errors.New("end date must not be before start date")
	ErrRangeTooLong  = errors.New("date range exceeds the allowed maximum")
)

// DateLayout is the calendar date layout accepted on the command line and
// used in archive object names.
const DateLayout = "2006-01-02"

// DateRange is an inclusive [Start, End] interval.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Validate checks that both bounds are set, End is not before Start, and the
// span does not exceed maxMonths calendar months. maxMonths <= 0 disables the
// span check.
func (r DateRange) Validate(maxMonths int) error {
	if r.Start.IsZero() || r.End.IsZero() {
		return ErrRangeRequired
	}
	if r.End.Before(r.Start) {
		return ErrRangeInverted
	}
	if maxMonths > 0 {
		// The whole calendar day maxMonths after Start is still allowed.
		s := inZone(r.Start)
		limit := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, ReportZone).AddDate(0, maxMonths, 1)
		if !r.End.Before(limit) {
			return fmt.Errorf("%w: %d months", ErrRangeTooLong, maxMonths)
		}
	}
	return nil
}

// MaxSpanMessage is the operator-facing text naming the span limit.
func MaxSpanMessage(maxMonths int) string {
	return fmt.Sprintf("ระบบอนุญาตให้ดาวน์โหลดข้อมูลได้สูงสุดครั้งละ %d เดือน", maxMonths)
}

// ParseDay parses a YYYY-MM-DD date in the report zone. When endOfDay is set
// the result is the last second of that day so the range stays inclusive.
func ParseDay(value string, endOfDay bool) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, value, ReportZone)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return t, nil
}

// RangeFromDays builds an inclusive range covering whole start and end days.
func RangeFromDays(start, end string) (DateRange, error) {
	s, err := ParseDay(start, false)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := ParseDay(end, true)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	return DateRange{Start: s, End: e}, nil
}
