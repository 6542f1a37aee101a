// Package timeutil holds the HHMM and day-type conventions shared by the
// ingestion, rollup and query layers. All scheduled times are local to the
// operating timezone (Europe/London for HSP data).
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DayTypeWeekday  = "WEEKDAY"
	DayTypeSaturday = "SATURDAY"
	DayTypeSunday   = "SUNDAY"
)

// ParseServiceDate parses a "YYYY-MM-DD" service date. The result carries no
// timezone; combine with HHMMToTime for zoned timestamps.
func ParseServiceDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

// HHMMToTime converts an "HHMM" time-of-day on the given service date into a
// zoned timestamp. A blank value returns the zero time with no error; a
// malformed value is an error.
func HHMMToTime(serviceDate time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	hhmm = strings.TrimSpace(hhmm)
	if hhmm == "" {
		return time.Time{}, nil
	}
	h, m, err := ParseHHMM(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(serviceDate.Year(), serviceDate.Month(), serviceDate.Day(), h, m, 0, 0, loc), nil
}

// ParseHHMM splits "HHMM" into hour and minute.
func ParseHHMM(hhmm string) (int, int, error) {
	hhmm = strings.TrimSpace(hhmm)
	if len(hhmm) != 4 {
		return 0, 0, fmt.Errorf("bad HHMM value: %q", hhmm)
	}
	h, err := strconv.Atoi(hhmm[:2])
	if err != nil {
		return 0, 0, fmt.Errorf("bad HHMM value: %q", hhmm)
	}
	m, err := strconv.Atoi(hhmm[2:])
	if err != nil {
		return 0, 0, fmt.Errorf("bad HHMM value: %q", hhmm)
	}
	if h > 23 || m > 59 {
		return 0, 0, fmt.Errorf("bad HHMM value: %q", hhmm)
	}
	return h, m, nil
}

// FormatHHMM renders a timestamp's local time-of-day as "HHMM".
func FormatHHMM(t time.Time) string {
	return t.Format("1504")
}

// RollIfNextDay shifts t forward one calendar day when it is strictly earlier
// than the departure, handling services that cross midnight. Zero times pass
// through unchanged.
func RollIfNextDay(dep, t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	if t.Before(dep) {
		return t.AddDate(0, 0, 1)
	}
	return t
}

// DayOfWeek returns the day of week for a date using the 0=Sunday..6=Saturday
// convention used throughout the aggregate and metric tables.
func DayOfWeek(d time.Time) int {
	return int(d.Weekday())
}

// DayTypeForDate classifies a date as WEEKDAY, SATURDAY or SUNDAY.
func DayTypeForDate(d time.Time) string {
	switch d.Weekday() {
	case time.Saturday:
		return DayTypeSaturday
	case time.Sunday:
		return DayTypeSunday
	default:
		return DayTypeWeekday
	}
}

// DayTypeForDOW classifies a 0=Sunday..6=Saturday day-of-week value.
func DayTypeForDOW(dow int) string {
	switch {
	case dow >= 1 && dow <= 5:
		return DayTypeWeekday
	case dow == 6:
		return DayTypeSaturday
	default:
		return DayTypeSunday
	}
}
