package hsp

import (
	"fmt"
	"time"

	"github.com/lox/railscore/internal/timeutil"
)

// Chunk is one bounded (date, time-window) provider request.
type Chunk struct {
	Date     string // "YYYY-MM-DD"
	FromTime string // "HHMM"
	ToTime   string // "HHMM"
}

// DateRange expands [fromDate, toDate] inclusive into ISO date strings.
func DateRange(fromDate, toDate string) ([]string, error) {
	d0, err := timeutil.ParseServiceDate(fromDate)
	if err != nil {
		return nil, fmt.Errorf("bad from_date %q: %w", fromDate, err)
	}
	d1, err := timeutil.ParseServiceDate(toDate)
	if err != nil {
		return nil, fmt.Errorf("bad to_date %q: %w", toDate, err)
	}

	var out []string
	for d := d0; !d.After(d1); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format("2006-01-02"))
	}
	return out, nil
}

// WeekdayOnly filters ISO date strings to Mon-Fri.
func WeekdayOnly(dates []string) []string {
	var out []string
	for _, s := range dates {
		d, err := timeutil.ParseServiceDate(s)
		if err != nil {
			continue
		}
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out = append(out, s)
		}
	}
	return out
}

// TimeWindows splits [fromTime, toTime] into ordered, non-overlapping HHMM
// windows of at most stepMinutes each, covering the range exactly once.
// Assumes a same-day range.
func TimeWindows(fromTime, toTime string, stepMinutes int) ([][2]string, error) {
	sh, sm, err := timeutil.ParseHHMM(fromTime)
	if err != nil {
		return nil, err
	}
	eh, em, err := timeutil.ParseHHMM(toTime)
	if err != nil {
		return nil, err
	}

	start := time.Date(2000, 1, 1, sh, sm, 0, 0, time.UTC)
	end := time.Date(2000, 1, 1, eh, em, 0, 0, time.UTC)
	step := time.Duration(stepMinutes) * time.Minute

	var windows [][2]string
	for cur := start; cur.Before(end); {
		next := cur.Add(step)
		if next.After(end) {
			next = end
		}
		windows = append(windows, [2]string{timeutil.FormatHHMM(cur), timeutil.FormatHHMM(next)})
		cur = next
	}
	return windows, nil
}

// PlanChunks decomposes a date range and time-of-day range into the ordered
// chunk requests a run will issue. When the target day type is WEEKDAY and
// weekday filtering is on, Saturday/Sunday dates are dropped entirely before
// chunking; the provider gets the constraint too, this just avoids paying for
// requests that return nothing.
func PlanChunks(fromDate, toDate, fromTime, toTime string, stepMinutes int, days string, filterWeekdays bool) ([]Chunk, error) {
	dates, err := DateRange(fromDate, toDate)
	if err != nil {
		return nil, err
	}
	if filterWeekdays && days == timeutil.DayTypeWeekday {
		dates = WeekdayOnly(dates)
	}

	windows, err := TimeWindows(fromTime, toTime, stepMinutes)
	if err != nil {
		return nil, err
	}

	var chunks []Chunk
	for _, d := range dates {
		for _, w := range windows {
			chunks = append(chunks, Chunk{Date: d, FromTime: w[0], ToTime: w[1]})
		}
	}
	return chunks, nil
}
