package export

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// Range is the half-open window [Start, End) a run reports on.
type Range struct {
	Start time.Time
	End   time.Time
}

// Days is the whole number of days the range spans.
func (r Range) Days() int {
	return int(r.End.Sub(r.Start).Hours() / 24)
}

// MonthlyRange returns the calendar month before startDate (or now when it is
// empty). A non-empty endDate replaces the end of the range.
func MonthlyRange(startDate, endDate string, now time.Time) (Range, error) {
	ref := now.UTC()
	if strings.TrimSpace(startDate) != "" {
		parsed, err := parseDate(startDate)
		if err != nil {
			return Range{}, fmt.Errorf("invalid start date: %w", err)
		}
		ref = parsed
	}

	start := time.Date(ref.Year(), ref.Month()-1, 1, 0, 0, 0, 0, time.UTC)
	r := Range{Start: start, End: start.AddDate(0, 1, 0)}
	if strings.TrimSpace(endDate) != "" {
		parsed, err := parseDate(endDate)
		if err != nil {
			return Range{}, fmt.Errorf("invalid end date: %w", err)
		}
		r.End = parsed
	}
	if !r.End.After(r.Start) {
		return Range{}, fmt.Errorf("end date %s is not after start date %s", r.End.Format(time.DateOnly), r.Start.Format(time.DateOnly))
	}
	return r, nil
}

// OutputDir is <root>/Data/<YYYY>, suffixed with -<MM> for month-sized ranges.
func OutputDir(root string, r Range) string {
	name := fmt.Sprintf("%04d", r.Start.Year())
	if days := r.Days(); days > 20 && days < 40 {
		name += fmt.Sprintf("-%02d", int(r.Start.Month()))
	}
	return filepath.Join(root, "Data", name)
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	var lastErr error
	for _, layout := range dateLayouts {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			return parsed.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
