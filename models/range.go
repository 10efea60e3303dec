package models

import (
	"fmt"
	"time"
)

// DateRange selects pickup dates From..To inclusive. A zero bound is open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// ParseDateRange parses YYYY-MM-DD bounds; empty strings leave a bound open.
func ParseDateRange(from, to string) (DateRange, error) {
	var r DateRange
	var err error
	if from != "" {
		if r.From, err = time.Parse(DateLayout, from); err != nil {
			return r, fmt.Errorf("invalid from date %q: %w", from, err)
		}
	}
	if to != "" {
		if r.To, err = time.Parse(DateLayout, to); err != nil {
			return r, fmt.Errorf("invalid to date %q: %w", to, err)
		}
	}
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return r, fmt.Errorf("date range %s..%s is reversed", from, to)
	}
	return r, nil
}

// Contains reports whether the calendar date d falls inside the range.
func (r DateRange) Contains(d time.Time) bool {
	if !r.From.IsZero() && d.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && d.After(r.To) {
		return false
	}
	return true
}
