package config

import (
	"fmt"
	"time"
)

const monthLayout = "2006-01"

// MonthRange is an inclusive range of TLC publication months, "YYYY-MM".
type MonthRange struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Months expands the range into its YYYY-MM labels in ascending order.
func (r MonthRange) Months() ([]string, error) {
	from, err := time.Parse(monthLayout, r.From)
	if err != nil {
		return nil, fmt.Errorf("invalid month %q: %w", r.From, err)
	}
	to := from
	if r.To != "" {
		if to, err = time.Parse(monthLayout, r.To); err != nil {
			return nil, fmt.Errorf("invalid month %q: %w", r.To, err)
		}
	}
	if to.Before(from) {
		return nil, fmt.Errorf("month range %s..%s is reversed", r.From, r.To)
	}

	var out []string
	for m := from; !m.After(to); m = m.AddDate(0, 1, 0) {
		out = append(out, m.Format(monthLayout))
	}
	return out, nil
}
