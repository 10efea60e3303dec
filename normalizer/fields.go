package normalizer

import (
	"math"
	"strings"
	"time"

	"taxiflow/models"
)

// fieldReader resolves raw values against the presence table of one kind
// and collects every mandatory field that is missing.
type fieldReader struct {
	kind    models.TaxiKind
	missing []string
}

func (f *fieldReader) fallback(field string) float64 {
	rule := models.Rule(f.kind, field)
	if rule.Presence == models.Mandatory {
		f.missing = append(f.missing, field)
		return 0
	}
	return rule.Default
}

// int treats values outside the int32 range like a missing value.
func (f *fieldReader) int(field string, v *int64) int32 {
	if v == nil || *v < math.MinInt32 || *v > math.MaxInt32 {
		return int32(f.fallback(field))
	}
	return int32(*v)
}

// float treats NaN and ±Inf like a missing value.
func (f *fieldReader) float(field string, v *float64) float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return f.fallback(field)
	}
	return *v
}

func (f *fieldReader) time(field string, v *time.Time) time.Time {
	if v == nil || v.IsZero() {
		f.fallback(field)
		return time.Time{}
	}
	return *v
}

func (f *fieldReader) flag(field string, v *string) bool {
	if v == nil {
		return f.fallback(field) != 0
	}
	switch strings.ToUpper(strings.TrimSpace(*v)) {
	case "Y", "1", "TRUE":
		return true
	case "N", "0", "FALSE":
		return false
	}
	return f.fallback(field) != 0
}

// absent returns the value of a field the kind never carries.
func (f *fieldReader) absent(field string) float64 {
	return models.Rule(f.kind, field).Default
}
