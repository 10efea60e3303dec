package normalizer

import (
	"taxiflow/config"
	"taxiflow/models"
)

// QualityFilter drops implausible trips after normalization. Bounds are
// exclusive except MaxDuration.
type QualityFilter struct {
	MaxDistance    float64
	MinDuration    float64
	MaxDuration    float64
	MaxFareAmount  float64
	MaxTotalAmount float64
}

func QualityFilterFromConfig(cfg config.QualityConfig) *QualityFilter {
	if !cfg.Enabled {
		return nil
	}
	return &QualityFilter{
		MaxDistance:    cfg.MaxDistance,
		MinDuration:    cfg.MinDuration,
		MaxDuration:    cfg.MaxDuration,
		MaxFareAmount:  cfg.MaxFareAmount,
		MaxTotalAmount: cfg.MaxTotalAmount,
	}
}

// Check returns the name of the first failed bound, or "" when c passes.
// A nil filter passes everything.
func (q *QualityFilter) Check(c *models.CanonicalTripRecord) string {
	if q == nil {
		return ""
	}
	switch {
	case c.TripDistance <= 0 || c.TripDistance >= q.MaxDistance:
		return models.ColTripDistance
	case c.TripDurationMinutes <= q.MinDuration || c.TripDurationMinutes > q.MaxDuration:
		return models.ColTripDurationMinutes
	case c.FareAmount <= 0 || c.FareAmount >= q.MaxFareAmount:
		return models.ColFareAmount
	case c.TotalAmount <= 0 || c.TotalAmount >= q.MaxTotalAmount:
		return models.ColTotalAmount
	}
	return ""
}
