package normalizer

import "taxiflow/config"

// Policy pins the guarded ratio values. A zero cap disables clamping.
type Policy struct {
	// ZeroFareTipPercentage is used when fare_amount <= 0.
	ZeroFareTipPercentage float64
	// ZeroDurationSpeed is used when the trip duration is <= 0 minutes.
	ZeroDurationSpeed float64
	// TipPercentageCap clamps tip_percentage into [0, cap].
	TipPercentageCap float64
	// SpeedCap clamps avg_speed_mph into [0, cap].
	SpeedCap float64
}

func DefaultPolicy() Policy {
	return Policy{}
}

func PolicyFromConfig(cfg config.NormalizerConfig) Policy {
	return Policy{
		ZeroFareTipPercentage: cfg.ZeroFareTipPercentage,
		ZeroDurationSpeed:     cfg.ZeroDurationSpeed,
		TipPercentageCap:      cfg.TipPercentageCap,
		SpeedCap:              cfg.SpeedCap,
	}
}

func clamp(v, limit float64) float64 {
	if limit <= 0 {
		return v
	}
	return min(max(v, 0), limit)
}
