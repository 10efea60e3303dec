package normalizer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"taxiflow/models"
)

var (
	// ErrMissingField matches every *MissingFieldError.
	ErrMissingField = errors.New("missing mandatory field")
	// ErrTimestampOrder matches every *TimestampOrderError.
	ErrTimestampOrder = errors.New("dropoff before pickup")
)

// MissingFieldError rejects a raw record that lacks fields with no default
// for its kind.
type MissingFieldError struct {
	Kind   models.TaxiKind
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s trip: %s: %s", e.Kind, ErrMissingField, strings.Join(e.Fields, ", "))
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

// TimestampOrderError is a data quality warning. The record is still
// normalized, with a negative duration.
type TimestampOrderError struct {
	Kind    models.TaxiKind
	Pickup  time.Time
	Dropoff time.Time
}

func (e *TimestampOrderError) Error() string {
	return fmt.Sprintf("%s trip: %s: pickup %s, dropoff %s", e.Kind, ErrTimestampOrder,
		e.Pickup.Format(time.RFC3339), e.Dropoff.Format(time.RFC3339))
}

func (e *TimestampOrderError) Unwrap() error { return ErrTimestampOrder }
