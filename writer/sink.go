package writer

import (
	"context"

	"taxiflow/models"
)

// Sink receives sorted canonical batches of one kind. Append must be safe
// for concurrent use; the writer calls it from several workers.
type Sink interface {
	Name() string
	Append(ctx context.Context, kind models.TaxiKind, records []models.CanonicalTripRecord) error
	Close() error
}
