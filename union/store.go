package union

import (
	"context"
	"iter"

	"taxiflow/models"
)

// Scanner is the read side of a canonical store.
type Scanner interface {
	Scan(ctx context.Context, kind models.TaxiKind, r models.DateRange) iter.Seq2[models.CanonicalTripRecord, error]
}

// FromStore unions the per-kind scans of s over r. With no kinds given both
// kinds are read, yellow first.
func FromStore(ctx context.Context, s Scanner, r models.DateRange, kinds ...models.TaxiKind) iter.Seq2[models.CanonicalTripRecord, error] {
	if len(kinds) == 0 {
		kinds = models.Kinds
	}
	sources := make([]Source, 0, len(kinds))
	for _, k := range kinds {
		sources = append(sources, Source{Kind: k, Seq: s.Scan(ctx, k, r)})
	}
	return UnionSources(sources...)
}
