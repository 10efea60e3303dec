package store

import (
	"context"
	"iter"
	"time"

	"taxiflow/models"
	"taxiflow/writer"
)

// TableStats summarizes one trip table.
type TableStats struct {
	Table   string
	Rows    int64
	MinDate time.Time
	MaxDate time.Time
	Days    int64
}

// Store is a canonical trip store: a writer sink that can also be read
// back per kind and inspected.
type Store interface {
	writer.Sink
	// EnsureSchema creates both trip tables and the union view if missing.
	EnsureSchema(ctx context.Context) error
	// TableExists reports whether the table of kind exists.
	TableExists(ctx context.Context, kind models.TaxiKind) (bool, error)
	// Scan streams the rows of kind whose pickup_date is in r, ordered by
	// the ordering key. The query runs when iteration starts.
	Scan(ctx context.Context, kind models.TaxiKind, r models.DateRange) iter.Seq2[models.CanonicalTripRecord, error]
	// ScanUnion streams the union view over r.
	ScanUnion(ctx context.Context, r models.DateRange) iter.Seq2[models.CanonicalTripRecord, error]
	Stats(ctx context.Context, kind models.TaxiKind) (TableStats, error)
	Ping(ctx context.Context) error
}

var (
	_ Store = (*ClickHouseStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
