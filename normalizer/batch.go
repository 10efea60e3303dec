package normalizer

import (
	"context"

	"golang.org/x/sync/errgroup"

	"taxiflow/models"
)

// Rejection is a raw record that could not be normalized.
type Rejection struct {
	Index int
	Kind  models.TaxiKind
	Err   error
}

// Warning is a non-fatal finding on a record that was normalized.
type Warning struct {
	Index int
	Err   error
}

// BatchResult keeps successful records in input order. Index fields refer
// to positions in the input slice.
type BatchResult struct {
	Records    []models.CanonicalTripRecord
	Rejections []Rejection
	Warnings   []Warning
}

type outcome struct {
	record   models.CanonicalTripRecord
	warnings []error
	err      error
}

// NormalizeAll normalizes raws on up to workers goroutines. A rejected
// record never stops its siblings; only context cancellation returns an
// error.
func (n *Normalizer) NormalizeAll(ctx context.Context, raws []models.RawTripRecord, workers int) (BatchResult, error) {
	results := make([]outcome, len(raws))
	if workers < 1 {
		workers = 1
	}
	chunk := (len(raws) + workers - 1) / workers
	if chunk == 0 {
		chunk = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(raws); start += chunk {
		start, end := start, min(start+chunk, len(raws))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if i%1024 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				rec, warns, err := n.Normalize(raws[i])
				results[i] = outcome{record: rec, warnings: warns, err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResult{}, err
	}

	res := BatchResult{Records: make([]models.CanonicalTripRecord, 0, len(raws))}
	for i, o := range results {
		if o.err != nil {
			var kind models.TaxiKind
			if raws[i] != nil {
				kind = raws[i].Kind()
			}
			res.Rejections = append(res.Rejections, Rejection{Index: i, Kind: kind, Err: o.err})
			continue
		}
		res.Records = append(res.Records, o.record)
		for _, w := range o.warnings {
			res.Warnings = append(res.Warnings, Warning{Index: i, Err: w})
		}
	}
	return res, nil
}
