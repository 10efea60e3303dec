// Package union reconciles per-kind canonical trip streams into one
// sequence, tagging provenance and zeroing fields a kind does not carry.
package union

import (
	"iter"

	"taxiflow/models"
)

// Union concatenates the yellow and green sequences lazily. Every output
// record is tagged with the kind of the sequence it came from.
func Union(yellow, green iter.Seq[models.CanonicalTripRecord]) iter.Seq[models.CanonicalTripRecord] {
	return func(yield func(models.CanonicalTripRecord) bool) {
		for _, s := range []struct {
			kind models.TaxiKind
			seq  iter.Seq[models.CanonicalTripRecord]
		}{{models.KindYellow, yellow}, {models.KindGreen, green}} {
			if s.seq == nil {
				continue
			}
			for rec := range s.seq {
				if !yield(Project(s.kind, rec)) {
					return
				}
			}
		}
	}
}

// Source is one per-kind stream whose items may carry a read error.
type Source struct {
	Kind models.TaxiKind
	Seq  iter.Seq2[models.CanonicalTripRecord, error]
}

// UnionSources concatenates sources in order. A read error is yielded once
// with a zero record and ends that source; the consumer decides whether to
// continue with the next one.
func UnionSources(sources ...Source) iter.Seq2[models.CanonicalTripRecord, error] {
	return func(yield func(models.CanonicalTripRecord, error) bool) {
		for _, src := range sources {
			if src.Seq == nil {
				continue
			}
			for rec, err := range src.Seq {
				if err != nil {
					if !yield(models.CanonicalTripRecord{}, err) {
						return
					}
					break
				}
				if !yield(Project(src.Kind, rec), nil) {
					return
				}
			}
		}
	}
}

// Project stamps rec with kind and resets the fields absent from that
// kind to their zero default.
func Project(kind models.TaxiKind, rec models.CanonicalTripRecord) models.CanonicalTripRecord {
	rec.TaxiKind = kind
	for _, field := range models.AbsentFields(kind) {
		def := models.Rule(kind, field).Default
		switch field {
		case models.ColAirportFee:
			rec.AirportFee = def
		case models.ColTripType:
			rec.TripType = int32(def)
		}
	}
	return rec
}

// Collect drains seq into a slice.
func Collect(seq iter.Seq[models.CanonicalTripRecord]) []models.CanonicalTripRecord {
	var out []models.CanonicalTripRecord
	for rec := range seq {
		out = append(out, rec)
	}
	return out
}

// FromSlice adapts a slice to iter.Seq.
func FromSlice(records []models.CanonicalTripRecord) iter.Seq[models.CanonicalTripRecord] {
	return func(yield func(models.CanonicalTripRecord) bool) {
		for _, rec := range records {
			if !yield(rec) {
				return
			}
		}
	}
}
