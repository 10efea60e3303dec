package union

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"taxiflow/models"
)

func records(n int, kind models.TaxiKind) []models.CanonicalTripRecord {
	out := make([]models.CanonicalTripRecord, n)
	for i := range out {
		out[i] = models.CanonicalTripRecord{
			TaxiKind:         kind,
			VendorID:         int32(i),
			PickupLocationID: int32(i + 1),
			AirportFee:       1.75,
			TripType:         1,
		}
	}
	return out
}

func TestUnionCompleteness(t *testing.T) {
	for _, tc := range []struct{ m, n int }{{0, 0}, {3, 0}, {0, 4}, {5, 7}} {
		out := Collect(Union(FromSlice(records(tc.m, models.KindYellow)), FromSlice(records(tc.n, models.KindGreen))))
		if len(out) != tc.m+tc.n {
			t.Fatalf("M=%d N=%d: got %d records", tc.m, tc.n, len(out))
		}
		var y, g int
		for _, r := range out {
			switch r.TaxiKind {
			case models.KindYellow:
				y++
			case models.KindGreen:
				g++
			default:
				t.Fatalf("untagged record %+v", r)
			}
		}
		if y != tc.m || g != tc.n {
			t.Fatalf("M=%d N=%d: tagged %d yellow, %d green", tc.m, tc.n, y, g)
		}
	}
}

func TestUnionTagsBySource(t *testing.T) {
	// a mislabeled input is re-tagged with the kind of its sequence
	out := Collect(Union(FromSlice(records(1, models.KindGreen)), nil))
	if len(out) != 1 || out[0].TaxiKind != models.KindYellow {
		t.Fatalf("expected yellow tag, got %+v", out)
	}
}

func TestUnionZeroesAbsentFields(t *testing.T) {
	out := Collect(Union(FromSlice(records(1, models.KindYellow)), FromSlice(records(1, models.KindGreen))))
	yellow, green := out[0], out[1]
	if yellow.TripType != 0 || yellow.AirportFee != 1.75 {
		t.Fatalf("yellow projection: trip_type %d airport_fee %v", yellow.TripType, yellow.AirportFee)
	}
	if green.AirportFee != 0 || green.TripType != 1 {
		t.Fatalf("green projection: trip_type %d airport_fee %v", green.TripType, green.AirportFee)
	}
}

func TestUnionIsLazy(t *testing.T) {
	pulled := 0
	yellow := func(yield func(models.CanonicalTripRecord) bool) {
		for i := 0; i < 1000; i++ {
			pulled++
			if !yield(models.CanonicalTripRecord{}) {
				return
			}
		}
	}
	taken := 0
	for range Union(yellow, nil) {
		taken++
		if taken == 3 {
			break
		}
	}
	if pulled != 3 {
		t.Fatalf("pulled %d records, want 3", pulled)
	}
}

func seq2(recs []models.CanonicalTripRecord, failAfter int) iter.Seq2[models.CanonicalTripRecord, error] {
	return func(yield func(models.CanonicalTripRecord, error) bool) {
		for i, r := range recs {
			if i == failAfter {
				yield(models.CanonicalTripRecord{}, errors.New("scan failed"))
				return
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}

func TestUnionSourcesErrors(t *testing.T) {
	var ok, failed int
	for _, err := range UnionSources(
		Source{Kind: models.KindYellow, Seq: seq2(records(5, models.KindYellow), 2)},
		Source{Kind: models.KindGreen, Seq: seq2(records(3, models.KindGreen), -1)},
	) {
		if err != nil {
			failed++
			continue
		}
		ok++
	}
	if ok != 5 || failed != 1 {
		t.Fatalf("ok=%d failed=%d, want 5/1", ok, failed)
	}
}

type fakeScanner map[models.TaxiKind][]models.CanonicalTripRecord

func (f fakeScanner) Scan(_ context.Context, kind models.TaxiKind, r models.DateRange) iter.Seq2[models.CanonicalTripRecord, error] {
	return func(yield func(models.CanonicalTripRecord, error) bool) {
		for _, rec := range f[kind] {
			if !r.Contains(rec.PickupDate) {
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func TestFromStore(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	y := records(2, models.KindYellow)
	g := records(3, models.KindGreen)
	for i := range g {
		g[i].PickupDate = day.AddDate(0, 0, i)
	}
	s := fakeScanner{models.KindYellow: y, models.KindGreen: g}

	count := 0
	for _, err := range FromStore(context.Background(), s, models.DateRange{}) {
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		count++
	}
	if count != 5 {
		t.Fatalf("got %d records, want 5", count)
	}

	count = 0
	for rec, err := range FromStore(context.Background(), s, models.DateRange{From: day.AddDate(0, 0, 1)}, models.KindGreen) {
		if err != nil || rec.TaxiKind != models.KindGreen {
			t.Fatalf("unexpected %+v %v", rec, err)
		}
		count++
	}
	if count != 2 {
		t.Fatalf("got %d green records, want 2", count)
	}
}
