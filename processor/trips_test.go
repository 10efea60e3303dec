package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	appconfig "taxiflow/config"
	"taxiflow/internal/channel"
	"taxiflow/models"
	"taxiflow/normalizer"
)

func minimalConfig() *appconfig.Config {
	cfg := appconfig.Default()
	cfg.Processor = appconfig.ProcessorConfig{
		MaxWorkers:    2,
		BatchSize:     100,
		BatchTimeout:  time.Hour,
		MaxRejections: 10,
	}
	return &cfg
}

func trip(pickup time.Time, pu, do int64) *models.YellowTrip {
	return &models.YellowTrip{
		RawCommon: models.RawCommon{
			VendorID:             models.Ptr[int64](1),
			TripDistance:         models.Ptr(1.2),
			PULocationID:         models.Ptr(pu),
			DOLocationID:         models.Ptr(do),
			PaymentType:          models.Ptr[int64](1),
			FareAmount:           models.Ptr(8.0),
			Extra:                models.Ptr(0.0),
			MTATax:               models.Ptr(0.5),
			TipAmount:            models.Ptr(1.0),
			TollsAmount:          models.Ptr(0.0),
			ImprovementSurcharge: models.Ptr(1.0),
			TotalAmount:          models.Ptr(10.5),
		},
		TpepPickupDatetime:  models.Ptr(pickup),
		TpepDropoffDatetime: models.Ptr(pickup.Add(10 * time.Minute)),
	}
}

func day(d, h int) time.Time {
	return time.Date(2024, 1, d, h, 0, 0, 0, time.UTC)
}

func drain(t *testing.T, p *TripProcessor, ch *channel.Channels) []models.CanonicalBatch {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("processor did not drain")
	}
	ch.CloseCanonical()
	var out []models.CanonicalBatch
	for b := range ch.Canonical {
		out = append(out, b)
	}
	return out
}

func TestTripProcessorStartStop(t *testing.T) {
	cfg := minimalConfig()
	ch := channel.NewChannels(1, 1)
	p := NewTripProcessor(cfg, ch)
	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Fatalf("expected error on second start")
	}
	cancel()
	p.Stop()
}

func TestTripProcessorGroupsAndSortsByDate(t *testing.T) {
	cfg := minimalConfig()
	ch := channel.NewChannels(4, 16)
	p := NewTripProcessor(cfg, ch)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	missingFare := trip(day(1, 5), 1, 1)
	missingFare.FareAmount = nil

	ch.Raw <- models.RawBatch{
		BatchID:    "b1",
		Kind:       models.KindYellow,
		SourceFile: "yellow_tripdata_2024-01.parquet",
		Offset:     100,
		Records: []models.RawTripRecord{
			trip(day(2, 9), 50, 10),
			trip(day(1, 23), 7, 3),
			missingFare,
			trip(day(1, 6), 9, 2),
			trip(day(1, 6), 4, 8),
		},
	}
	ch.CloseRaw()

	batches := drain(t, p, ch)
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	first, second := batches[0], batches[1]
	if first.PartitionDate != "2024-01-01" || first.RecordCount != 3 || second.PartitionDate != "2024-01-02" || second.RecordCount != 1 {
		t.Fatalf("unexpected batches %s/%d %s/%d", first.PartitionDate, first.RecordCount, second.PartitionDate, second.RecordCount)
	}
	if !models.IsSortedByKey(first.Records) {
		t.Fatalf("batch not sorted by ordering key")
	}
	if first.Records[0].PickupLocationID != 4 || first.Records[1].PickupLocationID != 9 || first.Records[2].PickupHour != 23 {
		t.Fatalf("unexpected order %+v", first.Records)
	}
	if first.Kind != models.KindYellow || len(first.SourceFiles) != 1 || first.BatchID == "" {
		t.Fatalf("unexpected batch metadata %+v", first)
	}

	rej := p.Rejections()
	if len(rej) != 1 || rej[0].Row != 102 || rej[0].SourceFile != "yellow_tripdata_2024-01.parquet" {
		t.Fatalf("unexpected rejections %+v", rej)
	}
	if !errors.Is(rej[0].Err, normalizer.ErrMissingField) {
		t.Fatalf("expected missing field error, got %v", rej[0].Err)
	}

	s := p.Stats()
	if s.RecordsProcessed != 5 || s.RecordsRejected != 1 || s.BatchesEmitted != 2 || s.RecordsEmitted != 4 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestTripProcessorFlushesOnSize(t *testing.T) {
	cfg := minimalConfig()
	cfg.Processor.MaxWorkers = 1
	cfg.Processor.BatchSize = 2
	ch := channel.NewChannels(4, 16)
	p := NewTripProcessor(cfg, ch)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	ch.Raw <- models.RawBatch{
		Kind:    models.KindYellow,
		Records: []models.RawTripRecord{trip(day(3, 1), 1, 1), trip(day(3, 2), 1, 1), trip(day(3, 3), 1, 1)},
	}
	ch.CloseRaw()

	batches := drain(t, p, ch)
	if len(batches) != 2 || batches[0].RecordCount != 2 || batches[1].RecordCount != 1 {
		t.Fatalf("expected batches of 2 and 1, got %+v", batches)
	}
}

func TestTripProcessorQualityFilter(t *testing.T) {
	cfg := minimalConfig()
	cfg.Quality.Enabled = true
	ch := channel.NewChannels(4, 16)
	p := NewTripProcessor(cfg, ch)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	zeroDistance := trip(day(4, 8), 1, 1)
	zeroDistance.TripDistance = models.Ptr(0.0)
	ch.Raw <- models.RawBatch{
		Kind:    models.KindYellow,
		Records: []models.RawTripRecord{zeroDistance, trip(day(4, 9), 1, 1)},
	}
	ch.CloseRaw()

	batches := drain(t, p, ch)
	if len(batches) != 1 || batches[0].RecordCount != 1 {
		t.Fatalf("expected one record kept, got %+v", batches)
	}
	s := p.Stats()
	if s.RecordsFiltered != 1 || s.RecordsRejected != 0 {
		t.Fatalf("unexpected stats %+v", s)
	}
	if len(s.FilteredBy) != 1 || s.FilteredBy[models.ColTripDistance] != 1 {
		t.Fatalf("expected the filter to name trip_distance, got %v", s.FilteredBy)
	}
}

func TestTripProcessorBoundsRejections(t *testing.T) {
	cfg := minimalConfig()
	cfg.Processor.MaxRejections = 2
	ch := channel.NewChannels(4, 16)
	p := NewTripProcessor(cfg, ch)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	var recs []models.RawTripRecord
	for i := 0; i < 5; i++ {
		r := trip(day(5, i), 1, 1)
		r.VendorID = nil
		recs = append(recs, r)
	}
	ch.Raw <- models.RawBatch{Kind: models.KindYellow, Records: recs}
	ch.CloseRaw()

	if batches := drain(t, p, ch); len(batches) != 0 {
		t.Fatalf("expected no batches, got %d", len(batches))
	}
	if got := len(p.Rejections()); got != 2 {
		t.Fatalf("expected 2 kept rejections, got %d", got)
	}
	if s := p.Stats(); s.RecordsRejected != 5 {
		t.Fatalf("expected 5 rejected, got %d", s.RecordsRejected)
	}
}
