package channel

import (
	"context"
	"testing"
	"time"

	"taxiflow/models"
)

func TestNewChannels(t *testing.T) {
	c := NewChannels(1, 1)
	if c.Raw == nil || c.Canonical == nil {
		t.Fatalf("expected non-nil channels")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.startMetricsReporting(ctx, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	cancel()
	c.Close()
	c.Close()
}

func TestSendBlocksUntilCanceled(t *testing.T) {
	c := NewChannels(1, 1)
	defer c.Close()
	ctx := context.Background()

	if !c.SendRaw(ctx, models.RawBatch{Records: make([]models.RawTripRecord, 3)}) {
		t.Fatalf("first send should succeed")
	}

	ctx2, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if c.SendRaw(ctx2, models.RawBatch{}) {
		t.Fatalf("send on full channel should fail once the context ends")
	}

	stats := c.GetStats()
	if stats.RawSent != 1 || stats.RawRecords != 3 || stats.Canceled != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestSendCanonical(t *testing.T) {
	c := NewChannels(1, 1)
	if !c.SendCanonical(context.Background(), models.CanonicalBatch{Records: make([]models.CanonicalTripRecord, 2)}) {
		t.Fatalf("send should succeed")
	}
	c.CloseCanonical()
	b, ok := <-c.Canonical
	if !ok || len(b.Records) != 2 {
		t.Fatalf("unexpected batch %+v", b)
	}
	if _, ok := <-c.Canonical; ok {
		t.Fatalf("channel should be closed")
	}
	if c.GetStats().CanonicalRows != 2 {
		t.Fatalf("unexpected stats %+v", c.GetStats())
	}
}
