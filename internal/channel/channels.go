package channel

import (
	"context"
	"sync"
	"time"

	"taxiflow/logger"
	"taxiflow/models"
)

type ChannelStats struct {
	RawSent       int64
	RawRecords    int64
	CanonicalSent int64
	CanonicalRows int64
	Canceled      int64
}

// Channels connects reader -> processor (Raw) and processor -> writer
// (Canonical). Sends block until accepted or the context ends; trip
// batches are never dropped.
type Channels struct {
	Raw       chan models.RawBatch
	Canonical chan models.CanonicalBatch

	closeRaw       sync.Once
	closeCanonical sync.Once

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(rawBufferSize, canonicalBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw:       make(chan models.RawBatch, rawBufferSize),
		Canonical: make(chan models.CanonicalBatch, canonicalBufferSize),
		log:       log,
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"raw_buffer_size":       rawBufferSize,
		"canonical_buffer_size": canonicalBufferSize,
	}).Info("trip channels initialized")

	return c
}

func (c *Channels) SendRaw(ctx context.Context, b models.RawBatch) bool {
	select {
	case c.Raw <- b:
		c.statsMutex.Lock()
		c.stats.RawSent++
		c.stats.RawRecords += int64(len(b.Records))
		c.statsMutex.Unlock()
		logger.RecordChannelMessage("raw", len(b.Records))
		return true
	case <-ctx.Done():
		c.incrementCanceled()
		return false
	}
}

func (c *Channels) SendCanonical(ctx context.Context, b models.CanonicalBatch) bool {
	select {
	case c.Canonical <- b:
		c.statsMutex.Lock()
		c.stats.CanonicalSent++
		c.stats.CanonicalRows += int64(len(b.Records))
		c.statsMutex.Unlock()
		logger.RecordChannelMessage("canonical", len(b.Records))
		return true
	case <-ctx.Done():
		c.incrementCanceled()
		return false
	}
}

func (c *Channels) incrementCanceled() {
	c.statsMutex.Lock()
	c.stats.Canceled++
	c.statsMutex.Unlock()
}

// CloseRaw signals the processor that no more raw batches follow.
func (c *Channels) CloseRaw() {
	c.closeRaw.Do(func() { close(c.Raw) })
}

// CloseCanonical signals the writer that no more canonical batches follow.
func (c *Channels) CloseCanonical() {
	c.closeCanonical.Do(func() { close(c.Canonical) })
}

func (c *Channels) Close() {
	c.CloseRaw()
	c.CloseCanonical()
	c.log.WithComponent("channels").Info("trip channels closed")
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}

// StartMetricsReporting logs channel depth and totals every 30s until ctx ends.
func (c *Channels) StartMetricsReporting(ctx context.Context) {
	c.startMetricsReporting(ctx, 30*time.Second)
}

func (c *Channels) startMetricsReporting(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := c.GetStats()
				c.log.WithComponent("channels").WithFields(logger.Fields{
					"raw_len":        len(c.Raw),
					"raw_cap":        cap(c.Raw),
					"canonical_len":  len(c.Canonical),
					"canonical_cap":  cap(c.Canonical),
					"raw_sent":       stats.RawSent,
					"raw_records":    stats.RawRecords,
					"canonical_sent": stats.CanonicalSent,
					"canonical_rows": stats.CanonicalRows,
					"canceled":       stats.Canceled,
				}).Info("channel metrics")
			}
		}
	}()
}
