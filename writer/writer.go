package writer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	appconfig "taxiflow/config"
	"taxiflow/internal/channel"
	"taxiflow/logger"
	"taxiflow/models"
)

type SinkStats struct {
	Batches int64
	Rows    int64
	Errors  int64
}

type sinkCounters struct {
	batches atomic.Int64
	rows    atomic.Int64
	errors  atomic.Int64
}

// Writer drains the canonical channel and appends every batch to all
// configured sinks. A failing sink does not stop the others.
type Writer struct {
	config   *appconfig.Config
	channels *channel.Channels
	sinks    []Sink
	counters []*sinkCounters
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	done     chan struct{}
	log      *logger.Log
}

func NewWriter(cfg *appconfig.Config, ch *channel.Channels, sinks ...Sink) *Writer {
	w := &Writer{
		config:   cfg,
		channels: ch,
		sinks:    sinks,
		counters: make([]*sinkCounters, len(sinks)),
		wg:       &sync.WaitGroup{},
		done:     make(chan struct{}),
		log:      logger.GetLogger(),
	}
	names := make([]string, len(sinks))
	for i, s := range sinks {
		w.counters[i] = &sinkCounters{}
		names[i] = s.Name()
	}
	w.log.WithComponent("writer").WithFields(logger.Fields{
		"sinks":       names,
		"max_workers": cfg.Writer.MaxWorkers,
	}).Info("trip writer initialized")
	return w
}

func (w *Writer) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("writer already running")
	}
	w.running = true
	w.ctx = ctx
	w.mu.Unlock()

	numWorkers := w.config.Writer.MaxWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}
	w.log.WithComponent("writer").WithFields(logger.Fields{"workers": numWorkers}).Info("starting writer workers")

	for i := 0; i < numWorkers; i++ {
		w.wg.Add(1)
		go w.worker(i)
	}
	go func() {
		w.wg.Wait()
		close(w.done)
	}()
	return nil
}

// Done is closed once the canonical channel was drained.
func (w *Writer) Done() <-chan struct{} { return w.done }

// Stop waits for the workers; they exit when the canonical channel is
// closed or the context ends.
func (w *Writer) Stop() {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()

	w.log.WithComponent("writer").Info("stopping writer")
	if wasRunning {
		<-w.done
	}
	w.log.WithComponent("writer").WithFields(logger.Fields{"sinks": w.Stats()}).Info("writer stopped")
}

func (w *Writer) worker(workerID int) {
	defer w.wg.Done()

	log := w.log.WithComponent("writer").WithFields(logger.Fields{
		"worker_id": workerID,
		"worker":    "sink_writer",
	})

	for {
		select {
		case <-w.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case batch, ok := <-w.channels.Canonical:
			if !ok {
				log.Debug("canonical channel closed, worker stopping")
				return
			}
			w.processBatch(batch)
		}
	}
}

func (w *Writer) processBatch(batch models.CanonicalBatch) {
	if len(batch.Records) == 0 {
		return
	}
	for i, sink := range w.sinks {
		log := w.log.WithComponent("writer").WithFields(logger.Fields{
			"sink":           sink.Name(),
			"batch_id":       batch.BatchID,
			"kind":           batch.Kind,
			"partition_date": batch.PartitionDate,
			"record_count":   len(batch.Records),
		})

		start := time.Now()
		if err := sink.Append(w.ctx, batch.Kind, batch.Records); err != nil {
			w.counters[i].errors.Add(1)
			log.WithError(err).Error("failed to append batch")
			continue
		}
		w.counters[i].batches.Add(1)
		w.counters[i].rows.Add(int64(len(batch.Records)))
		logger.IncrementSinkWrite(sink.Name(), len(batch.Records))
		logger.LogPerformanceEntry(log, "writer", "append_batch", time.Since(start), nil)
	}
}

// Stats returns counters keyed by sink name.
func (w *Writer) Stats() map[string]SinkStats {
	out := make(map[string]SinkStats, len(w.sinks))
	for i, s := range w.sinks {
		c := w.counters[i]
		out[s.Name()] = SinkStats{Batches: c.batches.Load(), Rows: c.rows.Load(), Errors: c.errors.Load()}
	}
	return out
}

// Close closes every sink and returns the first error.
func (w *Writer) Close() error {
	var first error
	for _, s := range w.sinks {
		if err := s.Close(); err != nil {
			w.log.WithComponent("writer").WithError(err).WithFields(logger.Fields{"sink": s.Name()}).Warn("failed to close sink")
			if first == nil {
				first = err
			}
		}
	}
	return first
}
