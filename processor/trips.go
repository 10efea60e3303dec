package processor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	appconfig "taxiflow/config"
	"taxiflow/internal/channel"
	"taxiflow/logger"
	"taxiflow/models"
	"taxiflow/normalizer"
)

// RejectedRecord locates a raw row the normalizer refused.
type RejectedRecord struct {
	SourceFile string
	Row        int
	Kind       models.TaxiKind
	Err        error
}

type Stats struct {
	RawBatches       int64
	RecordsProcessed int64
	RecordsRejected  int64
	Warnings         int64
	RecordsFiltered  int64
	// FilteredBy counts quality-filtered records by the first bound they failed.
	FilteredBy       map[string]int64
	BatchesEmitted   int64
	RecordsEmitted   int64
	BatchesDropped   int64
}

type pendingBatch struct {
	batch   *models.CanonicalBatch
	files   map[string]struct{}
	created time.Time
}

// TripProcessor normalizes raw batches on a worker pool and regroups the
// canonical records into batches keyed by kind and pickup date. Each
// emitted batch is sorted by the ordering key.
type TripProcessor struct {
	config     *appconfig.Config
	channels   *channel.Channels
	normalizer *normalizer.Normalizer
	quality    *normalizer.QualityFilter
	ctx        context.Context
	wg         *sync.WaitGroup
	mu         sync.RWMutex
	running    bool
	stopOnce   sync.Once
	stopCh     chan struct{}
	done       chan struct{}
	log        *logger.Log

	batches map[string]*pendingBatch

	rejMu      sync.Mutex
	rejections []RejectedRecord
	filteredBy map[string]int64

	rawBatches       atomic.Int64
	recordsProcessed atomic.Int64
	recordsRejected  atomic.Int64
	warnings         atomic.Int64
	recordsFiltered  atomic.Int64
	batchesEmitted   atomic.Int64
	recordsEmitted   atomic.Int64
	batchesDropped   atomic.Int64
}

func NewTripProcessor(cfg *appconfig.Config, ch *channel.Channels) *TripProcessor {
	return &TripProcessor{
		config:     cfg,
		channels:   ch,
		normalizer: normalizer.New(normalizer.PolicyFromConfig(cfg.Normalizer)),
		quality:    normalizer.QualityFilterFromConfig(cfg.Quality),
		wg:         &sync.WaitGroup{},
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
		log:        logger.GetLogger(),
		batches:    make(map[string]*pendingBatch),
		filteredBy: make(map[string]int64),
	}
}

func (p *TripProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("trip processor already running")
	}
	p.running = true
	p.ctx = ctx
	p.mu.Unlock()

	log := p.log.WithComponent("trip_processor").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting trip processor")

	numWorkers := p.config.Processor.MaxWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}

	log.WithFields(logger.Fields{
		"workers":       numWorkers,
		"batch_size":    p.config.Processor.BatchSize,
		"batch_timeout": p.config.Processor.BatchTimeout,
		"quality":       p.quality != nil,
	}).Info("starting trip processor workers")

	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	flusherDone := make(chan struct{})
	go p.batchFlusher(flusherDone)

	go func() {
		p.wg.Wait()
		close(flusherDone)
		p.flushAllBatches()
		close(p.done)
		p.log.WithComponent("trip_processor").WithFields(logger.Fields(p.statsFields())).Info("trip processor drained")
	}()

	go p.metricsReporter(ctx)

	log.Info("trip processor started successfully")
	return nil
}

// Done is closed once the raw channel was drained (or the processor was
// stopped) and every pending batch was flushed.
func (p *TripProcessor) Done() <-chan struct{} { return p.done }

// Stop halts the workers, flushes pending batches and waits for the drain.
func (p *TripProcessor) Stop() {
	p.mu.Lock()
	wasRunning := p.running
	p.running = false
	p.mu.Unlock()

	p.log.WithComponent("trip_processor").Info("stopping trip processor")
	p.stopOnce.Do(func() { close(p.stopCh) })
	if wasRunning {
		<-p.done
	}
	p.log.WithComponent("trip_processor").Info("trip processor stopped")
}

func (p *TripProcessor) worker(workerID int) {
	defer p.wg.Done()

	log := p.log.WithComponent("trip_processor").WithFields(logger.Fields{
		"worker_id": workerID,
		"worker":    "normalizer",
	})

	log.Debug("starting trip processor worker")

	for {
		select {
		case <-p.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case <-p.stopCh:
			log.Info("worker stopped")
			return
		case raw, ok := <-p.channels.Raw:
			if !ok {
				log.Debug("raw channel closed, worker stopping")
				return
			}

			start := time.Now()
			p.processBatch(raw)
			logger.LogPerformanceEntry(log, "trip_processor", "process_batch", time.Since(start), logger.Fields{
				"worker_id":   workerID,
				"kind":        raw.Kind,
				"source_file": raw.SourceFile,
				"offset":      raw.Offset,
				"records":     len(raw.Records),
			})
		}
	}
}

func (p *TripProcessor) processBatch(raw models.RawBatch) {
	log := p.log.WithComponent("trip_processor").WithFields(logger.Fields{
		"batch_id":    raw.BatchID,
		"kind":        raw.Kind,
		"source_file": raw.SourceFile,
		"operation":   "process_batch",
	})

	result, err := p.normalizer.NormalizeAll(p.ctx, raw.Records, 1)
	if err != nil {
		log.WithError(err).Warn("normalization interrupted")
		return
	}

	p.rawBatches.Add(1)
	p.recordsProcessed.Add(int64(len(raw.Records)))
	p.recordsRejected.Add(int64(len(result.Rejections)))
	p.warnings.Add(int64(len(result.Warnings)))
	logger.IncrementRejected(string(raw.Kind), len(result.Rejections), len(result.Warnings))

	for _, rej := range result.Rejections {
		p.recordRejection(raw, rej)
	}
	for _, w := range result.Warnings {
		log.WithError(w.Err).WithFields(logger.Fields{"row": raw.Offset + w.Index}).Debug("record normalized with warning")
	}

	kept := result.Records
	if p.quality != nil {
		kept = make([]models.CanonicalTripRecord, 0, len(result.Records))
		for i := range result.Records {
			if column := p.quality.Check(&result.Records[i]); column != "" {
				p.recordFiltered(column)
				log.WithFields(logger.Fields{"column": column}).Debug("record filtered")
				continue
			}
			kept = append(kept, result.Records[i])
		}
	}

	p.addToBatches(raw, kept)

	log.WithFields(logger.Fields{
		"records":    len(raw.Records),
		"normalized": len(result.Records),
		"kept":       len(kept),
		"rejected":   len(result.Rejections),
		"warnings":   len(result.Warnings),
	}).Debug("raw batch processed")
	logger.LogDataFlowEntry(log, "raw_channel", "trip_processor", len(kept), "canonical_records")
}

func (p *TripProcessor) recordRejection(raw models.RawBatch, rej normalizer.Rejection) {
	rec := RejectedRecord{
		SourceFile: raw.SourceFile,
		Row:        raw.Offset + rej.Index,
		Kind:       rej.Kind,
		Err:        rej.Err,
	}

	p.rejMu.Lock()
	keep := len(p.rejections) < p.config.Processor.MaxRejections
	if keep {
		p.rejections = append(p.rejections, rec)
	}
	p.rejMu.Unlock()

	entry := p.log.WithComponent("trip_processor").WithError(rej.Err).WithFields(logger.Fields{
		"source_file": rec.SourceFile,
		"row":         rec.Row,
		"kind":        rec.Kind,
	})
	if keep {
		entry.Warn("record rejected")
	} else {
		entry.Debug("record rejected")
	}
}

func (p *TripProcessor) recordFiltered(column string) {
	p.recordsFiltered.Add(1)
	p.rejMu.Lock()
	p.filteredBy[column]++
	p.rejMu.Unlock()
}

// Rejections returns the first processor.max_rejections rejected rows.
func (p *TripProcessor) Rejections() []RejectedRecord {
	p.rejMu.Lock()
	defer p.rejMu.Unlock()
	out := make([]RejectedRecord, len(p.rejections))
	copy(out, p.rejections)
	return out
}

func batchKey(kind models.TaxiKind, date string) string {
	return string(kind) + "|" + date
}

func (p *TripProcessor) addToBatches(raw models.RawBatch, records []models.CanonicalTripRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, rec := range records {
		date := rec.PartitionDate()
		key := batchKey(raw.Kind, date)

		pb, exists := p.batches[key]
		if !exists {
			pb = &pendingBatch{
				batch: &models.CanonicalBatch{
					BatchID:       uuid.New().String(),
					Kind:          raw.Kind,
					PartitionDate: date,
					Records:       make([]models.CanonicalTripRecord, 0, min(p.config.Processor.BatchSize, 1024)),
				},
				files:   make(map[string]struct{}),
				created: time.Now(),
			}
			p.batches[key] = pb
		}
		pb.files[raw.SourceFile] = struct{}{}
		pb.batch.Records = append(pb.batch.Records, rec)
		pb.batch.RecordCount = len(pb.batch.Records)

		if p.config.Processor.BatchSize > 0 && pb.batch.RecordCount >= p.config.Processor.BatchSize {
			p.flushBatch(key, "size")
		}
	}
}

func (p *TripProcessor) batchFlusher(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.flushTimedOutBatches()
		}
	}
}

func (p *TripProcessor) flushTimedOutBatches() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for key, pb := range p.batches {
		if now.Sub(pb.created) >= p.config.Processor.BatchTimeout {
			p.flushBatch(key, "timeout")
		}
	}
}

// flushBatch must be called with p.mu held. The send blocks until the
// writer accepts the batch or the context ends.
func (p *TripProcessor) flushBatch(key, reason string) {
	pb, exists := p.batches[key]
	if !exists {
		return
	}
	delete(p.batches, key)
	if pb.batch.RecordCount == 0 {
		return
	}

	batch := *pb.batch
	batch.SourceFiles = make([]string, 0, len(pb.files))
	for f := range pb.files {
		batch.SourceFiles = append(batch.SourceFiles, f)
	}
	sort.Strings(batch.SourceFiles)
	models.SortByKey(batch.Records)
	batch.ProcessedAt = time.Now()

	log := p.log.WithComponent("trip_processor").WithFields(logger.Fields{
		"batch_id":       batch.BatchID,
		"batch_key":      key,
		"record_count":   batch.RecordCount,
		"partition_date": batch.PartitionDate,
		"reason":         reason,
		"operation":      "flush_batch",
	})

	if !p.channels.SendCanonical(p.ctx, batch) {
		p.batchesDropped.Add(1)
		log.Warn("context ended before batch was accepted, batch dropped")
		return
	}
	p.batchesEmitted.Add(1)
	p.recordsEmitted.Add(int64(batch.RecordCount))
	log.Debug("batch flushed")
	logger.LogDataFlowEntry(log, "trip_processor", "canonical_channel", batch.RecordCount, "batch")
}

func (p *TripProcessor) flushAllBatches() {
	p.mu.Lock()
	defer p.mu.Unlock()

	log := p.log.WithComponent("trip_processor").WithFields(logger.Fields{"operation": "flush_all_batches"})
	log.WithFields(logger.Fields{"pending_batches": len(p.batches)}).Info("flushing all remaining batches")

	keys := make([]string, 0, len(p.batches))
	for key := range p.batches {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		p.flushBatch(key, "drain")
	}
}

func (p *TripProcessor) Stats() Stats {
	p.rejMu.Lock()
	filteredBy := make(map[string]int64, len(p.filteredBy))
	for k, v := range p.filteredBy {
		filteredBy[k] = v
	}
	p.rejMu.Unlock()

	return Stats{
		RawBatches:       p.rawBatches.Load(),
		RecordsProcessed: p.recordsProcessed.Load(),
		RecordsRejected:  p.recordsRejected.Load(),
		Warnings:         p.warnings.Load(),
		RecordsFiltered:  p.recordsFiltered.Load(),
		FilteredBy:       filteredBy,
		BatchesEmitted:   p.batchesEmitted.Load(),
		RecordsEmitted:   p.recordsEmitted.Load(),
		BatchesDropped:   p.batchesDropped.Load(),
	}
}

func (p *TripProcessor) statsFields() map[string]interface{} {
	s := p.Stats()
	return map[string]interface{}{
		"raw_batches":       s.RawBatches,
		"records_processed": s.RecordsProcessed,
		"records_rejected":  s.RecordsRejected,
		"warnings":          s.Warnings,
		"records_filtered":  s.RecordsFiltered,
		"filtered_by":       s.FilteredBy,
		"batches_emitted":   s.BatchesEmitted,
		"records_emitted":   s.RecordsEmitted,
		"batches_dropped":   s.BatchesDropped,
	}
}

func (p *TripProcessor) metricsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-ticker.C:
			p.reportMetrics()
		}
	}
}

func (p *TripProcessor) reportMetrics() {
	s := p.Stats()
	p.mu.RLock()
	activeBatches := len(p.batches)
	p.mu.RUnlock()

	rejectRate := float64(0)
	if s.RecordsProcessed > 0 {
		rejectRate = float64(s.RecordsRejected) / float64(s.RecordsProcessed)
	}

	p.log.LogMetric("trip_processor", "records_processed", s.RecordsProcessed, "counter", logger.Fields{})
	p.log.LogMetric("trip_processor", "records_rejected", s.RecordsRejected, "counter", logger.Fields{})
	p.log.LogMetric("trip_processor", "records_filtered", s.RecordsFiltered, "counter", logger.Fields{})
	p.log.LogMetric("trip_processor", "batches_emitted", s.BatchesEmitted, "counter", logger.Fields{})
	p.log.LogMetric("trip_processor", "reject_rate", rejectRate, "gauge", logger.Fields{})
	p.log.LogMetric("trip_processor", "active_batches", activeBatches, "gauge", logger.Fields{})

	fields := logger.Fields(p.statsFields())
	fields["reject_rate"] = rejectRate
	fields["active_batches"] = activeBatches
	fields["raw_channel_len"] = len(p.channels.Raw)
	fields["canonical_channel_len"] = len(p.channels.Canonical)
	p.log.WithComponent("trip_processor").WithFields(fields).Info("trip processor metrics")
}
