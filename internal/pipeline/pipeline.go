package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"taxiflow/config"
	"taxiflow/internal/channel"
	"taxiflow/logger"
	"taxiflow/models"
	"taxiflow/processor"
	"taxiflow/reader"
	"taxiflow/writer"
)

// Result summarizes one ingest run.
type Result struct {
	Files      []reader.FileStats
	Processor  processor.Stats
	Sinks      map[string]writer.SinkStats
	Channels   channel.ChannelStats
	Rejections []processor.RejectedRecord
	Duration   time.Duration
}

// RawRows is the number of rows read from every file.
func (r *Result) RawRows() int64 {
	var n int64
	for _, f := range r.Files {
		n += f.Rows
	}
	return n
}

// Pipeline wires reader, trip processor and writer through one set of
// channels. It runs once.
type Pipeline struct {
	channels  *channel.Channels
	reader    *reader.Reader
	processor *processor.TripProcessor
	writer    *writer.Writer
	log       *logger.Log
}

func New(cfg *config.Config, src reader.Source, kinds []models.TaxiKind, sinks ...writer.Sink) *Pipeline {
	ch := channel.NewChannels(cfg.Channels.RawBuffer, cfg.Channels.ProcessedBuffer)
	return &Pipeline{
		channels:  ch,
		reader:    reader.NewReader(cfg, src, kinds, ch),
		processor: processor.NewTripProcessor(cfg, ch),
		writer:    writer.NewWriter(cfg, ch, sinks...),
		log:       logger.GetLogger(),
	}
}

// Status is a point-in-time view of every stage, safe to call while Run
// is in progress.
func (p *Pipeline) Status() any {
	return map[string]any{
		"files":     p.reader.Stats(),
		"processor": p.processor.Stats(),
		"sinks":     p.writer.Stats(),
		"channels":  p.channels.GetStats(),
	}
}

// Run ingests every file of the source and closes the sinks. Files that
// fail to decode are skipped; the error reports cancellation, sink append
// and close failures and batches that never reached the writer.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	log := p.log.WithComponent("pipeline")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.channels.StartMetricsReporting(ctx)

	if err := p.writer.Start(ctx); err != nil {
		return nil, err
	}
	if err := p.processor.Start(ctx); err != nil {
		cancel()
		p.writer.Stop()
		return nil, err
	}
	if err := p.reader.Start(ctx); err != nil {
		cancel()
		p.processor.Stop()
		p.writer.Stop()
		return nil, err
	}
	log.Info("all components started successfully")

	// Drain in pipeline order: the reader closes the raw channel, the
	// processor flushes its pending batches, then the writer empties the
	// canonical channel.
	readErr := p.reader.Wait()
	<-p.processor.Done()
	p.channels.CloseCanonical()
	p.writer.Stop()
	closeErr := p.writer.Close()

	res := &Result{
		Files:      p.reader.Stats(),
		Processor:  p.processor.Stats(),
		Sinks:      p.writer.Stats(),
		Channels:   p.channels.GetStats(),
		Rejections: p.processor.Rejections(),
		Duration:   time.Since(start),
	}

	log.WithFields(logger.Fields{
		"files":            len(res.Files),
		"raw_rows":         res.RawRows(),
		"records_emitted":  res.Processor.RecordsEmitted,
		"records_rejected": res.Processor.RecordsRejected,
		"records_filtered": res.Processor.RecordsFiltered,
		"warnings":         res.Processor.Warnings,
		"batches_dropped":  res.Processor.BatchesDropped,
		"sinks":            res.Sinks,
		"duration":         res.Duration.String(),
	}).Info("ingest finished")

	errs := []error{readErr, closeErr}
	if res.Processor.BatchesDropped > 0 {
		errs = append(errs, fmt.Errorf("%d canonical batches were not delivered", res.Processor.BatchesDropped))
	}
	errs = append(errs, sinkErrors(res.Sinks)...)
	if err := errors.Join(errs...); err != nil {
		return res, err
	}
	return res, nil
}

// sinkErrors reports every sink that failed to append at least one batch,
// in sink name order.
func sinkErrors(sinks map[string]writer.SinkStats) []error {
	names := make([]string, 0, len(sinks))
	for name, st := range sinks {
		if st.Errors > 0 {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	errs := make([]error, 0, len(names))
	for _, name := range names {
		errs = append(errs, fmt.Errorf("sink %s: %d batches failed", name, sinks[name].Errors))
	}
	return errs
}
