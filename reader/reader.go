package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"taxiflow/config"
	"taxiflow/internal/channel"
	"taxiflow/logger"
	"taxiflow/models"
)

// FileStats summarizes one decoded file.
type FileStats struct {
	Path           string
	Kind           models.TaxiKind
	Rows           int64
	Bytes          int64
	Batches        int
	MissingColumns []string
	Duration       time.Duration
}

// Reader discovers trip files for the configured kinds and streams their
// rows onto the raw channel. The raw channel is closed once every file was
// read, which lets the processor drain and flush.
type Reader struct {
	config   *config.Config
	source   Source
	kinds    []models.TaxiKind
	channels *channel.Channels
	log      *logger.Log

	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	err     error
	stats   []FileStats
}

func NewReader(cfg *config.Config, src Source, kinds []models.TaxiKind, ch *channel.Channels) *Reader {
	log := logger.GetLogger()
	if len(kinds) == 0 {
		kinds = models.Kinds
	}

	r := &Reader{
		config:   cfg,
		source:   src,
		kinds:    kinds,
		channels: ch,
		log:      log,
	}

	log.WithComponent("reader").WithFields(logger.Fields{
		"source":      src.Name(),
		"kinds":       kinds,
		"max_workers": cfg.Reader.MaxWorkers,
		"batch_size":  cfg.Reader.BatchSize,
	}).Info("trip reader initialized")

	return r
}

// Start reads all files in the background. Use Wait for the outcome.
func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reader already running")
	}
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := r.Run(ctx)
		r.mu.Lock()
		r.err = err
		r.running = false
		r.mu.Unlock()
	}()
	return nil
}

// Wait blocks until a started reader finished and returns its error.
func (r *Reader) Wait() error {
	r.wg.Wait()
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Stats returns per-file statistics of the files read so far.
func (r *Reader) Stats() []FileStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]FileStats, len(r.stats))
	copy(out, r.stats)
	return out
}

// Run lists and reads every file, then closes the raw channel. A file that
// fails to decode is logged and skipped; listing errors and cancellation
// abort the run.
func (r *Reader) Run(ctx context.Context) error {
	defer r.channels.CloseRaw()

	log := r.log.WithComponent("reader").WithFields(logger.Fields{"operation": "run"})

	var refs []FileRef
	for _, kind := range r.kinds {
		found, err := r.source.List(ctx, kind)
		if err != nil {
			return fmt.Errorf("list %s files: %w", kind, err)
		}
		if len(found) == 0 {
			log.WithFields(logger.Fields{"kind": kind}).Warn("no files found")
		}
		refs = append(refs, found...)
	}

	log.WithFields(logger.Fields{"files": len(refs)}).Info("starting file reads")

	workers := r.config.Reader.MaxWorkers
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	var failed int
	var failMu sync.Mutex
	for _, ref := range refs {
		g.Go(func() error {
			err := r.readFile(gctx, ref)
			switch {
			case err == nil:
				return nil
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				r.log.WithComponent("reader").WithError(err).WithFields(logger.Fields{
					"file": ref.Path,
					"kind": ref.Kind,
				}).Error("failed to read file")
				failMu.Lock()
				failed++
				failMu.Unlock()
				return nil
			}
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.WithFields(logger.Fields{
		"files":  len(refs),
		"failed": failed,
	}).Info("file reads completed")
	return nil
}

func (r *Reader) readFile(ctx context.Context, ref FileRef) error {
	start := time.Now()
	log := r.log.WithComponent("reader").WithFields(logger.Fields{
		"file": ref.Path,
		"kind": ref.Kind,
	})

	file, err := r.source.Open(ctx, ref)
	if err != nil {
		return err
	}
	dec, err := NewFileDecoder(file, ref.Kind, 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("decode %s: %w", ref.Path, err)
	}
	defer dec.Close()

	if missing := dec.MissingColumns(); len(missing) > 0 {
		log.WithFields(logger.Fields{"missing_columns": missing}).Warn("file lacks mandatory columns")
	}
	if ignored := dec.IgnoredColumns(); len(ignored) > 0 {
		log.WithFields(logger.Fields{"ignored_columns": ignored}).Debug("ignoring unknown columns")
	}

	batchSize := r.config.Reader.BatchSize
	if batchSize < 1 {
		batchSize = 10000
	}

	stats := FileStats{
		Path:           ref.Path,
		Kind:           ref.Kind,
		Bytes:          ref.Size,
		MissingColumns: dec.MissingColumns(),
	}
	offset := 0
	for {
		records, err := dec.Next(batchSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("decode %s at row %d: %w", ref.Path, offset, err)
		}

		batch := models.RawBatch{
			BatchID:    uuid.New().String(),
			Kind:       ref.Kind,
			SourceFile: ref.Path,
			Offset:     offset,
			Records:    records,
			ReadAt:     time.Now(),
		}
		if !r.channels.SendRaw(ctx, batch) {
			return ctx.Err()
		}
		offset += len(records)
		stats.Batches++
	}
	stats.Rows = int64(offset)
	stats.Duration = time.Since(start)

	r.mu.Lock()
	r.stats = append(r.stats, stats)
	r.mu.Unlock()

	logger.IncrementFileRead(string(ref.Kind), offset)
	logger.LogPerformanceEntry(log, "reader", "read_file", stats.Duration, logger.Fields{
		"rows":    stats.Rows,
		"bytes":   stats.Bytes,
		"batches": stats.Batches,
	})
	logger.LogDataFlowEntry(log, ref.Path, "raw_channel", offset, string(ref.Kind))
	return nil
}
