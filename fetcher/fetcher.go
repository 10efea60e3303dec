package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	appconfig "taxiflow/config"
	"taxiflow/logger"
	"taxiflow/models"
)

// Failure is one file that could not be downloaded.
type Failure struct {
	URL string
	Err error
}

// Result lists what a Fetch run did per destination path.
type Result struct {
	Downloaded []string
	Skipped    []string
	Failed     []Failure
	Bytes      int64
}

// Fetcher downloads monthly TLC trip files into a data directory.
// Each file gets a single attempt; failures are collected, not retried.
type Fetcher struct {
	baseURL string
	dataDir string
	client  *http.Client
	limiter *rate.Limiter
	workers int
	log     *logger.Log
}

func NewFetcher(cfg appconfig.FetcherConfig) *Fetcher {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Fetcher{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		dataDir: cfg.DataDir,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		workers: 2,
		log:     logger.GetLogger(),
	}
}

// URL is the publication URL of kind for month (YYYY-MM).
func (f *Fetcher) URL(kind models.TaxiKind, month string) string {
	return f.baseURL + "/" + kind.FileName(month)
}

// Fetch downloads every kind/month pair missing from the data directory.
// The error is non-nil only when the directory cannot be prepared or ctx
// ends; per-file failures are reported in Result.Failed.
func (f *Fetcher) Fetch(ctx context.Context, kinds []models.TaxiKind, months []string) (*Result, error) {
	if err := os.MkdirAll(f.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir %s: %w", f.dataDir, err)
	}
	log := f.log.WithComponent("fetcher")

	var mu sync.Mutex
	res := &Result{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)
	for _, kind := range kinds {
		for _, month := range months {
			url := f.URL(kind, month)
			dest := filepath.Join(f.dataDir, kind.FileName(month))

			if _, err := os.Stat(dest); err == nil {
				log.WithFields(logger.Fields{"path": dest}).Debug("file exists, skipping")
				res.Skipped = append(res.Skipped, dest)
				continue
			}

			g.Go(func() error {
				if err := f.limiter.Wait(gctx); err != nil {
					return err
				}
				start := time.Now()
				n, err := f.download(gctx, url, dest)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					log.WithError(err).WithFields(logger.Fields{"url": url}).Warn("download failed")
					res.Failed = append(res.Failed, Failure{URL: url, Err: err})
					return nil
				}
				res.Downloaded = append(res.Downloaded, dest)
				res.Bytes += n
				logger.LogPerformanceEntry(log, "fetcher", "download", time.Since(start), logger.Fields{
					"url":   url,
					"bytes": n,
				})
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	log.WithFields(logger.Fields{
		"downloaded": len(res.Downloaded),
		"skipped":    len(res.Skipped),
		"failed":     len(res.Failed),
		"bytes":      res.Bytes,
	}).Info("fetch completed")
	return res, nil
}

// download writes url to dest through a temporary file so a partial
// download never looks like a complete one.
func (f *Fetcher) download(ctx context.Context, url, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), dest)
	}
	if err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	return n, nil
}

// Err joins every failure of r, or returns nil.
func (r *Result) Err() error {
	errs := make([]error, 0, len(r.Failed))
	for _, fl := range r.Failed {
		errs = append(errs, fmt.Errorf("%s: %w", fl.URL, fl.Err))
	}
	return errors.Join(errs...)
}
