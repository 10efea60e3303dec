package dashboard

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"taxiflow/logger"
)

// resourceSnapshot is one host sample. Disk usage is measured on the
// volume holding the trip data directory.
type resourceSnapshot struct {
	Timestamp   time.Time `json:"timestamp"`
	CPUPercent  float64   `json:"cpu_percent"`
	MemoryUsed  uint64    `json:"memory_used"`
	MemoryPct   float64   `json:"memory_percent"`
	DiskFree    uint64    `json:"disk_free"`
	DiskPct     float64   `json:"disk_percent"`
	Goroutines  int       `json:"goroutines"`
	HeapAllocMB float64   `json:"heap_alloc_mb"`
}

type resourceSampler struct {
	samples  *ring[resourceSnapshot]
	interval time.Duration
	diskPath string
	log      *logger.Log

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var (
	cpuPercentFn = func(ctx context.Context) ([]float64, error) {
		return cpu.PercentWithContext(ctx, 0, false)
	}
	memoryStatsFn = mem.VirtualMemoryWithContext
	diskUsageFn   = disk.UsageWithContext
)

func newResourceSampler(limit int, interval time.Duration, diskPath string, log *logger.Log) *resourceSampler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if diskPath == "" {
		diskPath = "."
	}
	return &resourceSampler{
		samples:  newRing[resourceSnapshot](limit),
		interval: interval,
		diskPath: diskPath,
		log:      log,
	}
}

func (s *resourceSampler) start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			s.samples.add(s.sample(ctx))
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (s *resourceSampler) stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// sample never fails; a collector error leaves its fields zero.
func (s *resourceSampler) sample(ctx context.Context) resourceSnapshot {
	log := s.log.WithComponent("resource_sampler")
	snap := resourceSnapshot{Timestamp: time.Now(), Goroutines: runtime.NumGoroutine()}

	if pct, err := cpuPercentFn(ctx); err != nil {
		log.WithError(err).Debug("failed to sample cpu usage")
	} else if len(pct) > 0 {
		snap.CPUPercent = pct[0]
	}
	if m, err := memoryStatsFn(ctx); err != nil {
		log.WithError(err).Debug("failed to sample memory usage")
	} else {
		snap.MemoryUsed, snap.MemoryPct = m.Used, m.UsedPercent
	}
	if d, err := diskUsageFn(ctx, s.diskPath); err != nil {
		log.WithError(err).Debug("failed to sample disk usage")
	} else {
		snap.DiskFree, snap.DiskPct = d.Free, d.UsedPercent
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	snap.HeapAllocMB = float64(ms.HeapAlloc) / 1024 / 1024
	return snap
}
