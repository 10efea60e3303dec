package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"
)

type counter struct {
	events int64
	units  int64
}

var (
	warnCount  int64
	errorCount int64
	reads      sync.Map // taxi kind -> *counter (files, rows)
	rejects    sync.Map // taxi kind -> *counter (rejections, warnings)
	writes     sync.Map // sink name -> *counter (batches, rows)
	channels   sync.Map // channel name -> *counter (messages, bytes)
)

func recordWarn(string)  { atomic.AddInt64(&warnCount, 1) }
func recordError(string) { atomic.AddInt64(&errorCount, 1) }

func add(m *sync.Map, key string, events, units int64) {
	v, _ := m.LoadOrStore(key, &counter{})
	c := v.(*counter)
	atomic.AddInt64(&c.events, events)
	atomic.AddInt64(&c.units, units)
}

func snapshot(m *sync.Map, eventsKey, unitsKey string) map[string]map[string]int64 {
	out := map[string]map[string]int64{}
	m.Range(func(k, v any) bool {
		c := v.(*counter)
		out[k.(string)] = map[string]int64{
			eventsKey: atomic.LoadInt64(&c.events),
			unitsKey:  atomic.LoadInt64(&c.units),
		}
		return true
	})
	return out
}

// IncrementFileRead counts one source file and its row count for a taxi kind.
func IncrementFileRead(kind string, rows int) {
	add(&reads, kind, 1, int64(rows))
}

// IncrementRejected counts normalizer rejections and timestamp warnings.
func IncrementRejected(kind string, rejected, warnings int) {
	add(&rejects, kind, int64(rejected), int64(warnings))
}

// IncrementSinkWrite counts one appended batch of rows for a sink.
func IncrementSinkWrite(sink string, rows int) {
	add(&writes, sink, 1, int64(rows))
}

func RecordChannelMessage(name string, size int) {
	add(&channels, name, 1, int64(size))
}

// StartReport logs system and pipeline counters every interval until ctx ends.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	cpuPct := 0.0
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		cpuPct = pct[0]
	}
	var memUsed, diskUsed, bytesSent, bytesRecv uint64
	if m, err := mem.VirtualMemory(); err == nil {
		memUsed = m.Used
	}
	if d, err := disk.Usage("/"); err == nil {
		diskUsed = d.Used
	}
	if n, err := gnet.IOCounters(false); err == nil && len(n) > 0 {
		bytesSent, bytesRecv = n[0].BytesSent, n[0].BytesRecv
	}

	readData := snapshot(&reads, "files", "rows")
	rejectData := snapshot(&rejects, "rejected", "warnings")
	writeData := snapshot(&writes, "batches", "rows")

	log.WithComponent("report").WithFields(Fields{
		"warns":          atomic.LoadInt64(&warnCount),
		"errors":         atomic.LoadInt64(&errorCount),
		"reads":          readData,
		"rejections":     rejectData,
		"writes":         writeData,
		"channels":       snapshot(&channels, "messages", "bytes"),
		"goroutines":     runtime.NumGoroutine(),
		"cpu_percent":    cpuPct,
		"memory_mb":      int64(memUsed) / 1024 / 1024,
		"disk_mb":        int64(diskUsed) / 1024 / 1024,
		"net_bytes_sent": int64(bytesSent),
		"net_bytes_recv": int64(bytesRecv),
	}).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memUsed) / 1024 / 1024)},
		{MetricName: aws.String("DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskUsed) / 1024 / 1024)},
		{MetricName: aws.String("Warnings"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&warnCount)))},
		{MetricName: aws.String("Errors"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorCount)))},
	}
	data = append(data, dimensioned("RawRecordsRead", "TaxiKind", readData, "rows")...)
	data = append(data, dimensioned("RecordsRejected", "TaxiKind", rejectData, "rejected")...)
	data = append(data, dimensioned("RecordsWritten", "Sink", writeData, "rows")...)

	publishMetrics(ctx, data)
}

func dimensioned(metric, dim string, values map[string]map[string]int64, field string) []cwtypes.MetricDatum {
	out := make([]cwtypes.MetricDatum, 0, len(values))
	for name, v := range values {
		out = append(out, cwtypes.MetricDatum{
			MetricName: aws.String(metric),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{{Name: aws.String(dim), Value: aws.String(name)}},
			Value:      aws.Float64(float64(v[field])),
		})
	}
	return out
}
