package quantmat

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    quantizeCounter prometheus.Counter
//	    saveHistogram   prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordQuantize(rows, cols int, duration time.Duration, err error) {
//	    p.quantizeCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordQuantize is called after each quantization run.
	// rows and cols describe the input matrix, duration is the total time
	// taken, err is nil if successful.
	RecordQuantize(rows, cols int, duration time.Duration, err error)

	// RecordSnapshotSave is called after each snapshot save.
	// bytes is the framed snapshot size as written.
	RecordSnapshotSave(bytes int64, duration time.Duration, err error)

	// RecordSnapshotLoad is called after each snapshot load.
	// bytes is the stored snapshot size as read.
	RecordSnapshotLoad(bytes int64, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordQuantize(int, int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordSnapshotSave(int64, time.Duration, error) {}
func (NoopMetricsCollector) RecordSnapshotLoad(int64, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	QuantizeCount      atomic.Int64
	QuantizeErrors     atomic.Int64
	QuantizeTotalNanos atomic.Int64
	QuantizedRows      atomic.Int64
	SaveCount          atomic.Int64
	SaveErrors         atomic.Int64
	SaveBytes          atomic.Int64
	LoadCount          atomic.Int64
	LoadErrors         atomic.Int64
	LoadBytes          atomic.Int64
}

// RecordQuantize implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuantize(rows, cols int, duration time.Duration, err error) {
	b.QuantizeCount.Add(1)
	b.QuantizeTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.QuantizeErrors.Add(1)
	} else {
		b.QuantizedRows.Add(int64(rows))
	}
}

// RecordSnapshotSave implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshotSave(bytes int64, duration time.Duration, err error) {
	b.SaveCount.Add(1)
	b.SaveBytes.Add(bytes)
	if err != nil {
		b.SaveErrors.Add(1)
	}
}

// RecordSnapshotLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshotLoad(bytes int64, duration time.Duration, err error) {
	b.LoadCount.Add(1)
	b.LoadBytes.Add(bytes)
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		QuantizeCount:    b.QuantizeCount.Load(),
		QuantizeErrors:   b.QuantizeErrors.Load(),
		QuantizeAvgNanos: b.getAvgQuantizeNanos(),
		QuantizedRows:    b.QuantizedRows.Load(),
		SaveCount:        b.SaveCount.Load(),
		SaveErrors:       b.SaveErrors.Load(),
		SaveBytes:        b.SaveBytes.Load(),
		LoadCount:        b.LoadCount.Load(),
		LoadErrors:       b.LoadErrors.Load(),
		LoadBytes:        b.LoadBytes.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgQuantizeNanos() int64 {
	count := b.QuantizeCount.Load()
	if count == 0 {
		return 0
	}
	return b.QuantizeTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	QuantizeCount    int64
	QuantizeErrors   int64
	QuantizeAvgNanos int64
	QuantizedRows    int64
	SaveCount        int64
	SaveErrors       int64
	SaveBytes        int64
	LoadCount        int64
	LoadErrors       int64
	LoadBytes        int64
}
