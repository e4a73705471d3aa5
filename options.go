package quantmat

import (
	"log/slog"

	"github.com/hupe1980/quantmat/persistence"
	"github.com/hupe1980/quantmat/pq"
	"github.com/hupe1980/quantmat/resource"
)

// DefaultSubvectorWidth is the number of columns covered by one code byte.
// Width 2 compresses a float32 matrix roughly 8x while keeping dot-product
// error small enough for scoring.
const DefaultSubvectorWidth = 2

type options struct {
	subvectorWidth   int
	normQuantization bool
	iterations       int
	sampleCap        int
	seed             int64
	codec            persistence.Codec
	metricsCollector MetricsCollector
	logger           *Logger
	controller       *resource.Controller
}

// Option configures quantization and snapshot behavior.
//
// Today options primarily exist to avoid exploding the API surface
// (e.g. codec-specific function variants).
type Option func(*options)

// WithSubvectorWidth configures how many columns one code byte covers.
// Wider segments compress harder and reconstruct worse. The width may
// exceed the column count; it then collapses to a single segment.
func WithSubvectorWidth(width int) Option {
	return func(o *options) {
		o.subvectorWidth = width
	}
}

// WithNormQuantization separates each row into direction and magnitude and
// quantizes them independently. Costs one extra byte per row and removes
// the magnitude's contribution to reconstruction error, which matters for
// embedding tables with heavy-tailed norms.
func WithNormQuantization(enabled bool) Option {
	return func(o *options) {
		o.normQuantization = enabled
	}
}

// WithKMeansIterations configures the number of k-means refinement passes
// per codebook segment. More passes train slower and plateau quickly;
// the default matches the usual product-quantization setting.
func WithKMeansIterations(n int) Option {
	return func(o *options) {
		o.iterations = n
	}
}

// WithTrainingSampleCap bounds how many rows the trainer looks at per
// segment. Matrices above the cap are subsampled, trading training
// fidelity for speed on multi-million-row inputs.
func WithTrainingSampleCap(n int) Option {
	return func(o *options) {
		o.sampleCap = n
	}
}

// WithSeed fixes the training seed. Runs with the same seed, input and
// settings produce byte-identical codes.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithCodec configures the compression codec for snapshot payloads.
func WithCodec(c persistence.Codec) Option {
	return func(o *options) {
		o.codec = c
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations.
//
// Example with BasicMetricsCollector:
//
//	metrics := &quantmat.BasicMetricsCollector{}
//	qm, _ := quantmat.Quantize(d, quantmat.WithMetricsCollector(metrics))
//	// ... use qm ...
//	stats := metrics.GetStats()
//	fmt.Printf("Quantized %d rows in %dns\n", stats.QuantizedRows, stats.QuantizeAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
//
// Example with JSON logging:
//
//	logger := quantmat.NewJSONLogger(slog.LevelInfo)
//	qm, _ := quantmat.Quantize(d, quantmat.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithResourceController attaches shared limits: training worker slots,
// snapshot I/O throttling and memory accounting for loads.
func WithResourceController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		subvectorWidth:   DefaultSubvectorWidth,
		iterations:       pq.DefaultIterations,
		sampleCap:        pq.DefaultSampleCap,
		seed:             pq.DefaultSeed,
		codec:            persistence.CodecZSTD,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
