// Package pq implements the sub-vector (product) quantizer behind quantized
// matrices. Rows are split into fixed-width segments and each segment is
// represented by the index of its nearest trained centroid, so a row costs
// one byte per segment instead of four bytes per float.
package pq

import (
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/quantmat/internal/f32"
	"github.com/hupe1980/quantmat/persistence"
)

const (
	// KSub is the number of centroids per segment codebook. Segment codes
	// are single bytes, so this is fixed at 256.
	KSub = 256

	// DefaultIterations is the number of k-means passes per segment.
	DefaultIterations = 25

	// DefaultSampleCap bounds the rows the trainer looks at per segment
	// (256 points per centroid); larger matrices are subsampled.
	DefaultSampleCap = 256 * KSub

	// DefaultSeed keeps training deterministic unless overridden.
	DefaultSeed = 1234
)

var (
	// ErrNoTrainingData is returned by Train when no rows are supplied.
	ErrNoTrainingData = errors.New("no training data")
)

// Options represents the options for configuring training.
type Options struct {
	// Iterations is the number of k-means refinement passes per segment.
	Iterations int

	// SampleCap bounds the number of training points per segment; larger
	// inputs are subsampled.
	SampleCap int

	// Workers bounds how many segments train in parallel.
	// Zero means GOMAXPROCS.
	Workers int

	// Seed drives centroid initialization and subsampling.
	Seed int64
}

// DefaultOptions contains the default training configuration.
var DefaultOptions = Options{
	Iterations: DefaultIterations,
	SampleCap:  DefaultSampleCap,
	Workers:    0,
	Seed:       DefaultSeed,
}

// ProductQuantizer quantizes fixed-width sub-vector segments of rows against
// per-segment codebooks of KSub centroids. The last segment may be narrower
// when the dimension is not a multiple of the segment width.
//
// The centroid table is one flat slice: segment m's codebook starts at
// m*KSub*dsub, and within it centroid k starts at k*width(m). Keeping the
// layout flat makes serialization a single slab write.
type ProductQuantizer struct {
	dim       int       // input row width
	nsubq     int       // number of segments
	dsub      int       // segment width (except possibly the last)
	lastdsub  int       // width of the last segment
	centroids []float32 // flat per-segment codebooks, dim*KSub floats
	opts      Options
	trained   bool
}

// NewProductQuantizer creates a quantizer for rows of the given dimension,
// split into segments of width dsub. A width larger than the dimension
// collapses to a single narrow segment.
func NewProductQuantizer(dim, dsub int, optFns ...func(o *Options)) (*ProductQuantizer, error) {
	if dim < 1 {
		return nil, fmt.Errorf("invalid dimension %d", dim)
	}
	if dsub < 1 {
		return nil, fmt.Errorf("invalid subvector width %d", dsub)
	}

	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Iterations < 1 {
		opts.Iterations = DefaultIterations
	}
	if opts.SampleCap < 1 {
		opts.SampleCap = DefaultSampleCap
	}

	nsubq := dim / dsub
	lastdsub := dim % dsub
	if lastdsub == 0 {
		lastdsub = dsub
	} else {
		nsubq++
	}

	return &ProductQuantizer{
		dim:       dim,
		nsubq:     nsubq,
		dsub:      dsub,
		lastdsub:  lastdsub,
		centroids: make([]float32, dim*KSub),
		opts:      opts,
	}, nil
}

// Dim returns the input row width.
func (q *ProductQuantizer) Dim() int { return q.dim }

// Segments returns the number of sub-vector segments.
func (q *ProductQuantizer) Segments() int { return q.nsubq }

// SubvectorWidth returns the configured segment width.
func (q *ProductQuantizer) SubvectorWidth() int { return q.dsub }

// CodeLength returns the number of code bytes per row (one per segment).
func (q *ProductQuantizer) CodeLength() int { return q.nsubq }

// IsTrained returns whether the quantizer has been trained or loaded.
func (q *ProductQuantizer) IsTrained() bool { return q.trained }

// segmentWidth returns the float width of segment m.
func (q *ProductQuantizer) segmentWidth(m int) int {
	if m == q.nsubq-1 {
		return q.lastdsub
	}
	return q.dsub
}

// segmentCentroids returns segment m's full codebook (KSub * width floats).
func (q *ProductQuantizer) segmentCentroids(m int) []float32 {
	w := q.segmentWidth(m)
	base := m * KSub * q.dsub
	return q.centroids[base : base+KSub*w]
}

// Centroid returns the codebook entry selected by code in the given
// segment. The returned slice aliases internal storage; callers must not
// mutate it.
func (q *ProductQuantizer) Centroid(segment int, code uint8) []float32 {
	if segment < 0 || segment >= q.nsubq {
		panic(fmt.Sprintf("pq: segment %d out of range [0,%d)", segment, q.nsubq))
	}

	w := q.segmentWidth(segment)
	off := segment*KSub*q.dsub + int(code)*w
	return q.centroids[off : off+w]
}

// Train builds the per-segment codebooks from n rows of Dim() floats laid
// out contiguously in data. Inputs larger than the sample cap are
// subsampled per segment. Segments train independently and in parallel,
// bounded by Options.Workers.
func (q *ProductQuantizer) Train(n int, data []float32) error {
	if n < 1 {
		return ErrNoTrainingData
	}
	if len(data) < n*q.dim {
		return fmt.Errorf("training data has %d floats, want %d", len(data), n*q.dim)
	}

	np := min(n, q.opts.SampleCap)

	workers := q.opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var g errgroup.Group
	g.SetLimit(workers)

	for m := 0; m < q.nsubq; m++ {
		g.Go(func() error {
			q.trainSegment(m, n, np, data)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	q.trained = true

	return nil
}

// ComputeCodes encodes n rows of Dim() floats from data into codes, one
// CodeLength() byte group per row. The quantizer must be trained.
func (q *ProductQuantizer) ComputeCodes(data []float32, codes []byte, n int) {
	if !q.trained {
		panic("pq: product quantizer not trained")
	}
	if len(data) < n*q.dim {
		panic(fmt.Sprintf("pq: data has %d floats, want %d", len(data), n*q.dim))
	}
	if len(codes) < n*q.nsubq {
		panic(fmt.Sprintf("pq: code buffer has %d bytes, want %d", len(codes), n*q.nsubq))
	}

	for i := 0; i < n; i++ {
		q.computeCode(data[i*q.dim:(i+1)*q.dim], codes[i*q.nsubq:(i+1)*q.nsubq])
	}
}

func (q *ProductQuantizer) computeCode(x []float32, code []byte) {
	for m := 0; m < q.nsubq; m++ {
		d := q.segmentWidth(m)
		code[m] = assignCentroid(x[m*q.dsub:m*q.dsub+d], q.segmentCentroids(m), d)
	}
}

// PartialDot returns the asymmetric dot product between vec and the row-th
// code in codes: per segment, the dot of vec's slice with the selected
// centroid, summed across segments and scaled by alpha. vec must hold Dim()
// floats; this is a hot path and does not re-validate inputs.
func (q *ProductQuantizer) PartialDot(vec []float32, codes []byte, row int, alpha float32) float32 {
	code := codes[row*q.nsubq : (row+1)*q.nsubq]

	var res float32
	for m := 0; m < q.nsubq; m++ {
		d := q.segmentWidth(m)
		res += f32.Dot(vec[m*q.dsub:m*q.dsub+d], q.Centroid(m, code[m]))
	}

	return res * alpha
}

// Accumulate adds alpha times the decoded row-th code in codes into dst,
// segment by segment. dst must hold Dim() floats; like PartialDot this is a
// hot path and does not re-validate inputs.
func (q *ProductQuantizer) Accumulate(dst []float32, codes []byte, row int, alpha float32) {
	code := codes[row*q.nsubq : (row+1)*q.nsubq]

	for m := 0; m < q.nsubq; m++ {
		d := q.segmentWidth(m)
		f32.Axpy(alpha, q.Centroid(m, code[m]), dst[m*q.dsub:m*q.dsub+d])
	}
}

// Save writes the quantizer in its fixed binary layout: int32 dimension,
// segment count, segment width and last-segment width, then the raw
// centroid table (Dim()*KSub floats).
func (q *ProductQuantizer) Save(w io.Writer) error {
	bw := persistence.NewWriter(w)

	if err := bw.WriteInt32(int32(q.dim)); err != nil {
		return err
	}
	if err := bw.WriteInt32(int32(q.nsubq)); err != nil {
		return err
	}
	if err := bw.WriteInt32(int32(q.dsub)); err != nil {
		return err
	}
	if err := bw.WriteInt32(int32(q.lastdsub)); err != nil {
		return err
	}

	return bw.WriteFloat32Slice(q.centroids)
}

// Load reads a quantizer previously written by Save, validating the
// geometry fields against each other before trusting them to size the
// centroid table.
func Load(r io.Reader) (*ProductQuantizer, error) {
	br := persistence.NewReader(r)

	dim, err := br.ReadInt32()
	if err != nil {
		return nil, err
	}
	nsubq, err := br.ReadInt32()
	if err != nil {
		return nil, err
	}
	dsub, err := br.ReadInt32()
	if err != nil {
		return nil, err
	}
	lastdsub, err := br.ReadInt32()
	if err != nil {
		return nil, err
	}

	if dim < 1 || dsub < 1 {
		return nil, fmt.Errorf("corrupt quantizer geometry: dim=%d dsub=%d", dim, dsub)
	}

	q, err := NewProductQuantizer(int(dim), int(dsub))
	if err != nil {
		return nil, err
	}

	if int(nsubq) != q.nsubq || int(lastdsub) != q.lastdsub {
		return nil, fmt.Errorf("corrupt quantizer geometry: nsubq=%d lastdsub=%d, want %d/%d",
			nsubq, lastdsub, q.nsubq, q.lastdsub)
	}

	if err := br.ReadFloat32SliceInto(q.centroids); err != nil {
		return nil, err
	}

	q.trained = true

	return q, nil
}
