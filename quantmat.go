package quantmat

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hupe1980/quantmat/mat"
	"github.com/hupe1980/quantmat/persistence"
	"github.com/hupe1980/quantmat/pq"
)

// QuantizedMatrix is a compressed, read-only embedding matrix. Rows are
// stored as product-quantizer codes, one byte per sub-vector segment, plus
// optionally one byte per row for a separately quantized L2 norm. Scoring
// operations reconstruct scalar results directly from the codes; the dense
// matrix is never materialized again.
//
// A trained or loaded QuantizedMatrix is immutable and safe for concurrent
// reads, provided each caller supplies its own query and accumulator
// vectors.
type QuantizedMatrix struct {
	rows  int
	cols  int
	qnorm bool

	codes     []byte
	normCodes []byte

	pq  *pq.ProductQuantizer
	npq *pq.ProductQuantizer
}

// Quantize compresses d into a QuantizedMatrix.
//
// Quantize consumes d: with norm quantization enabled its rows are
// normalized in place during training, so the matrix must not be reused by
// the caller afterward. Training runs once; the result is immutable.
func Quantize(d *mat.Dense, optFns ...Option) (*QuantizedMatrix, error) {
	opts := applyOptions(optFns)

	start := time.Now()
	q, err := quantize(d, opts)
	elapsed := time.Since(start)

	opts.metricsCollector.RecordQuantize(d.Rows(), d.Cols(), elapsed, err)
	opts.logger.LogQuantize(d.Rows(), d.Cols(), elapsed, err)

	return q, err
}

func quantize(d *mat.Dense, opts options) (*QuantizedMatrix, error) {
	rows, cols := d.Rows(), d.Cols()
	if rows < 1 || cols < 1 {
		return nil, ErrEmptyMatrix
	}

	// One training slot per matrix: concurrent Quantize calls sharing a
	// controller queue here instead of oversubscribing the CPU.
	if err := opts.controller.AcquireTraining(context.Background()); err != nil {
		return nil, err
	}
	defer opts.controller.ReleaseTraining()

	trainOpts := func(o *pq.Options) {
		o.Iterations = opts.iterations
		o.SampleCap = opts.sampleCap
		o.Seed = opts.seed
		o.Workers = opts.controller.TrainingWorkers()
	}

	dq, err := pq.NewProductQuantizer(cols, opts.subvectorWidth, trainOpts)
	if err != nil {
		return nil, err
	}

	q := &QuantizedMatrix{
		rows:  rows,
		cols:  cols,
		qnorm: opts.normQuantization,
		pq:    dq,
	}

	if q.qnorm {
		// Split magnitude from direction: quantize the norms through a
		// degenerate one-dimensional codebook, then train the direction
		// quantizer on unit rows.
		norms := make([]float32, rows)
		d.L2NormRow(norms)
		d.DivideRows(norms)

		npq, err := pq.NewProductQuantizer(1, 1, trainOpts)
		if err != nil {
			return nil, err
		}
		if err := npq.Train(rows, norms); err != nil {
			return nil, err
		}

		q.normCodes = make([]byte, rows)
		npq.ComputeCodes(norms, q.normCodes, rows)
		q.npq = npq
	}

	if err := dq.Train(rows, d.Data()); err != nil {
		return nil, err
	}

	q.codes = make([]byte, rows*dq.CodeLength())
	dq.ComputeCodes(d.Data(), q.codes, rows)

	return q, nil
}

// Rows returns the number of rows.
func (q *QuantizedMatrix) Rows() int { return q.rows }

// Cols returns the number of columns.
func (q *QuantizedMatrix) Cols() int { return q.cols }

// NormQuantization returns whether row norms are quantized separately.
func (q *QuantizedMatrix) NormQuantization() bool { return q.qnorm }

// CodeSize returns the total number of direction code bytes.
func (q *QuantizedMatrix) CodeSize() int { return len(q.codes) }

// rowNorm returns the reconstructed magnitude of row i, or 1 when norm
// quantization is disabled.
func (q *QuantizedMatrix) rowNorm(i int) float32 {
	if !q.qnorm {
		return 1
	}
	return q.npq.Centroid(0, q.normCodes[i])[0]
}

// DotRow returns the approximate dot product between vec and row i,
// evaluated segment by segment against the row's selected centroids and
// scaled by the row's reconstructed norm. vec must have Cols() elements.
func (q *QuantizedMatrix) DotRow(vec []float32, i int) float32 {
	q.checkRow(i)
	q.checkVec(vec)

	return q.pq.PartialDot(vec, q.codes, i, q.rowNorm(i))
}

// AddRowTo adds the reconstructed row i to dst in place.
func (q *QuantizedMatrix) AddRowTo(dst []float32, i int) {
	q.AddScaledRowTo(dst, i, 1)
}

// AddScaledRowTo adds alpha times the reconstructed row i to dst in place.
// dst must have Cols() elements.
func (q *QuantizedMatrix) AddScaledRowTo(dst []float32, i int, alpha float32) {
	q.checkRow(i)
	q.checkVec(dst)

	q.pq.Accumulate(dst, q.codes, i, alpha*q.rowNorm(i))
}

// AddVectorToRow always fails: a compressed row cannot take an additive
// update without re-quantizing.
func (q *QuantizedMatrix) AddVectorToRow([]float32, int, float32) error {
	return ErrUnsupportedOperation
}

// Dump always fails: generic dense-export paths must not treat the
// compressed representation as a full matrix. Callers that need dense
// values reconstruct rows explicitly through AddRowTo.
func (q *QuantizedMatrix) Dump(io.Writer) error {
	return ErrUnsupportedOperation
}

// Save writes the matrix in its fixed binary layout: the norm flag, the
// row and column counts, the code-buffer length, the raw direction codes
// and the direction quantizer, then (with norm quantization) the raw norm
// codes and the norm quantizer.
func (q *QuantizedMatrix) Save(w io.Writer) error {
	bw := persistence.NewWriter(w)

	if err := bw.WriteBool(q.qnorm); err != nil {
		return err
	}
	if err := bw.WriteInt64(int64(q.rows)); err != nil {
		return err
	}
	if err := bw.WriteInt64(int64(q.cols)); err != nil {
		return err
	}
	if err := bw.WriteInt64(int64(len(q.codes))); err != nil {
		return err
	}
	if err := bw.WriteBytes(q.codes); err != nil {
		return err
	}
	if err := q.pq.Save(w); err != nil {
		return err
	}

	if q.qnorm {
		if err := bw.WriteBytes(q.normCodes); err != nil {
			return err
		}
		if err := q.npq.Save(w); err != nil {
			return err
		}
	}

	return nil
}

// Load reads a matrix previously written by Save. Header fields size the
// buffers below, so they are cross-checked against each other and against
// the quantizer geometry before being trusted; a truncated stream or a
// contradictory header is a hard error and the partial result is discarded.
func Load(r io.Reader) (*QuantizedMatrix, error) {
	br := persistence.NewReader(r)

	qnorm, err := br.ReadBool()
	if err != nil {
		return nil, err
	}
	rows, err := br.ReadInt64()
	if err != nil {
		return nil, err
	}
	cols, err := br.ReadInt64()
	if err != nil {
		return nil, err
	}
	codeSize, err := br.ReadInt64()
	if err != nil {
		return nil, err
	}

	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("%w: %dx%d", ErrCorruptMatrix, rows, cols)
	}
	if codeSize < rows || codeSize > persistence.MaxPayloadSize {
		return nil, fmt.Errorf("%w: code size %d for %d rows", ErrCorruptMatrix, codeSize, rows)
	}
	if codeSize%rows != 0 {
		return nil, fmt.Errorf("%w: code size %d does not divide into %d rows", ErrCorruptMatrix, codeSize, rows)
	}

	q := &QuantizedMatrix{
		rows:  int(rows),
		cols:  int(cols),
		qnorm: qnorm,
		codes: make([]byte, codeSize),
	}

	if err := br.ReadBytes(q.codes); err != nil {
		return nil, err
	}

	q.pq, err = pq.Load(r)
	if err != nil {
		return nil, err
	}

	if q.pq.Dim() != q.cols {
		return nil, fmt.Errorf("%w: quantizer dimension %d, matrix has %d columns", ErrCorruptMatrix, q.pq.Dim(), q.cols)
	}
	if int(codeSize) != q.rows*q.pq.CodeLength() {
		return nil, fmt.Errorf("%w: code size %d, want %d", ErrCorruptMatrix, codeSize, q.rows*q.pq.CodeLength())
	}

	if qnorm {
		q.normCodes = make([]byte, q.rows)
		if err := br.ReadBytes(q.normCodes); err != nil {
			return nil, err
		}

		q.npq, err = pq.Load(r)
		if err != nil {
			return nil, err
		}
		if q.npq.Dim() != 1 {
			return nil, fmt.Errorf("%w: norm quantizer dimension %d, want 1", ErrCorruptMatrix, q.npq.Dim())
		}
	}

	return q, nil
}

func (q *QuantizedMatrix) checkRow(i int) {
	if i < 0 || i >= q.rows {
		panic(fmt.Sprintf("quantmat: row index %d out of range [0,%d)", i, q.rows))
	}
}

func (q *QuantizedMatrix) checkVec(v []float32) {
	if len(v) != q.cols {
		panic(fmt.Sprintf("quantmat: vector length %d, want %d", len(v), q.cols))
	}
}
