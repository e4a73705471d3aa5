// Package mat provides the dense row-major float32 matrix that quantized
// matrices are trained from, together with the row-wise helpers the
// quantization pipeline needs (per-row L2 norms, in-place row division).
package mat

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/hupe1980/quantmat/internal/f32"
)

// Dense is a row-major float32 matrix. The zero value is not usable;
// construct instances with NewDense, NewDenseFromData or FromRows.
type Dense struct {
	rows int
	cols int
	data []float32
}

// NewDense creates a zero-filled rows x cols matrix.
func NewDense(rows, cols int) *Dense {
	if rows < 0 || cols < 0 {
		panic("mat: negative dimension")
	}

	return &Dense{
		rows: rows,
		cols: cols,
		data: make([]float32, rows*cols),
	}
}

// NewDenseFromData wraps an existing row-major backing slice without
// copying. The matrix takes ownership of data; len(data) must equal
// rows*cols.
func NewDenseFromData(rows, cols int, data []float32) *Dense {
	if rows < 0 || cols < 0 {
		panic("mat: negative dimension")
	}
	if len(data) != rows*cols {
		panic(fmt.Sprintf("mat: data length %d does not match %dx%d", len(data), rows, cols))
	}

	return &Dense{
		rows: rows,
		cols: cols,
		data: data,
	}
}

// FromRows copies the given rows into a new matrix. All rows must have the
// same length.
func FromRows(rows [][]float32) *Dense {
	if len(rows) == 0 {
		return &Dense{}
	}

	cols := len(rows[0])
	d := NewDense(len(rows), cols)

	for i, row := range rows {
		if len(row) != cols {
			panic(fmt.Sprintf("mat: row %d has length %d, want %d", i, len(row), cols))
		}
		copy(d.Row(i), row)
	}

	return d
}

// Rows returns the number of rows.
func (d *Dense) Rows() int { return d.rows }

// Cols returns the number of columns.
func (d *Dense) Cols() int { return d.cols }

// Data returns the row-major backing slice. Mutating it mutates the matrix.
func (d *Dense) Data() []float32 { return d.data }

// Row returns row i as a view into the backing slice.
func (d *Dense) Row(i int) []float32 {
	d.checkRow(i)
	return d.data[i*d.cols : (i+1)*d.cols]
}

// At returns the element at row i, column j.
func (d *Dense) At(i, j int) float32 {
	d.checkRow(i)
	d.checkCol(j)
	return d.data[i*d.cols+j]
}

// Set stores v at row i, column j.
func (d *Dense) Set(i, j int, v float32) {
	d.checkRow(i)
	d.checkCol(j)
	d.data[i*d.cols+j] = v
}

// DotRow returns the dot product between vec and row i.
func (d *Dense) DotRow(vec []float32, i int) float32 {
	d.checkRow(i)
	d.checkVec(vec)
	return f32.Dot(vec, d.Row(i))
}

// AddRowTo adds row i to dst in place.
func (d *Dense) AddRowTo(dst []float32, i int) {
	d.AddScaledRowTo(dst, i, 1)
}

// AddScaledRowTo adds alpha * row i to dst in place.
func (d *Dense) AddScaledRowTo(dst []float32, i int, alpha float32) {
	d.checkRow(i)
	d.checkVec(dst)
	f32.Axpy(alpha, d.Row(i), dst)
}

// AddVectorToRow adds alpha * vec to row i in place. This is the mutable
// write path that the quantized representation refuses.
func (d *Dense) AddVectorToRow(vec []float32, i int, alpha float32) {
	d.checkRow(i)
	d.checkVec(vec)
	f32.Axpy(alpha, vec, d.Row(i))
}

// L2NormRow computes the Euclidean norm of every row into out, which must
// have length Rows().
func (d *Dense) L2NormRow(out []float32) {
	if len(out) != d.rows {
		panic(fmt.Sprintf("mat: norm buffer length %d, want %d", len(out), d.rows))
	}

	for i := 0; i < d.rows; i++ {
		out[i] = f32.L2Norm(d.Row(i))
	}
}

// DivideRows divides each row in place by the matching denominator. Rows
// whose denominator is zero are left unchanged (a zero L2 norm implies an
// all-zero row).
func (d *Dense) DivideRows(denoms []float32) {
	if len(denoms) != d.rows {
		panic(fmt.Sprintf("mat: denominator length %d, want %d", len(denoms), d.rows))
	}

	for i, n := range denoms {
		if n == 0 {
			continue
		}
		f32.ScaleInPlace(d.Row(i), 1/n)
	}
}

// Dump writes a whitespace-separated text rendering of the matrix: a
// "rows cols" header line followed by one line per row.
func (d *Dense) Dump(w io.Writer) error {
	bw := bufio.NewWriter(w)

	if _, err := fmt.Fprintf(bw, "%d %d\n", d.rows, d.cols); err != nil {
		return err
	}

	for i := 0; i < d.rows; i++ {
		row := d.Row(i)
		for j, v := range row {
			if j > 0 {
				if err := bw.WriteByte(' '); err != nil {
					return err
				}
			}
			if _, err := bw.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32)); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}

	return bw.Flush()
}

func (d *Dense) checkRow(i int) {
	if i < 0 || i >= d.rows {
		panic(fmt.Sprintf("mat: row index %d out of range [0,%d)", i, d.rows))
	}
}

func (d *Dense) checkCol(j int) {
	if j < 0 || j >= d.cols {
		panic(fmt.Sprintf("mat: column index %d out of range [0,%d)", j, d.cols))
	}
}

func (d *Dense) checkVec(v []float32) {
	if len(v) != d.cols {
		panic(fmt.Sprintf("mat: vector length %d, want %d", len(v), d.cols))
	}
}
