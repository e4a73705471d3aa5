// Package prune selects which embedding rows survive compression. Large
// tables are typically cut down to the rows with the largest L2 norms
// before quantization; the selection is kept as a roaring bitmap so it can
// be stored next to the snapshot and used to remap row ids at query time.
package prune

import (
	"fmt"
	"io"
	"iter"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/quantmat/mat"
)

// Selection is the set of row ids kept by a pruning pass.
type Selection struct {
	rb *roaring.Bitmap
}

// NewSelection creates an empty selection.
func NewSelection() *Selection {
	return &Selection{
		rb: roaring.New(),
	}
}

// TopNorms selects the cutoff rows of d with the largest L2 norms. Ties
// keep the lower row id. A cutoff at or above the row count selects every
// row.
func TopNorms(d *mat.Dense, cutoff int) *Selection {
	if cutoff < 0 {
		panic(fmt.Sprintf("prune: negative cutoff %d", cutoff))
	}

	s := NewSelection()

	rows := d.Rows()
	if cutoff >= rows {
		s.rb.AddRange(0, uint64(rows))
		return s
	}

	norms := make([]float32, rows)
	d.L2NormRow(norms)

	order := make([]int, rows)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return norms[order[i]] > norms[order[j]]
	})

	for _, i := range order[:cutoff] {
		s.rb.Add(uint32(i))
	}

	return s
}

// Add adds a row id to the selection.
func (s *Selection) Add(i int) {
	s.rb.Add(uint32(i))
}

// Contains checks if a row id is in the selection.
func (s *Selection) Contains(i int) bool {
	return i >= 0 && s.rb.Contains(uint32(i))
}

// Cardinality returns the number of selected rows.
func (s *Selection) Cardinality() int {
	return int(s.rb.GetCardinality())
}

// Rows returns the selected row ids in ascending order.
func (s *Selection) Rows() iter.Seq[int] {
	return func(yield func(int) bool) {
		it := s.rb.Iterator()
		for it.HasNext() {
			if !yield(int(it.Next())) {
				return
			}
		}
	}
}

// Gather copies the selected rows of d, in ascending row order, into a new
// smaller matrix ready for quantization. Row k of the result is the k-th
// selected row of d.
func (s *Selection) Gather(d *mat.Dense) *mat.Dense {
	out := mat.NewDense(s.Cardinality(), d.Cols())

	k := 0
	for i := range s.Rows() {
		copy(out.Row(k), d.Row(i))
		k++
	}

	return out
}

// WriteTo serializes the selection in the roaring portable format.
func (s *Selection) WriteTo(w io.Writer) (int64, error) {
	return s.rb.WriteTo(w)
}

// ReadFrom replaces the selection with one deserialized from r.
func (s *Selection) ReadFrom(r io.Reader) (int64, error) {
	rb := roaring.New()
	n, err := rb.ReadFrom(r)
	if err != nil {
		return n, err
	}

	s.rb = rb
	return n, nil
}
