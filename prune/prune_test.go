package prune

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/quantmat/mat"
)

func TestTopNorms(t *testing.T) {
	d := mat.FromRows([][]float32{
		{0, 0, 1},  // norm 1
		{3, 4, 0},  // norm 5
		{0, 0, 0},  // norm 0
		{0, 2, 0},  // norm 2
		{-6, 0, 8}, // norm 10
	})

	s := TopNorms(d, 2)

	assert.Equal(t, 2, s.Cardinality())
	assert.True(t, s.Contains(1))
	assert.True(t, s.Contains(4))
	assert.False(t, s.Contains(0))
	assert.False(t, s.Contains(2))
}

func TestTopNorms_Ties(t *testing.T) {
	d := mat.FromRows([][]float32{
		{1, 0},
		{0, 1},
		{1, 0},
	})

	// All norms equal: the lower row ids win.
	s := TopNorms(d, 2)

	assert.True(t, s.Contains(0))
	assert.True(t, s.Contains(1))
	assert.False(t, s.Contains(2))
}

func TestTopNorms_CutoffCoversAllRows(t *testing.T) {
	d := mat.FromRows([][]float32{{1, 2}, {3, 4}})

	assert.Equal(t, 2, TopNorms(d, 2).Cardinality())
	assert.Equal(t, 2, TopNorms(d, 100).Cardinality())
	assert.Equal(t, 0, TopNorms(d, 0).Cardinality())
}

func TestGather(t *testing.T) {
	d := mat.FromRows([][]float32{
		{1, 1},
		{9, 9},
		{2, 2},
		{8, 8},
	})

	s := TopNorms(d, 2)
	out := s.Gather(d)

	require.Equal(t, 2, out.Rows())
	require.Equal(t, 2, out.Cols())

	// Ascending row order: row 1 before row 3.
	assert.Equal(t, []float32{9, 9}, out.Row(0))
	assert.Equal(t, []float32{8, 8}, out.Row(1))
}

func TestSelectionRows(t *testing.T) {
	s := NewSelection()
	s.Add(7)
	s.Add(2)
	s.Add(40)

	var got []int
	for i := range s.Rows() {
		got = append(got, i)
	}

	assert.Equal(t, []int{2, 7, 40}, got)
}

func TestSelectionRoundTrip(t *testing.T) {
	d := mat.FromRows([][]float32{
		{5, 0}, {1, 0}, {4, 0}, {2, 0}, {3, 0},
	})
	s := TopNorms(d, 3)

	var buf bytes.Buffer
	_, err := s.WriteTo(&buf)
	require.NoError(t, err)

	got := NewSelection()
	_, err = got.ReadFrom(&buf)
	require.NoError(t, err)

	assert.Equal(t, s.Cardinality(), got.Cardinality())
	for i := range s.Rows() {
		assert.True(t, got.Contains(i))
	}
}

func TestSelectionReadFrom_Corrupt(t *testing.T) {
	s := NewSelection()

	_, err := s.ReadFrom(bytes.NewReader([]byte{0x01, 0x02, 0x03}))
	assert.Error(t, err)
}
