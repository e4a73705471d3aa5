package testutil

import (
	"math"
	"math/rand"
	"sync"

	"github.com/hupe1980/quantmat/internal/f32"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float32 returns, as a float32, a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// FillUniform fills dst with random values in range [0, 1).
// Locks only once per call (preferred over calling Float32 in a loop).
func (r *RNG) FillUniform(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float32()
	}
}

// FillUniformRange fills dst with random values in range [minVal, maxVal).
func (r *RNG) FillUniformRange(dst []float32, minVal, maxVal float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	span := maxVal - minVal
	for i := range dst {
		dst[i] = minVal + r.rand.Float32()*span
	}
}

// FillGaussian fills dst with values from a standard normal distribution.
func (r *RNG) FillGaussian(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = float32(r.rand.NormFloat64())
	}
}

// UniformRows generates random embedding rows with values in range [-1, 1).
// Uses a single backing array for efficiency.
func (r *RNG) UniformRows(num int, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	rows := make([][]float32, num)

	for i := range num {
		row := data[i*dimensions : (i+1)*dimensions]
		for j := range row {
			row[j] = r.rand.Float32()*2 - 1
		}
		rows[i] = row
	}

	return rows
}

// GaussianRows generates random embedding rows from a standard normal
// distribution.
func (r *RNG) GaussianRows(num int, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	rows := make([][]float32, num)

	for i := range num {
		row := data[i*dimensions : (i+1)*dimensions]
		for j := range row {
			row[j] = float32(r.rand.NormFloat64())
		}
		rows[i] = row
	}

	return rows
}

// UnitRows generates L2-normalized random rows (on the hypersphere).
// Uses a Gaussian draw for uniform direction coverage; mirrors what trained
// embedding tables look like after normalization.
func (r *RNG) UnitRows(num int, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	rows := make([][]float32, num)

	for i := range num {
		row := data[i*dimensions : (i+1)*dimensions]
		var norm float64
		for j := range row {
			v := r.rand.NormFloat64()
			row[j] = float32(v)
			norm += v * v
		}

		if norm == 0 {
			norm = 1
		}

		invNorm := float32(1.0 / math.Sqrt(norm))
		f32.ScaleInPlace(row, invNorm)
		rows[i] = row
	}

	return rows
}

// UnitVector generates a single L2-normalized random vector.
func (r *RNG) UnitVector(dimensions int) []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	vec := make([]float32, dimensions)
	var norm float64
	for j := range vec {
		v := r.rand.NormFloat64()
		vec[j] = float32(v)
		norm += v * v
	}

	if norm == 0 {
		norm = 1
	}

	invNorm := float32(1.0 / math.Sqrt(norm))
	f32.ScaleInPlace(vec, invNorm)
	return vec
}

// ClusteredRows generates rows clustered around random unit centroids.
// Useful for exercising codebook training on non-uniform data.
func (r *RNG) ClusteredRows(num, dim, clusters int, spread float32) [][]float32 {
	centroids := r.UnitRows(clusters, dim)

	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dim)
	rows := make([][]float32, num)

	for i := range num {
		centroid := centroids[i%clusters]
		row := data[i*dim : (i+1)*dim]

		for j := range dim {
			row[j] = centroid[j] + float32(r.rand.NormFloat64())*spread
		}
		rows[i] = row
	}

	return rows
}
