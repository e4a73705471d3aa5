package pq

import (
	"math/rand"

	"github.com/hupe1980/quantmat/internal/f32"
)

// eps is the perturbation applied when an empty cluster is split off a
// populated one.
const eps = 1e-7

// trainSegment gathers segment m's training slice (subsampled to np rows)
// and runs k-means over it, writing the segment's codebook in place.
// Segments touch disjoint centroid ranges, so they can train concurrently.
func (q *ProductQuantizer) trainSegment(m, n, np int, data []float32) {
	d := q.segmentWidth(m)
	rng := rand.New(rand.NewSource(q.opts.Seed + int64(m)))

	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	if np != n {
		rng.Shuffle(n, func(i, j int) {
			rows[i], rows[j] = rows[j], rows[i]
		})
	}

	slice := make([]float32, np*d)
	for j := 0; j < np; j++ {
		src := rows[j]*q.dim + m*q.dsub
		copy(slice[j*d:(j+1)*d], data[src:src+d])
	}

	kmeansTrain(slice, q.segmentCentroids(m), np, d, q.opts.Iterations, rng)
}

// kmeansTrain runs Lloyd's algorithm over n points of width d, writing KSub
// centroids into the flat centroids slice. With fewer points than centroids
// the points are cycled into the remaining slots, making every training
// point its own centroid.
func kmeansTrain(points, centroids []float32, n, d, iters int, rng *rand.Rand) {
	if n >= KSub {
		perm := rng.Perm(n)
		for i := 0; i < KSub; i++ {
			copy(centroids[i*d:(i+1)*d], points[perm[i]*d:(perm[i]+1)*d])
		}
	} else {
		for i := 0; i < KSub; i++ {
			src := i % n
			copy(centroids[i*d:(i+1)*d], points[src*d:(src+1)*d])
		}
	}

	codes := make([]uint8, n)
	for range iters {
		estep(points, centroids, codes, d, n)
		mstep(points, centroids, codes, d, n, rng)
	}
}

// estep assigns every point to its nearest centroid.
func estep(points, centroids []float32, codes []uint8, d, n int) {
	for i := 0; i < n; i++ {
		codes[i] = assignCentroid(points[i*d:(i+1)*d], centroids, d)
	}
}

// assignCentroid returns the index of the centroid nearest to x. Ties keep
// the lowest index.
func assignCentroid(x, centroids []float32, d int) uint8 {
	best := uint8(0)
	minDist := f32.SquaredL2(x, centroids[:d])

	for k := 1; k < KSub; k++ {
		dist := f32.SquaredL2(x, centroids[k*d:(k+1)*d])
		if dist < minDist {
			minDist = dist
			best = uint8(k)
		}
	}

	return best
}

// mstep recomputes each centroid as the mean of its assigned points, then
// splits populated clusters into empty ones.
func mstep(points, centroids []float32, codes []uint8, d, n int, rng *rand.Rand) {
	counts := make([]int, KSub)
	for i := range centroids {
		centroids[i] = 0
	}

	for i := 0; i < n; i++ {
		k := int(codes[i])
		c := centroids[k*d : (k+1)*d]
		p := points[i*d : (i+1)*d]
		for j := range c {
			c[j] += p[j]
		}
		counts[k]++
	}

	for k := 0; k < KSub; k++ {
		if counts[k] == 0 {
			continue
		}
		f32.ScaleInPlace(centroids[k*d:(k+1)*d], 1/float32(counts[k]))
	}

	// Splitting needs more points than centroids. Below that, unassigned
	// clusters stay zero; every point already sits on an exact centroid,
	// so codes never reference them.
	if n <= KSub {
		return
	}

	// For every empty cluster, pick a donor biased toward large clusters
	// and nudge the two copies apart.
	for k := 0; k < KSub; k++ {
		if counts[k] != 0 {
			continue
		}

		m := 0
		for rng.Float64()*float64(n-KSub) >= float64(counts[m]-1) {
			m = (m + 1) % KSub
		}

		copy(centroids[k*d:(k+1)*d], centroids[m*d:(m+1)*d])
		for j := 0; j < d; j++ {
			sign := float32((j%2)*2 - 1)
			centroids[k*d+j] += sign * eps
			centroids[m*d+j] -= sign * eps
		}

		counts[k] = counts[m] / 2
		counts[m] -= counts[k]
	}
}
