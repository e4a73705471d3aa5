// Package f32 provides the float32 vector kernels shared by the mat and pq
// packages. All functions are pure Go and allocation-free; paired slices
// must have matching lengths.
package f32

import "math"

// Dot returns the dot product of a and b.
func Dot(a, b []float32) float32 {
	var ret float32
	for i := range a {
		ret += a[i] * b[i]
	}

	return ret
}

// SquaredL2 returns the squared Euclidean distance between a and b.
func SquaredL2(a, b []float32) float32 {
	var distance float32
	for i := range a {
		d := a[i] - b[i]
		distance += d * d
	}

	return distance
}

// L2Norm returns the Euclidean norm of a. Accumulation happens in float64
// to keep long rows stable.
func L2Norm(a []float32) float32 {
	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}

	return float32(math.Sqrt(sum))
}

// Axpy adds alpha*x to y in place.
func Axpy(alpha float32, x, y []float32) {
	for i := range x {
		y[i] += alpha * x[i]
	}
}

// ScaleInPlace multiplies all elements of a by scalar.
func ScaleInPlace(a []float32, scalar float32) {
	for i := range a {
		a[i] *= scalar
	}
}
