// Package testutil provides testing utilities for quantmat.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating random vectors and embedding rows
// with reproducible seeds.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vec := make([]float32, 128)
//	rng.FillUniform(vec)      // uniform [0, 1)
//	rng.FillGaussian(vec)     // standard normal
//
// # Row Generation
//
//	rows := rng.UnitRows(1000, 128)       // L2-normalized rows
//	rows := rng.ClusteredRows(1000, 128, 16, 0.1)
package testutil
