// Package quantmat provides a compressed, read-mostly representation for
// large embedding matrices.
//
// A dense float32 matrix is trained once into product-quantizer codes, one
// byte per sub-vector segment, shrinking memory roughly 8x at the default
// segment width. The compressed matrix supports exactly the two operations
// a scoring pass needs, an approximate dot product against a stored row and
// scaled accumulation of a stored row into a dense vector, both evaluated
// directly from codes without decompressing anything.
//
// # Quick Start
//
//	d := mat.NewDense(1_000_000, 128)
//	// ... fill d with embedding rows ...
//
//	qm, err := quantmat.Quantize(d, quantmat.WithNormQuantization(true))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// d is consumed; use qm from here on.
//
//	score := qm.DotRow(query, 42)
//
//	hidden := make([]float32, qm.Cols())
//	qm.AddRowTo(hidden, 42)
//
// # Snapshots
//
// Local mode:
//
//	_ = quantmat.SaveFile("./embeddings.qms", qm)
//	qm2, _ := quantmat.LoadFile("./embeddings.qms")
//
// Store-backed (local directory, S3, MinIO):
//
//	store := blobstore.NewLocalStore("./data")
//	_ = quantmat.SaveSnapshot(ctx, store, "embeddings-v1.qms", qm)
//	qm2, _ := quantmat.LoadSnapshot(ctx, store, "embeddings-v1.qms")
//
// Cloud mode:
//
//	s3Store, _ := s3.New(ctx, "my-bucket", func(o *s3.Options) {
//	    o.Prefix = "embeddings/"
//	})
//	_ = quantmat.SaveSnapshot(ctx, s3Store, "embeddings-v1.qms", qm)
//
// # Key Features
//
//   - Product quantization with per-segment 256-entry codebooks
//   - Norm-separated quantization for heavy-tailed embedding norms
//   - Deterministic, parallel codebook training
//   - Checksummed, compressed snapshots (ZSTD/LZ4)
//   - Cloud-native snapshot storage (S3/MinIO via blobstore)
//   - Shared resource limits (training workers, memory, I/O throughput)
package quantmat
