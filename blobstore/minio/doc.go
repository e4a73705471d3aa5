// Package minio provides a blobstore.Store implementation backed by the
// MinIO client, for MinIO itself and other S3-compatible systems (Ceph,
// SeaweedFS, Garage) without pulling in the AWS SDK.
//
// # Basic Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "my-bucket", "snapshots/")
//	err = quantmat.SaveSnapshot(ctx, store, "embeddings-v1.qms", qm)
//
// # Features
//
//   - Streaming uploads for large snapshots
//   - Ranged reads, so headers can be inspected without downloading the blob
//   - Air-gap friendly (no AWS dependencies required)
package minio
