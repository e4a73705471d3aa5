package s3

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"hash/crc32"
	"io"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// UploadConfig configures how snapshot blobs are uploaded.
type UploadConfig struct {
	// PartSize is the part size for multipart uploads.
	// Default: 8MB (above the SDK's 5MB floor for better throughput).
	PartSize int64

	// Concurrency is the number of concurrent part uploads.
	// Default: 5 (the SDK default).
	Concurrency int

	// EnableChecksum enables CRC32C integrity validation on uploads.
	// Default: true.
	EnableChecksum bool
}

// DefaultUploadConfig returns the default upload settings.
func DefaultUploadConfig() UploadConfig {
	return UploadConfig{
		PartSize:       8 * 1024 * 1024,
		Concurrency:    5,
		EnableChecksum: true,
	}
}

// uploader is the slice of manager.Uploader the streaming blob needs.
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

func newUploader(client Client, cfg UploadConfig) *manager.Uploader {
	return manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = cfg.PartSize
		u.Concurrency = cfg.Concurrency
	})
}

var errUploadAborted = errors.New("upload aborted")

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// checksumCRC32C returns the CRC32C of data in S3's base64 big-endian form.
func checksumCRC32C(data []byte) string {
	sum := crc32.Checksum(data, crc32cTable)
	b := []byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)}
	return base64.StdEncoding.EncodeToString(b)
}

// putObject uploads a small blob in one request, optionally with CRC32C
// validation.
func putObject(ctx context.Context, client Client, bucket, key string, data []byte, withChecksum bool) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}

	if withChecksum {
		input.ChecksumCRC32C = aws.String(checksumCRC32C(data))
	}

	_, err := client.PutObject(ctx, input)
	return err
}

// streamingBlob pipes writes into a background multipart upload. Close
// finishes the upload and reports its result; nothing is visible until
// then.
type streamingBlob struct {
	pw     *io.PipeWriter
	pr     *io.PipeReader
	done   chan error
	closed atomic.Bool
}

func newStreamingBlob(ctx context.Context, up uploader, bucket, key string, withChecksum bool) *streamingBlob {
	pr, pw := io.Pipe()

	b := &streamingBlob{
		pw:   pw,
		pr:   pr,
		done: make(chan error, 1),
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   pr,
	}
	if withChecksum {
		input.ChecksumAlgorithm = types.ChecksumAlgorithmCrc32c
	}

	go func() {
		_, err := up.Upload(ctx, input)
		// Unblock a writer stuck in Write if the upload died early.
		_ = pr.CloseWithError(err)
		b.done <- err
	}()

	return b
}

func (b *streamingBlob) Write(p []byte) (int, error) {
	if b.closed.Load() {
		return 0, io.ErrClosedPipe
	}
	return b.pw.Write(p)
}

// Close signals EOF to the uploader and waits for the upload to finish.
func (b *streamingBlob) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return io.ErrClosedPipe
	}
	if err := b.pw.Close(); err != nil {
		return err
	}
	return <-b.done
}

// Abort cancels the upload; nothing becomes visible under the key.
func (b *streamingBlob) Abort() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	_ = b.pw.CloseWithError(errUploadAborted)
	<-b.done
	return nil
}

// Sync is a no-op: the object is only committed on Close.
func (b *streamingBlob) Sync() error {
	return nil
}
