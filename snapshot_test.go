package quantmat

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/quantmat/blobstore"
	"github.com/hupe1980/quantmat/persistence"
	"github.com/hupe1980/quantmat/resource"
	"github.com/hupe1980/quantmat/testutil"
)

func trainedMatrix(t *testing.T, rows, cols int) (*QuantizedMatrix, [][]float32) {
	t.Helper()

	rng := testutil.NewRNG(101)
	d, orig := randomDense(rng, rows, cols)

	qm, err := Quantize(d, WithNormQuantization(true))
	require.NoError(t, err)

	return qm, orig
}

func assertSameReads(t *testing.T, want, got *QuantizedMatrix, queries [][]float32) {
	t.Helper()

	require.Equal(t, want.Rows(), got.Rows())
	require.Equal(t, want.Cols(), got.Cols())
	require.Equal(t, want.NormQuantization(), got.NormQuantization())

	for i, query := range queries {
		assert.Equal(t, want.DotRow(query, i), got.DotRow(query, i), "row %d", i)
	}
}

func TestSnapshotRoundTrip_Codecs(t *testing.T) {
	qm, queries := trainedMatrix(t, 16, 24)
	ctx := context.Background()

	for _, tt := range []struct {
		name  string
		codec persistence.Codec
	}{
		{"none", persistence.CodecNone},
		{"lz4", persistence.CodecLZ4},
		{"zstd", persistence.CodecZSTD},
	} {
		t.Run(tt.name, func(t *testing.T) {
			store := blobstore.NewMemoryStore()

			require.NoError(t, SaveSnapshot(ctx, store, "m.qms", qm, WithCodec(tt.codec)))

			loaded, err := LoadSnapshot(ctx, store, "m.qms")
			require.NoError(t, err)

			assertSameReads(t, qm, loaded, queries)
		})
	}
}

func TestSnapshotRoundTrip_LocalStore(t *testing.T) {
	qm, queries := trainedMatrix(t, 8, 12)
	ctx := context.Background()

	store := blobstore.NewLocalStore(t.TempDir())

	require.NoError(t, SaveSnapshot(ctx, store, "m.qms", qm))

	loaded, err := LoadSnapshot(ctx, store, "m.qms")
	require.NoError(t, err)

	assertSameReads(t, qm, loaded, queries)
}

func TestLoadSnapshot_Missing(t *testing.T) {
	_, err := LoadSnapshot(context.Background(), blobstore.NewMemoryStore(), "nope.qms")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestLoadSnapshot_CorruptPayload(t *testing.T) {
	qm, _ := trainedMatrix(t, 8, 12)
	ctx := context.Background()

	store := blobstore.NewMemoryStore()
	require.NoError(t, SaveSnapshot(ctx, store, "m.qms", qm))

	blob, err := store.Open(ctx, "m.qms")
	require.NoError(t, err)
	data, err := blob.(blobstore.Mappable).Bytes()
	require.NoError(t, err)

	// Flip one payload byte past the 64-byte header.
	corrupted := append([]byte(nil), data...)
	corrupted[80] ^= 0xFF
	require.NoError(t, blob.Close())
	require.NoError(t, store.Put(ctx, "m.qms", corrupted))

	_, err = LoadSnapshot(ctx, store, "m.qms")
	require.Error(t, err)
	assert.True(t, persistence.IsChecksumMismatch(err))
}

func TestLoadSnapshot_Truncated(t *testing.T) {
	qm, _ := trainedMatrix(t, 8, 12)
	ctx := context.Background()

	store := blobstore.NewMemoryStore()
	require.NoError(t, SaveSnapshot(ctx, store, "m.qms", qm))

	blob, err := store.Open(ctx, "m.qms")
	require.NoError(t, err)
	data, err := blob.(blobstore.Mappable).Bytes()
	require.NoError(t, err)

	truncated := append([]byte(nil), data[:len(data)/2]...)
	require.NoError(t, blob.Close())
	require.NoError(t, store.Put(ctx, "m.qms", truncated))

	_, err = LoadSnapshot(ctx, store, "m.qms")
	assert.Error(t, err)
}

func TestSnapshot_ResourceController(t *testing.T) {
	qm, queries := trainedMatrix(t, 8, 12)
	ctx := context.Background()

	ctrl := resource.NewController(resource.Config{
		MemoryLimitBytes:   1 << 20,
		IOLimitBytesPerSec: 1 << 24,
	})

	store := blobstore.NewMemoryStore()
	require.NoError(t, SaveSnapshot(ctx, store, "m.qms", qm, WithResourceController(ctrl)))

	loaded, err := LoadSnapshot(ctx, store, "m.qms", WithResourceController(ctrl))
	require.NoError(t, err)

	assertSameReads(t, qm, loaded, queries)
	assert.Zero(t, ctrl.MemoryUsage())
}

func TestSnapshot_IOLimitBelowSnapshotSize(t *testing.T) {
	// The centroid tables alone exceed a 64KiB burst, so the save only
	// works if the limiter paces the transfer instead of rejecting it.
	rng := testutil.NewRNG(103)
	d, _ := randomDense(rng, 64, 64)

	qm, err := Quantize(d, WithNormQuantization(true))
	require.NoError(t, err)

	ctrl := resource.NewController(resource.Config{IOLimitBytesPerSec: 1 << 16})
	store := blobstore.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, SaveSnapshot(ctx, store, "m.qms", qm,
		WithCodec(persistence.CodecNone),
		WithResourceController(ctrl),
	))

	loaded, err := LoadSnapshot(ctx, store, "m.qms", WithResourceController(ctrl))
	require.NoError(t, err)
	assert.Equal(t, qm.Rows(), loaded.Rows())
}

func TestLoadSnapshot_CanceledContext(t *testing.T) {
	qm, _ := trainedMatrix(t, 8, 12)

	store := blobstore.NewMemoryStore()
	require.NoError(t, SaveSnapshot(context.Background(), store, "m.qms", qm))

	ctrl := resource.NewController(resource.Config{MemoryLimitBytes: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := LoadSnapshot(ctx, store, "m.qms", WithResourceController(ctrl))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSaveLoadFile(t *testing.T) {
	qm, queries := trainedMatrix(t, 8, 12)

	path := filepath.Join(t.TempDir(), "embeddings.qms")
	require.NoError(t, SaveFile(path, qm))

	loaded, err := LoadFile(path)
	require.NoError(t, err)

	assertSameReads(t, qm, loaded, queries)

	// Overwriting goes through a temp file and rename, so a second save
	// leaves a valid snapshot behind.
	require.NoError(t, SaveFile(path, qm))
	again, err := LoadFile(path)
	require.NoError(t, err)
	assertSameReads(t, qm, again, queries)
}
