package persistence

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// If compression saves less than 10% it is not worth the decode cost; the
// payload is stored uncompressed instead.
const incompressibleRatio = 0.9

// ZSTD encoder/decoder pools for efficiency
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	// Level 3 balances compression ratio vs speed
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// WriteSnapshot frames the payload produced by writeFunc with a FileHeader:
// the payload is compressed with the requested codec, checksummed, and
// written behind its sizes. Payloads the codec cannot shrink are stored
// uncompressed under CodecNone, whatever codec was requested.
func WriteSnapshot(w io.Writer, codec Codec, writeFunc func(io.Writer) error) error {
	var payload bytes.Buffer
	if err := writeFunc(&payload); err != nil {
		return err
	}

	raw := payload.Bytes()

	var stored []byte
	switch codec {
	case CodecNone:
		stored = raw
	case CodecLZ4:
		compressed, err := compressLZ4(raw)
		if err != nil {
			return fmt.Errorf("lz4 compress: %w", err)
		}
		stored = compressed
	case CodecZSTD:
		stored = compressZSTD(raw)
	default:
		return fmt.Errorf("%w: %d", ErrInvalidCodec, codec)
	}

	// Fall back to the raw payload when the codec failed to help.
	if codec != CodecNone {
		if stored == nil || float64(len(stored)) > float64(len(raw))*incompressibleRatio {
			stored = raw
			codec = CodecNone
		}
	}

	header := &FileHeader{
		Codec:            codec,
		PayloadSize:      uint64(len(stored)),
		UncompressedSize: uint64(len(raw)),
		Checksum:         CalculateChecksum(stored),
	}

	bw := NewWriter(w)
	if err := bw.WriteHeader(header); err != nil {
		return err
	}

	return bw.WriteBytes(stored)
}

// ReadSnapshot reads a framed snapshot: validates the header, verifies the
// payload checksum, decompresses, and hands the raw payload stream to
// readFunc. Corruption of any kind is a hard error; nothing is handed to
// readFunc in that case.
func ReadSnapshot(r io.Reader, readFunc func(io.Reader) error) error {
	br := NewReader(r)

	header, err := br.ReadHeader()
	if err != nil {
		return err
	}

	// The header sizes drive allocation below and must be bounded before a
	// corrupt field turns into a giant make().
	if header.PayloadSize > MaxPayloadSize || header.UncompressedSize > MaxPayloadSize {
		return fmt.Errorf("%w: payload=%d uncompressed=%d",
			ErrPayloadTooBig, header.PayloadSize, header.UncompressedSize)
	}

	// Checksum the payload as it streams in; the header bytes stay outside
	// the sum.
	cr := NewChecksumReader(r)

	stored := make([]byte, header.PayloadSize)
	if _, err := io.ReadFull(cr, stored); err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	if err := cr.Verify(header.Checksum); err != nil {
		return err
	}

	var raw []byte
	switch header.Codec {
	case CodecNone:
		raw = stored
	case CodecLZ4:
		raw, err = decompressLZ4(stored, int(header.UncompressedSize))
		if err != nil {
			return fmt.Errorf("lz4 decompress: %w", err)
		}
	case CodecZSTD:
		raw, err = decompressZSTD(stored, int(header.UncompressedSize))
		if err != nil {
			return fmt.Errorf("zstd decompress: %w", err)
		}
	default:
		return fmt.Errorf("%w: %d", ErrInvalidCodec, header.Codec)
	}

	if uint64(len(raw)) != header.UncompressedSize {
		return errors.New("decompressed size mismatch")
	}

	return readFunc(bytes.NewReader(raw))
}

// compressLZ4 compresses data using LZ4 block compression.
// Returns nil when the data is incompressible.
func compressLZ4(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	bound := lz4.CompressBlockBound(len(data))
	compressed := make([]byte, bound)

	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, err
	}

	if n == 0 {
		return nil, nil // Incompressible
	}

	return compressed[:n], nil
}

func decompressLZ4(data []byte, uncompressedSize int) ([]byte, error) {
	result := make([]byte, uncompressedSize)

	n, err := lz4.UncompressBlock(data, result)
	if err != nil {
		return nil, err
	}
	if n != uncompressedSize {
		return nil, errors.New("decompressed size mismatch")
	}

	return result, nil
}

func compressZSTD(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}

	enc := getZstdEncoder()
	defer putZstdEncoder(enc)

	return enc.EncodeAll(data, nil)
}

func decompressZSTD(data []byte, uncompressedSize int) ([]byte, error) {
	dec := getZstdDecoder()
	defer putZstdDecoder(dec)

	return dec.DecodeAll(data, make([]byte, 0, uncompressedSize))
}
