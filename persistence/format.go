package persistence

import "errors"

const (
	// MagicNumber identifies quantmat snapshot files (ASCII: "QMS1")
	MagicNumber = 0x514D5331
	// Version is the current snapshot format version (v1.0.0)
	Version = 0x00010000
)

// Codec identifies the compression algorithm applied to the snapshot payload.
type Codec uint8

const (
	// CodecNone stores the payload uncompressed.
	CodecNone Codec = 0
	// CodecLZ4 uses LZ4 block compression (fast, moderate ratio).
	CodecLZ4 Codec = 1
	// CodecZSTD uses ZSTD compression (slower, better ratio).
	CodecZSTD Codec = 2
)

var (
	ErrInvalidMagic   = errors.New("invalid magic number")
	ErrInvalidVersion = errors.New("unsupported version")
	ErrInvalidCodec   = errors.New("unknown compression codec")
	ErrPayloadTooBig  = errors.New("snapshot payload exceeds size limit")
)

// MaxPayloadSize bounds the payload sizes a header may claim. Loading trusts
// the header for buffer allocation, so a corrupt size field must be rejected
// before it is used.
const MaxPayloadSize = 1 << 40

// FileHeader is the 64-byte header at the start of every snapshot file.
// Scalars are little-endian; the layout is append-only across versions.
type FileHeader struct {
	Magic            uint32 // 0x514D5331 ("QMS1")
	Version          uint32 // Snapshot format version
	Codec            Codec  // Payload compression codec
	Padding          [3]byte
	PayloadSize      uint64 // Payload bytes as stored (after compression)
	UncompressedSize uint64 // Payload bytes after decompression
	Checksum         uint32 // CRC32 (IEEE) of the stored payload
	Reserved         [32]byte
}
