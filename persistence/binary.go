// Package persistence implements the binary snapshot format for quantized
// matrices: packed little-endian scalars, raw float32 slabs, and a framed
// container with checksum and optional compression.
package persistence

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unsafe"
)

// Writer writes snapshot payloads in the packed binary layout.
type Writer struct {
	w         io.Writer
	byteOrder binary.ByteOrder
	scratch   [8]byte
}

// NewWriter creates a new binary writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:         w,
		byteOrder: binary.LittleEndian, // Native on x86/ARM
	}
}

// WriteHeader writes the snapshot file header.
func (bw *Writer) WriteHeader(header *FileHeader) error {
	header.Magic = MagicNumber
	header.Version = Version
	return binary.Write(bw.w, bw.byteOrder, header)
}

// WriteBool writes a bool as a single byte (0 or 1).
func (bw *Writer) WriteBool(v bool) error {
	bw.scratch[0] = 0
	if v {
		bw.scratch[0] = 1
	}
	_, err := bw.w.Write(bw.scratch[:1])
	return err
}

// WriteUint8 writes a single byte.
func (bw *Writer) WriteUint8(v uint8) error {
	bw.scratch[0] = v
	_, err := bw.w.Write(bw.scratch[:1])
	return err
}

// WriteInt32 writes an int32.
func (bw *Writer) WriteInt32(v int32) error {
	bw.byteOrder.PutUint32(bw.scratch[:4], uint32(v))
	_, err := bw.w.Write(bw.scratch[:4])
	return err
}

// WriteInt64 writes an int64.
func (bw *Writer) WriteInt64(v int64) error {
	bw.byteOrder.PutUint64(bw.scratch[:8], uint64(v))
	_, err := bw.w.Write(bw.scratch[:8])
	return err
}

// WriteBytes writes a raw byte slice with no length prefix. Callers are
// expected to have serialized the length separately.
func (bw *Writer) WriteBytes(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	_, err := bw.w.Write(p)
	return err
}

// WriteFloat32Slice writes a float32 slice as raw bytes (zero-copy compatible).
// Safety: Validates alignment before unsafe conversion.
func (bw *Writer) WriteFloat32Slice(vec []float32) error {
	if len(vec) == 0 {
		return nil
	}

	// Verify alignment before unsafe operation
	if err := validateFloat32SliceAlignment(vec); err != nil {
		return err
	}

	// Direct memory conversion (no allocation)
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&vec[0])), len(vec)*4)
	_, err := bw.w.Write(byteSlice)
	return err
}

// Reader reads snapshot payloads from the packed binary layout.
type Reader struct {
	r         io.Reader
	byteOrder binary.ByteOrder
	scratch   [8]byte
}

// NewReader creates a new binary reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:         r,
		byteOrder: binary.LittleEndian,
	}
}

// ReadHeader reads and validates the snapshot file header.
func (br *Reader) ReadHeader() (*FileHeader, error) {
	var header FileHeader
	if err := binary.Read(br.r, br.byteOrder, &header); err != nil {
		return nil, err
	}
	if header.Magic != MagicNumber {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, header.Magic)
	}
	if header.Version != Version {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidVersion, header.Version)
	}
	return &header, nil
}

// ReadBool reads a single byte as a bool. Any non-zero value is true.
func (br *Reader) ReadBool() (bool, error) {
	if _, err := io.ReadFull(br.r, br.scratch[:1]); err != nil {
		return false, err
	}
	return br.scratch[0] != 0, nil
}

// ReadUint8 reads a single byte.
func (br *Reader) ReadUint8() (uint8, error) {
	if _, err := io.ReadFull(br.r, br.scratch[:1]); err != nil {
		return 0, err
	}
	return br.scratch[0], nil
}

// ReadInt32 reads an int32.
func (br *Reader) ReadInt32() (int32, error) {
	if _, err := io.ReadFull(br.r, br.scratch[:4]); err != nil {
		return 0, err
	}
	return int32(br.byteOrder.Uint32(br.scratch[:4])), nil
}

// ReadInt64 reads an int64.
func (br *Reader) ReadInt64() (int64, error) {
	if _, err := io.ReadFull(br.r, br.scratch[:8]); err != nil {
		return 0, err
	}
	return int64(br.byteOrder.Uint64(br.scratch[:8])), nil
}

// ReadBytes fills p from the stream. A short read is an error.
func (br *Reader) ReadBytes(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	_, err := io.ReadFull(br.r, p)
	return err
}

// ReadFloat32Slice reads a float32 slice.
func (br *Reader) ReadFloat32Slice(count int) ([]float32, error) {
	if count == 0 {
		return nil, nil
	}
	vec := make([]float32, count)
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&vec[0])), count*4)
	if _, err := io.ReadFull(br.r, byteSlice); err != nil {
		return nil, err
	}
	return vec, nil
}

// ReadFloat32SliceInto reads a float32 slice into the provided buffer.
func (br *Reader) ReadFloat32SliceInto(vec []float32) error {
	if len(vec) == 0 {
		return nil
	}
	byteSlice := unsafe.Slice((*byte)(unsafe.Pointer(&vec[0])), len(vec)*4)
	if _, err := io.ReadFull(br.r, byteSlice); err != nil {
		return err
	}
	return nil
}

// SaveToFile is a helper to save a snapshot to a file.
func SaveToFile(filename string, writeFunc func(io.Writer) error) error {
	dir := filepath.Dir(filename)
	base := filepath.Base(filename)

	// Write to a temp file in the same directory to ensure rename is atomic.
	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	// Match typical file permissions (best-effort).
	_ = tmp.Chmod(0644)

	// Use buffered writer to batch writes (critical for performance)
	buf := bufio.NewWriterSize(tmp, 256*1024) // 256KB buffer
	if err := writeFunc(buf); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// Atomically replace target.
	if err := os.Rename(tmpName, filename); err != nil {
		return err
	}

	// Best-effort: fsync the directory so the rename is durable on POSIX.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	// Success: prevent deferred cleanup from removing the final file.
	tmpName = ""
	return nil
}

// LoadFromFile is a helper to load a snapshot from a file.
func LoadFromFile(filename string, readFunc func(io.Reader) error) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	// Use buffered reader to batch reads
	buf := bufio.NewReaderSize(f, 256*1024) // 256KB buffer
	return readFunc(buf)
}
