package persistence

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestBinaryFormat_WriteRead(t *testing.T) {
	var buf bytes.Buffer
	writer := NewWriter(&buf)

	if err := writer.WriteBool(true); err != nil {
		t.Fatalf("WriteBool failed: %v", err)
	}
	if err := writer.WriteInt64(-42); err != nil {
		t.Fatalf("WriteInt64 failed: %v", err)
	}
	if err := writer.WriteInt32(7); err != nil {
		t.Fatalf("WriteInt32 failed: %v", err)
	}
	if err := writer.WriteUint8(200); err != nil {
		t.Fatalf("WriteUint8 failed: %v", err)
	}
	if err := writer.WriteBytes([]byte{1, 2, 3}); err != nil {
		t.Fatalf("WriteBytes failed: %v", err)
	}

	vec := []float32{1.5, -2.25, 3.125, 4.0}
	if err := writer.WriteFloat32Slice(vec); err != nil {
		t.Fatalf("WriteFloat32Slice failed: %v", err)
	}

	reader := NewReader(&buf)

	b, err := reader.ReadBool()
	if err != nil || b != true {
		t.Fatalf("ReadBool: got (%v, %v), want (true, nil)", b, err)
	}

	i64, err := reader.ReadInt64()
	if err != nil || i64 != -42 {
		t.Fatalf("ReadInt64: got (%d, %v), want (-42, nil)", i64, err)
	}

	i32, err := reader.ReadInt32()
	if err != nil || i32 != 7 {
		t.Fatalf("ReadInt32: got (%d, %v), want (7, nil)", i32, err)
	}

	u8, err := reader.ReadUint8()
	if err != nil || u8 != 200 {
		t.Fatalf("ReadUint8: got (%d, %v), want (200, nil)", u8, err)
	}

	raw := make([]byte, 3)
	if err := reader.ReadBytes(raw); err != nil {
		t.Fatalf("ReadBytes failed: %v", err)
	}
	if !bytes.Equal(raw, []byte{1, 2, 3}) {
		t.Errorf("ReadBytes mismatch: got %v", raw)
	}

	got, err := reader.ReadFloat32Slice(len(vec))
	if err != nil {
		t.Fatalf("ReadFloat32Slice failed: %v", err)
	}
	for i, v := range got {
		if v != vec[i] {
			t.Errorf("float mismatch at %d: got %f, want %f", i, v, vec[i])
		}
	}
}

func TestBinaryFormat_ShortRead(t *testing.T) {
	var buf bytes.Buffer
	writer := NewWriter(&buf)

	if err := writer.WriteInt64(123); err != nil {
		t.Fatalf("WriteInt64 failed: %v", err)
	}

	// Drop the last byte to force a short read.
	trimmed := bytes.NewReader(buf.Bytes()[:buf.Len()-1])
	reader := NewReader(trimmed)

	if _, err := reader.ReadInt64(); err == nil {
		t.Fatal("expected error on truncated stream, got nil")
	}
}

func TestHeader_WriteRead(t *testing.T) {
	var buf bytes.Buffer
	writer := NewWriter(&buf)

	header := &FileHeader{
		Codec:            CodecZSTD,
		PayloadSize:      100,
		UncompressedSize: 400,
		Checksum:         0xdeadbeef,
	}

	if err := writer.WriteHeader(header); err != nil {
		t.Fatalf("WriteHeader failed: %v", err)
	}

	if buf.Len() != 64 {
		t.Fatalf("header size: got %d bytes, want 64", buf.Len())
	}

	reader := NewReader(&buf)
	got, err := reader.ReadHeader()
	if err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}

	if got.Codec != CodecZSTD || got.PayloadSize != 100 || got.UncompressedSize != 400 || got.Checksum != 0xdeadbeef {
		t.Errorf("header mismatch: %+v", got)
	}
}

func TestHeader_InvalidMagic(t *testing.T) {
	var buf bytes.Buffer
	writer := NewWriter(&buf)

	if err := writer.WriteHeader(&FileHeader{}); err != nil {
		t.Fatalf("WriteHeader failed: %v", err)
	}

	// Corrupt the magic number.
	raw := buf.Bytes()
	raw[0] ^= 0xff

	reader := NewReader(bytes.NewReader(raw))
	if _, err := reader.ReadHeader(); err == nil {
		t.Fatal("expected invalid magic error, got nil")
	}
}

func TestSaveLoadFile(t *testing.T) {
	tmpfile := filepath.Join(t.TempDir(), "snapshot.bin")

	testVectors := []float32{1.1, 2.2, 3.3, 4.4}

	err := SaveToFile(tmpfile, func(w io.Writer) error {
		writer := NewWriter(w)
		if err := writer.WriteInt64(int64(len(testVectors))); err != nil {
			return err
		}
		return writer.WriteFloat32Slice(testVectors)
	})
	if err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	var loadedVectors []float32
	err = LoadFromFile(tmpfile, func(r io.Reader) error {
		reader := NewReader(r)
		n, err := reader.ReadInt64()
		if err != nil {
			return err
		}
		loadedVectors, err = reader.ReadFloat32Slice(int(n))
		return err
	})
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	for i, v := range loadedVectors {
		if v != testVectors[i] {
			t.Errorf("Vector mismatch at %d: got %f, want %f", i, v, testVectors[i])
		}
	}
}

func TestSaveToFile_NoPartialFile(t *testing.T) {
	tmpfile := filepath.Join(t.TempDir(), "snapshot.bin")

	err := SaveToFile(tmpfile, func(w io.Writer) error {
		return io.ErrClosedPipe
	})
	if err == nil {
		t.Fatal("expected write error, got nil")
	}

	if _, err := os.Stat(tmpfile); !os.IsNotExist(err) {
		t.Errorf("failed save left a file behind: %v", err)
	}
}
