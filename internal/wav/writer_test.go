package wav

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func TestWriterProducesValidHeaderFor32BitPCM(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "dump.wav")

	w, err := NewWriter(path, 48000, 2, 32)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	payload := make([]byte, 4*4*2) // 4 frames, stereo, 4 bytes/sample
	for i := range payload {
		payload[i] = byte(i)
	}
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE markers")
	}
	if string(data[12:16]) != "fmt " {
		t.Fatalf("missing fmt subchunk")
	}

	channels := binary.LittleEndian.Uint16(data[22:24])
	sampleRate := binary.LittleEndian.Uint32(data[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(data[34:36])
	if channels != 2 || sampleRate != 48000 || bitsPerSample != 32 {
		t.Fatalf("unexpected fmt fields: channels=%d rate=%d bits=%d", channels, sampleRate, bitsPerSample)
	}

	dataSize := binary.LittleEndian.Uint32(data[40:44])
	if int(dataSize) != len(payload) {
		t.Fatalf("expected data size %d, got %d", len(payload), dataSize)
	}
	if len(data) != 44+len(payload) {
		t.Fatalf("expected total file size %d, got %d", 44+len(payload), len(data))
	}
}

func TestNewWriterRejectsUnsupportedBitDepth(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "dump.wav")

	if _, err := NewWriter(path, 48000, 2, 24); err == nil {
		t.Fatal("expected error for unsupported bit depth")
	}
}
