// Package wav writes PCM audio to a WAV container. The Capture Worker's
// optional `--dump-wav` diagnostic tap (internal/capture.Worker.SetDebugSink)
// is the only caller: it mirrors every batch written to the distribution
// ring here so an operator can inspect exactly what the ring received.
package wav

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// fmtChunk is the WAV "fmt " subchunk body for linear PCM, laid out so a
// single binary.Write encodes it in one shot. Works for both the 16-bit
// (S16LE) and 32-bit (S32LE) PCM the Capture Worker may be dumping — the
// container format is identical, only BitsPerSample and the derived
// byte/block sizes change.
type fmtChunk struct {
	Subchunk1Size uint32
	AudioFormat   uint16 // 1 = PCM
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// Writer streams PCM samples into a WAV file, fixing up the RIFF/data chunk
// sizes on Close. Callers must not reuse a Writer across bit depths.
type Writer struct {
	file          *os.File
	buf           *bufio.Writer
	sampleRate    uint32
	channels      uint16
	bitsPerSample uint16
	dataSize      uint32
	closed        bool
}

// NewWriter creates path, writes a RIFF/WAVE/fmt header with placeholder
// chunk sizes, and returns a Writer ready to accept interleaved PCM frames
// via Write. bitsPerSample must be 16 (S16LE) or 32 (S32LE, airwave's
// capture format); any other depth is rejected rather than silently
// mis-describing the data.
func NewWriter(path string, sampleRate uint32, channels, bitsPerSample uint16) (*Writer, error) {
	if bitsPerSample != 16 && bitsPerSample != 32 {
		return nil, fmt.Errorf("wav: unsupported bit depth %d, want 16 or 32", bitsPerSample)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("wav: create %s: %w", path, err)
	}
	w := &Writer{
		file:          f,
		buf:           bufio.NewWriterSize(f, 1<<20), // 1 MiB buffer
		sampleRate:    sampleRate,
		channels:      channels,
		bitsPerSample: bitsPerSample,
	}
	if err := w.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) writeHeader() error {
	if _, err := w.buf.WriteString("RIFF"); err != nil {
		return err
	}
	if err := binary.Write(w.buf, binary.LittleEndian, uint32(0)); err != nil { // chunk size, fixed up on Close
		return err
	}
	if _, err := w.buf.WriteString("WAVE"); err != nil {
		return err
	}

	if _, err := w.buf.WriteString("fmt "); err != nil {
		return err
	}
	blockAlign := w.channels * w.bitsPerSample / 8
	fc := fmtChunk{
		Subchunk1Size: 16,
		AudioFormat:   1,
		Channels:      w.channels,
		SampleRate:    w.sampleRate,
		ByteRate:      w.sampleRate * uint32(blockAlign),
		BlockAlign:    blockAlign,
		BitsPerSample: w.bitsPerSample,
	}
	if err := binary.Write(w.buf, binary.LittleEndian, fc); err != nil {
		return err
	}

	if _, err := w.buf.WriteString("data"); err != nil {
		return err
	}
	if err := binary.Write(w.buf, binary.LittleEndian, uint32(0)); err != nil { // data size, fixed up on Close
		return err
	}
	return w.buf.Flush()
}

// Write appends raw interleaved PCM bytes (at the bit depth passed to
// NewWriter) to the file.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, io.ErrClosedPipe
	}
	n, err := w.buf.Write(p)
	w.dataSize += uint32(n)
	if err != nil {
		return n, fmt.Errorf("wav: write: %w", err)
	}
	return n, nil
}

// Flush forces buffered data to disk without closing the file.
func (w *Writer) Flush() error {
	if w.closed {
		return nil
	}
	return w.buf.Flush()
}

// Close back-patches the RIFF chunk size and data subchunk size now that the
// total sample count is known, then closes the file. Safe to call more than
// once.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("wav: flush: %w", err)
	}

	const (
		riffSizeOffset = 4
		dataSizeOffset = 40
	)
	if _, err := w.file.Seek(riffSizeOffset, io.SeekStart); err != nil {
		w.file.Close()
		return fmt.Errorf("wav: seek riff size: %w", err)
	}
	if err := binary.Write(w.file, binary.LittleEndian, uint32(36)+w.dataSize); err != nil {
		w.file.Close()
		return fmt.Errorf("wav: write riff size: %w", err)
	}
	if _, err := w.file.Seek(dataSizeOffset, io.SeekStart); err != nil {
		w.file.Close()
		return fmt.Errorf("wav: seek data size: %w", err)
	}
	if err := binary.Write(w.file, binary.LittleEndian, w.dataSize); err != nil {
		w.file.Close()
		return fmt.Errorf("wav: write data size: %w", err)
	}
	return w.file.Close()
}
