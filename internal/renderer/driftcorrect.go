package renderer

import (
	"bufio"
	"bytes"

	"github.com/zaf/resample"

	"airwave/internal/audiohost"
)

// NegativeDriftPolicy selects how a renderer compensates when Clock Sync
// reports a negative correction (the renderer is running behind the master
// and needs more samples, not fewer). spec.md §9 leaves this as an open
// question; this module documents and implements all three named options,
// defaulting to ResamplePolicy for audible-glitch avoidance.
type NegativeDriftPolicy int

const (
	// SilenceInsertPolicy prepends silence ahead of the staging slice. Cheap,
	// but audible as a brief gap on anything but very small corrections.
	SilenceInsertPolicy NegativeDriftPolicy = iota
	// SampleRepeatPolicy duplicates the slice's leading frames. Avoids a gap
	// but can produce a short audible stutter on transient-heavy material.
	SampleRepeatPolicy
	// ResamplePolicy stretches the slice using a real resampler so the
	// correction is spread across every sample instead of concentrated at
	// the boundary. Chosen as the default: it is the only option that
	// doesn't introduce a discontinuity.
	ResamplePolicy
)

// DriftCorrector applies Clock Sync's per-iteration correction to a staging
// slice of interleaved PCM, per spec.md §4.3 step 5.
type DriftCorrector struct {
	format audiohost.Format
	policy NegativeDriftPolicy
}

// NewDriftCorrector builds a corrector for the given format and negative-
// drift policy.
func NewDriftCorrector(format audiohost.Format, policy NegativeDriftPolicy) (*DriftCorrector, error) {
	return &DriftCorrector{format: format, policy: policy}, nil
}

// Apply mutates-and-returns the staging slice per the pending correction:
// positive correction (samples ahead) drops bytes from the head; negative
// correction (samples behind) inserts material per the configured policy;
// zero passes the slice through unchanged.
func (dc *DriftCorrector) Apply(staging []byte, correctionSamples int64) []byte {
	if correctionSamples == 0 {
		return staging
	}
	blockAlign := int(dc.format.BlockAlign)
	if blockAlign == 0 {
		return staging
	}

	if correctionSamples > 0 {
		drop := int(correctionSamples) * blockAlign
		if drop >= len(staging) {
			return staging[:0]
		}
		return staging[drop:]
	}

	insertFrames := int(-correctionSamples)
	switch dc.policy {
	case SampleRepeatPolicy:
		return dc.repeatLeading(staging, insertFrames, blockAlign)
	case ResamplePolicy:
		if stretched, err := dc.resampleStretch(staging, insertFrames); err == nil {
			return stretched
		}
		// Resampler failure (e.g. odd-length input) falls back to the
		// always-available silence-insert path rather than dropping audio.
		fallthrough
	default:
		return dc.insertSilence(staging, insertFrames, blockAlign)
	}
}

func (dc *DriftCorrector) insertSilence(staging []byte, frames, blockAlign int) []byte {
	pad := make([]byte, frames*blockAlign)
	return append(pad, staging...)
}

func (dc *DriftCorrector) repeatLeading(staging []byte, frames, blockAlign int) []byte {
	need := frames * blockAlign
	if need > len(staging) {
		need = len(staging)
	}
	return append(append([]byte{}, staging[:need]...), staging...)
}

// resampleStretch spreads the requested extra frames across the whole
// slice by resampling it to a slightly higher rate, so the correction is
// distributed instead of concentrated at a single seam. Grounded on
// drgolem-musictools/cmd/transform.go's soxr.New/Write/Close usage: a
// resampler wraps a target io.Writer and is built fresh per conversion.
func (dc *DriftCorrector) resampleStretch(staging []byte, insertFrames int) ([]byte, error) {
	blockAlign := int(dc.format.BlockAlign)
	if blockAlign == 0 {
		return staging, nil
	}
	totalFrames := len(staging) / blockAlign
	if totalFrames == 0 {
		return staging, nil
	}
	targetFrames := totalFrames + insertFrames
	targetRate := float64(dc.format.SampleRate) * float64(targetFrames) / float64(totalFrames)

	var out bytes.Buffer
	w := bufio.NewWriter(&out)
	resampler, err := resample.New(w, float64(dc.format.SampleRate), targetRate,
		int(dc.format.Channels), dc.sampleFormat(), resample.HighQ)
	if err != nil {
		return nil, err
	}
	if _, err := resampler.Write(staging); err != nil {
		resampler.Close()
		return nil, err
	}
	if err := resampler.Close(); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// sampleFormat maps the corrector's PCM width onto soxr's integer datatype
// constants. Capture runs at S32 (internal/engine/engine.go's captureFormat);
// getting this wrong makes soxr read every 4-byte sample as two 2-byte ones.
func (dc *DriftCorrector) sampleFormat() resample.Format {
	if dc.format.BitsPerSample == 32 {
		return resample.I32
	}
	return resample.I16
}
