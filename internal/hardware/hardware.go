// Package hardware classifies endpoint latency characteristics and derives
// the host-buffer and ring-buffer sizes spec.md §6 names. The three-tier
// classification and per-tier constants are carried over from the wemux
// reference implementation's hardware capability probe, which spec.md's
// formula shapes were distilled from.
package hardware

import "airwave/internal/audiohost"

// LatencyClass buckets an endpoint by its minimum supported period.
type LatencyClass int

const (
	LowLatency LatencyClass = iota
	Standard
	HighLatency
)

func (c LatencyClass) String() string {
	switch c {
	case LowLatency:
		return "low_latency"
	case Standard:
		return "standard"
	case HighLatency:
		return "high_latency"
	default:
		return "unknown"
	}
}

// BufferMs is the class-recommended host buffer duration.
func (c LatencyClass) BufferMs() uint32 {
	switch c {
	case LowLatency:
		return 25
	case HighLatency:
		return 50
	default:
		return 35
	}
}

// RingBaseMs is the class-recommended ring buffer base duration before
// adding the per-renderer margin.
func (c LatencyClass) RingBaseMs() uint32 {
	switch c {
	case LowLatency:
		return 200
	case HighLatency:
		return 400
	default:
		return 300
	}
}

// Classify buckets a device period probe into a LatencyClass. p_min is
// expressed in 100-ns ticks (as reported by the host).
func Classify(period audiohost.DevicePeriod) LatencyClass {
	minMs := float64(period.MinPeriod100ns) / 10_000.0
	switch {
	case minMs < 5.0:
		return LowLatency
	case minMs < 15.0:
		return Standard
	default:
		return HighLatency
	}
}

// Capabilities bundles a period probe with its derived classification.
type Capabilities struct {
	Period audiohost.DevicePeriod
	Class  LatencyClass
}

// Probe classifies a device period and returns its full capability set.
func Probe(period audiohost.DevicePeriod) Capabilities {
	return Capabilities{Period: period, Class: Classify(period)}
}

// OptimalBufferMs returns the per-endpoint host buffer duration: the larger
// of twice the minimum period and the class-recommended value.
func (c Capabilities) OptimalBufferMs() uint32 {
	minPeriodMs := uint32(c.Period.MinPeriod100ns / 10_000)
	minSafe := minPeriodMs * 2
	recommended := c.Class.BufferMs()
	if minSafe > recommended {
		return minSafe
	}
	return recommended
}

// OptimalRingMs returns the distribution ring duration for numRenderers
// adopted endpoints: class_base + 25ms per renderer.
func (c Capabilities) OptimalRingMs(numRenderers int) uint32 {
	return c.Class.RingBaseMs() + uint32(numRenderers)*25
}

// Default returns conservative capabilities for use when a period probe
// fails (10ms min/default period, Standard class).
func Default() Capabilities {
	return Capabilities{
		Period: audiohost.DevicePeriod{MinPeriod100ns: 100_000, DefaultPeriod100ns: 100_000},
		Class:  Standard,
	}
}
