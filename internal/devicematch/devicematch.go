// Package devicematch resolves the engine's device_ids/exclude_ids/
// use_all_devices configuration (spec.md §6) against a list of enumerated
// endpoints. Kept independent of internal/engine so the allow-list,
// deny-list, and HDMI-keyword resolution order is unit-testable on its own,
// mirroring the wemux reference's standalone device/filter.rs.
package devicematch

import "strings"

// hdmiKeywords are the friendly-name substrings that identify an HDMI-class
// audio output, carried over verbatim from the reference implementation.
var hdmiKeywords = []string{
	"hdmi",
	"nvidia high definition audio",
	"intel display audio",
	"amd high definition audio",
	"display audio",
}

// IsHDMIName reports whether a friendly name indicates an HDMI-class output.
func IsHDMIName(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range hdmiKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// IsHDMIID reports whether a device id hints at an HDMI-class output.
func IsHDMIID(id string) bool {
	lower := strings.ToLower(id)
	return strings.Contains(lower, "hdmi") || strings.Contains(lower, "display")
}

// Endpoint is the minimal shape devicematch needs from an enumerated
// endpoint; audiohost.EndpointInfo satisfies it structurally.
type Endpoint struct {
	ID           string
	FriendlyName string
}

// Config mirrors the engine configuration keys from spec.md §6 that affect
// which endpoints are adopted.
type Config struct {
	DeviceIDs      []string // allow-list; substring matched against id or name
	ExcludeIDs     []string // deny-list; same matching rule, applied after allow-list
	UseAllDevices  bool     // when false, restrict to the HDMI keyword/id set
}

// Resolve returns the subset of endpoints that should be adopted as
// renderers, applying the allow-list, then the deny-list, then (whenever
// use_all_devices is false) the HDMI filter.
func Resolve(endpoints []Endpoint, cfg Config) []Endpoint {
	out := make([]Endpoint, 0, len(endpoints))

	if len(cfg.DeviceIDs) > 0 {
		for _, ep := range endpoints {
			if matchesAny(ep, cfg.DeviceIDs) {
				out = append(out, ep)
			}
		}
	} else {
		out = append(out, endpoints...)
	}

	if len(cfg.ExcludeIDs) > 0 {
		filtered := out[:0:0]
		for _, ep := range out {
			if !matchesAny(ep, cfg.ExcludeIDs) {
				filtered = append(filtered, ep)
			}
		}
		out = filtered
	}

	if !cfg.UseAllDevices {
		filtered := out[:0:0]
		for _, ep := range out {
			if IsHDMIName(ep.FriendlyName) || IsHDMIID(ep.ID) {
				filtered = append(filtered, ep)
			}
		}
		out = filtered
	}

	return out
}

func matchesAny(ep Endpoint, patterns []string) bool {
	idLower := strings.ToLower(ep.ID)
	nameLower := strings.ToLower(ep.FriendlyName)
	for _, p := range patterns {
		pl := strings.ToLower(p)
		if strings.Contains(idLower, pl) || strings.Contains(nameLower, pl) {
			return true
		}
	}
	return false
}
