package devicematch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHDMIDetection(t *testing.T) {
	assert.True(t, IsHDMIName("NVIDIA High Definition Audio"))
	assert.True(t, IsHDMIName("Intel Display Audio"))
	assert.True(t, IsHDMIName("AMD High Definition Audio Device"))
	assert.True(t, IsHDMIName("HDMI Output"))
	assert.False(t, IsHDMIName("Realtek Audio"))
	assert.False(t, IsHDMIName("Speakers"))
}

func TestResolveDefaultsToHDMIOnly(t *testing.T) {
	endpoints := []Endpoint{
		{ID: "ep1", FriendlyName: "Speakers (Realtek)"},
		{ID: "ep2", FriendlyName: "NVIDIA HDMI Output"},
		{ID: "ep3", FriendlyName: "USB DAC"},
	}
	got := Resolve(endpoints, Config{})
	assert.Equal(t, []Endpoint{{ID: "ep2", FriendlyName: "NVIDIA HDMI Output"}}, got)
}

func TestResolveUseAllDevices(t *testing.T) {
	endpoints := []Endpoint{
		{ID: "ep1", FriendlyName: "Speakers"},
		{ID: "ep2", FriendlyName: "HDMI Output"},
	}
	got := Resolve(endpoints, Config{UseAllDevices: true})
	assert.Len(t, got, 2)
}

func TestResolveAllowListThenDenyList(t *testing.T) {
	endpoints := []Endpoint{
		{ID: "ep1", FriendlyName: "Speakers"},
		{ID: "ep2", FriendlyName: "HDMI Output"},
		{ID: "ep3", FriendlyName: "Other HDMI"},
	}
	got := Resolve(endpoints, Config{
		DeviceIDs:     []string{"hdmi"},
		ExcludeIDs:    []string{"ep3"},
		UseAllDevices: true,
	})
	assert.Equal(t, []Endpoint{{ID: "ep2", FriendlyName: "HDMI Output"}}, got)
}
