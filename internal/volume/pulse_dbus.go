package volume

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/godbus/dbus/v5"
)

// pulseCore1Path is PulseAudio/PipeWire-pulse's fixed D-Bus object path for
// its Core1 interface, reached over the session bus once its server
// address is discovered (PulseAudio publishes this via a well-known file
// under XDG_RUNTIME_DIR rather than bus activation).
const pulseCore1Path = dbus.ObjectPath("/org/pulseaudio/core1")

// PulseSource queries master volume and mute over PulseAudio/PipeWire's
// D-Bus module (module-dbus-protocol), the portable equivalent of WASAPI's
// IAudioEndpointVolume on Linux desktops.
type PulseSource struct {
	conn *dbus.Conn
	core dbus.BusObject
}

// NewPulseSource connects to the PulseAudio D-Bus server. It looks up the
// server's private bus address the same way `pactl` and other PulseAudio
// clients do: a file named by the module's instance under
// XDG_RUNTIME_DIR/pulse, falling back to the session bus if the module
// published itself there instead.
func NewPulseSource() (*PulseSource, error) {
	addr, err := discoverPulseBusAddress()
	var conn *dbus.Conn
	if err == nil {
		conn, err = dbus.Dial(addr)
		if err == nil {
			err = conn.Auth(nil)
		}
	}
	if err != nil || conn == nil {
		conn, err = dbus.ConnectSessionBus()
		if err != nil {
			return nil, fmt.Errorf("volume: connect pulseaudio dbus: %w", err)
		}
	}
	return &PulseSource{
		conn: conn,
		core: conn.Object("org.PulseAudio.Core1", pulseCore1Path),
	}, nil
}

func discoverPulseBusAddress() (string, error) {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		return "", fmt.Errorf("volume: XDG_RUNTIME_DIR not set")
	}
	path := filepath.Join(runtimeDir, "pulse", "dbus-socket")
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return "unix:path=" + path, nil
}

// Query returns the fallback device's effective volume and mute flag. The
// endpointID argument is accepted for interface symmetry with
// audiohost.Host.MasterVolume but is not used: PulseAudio's dbus module
// only exposes the server's FallbackSink, not an arbitrary endpoint.
func (p *PulseSource) Query(endpointID string) (scalar float64, muted bool, err error) {
	var sinkPath dbus.ObjectPath
	if err := p.core.Call("org.freedesktop.DBus.Properties.Get", 0,
		"org.PulseAudio.Core1", "FallbackSink").Store(&sinkPath); err != nil {
		return 0, false, fmt.Errorf("volume: get fallback sink: %w", err)
	}
	sink := p.conn.Object("org.PulseAudio.Core1", sinkPath)

	var volumeSteps []uint32
	if err := sink.Call("org.freedesktop.DBus.Properties.Get", 0,
		"org.PulseAudio.Core1.Device", "Volume").Store(&volumeSteps); err != nil {
		return 0, false, fmt.Errorf("volume: get sink volume: %w", err)
	}
	if err := sink.Call("org.freedesktop.DBus.Properties.Get", 0,
		"org.PulseAudio.Core1.Device", "Mute").Store(&muted); err != nil {
		return 0, false, fmt.Errorf("volume: get sink mute: %w", err)
	}

	const pulseVolumeNorm = 65536.0
	if len(volumeSteps) == 0 {
		return 1.0, muted, nil
	}
	var sum float64
	for _, step := range volumeSteps {
		sum += float64(step)
	}
	scalar = sum / float64(len(volumeSteps)) / pulseVolumeNorm
	return scalar, muted, nil
}

// Close releases the D-Bus connection.
func (p *PulseSource) Close() error {
	return p.conn.Close()
}
