// ABOUTME: Device and backend abstractions for audio routing
// ABOUTME: Backends enumerate endpoints and open sinks the router writes to
package router

import (
	"errors"

	"github.com/VoiceDeck/voicedeck-go/pkg/audio"
)

// DeviceKind distinguishes hardware endpoints from virtual ones
type DeviceKind int

const (
	DevicePhysical DeviceKind = iota
	DeviceVirtual
)

// VirtualKind names the flavors of virtual endpoint a backend can
// provide. A cable pipes output into another application's input; a
// loopback mirrors a physical device; a mix endpoint merges streams.
type VirtualKind string

const (
	VirtualCable    VirtualKind = "cable"
	VirtualLoopback VirtualKind = "loopback"
	VirtualMix      VirtualKind = "mixer"
)

// Device describes one playback endpoint
type Device struct {
	ID      string
	Name    string
	Kind    DeviceKind
	Virtual VirtualKind // set when Kind is DeviceVirtual
	Default bool
}

// Sink is an open playback stream on a device. Write delivers one
// block of interleaved samples in the mix format.
type Sink interface {
	Write(samples []int32) error
	Close() error
}

// Backend provides device access for one audio API
type Backend interface {
	// Enumerate lists currently available playback devices
	Enumerate() ([]Device, error)
	// Open starts a playback stream on the device
	Open(deviceID string, format audio.Format) (Sink, error)
	// CreateVirtual provisions (or locates) a virtual endpoint
	CreateVirtual(name string, kind VirtualKind) (Device, error)
	// Close releases backend resources
	Close() error
}

var (
	ErrDeviceUnavailable  = errors.New("router: device unavailable")
	ErrRouteExists        = errors.New("router: device already routed")
	ErrVirtualUnsupported = errors.New("router: backend cannot provide virtual devices")
	ErrClosed             = errors.New("router: closed")
)
