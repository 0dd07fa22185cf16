// ABOUTME: Malgo (miniaudio) routing backend with device enumeration
// ABOUTME: Opens callback-driven sinks fed through a ring buffer
package router

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/VoiceDeck/voicedeck-go/pkg/audio"
)

// virtualCableMarkers identify installed virtual audio drivers by
// device name. Backends cannot conjure OS-level endpoints; a "created"
// virtual device is a located one.
var virtualCableMarkers = []string{
	"CABLE Input",
	"VB-Audio",
	"Voicemeeter",
	"BlackHole",
	"Soundflower",
}

// MalgoBackend enumerates and opens devices through miniaudio
type MalgoBackend struct {
	mu  sync.Mutex
	ctx *malgo.AllocatedContext
	ids map[string]malgo.DeviceID // device id -> native id, from last enumerate
}

// NewMalgoBackend initializes a miniaudio context
func NewMalgoBackend() (*MalgoBackend, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("malgo context init: %w", err)
	}
	return &MalgoBackend{ctx: ctx, ids: make(map[string]malgo.DeviceID)}, nil
}

// Enumerate lists playback devices. Installed virtual cables are
// recognized by name and reported as virtual.
func (b *MalgoBackend) Enumerate() ([]Device, error) {
	infos, err := b.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("device enumeration: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.ids = make(map[string]malgo.DeviceID, len(infos))

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		name := strings.TrimRight(info.Name(), "\x00")
		id := deviceSlug(name)
		b.ids[id] = info.ID

		dev := Device{
			ID:      id,
			Name:    name,
			Kind:    DevicePhysical,
			Default: info.IsDefault != 0,
		}
		if isVirtualName(name) {
			dev.Kind = DeviceVirtual
			dev.Virtual = VirtualCable
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

// Open starts a callback-driven playback stream on the device
func (b *MalgoBackend) Open(deviceID string, format audio.Format) (Sink, error) {
	b.mu.Lock()
	nativeID, ok := b.ids[deviceID]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown device %q", deviceID)
	}

	// Half a second of buffer absorbs tick jitter without audible lag
	s := &malgoSink{
		ring:     newRingBuffer(format.SampleRate * format.Channels / 2),
		channels: format.Channels,
	}

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS32
	config.Playback.Channels = uint32(format.Channels)
	config.Playback.DeviceID = nativeID.Pointer()
	config.SampleRate = uint32(format.SampleRate)
	config.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			s.fill(pOutput, frameCount)
		},
	}

	device, err := malgo.InitDevice(b.ctx.Context, config, callbacks)
	if err != nil {
		return nil, fmt.Errorf("device init: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("device start: %w", err)
	}
	s.device = device
	return s, nil
}

// CreateVirtual locates an installed virtual driver endpoint matching
// name.
func (b *MalgoBackend) CreateVirtual(name string, kind VirtualKind) (Device, error) {
	if kind != VirtualCable {
		return Device{}, fmt.Errorf("%w: kind %q needs driver support", ErrVirtualUnsupported, kind)
	}
	devices, err := b.Enumerate()
	if err != nil {
		return Device{}, err
	}
	for _, dev := range devices {
		if dev.Kind == DeviceVirtual && strings.Contains(strings.ToLower(dev.Name), strings.ToLower(name)) {
			return dev, nil
		}
	}
	for _, dev := range devices {
		if dev.Kind == DeviceVirtual {
			return dev, nil
		}
	}
	return Device{}, fmt.Errorf("%w: no virtual cable driver installed", ErrVirtualUnsupported)
}

// Close releases the miniaudio context
func (b *MalgoBackend) Close() error {
	if err := b.ctx.Uninit(); err != nil {
		return err
	}
	b.ctx.Free()
	return nil
}

// malgoSink feeds the device callback from a ring buffer
type malgoSink struct {
	device   *malgo.Device
	ring     *ringBuffer
	channels int
	scratch  []int32 // fill's reusable drain buffer; callbacks are serial
	closed   sync.Once
}

func (s *malgoSink) Write(samples []int32) error {
	s.ring.write(samples)
	return nil
}

// fill drains the ring into the device's 32-bit output buffer,
// zero-filling on underrun. Samples are left-justified from the 24-bit
// range into the 32-bit container. The scratch slice is reused across
// callbacks to keep the audio path allocation-free.
func (s *malgoSink) fill(out []byte, frameCount uint32) {
	n := int(frameCount) * s.channels
	if cap(s.scratch) < n {
		s.scratch = make([]int32, n)
	}
	samples := s.scratch[:n]
	s.ring.read(samples)

	for i, sample := range samples {
		v := sample << 8
		out[i*4] = byte(v)
		out[i*4+1] = byte(v >> 8)
		out[i*4+2] = byte(v >> 16)
		out[i*4+3] = byte(v >> 24)
	}
}

func (s *malgoSink) Close() error {
	s.closed.Do(func() {
		if s.device != nil {
			s.device.Stop()
			s.device.Uninit()
		}
	})
	return nil
}

func isVirtualName(name string) bool {
	for _, marker := range virtualCableMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}

// deviceSlug derives a stable id from a device name
func deviceSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, slug)
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return strings.Trim(slug, "-")
}

// ringBuffer is a fixed-size circular sample queue. The device
// callback reads while the router writes.
type ringBuffer struct {
	mu       sync.Mutex
	buf      []int32
	readPos  int
	writePos int
	count    int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{buf: make([]int32, capacity)}
}

// write appends samples, discarding what does not fit
func (rb *ringBuffer) write(samples []int32) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for _, s := range samples {
		if rb.count == len(rb.buf) {
			break
		}
		rb.buf[rb.writePos] = s
		rb.writePos = (rb.writePos + 1) % len(rb.buf)
		rb.count++
		written++
	}
	return written
}

// read fills out, zero-padding past the available samples
func (rb *ringBuffer) read(out []int32) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	read := 0
	for read < len(out) && rb.count > 0 {
		out[read] = rb.buf[rb.readPos]
		rb.readPos = (rb.readPos + 1) % len(rb.buf)
		rb.count--
		read++
	}
	for i := read; i < len(out); i++ {
		out[i] = 0
	}
	return read
}

func (rb *ringBuffer) available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}
