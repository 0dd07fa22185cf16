// ABOUTME: In-memory routing backend for tests and headless operation
// ABOUTME: Devices can be unplugged and sinks record what they receive
package router

import (
	"fmt"
	"sync"

	"github.com/VoiceDeck/voicedeck-go/pkg/audio"
)

// MemoryBackend simulates a device topology. Tests add and remove
// devices to exercise route degradation and recovery.
type MemoryBackend struct {
	mu      sync.Mutex
	devices map[string]Device
	sinks   map[string]*MemorySink
	failing map[string]bool
	virtual int
}

func NewMemoryBackend(devices ...Device) *MemoryBackend {
	b := &MemoryBackend{
		devices: make(map[string]Device),
		sinks:   make(map[string]*MemorySink),
		failing: make(map[string]bool),
	}
	for _, d := range devices {
		b.devices[d.ID] = d
	}
	return b
}

// AddDevice plugs a device in
func (b *MemoryBackend) AddDevice(d Device) {
	b.mu.Lock()
	b.devices[d.ID] = d
	b.mu.Unlock()
}

// RemoveDevice unplugs a device. Its open sink starts failing.
func (b *MemoryBackend) RemoveDevice(id string) {
	b.mu.Lock()
	delete(b.devices, id)
	if sink := b.sinks[id]; sink != nil {
		sink.setFailing(true)
	}
	b.mu.Unlock()
}

// FailDevice leaves the device enumerable but makes writes error
func (b *MemoryBackend) FailDevice(id string, fail bool) {
	b.mu.Lock()
	b.failing[id] = fail
	if sink := b.sinks[id]; sink != nil {
		sink.setFailing(fail)
	}
	b.mu.Unlock()
}

// Sink returns the currently open sink for a device, if any
func (b *MemoryBackend) Sink(id string) *MemorySink {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sinks[id]
}

func (b *MemoryBackend) Enumerate() ([]Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Device, 0, len(b.devices))
	for _, d := range b.devices {
		out = append(out, d)
	}
	return out, nil
}

func (b *MemoryBackend) Open(deviceID string, format audio.Format) (Sink, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.devices[deviceID]; !ok {
		return nil, fmt.Errorf("no such device %q", deviceID)
	}
	sink := &MemorySink{format: format}
	sink.setFailing(b.failing[deviceID])
	b.sinks[deviceID] = sink
	return sink, nil
}

func (b *MemoryBackend) CreateVirtual(name string, kind VirtualKind) (Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.virtual++
	dev := Device{
		ID:      fmt.Sprintf("virtual-%d", b.virtual),
		Name:    name,
		Kind:    DeviceVirtual,
		Virtual: kind,
	}
	b.devices[dev.ID] = dev
	return dev, nil
}

func (b *MemoryBackend) Close() error {
	return nil
}

// MemorySink records written blocks
type MemorySink struct {
	mu      sync.Mutex
	format  audio.Format
	blocks  [][]int32
	failing bool
	closed  bool
}

func (s *MemorySink) Write(samples []int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return fmt.Errorf("sink write failed")
	}
	if s.closed {
		return fmt.Errorf("sink closed")
	}
	cp := make([]int32, len(samples))
	copy(cp, samples)
	s.blocks = append(s.blocks, cp)
	return nil
}

func (s *MemorySink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Blocks returns everything written so far
func (s *MemorySink) Blocks() [][]int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]int32, len(s.blocks))
	copy(out, s.blocks)
	return out
}

// Closed reports whether the sink was closed
func (s *MemorySink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *MemorySink) setFailing(fail bool) {
	s.mu.Lock()
	s.failing = fail
	s.mu.Unlock()
}
