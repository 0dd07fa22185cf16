// ABOUTME: Real-time multi-bus software mixer
// ABOUTME: Sums concurrent clips into fixed-size blocks on a steady tick
package mixer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/VoiceDeck/voicedeck-go/pkg/audio"
	"github.com/VoiceDeck/voicedeck-go/pkg/audio/resample"
)

// Mix bus format is fixed: every clip is converted on enqueue.
const (
	SampleRate    = 48000
	Channels      = 2
	BlockDuration = 20 * time.Millisecond
	BlockFrames   = SampleRate / 50
	blockSamples  = BlockFrames * Channels
)

// MixFormat is the bus format all clips are converted into
var MixFormat = audio.Format{SampleRate: SampleRate, Channels: Channels}

var (
	ErrTooManyConcurrentSounds = errors.New("mixer: bus at concurrent sound limit")
	ErrClosed                  = errors.New("mixer: closed")
)

const defaultMaxHandles = 16

// Output receives rendered blocks, one per bus per tick. WriteBlock
// must not retain samples past the call.
type Output interface {
	WriteBlock(busID string, samples []int32)
}

type bus struct {
	gain       float64
	maxHandles int
	handles    []*Handle
}

// Stats is a snapshot of mixer activity
type Stats struct {
	Buses          int
	ActiveHandles  int
	QueuedHandles  int
	BlocksRendered uint64
	Rejected       uint64
}

// Mixer sums concurrent clips per bus into 20ms blocks. Buses are
// created on first use; a clip beyond a bus's handle limit is rejected
// rather than queued behind the limit.
type Mixer struct {
	out Output
	log *log.Logger

	mu     sync.Mutex
	buses  map[string]*bus
	closed bool

	blocks   uint64
	rejected uint64

	scratch []int64 // block accumulator, reused across ticks
}

// New creates a mixer feeding out
func New(out Output, logger *log.Logger) *Mixer {
	if logger == nil {
		logger = log.Default()
	}
	return &Mixer{
		out:     out,
		log:     logger.WithPrefix("mixer"),
		buses:   make(map[string]*bus),
		scratch: make([]int64, blockSamples),
	}
}

// ConfigureBus sets a bus's concurrent handle limit and master gain,
// creating the bus if needed.
func (m *Mixer) ConfigureBus(busID string, maxHandles int, gain float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.busLocked(busID)
	if maxHandles > 0 {
		b.maxHandles = maxHandles
	}
	if gain >= 0 {
		b.gain = gain
	}
}

// SetBusGain adjusts a bus's master volume
func (m *Mixer) SetBusGain(busID string, gain float64) {
	if gain < 0 {
		gain = 0
	}
	m.mu.Lock()
	m.busLocked(busID).gain = gain
	m.mu.Unlock()
}

func (m *Mixer) busLocked(busID string) *bus {
	b, ok := m.buses[busID]
	if !ok {
		b = &bus{gain: 1.0, maxHandles: defaultMaxHandles}
		m.buses[busID] = b
	}
	return b
}

// StartHandle enqueues buf for playback on busID at the given volume
// and returns immediately; audio begins at the next block boundary.
// The mixer takes its own buffer reference.
func (m *Mixer) StartHandle(busID string, buf *audio.Buffer, volume float64) (*Handle, error) {
	if volume <= 0 {
		volume = 1.0
	}

	converted := resample.ToFormat(buf, MixFormat)
	if converted == buf {
		converted = buf.Retain()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		converted.Release()
		return nil, ErrClosed
	}

	b := m.busLocked(busID)
	live := 0
	for _, h := range b.handles {
		if !h.State().Terminal() {
			live++
		}
	}
	if live >= b.maxHandles {
		m.rejected++
		converted.Release()
		return nil, ErrTooManyConcurrentSounds
	}

	h := newHandle(busID, converted, volume)
	b.handles = append(b.handles, h)
	m.log.Debug("handle queued", "handle", h.ID, "bus", busID, "duration", converted.Duration())
	return h, nil
}

// Stop removes a handle. Queued handles cancel immediately; playing
// ones stop at the next block boundary.
func (m *Mixer) Stop(h *Handle) {
	h.requestStop()
}

// StopAll stops every live handle on every bus
func (m *Mixer) StopAll() {
	m.mu.Lock()
	var all []*Handle
	for _, b := range m.buses {
		all = append(all, b.handles...)
	}
	m.mu.Unlock()

	for _, h := range all {
		h.requestStop()
	}
}

// Run drives the mixer on a steady block cadence until ctx is done
func (m *Mixer) Run(ctx context.Context) {
	ticker := time.NewTicker(BlockDuration)
	defer ticker.Stop()

	m.log.Info("mixer running", "rate", SampleRate, "channels", Channels, "block", BlockDuration)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Render()
		}
	}
}

// Close stops all handles and rejects further work
func (m *Mixer) Close() {
	m.StopAll()
	m.Render() // apply pending stops and release buffers
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

// Stats returns a snapshot of mixer counters
func (m *Mixer) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{
		Buses:          len(m.buses),
		BlocksRendered: m.blocks,
		Rejected:       m.rejected,
	}
	for _, b := range m.buses {
		for _, h := range b.handles {
			switch h.State() {
			case HandlePlaying:
				s.ActiveHandles++
			case HandleQueued:
				s.QueuedHandles++
			}
		}
	}
	return s
}

// Render mixes one block per bus and advances handle state. Run calls
// it on every tick; callers without a running loop drive it directly.
func (m *Mixer) Render() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for busID, b := range m.buses {
		m.renderBus(busID, b)
	}
	m.blocks++
}

func (m *Mixer) renderBus(busID string, b *bus) {
	for i := range m.scratch {
		m.scratch[i] = 0
	}

	live := b.handles[:0]
	mixed := false
	for _, h := range b.handles {
		if m.mixHandle(h, b.gain) {
			mixed = true
		}
		if !h.State().Terminal() {
			live = append(live, h)
		}
	}
	b.handles = live

	if !mixed || m.out == nil {
		return
	}

	block := make([]int32, blockSamples)
	for i, s := range m.scratch {
		block[i] = audio.Clamp24(s)
	}
	m.out.WriteBlock(busID, block)
}

// mixHandle adds one block of h into the scratch accumulator and
// advances its state. Returns true when it contributed samples.
func (m *Mixer) mixHandle(h *Handle, busGain float64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state.Terminal() {
		return false
	}
	if h.stopReq {
		h.state = HandleStopped
		h.releaseLocked()
		return false
	}
	if h.state == HandleQueued {
		h.state = HandlePlaying
	}

	samples := h.buf.Samples()
	gain := h.volume * busGain

	n := len(samples) - h.pos
	if n > blockSamples {
		n = blockSamples
	}
	for i := 0; i < n; i++ {
		m.scratch[i] += int64(float64(samples[h.pos+i]) * gain)
	}
	h.pos += n

	if h.pos >= len(samples) {
		h.state = HandleFinished
		h.releaseLocked()
	}
	return n > 0
}
