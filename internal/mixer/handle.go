// ABOUTME: Playback handle lifecycle for the mixer
// ABOUTME: Tracks per-clip position, volume, and state transitions
package mixer

import (
	"sync"

	"github.com/google/uuid"

	"github.com/VoiceDeck/voicedeck-go/pkg/audio"
)

// HandleState tracks a clip's progress through the mixer
type HandleState int

const (
	HandleQueued HandleState = iota
	HandlePlaying
	HandleFinished
	HandleStopped
	HandleCancelled
)

func (s HandleState) String() string {
	switch s {
	case HandleQueued:
		return "queued"
	case HandlePlaying:
		return "playing"
	case HandleFinished:
		return "finished"
	case HandleStopped:
		return "stopped"
	case HandleCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the handle has left the mixer
func (s HandleState) Terminal() bool {
	return s == HandleFinished || s == HandleStopped || s == HandleCancelled
}

// Handle is one playing (or queued) clip on a bus. The mixer owns a
// buffer reference for the handle's lifetime and releases it exactly
// once on any terminal transition.
type Handle struct {
	ID  string
	Bus string

	mu       sync.Mutex
	state    HandleState
	buf      *audio.Buffer
	pos      int // sample offset into buf
	volume   float64
	stopReq  bool
	released sync.Once
}

func newHandle(bus string, buf *audio.Buffer, volume float64) *Handle {
	return &Handle{
		ID:     uuid.New().String(),
		Bus:    bus,
		state:  HandleQueued,
		buf:    buf,
		volume: volume,
	}
}

// State returns the handle's current lifecycle state
func (h *Handle) State() HandleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// SetVolume adjusts playback gain. Takes effect at the next block.
func (h *Handle) SetVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	h.mu.Lock()
	h.volume = volume
	h.mu.Unlock()
}

// Volume returns the handle's current gain
func (h *Handle) Volume() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.volume
}

// requestStop marks the handle for removal. A queued handle cancels
// immediately; a playing one stops at the next block boundary.
func (h *Handle) requestStop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case HandleQueued:
		h.state = HandleCancelled
		h.releaseLocked()
	case HandlePlaying:
		h.stopReq = true
	}
}

// releaseLocked drops the handle's buffer reference. Callers hold h.mu.
func (h *Handle) releaseLocked() {
	h.released.Do(func() {
		h.buf.Release()
		h.buf = nil
	})
}
