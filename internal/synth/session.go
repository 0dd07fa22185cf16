// ABOUTME: Explicit synthesis session state machine
// ABOUTME: Tracks per-request protocol progress as an inspectable value
package synth

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State identifies where a session is in the backend protocol
type State int

const (
	StateIdle State = iota
	StateVoiceConfigured
	StateSeedAssigned
	StateGenerating
	StateComplete
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateVoiceConfigured:
		return "voice_configured"
	case StateSeedAssigned:
		return "seed_assigned"
	case StateGenerating:
		return "generating"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed || s == StateCancelled
}

// validNext holds the legal forward transitions. Failed and Cancelled
// are reachable from any non-terminal state.
var validNext = map[State]State{
	StateIdle:            StateVoiceConfigured,
	StateVoiceConfigured: StateSeedAssigned,
	StateSeedAssigned:    StateGenerating,
	StateGenerating:      StateComplete,
}

// Session is one end-to-end synthesis attempt. Protocol steps are
// strictly ordered: outputs of earlier exchanges (the audio seed, the
// speaker embedding) feed later ones, so a session never runs its steps
// in parallel. Distinct sessions share nothing and run concurrently.
type Session struct {
	ID      string
	Request Request

	mu        sync.Mutex
	state     State
	err       error
	audioSeed float64
	textSeed  float64
	embedding string
	started   time.Time
}

// NewSession creates an idle session for a normalized request
func NewSession(req Request) *Session {
	return &Session{
		ID:      uuid.New().String(),
		Request: req,
		state:   StateIdle,
		started: time.Now(),
	}
}

// State returns the current protocol state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the terminal error, if any
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// advance moves the session to the next forward state. It rejects
// transitions that skip a protocol step or leave a terminal state.
func (s *Session) advance(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return fmt.Errorf("session %s already %s", s.ID, s.state)
	}
	if validNext[s.state] != next {
		return fmt.Errorf("session %s cannot move %s -> %s", s.ID, s.state, next)
	}
	s.state = next
	return nil
}

// fail marks the session Failed with its terminal error
func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.state = StateFailed
	s.err = err
}

// cancel marks the session Cancelled
func (s *Session) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.state = StateCancelled
	s.err = ErrCancelled
}

func (s *Session) setSeeds(audioSeed, textSeed float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioSeed = audioSeed
	s.textSeed = textSeed
}

func (s *Session) setEmbedding(embedding string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embedding = embedding
}

// Seeds returns the backend-assigned audio and text seeds
func (s *Session) Seeds() (audio, text float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioSeed, s.textSeed
}

// Embedding returns the speaker embedding derived from the audio seed
func (s *Session) Embedding() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.embedding
}

// Age returns how long the session has been running
func (s *Session) Age() time.Duration {
	return time.Since(s.started)
}
