// ABOUTME: Trigger dispatch connecting bindings to clip and speech playback
// ABOUTME: Applies per-binding retrigger policy against live handles
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/VoiceDeck/voicedeck-go/internal/mixer"
	"github.com/VoiceDeck/voicedeck-go/internal/synth"
	"github.com/VoiceDeck/voicedeck-go/pkg/audio"
)

// RetriggerPolicy decides what firing an already-playing binding does
type RetriggerPolicy int

const (
	// RetriggerRestart stops the live handle and starts the clip over
	RetriggerRestart RetriggerPolicy = iota
	// RetriggerIgnore drops the trigger while a handle is live
	RetriggerIgnore
	// RetriggerLayer plays another copy on top
	RetriggerLayer
)

func (p RetriggerPolicy) String() string {
	switch p {
	case RetriggerRestart:
		return "restart"
	case RetriggerIgnore:
		return "ignore"
	case RetriggerLayer:
		return "layer"
	default:
		return "unknown"
	}
}

// ActionKind selects what a binding plays
type ActionKind int

const (
	ActionClip ActionKind = iota
	ActionSpeak
)

// Action is the playable side of a binding
type Action struct {
	Kind   ActionKind
	ClipID string        // ActionClip
	Speech synth.Request // ActionSpeak
}

// Binding maps a trigger id to an action on a bus
type Binding struct {
	Trigger   string
	Action    Action
	Bus       string
	Volume    float64
	Retrigger RetriggerPolicy
}

var (
	ErrBindingNotFound = errors.New("dispatch: no binding for trigger")
	ErrBindingExists   = errors.New("dispatch: trigger already bound")
)

// ClipSource resolves clip ids to playable buffers
type ClipSource interface {
	Buffer(id string) (*audio.Buffer, error)
}

// SpeechSource synthesizes text to playable buffers
type SpeechSource interface {
	Synthesize(ctx context.Context, req synth.Request) (*audio.Buffer, error)
}

// Player starts and stops playback handles
type Player interface {
	StartHandle(busID string, buf *audio.Buffer, volume float64) (*mixer.Handle, error)
	Stop(h *mixer.Handle)
}

// Dispatcher owns the binding table and live handle tracking
type Dispatcher struct {
	clips  ClipSource
	speech SpeechSource
	player Player
	log    *log.Logger

	mu       sync.Mutex
	bindings map[string]*Binding
	live     map[string][]*mixer.Handle // trigger -> handles started by it
}

// New creates a dispatcher. speech may be nil when synthesis is
// disabled; speak bindings then fail to fire.
func New(clips ClipSource, speech SpeechSource, player Player, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{
		clips:    clips,
		speech:   speech,
		player:   player,
		log:      logger.WithPrefix("dispatch"),
		bindings: make(map[string]*Binding),
		live:     make(map[string][]*mixer.Handle),
	}
}

// Bind registers a binding. Rebinding an existing trigger fails;
// Unbind first.
func (d *Dispatcher) Bind(b Binding) error {
	if b.Trigger == "" {
		return fmt.Errorf("dispatch: empty trigger id")
	}
	if b.Bus == "" {
		b.Bus = "main"
	}
	if b.Volume <= 0 {
		b.Volume = 1.0
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.bindings[b.Trigger]; ok {
		return fmt.Errorf("%w: %s", ErrBindingExists, b.Trigger)
	}
	d.bindings[b.Trigger] = &b
	d.log.Debug("trigger bound", "trigger", b.Trigger, "policy", b.Retrigger)
	return nil
}

// Unbind removes a binding, stopping anything it has playing
func (d *Dispatcher) Unbind(trigger string) error {
	d.mu.Lock()
	_, ok := d.bindings[trigger]
	delete(d.bindings, trigger)
	handles := d.live[trigger]
	delete(d.live, trigger)
	d.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrBindingNotFound, trigger)
	}
	for _, h := range handles {
		d.player.Stop(h)
	}
	return nil
}

// Bindings returns a snapshot of the binding table
func (d *Dispatcher) Bindings() []Binding {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Binding, 0, len(d.bindings))
	for _, b := range d.bindings {
		out = append(out, *b)
	}
	return out
}

// Trigger fires a binding. The retrigger policy applies against the
// binding's live handles; a speak action synthesizes (or hits the
// cache) before playing.
func (d *Dispatcher) Trigger(ctx context.Context, trigger string) (*mixer.Handle, error) {
	d.mu.Lock()
	b, ok := d.bindings[trigger]
	if !ok {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrBindingNotFound, trigger)
	}
	binding := *b
	alive := d.pruneLiveLocked(trigger)
	d.mu.Unlock()

	if len(alive) > 0 {
		switch binding.Retrigger {
		case RetriggerIgnore:
			d.log.Debug("trigger ignored, already playing", "trigger", trigger)
			return nil, nil
		case RetriggerRestart:
			for _, h := range alive {
				d.player.Stop(h)
			}
		case RetriggerLayer:
			// fall through and stack another handle
		}
	}

	buf, err := d.resolve(ctx, binding)
	if err != nil {
		return nil, err
	}
	defer buf.Release()

	h, err := d.player.StartHandle(binding.Bus, buf, binding.Volume)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.live[trigger] = append(d.pruneLiveLocked(trigger), h)
	d.mu.Unlock()

	d.log.Info("trigger fired", "trigger", trigger, "handle", h.ID, "bus", binding.Bus)
	return h, nil
}

// StopTrigger stops everything a trigger has playing
func (d *Dispatcher) StopTrigger(trigger string) {
	d.mu.Lock()
	handles := d.live[trigger]
	delete(d.live, trigger)
	d.mu.Unlock()

	for _, h := range handles {
		d.player.Stop(h)
	}
}

func (d *Dispatcher) resolve(ctx context.Context, b Binding) (*audio.Buffer, error) {
	switch b.Action.Kind {
	case ActionClip:
		return d.clips.Buffer(b.Action.ClipID)
	case ActionSpeak:
		if d.speech == nil {
			return nil, fmt.Errorf("dispatch: synthesis disabled")
		}
		return d.speech.Synthesize(ctx, b.Action.Speech)
	default:
		return nil, fmt.Errorf("dispatch: unknown action kind %d", b.Action.Kind)
	}
}

// pruneLiveLocked drops finished handles for a trigger and returns the
// remainder. Callers hold d.mu.
func (d *Dispatcher) pruneLiveLocked(trigger string) []*mixer.Handle {
	alive := d.live[trigger][:0]
	for _, h := range d.live[trigger] {
		if !h.State().Terminal() {
			alive = append(alive, h)
		}
	}
	d.live[trigger] = alive
	return alive
}
