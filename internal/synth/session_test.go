// ABOUTME: Tests for the session state machine
// ABOUTME: Verifies ordered transitions and terminal stickiness
package synth

import (
	"errors"
	"testing"
)

func TestSessionHappyPath(t *testing.T) {
	s := NewSession(Request{Text: "hello", Voice: "default"})

	if s.State() != StateIdle {
		t.Fatalf("expected idle, got %s", s.State())
	}

	steps := []State{StateVoiceConfigured, StateSeedAssigned, StateGenerating, StateComplete}
	for _, next := range steps {
		if err := s.advance(next); err != nil {
			t.Fatalf("advance to %s failed: %v", next, err)
		}
		if s.State() != next {
			t.Fatalf("expected %s, got %s", next, s.State())
		}
	}

	if !s.State().Terminal() {
		t.Error("complete should be terminal")
	}
}

func TestSessionRejectsSkippedSteps(t *testing.T) {
	s := NewSession(Request{Text: "hello"})

	if err := s.advance(StateSeedAssigned); err == nil {
		t.Error("expected error skipping voice configuration")
	}
	if err := s.advance(StateGenerating); err == nil {
		t.Error("expected error skipping to generating")
	}
	if s.State() != StateIdle {
		t.Errorf("failed transition should not change state, got %s", s.State())
	}
}

func TestSessionFailIsTerminal(t *testing.T) {
	s := NewSession(Request{Text: "hello"})
	if err := s.advance(StateVoiceConfigured); err != nil {
		t.Fatal(err)
	}

	cause := errors.New("backend exploded")
	s.fail(cause)

	if s.State() != StateFailed {
		t.Fatalf("expected failed, got %s", s.State())
	}
	if !errors.Is(s.Err(), cause) {
		t.Errorf("expected stored error, got %v", s.Err())
	}

	if err := s.advance(StateSeedAssigned); err == nil {
		t.Error("expected error advancing a failed session")
	}

	// A later cancel must not overwrite the failure
	s.cancel()
	if s.State() != StateFailed {
		t.Errorf("cancel overwrote terminal state: %s", s.State())
	}
}

func TestSessionCancel(t *testing.T) {
	s := NewSession(Request{Text: "hello"})
	s.cancel()

	if s.State() != StateCancelled {
		t.Fatalf("expected cancelled, got %s", s.State())
	}
	if !errors.Is(s.Err(), ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", s.Err())
	}
}

func TestSessionStepData(t *testing.T) {
	s := NewSession(Request{Text: "hello"})
	s.setSeeds(42.0, 7.0)
	s.setEmbedding("emb-42")

	a, txt := s.Seeds()
	if a != 42.0 || txt != 7.0 {
		t.Errorf("unexpected seeds: %v, %v", a, txt)
	}
	if s.Embedding() != "emb-42" {
		t.Errorf("unexpected embedding: %s", s.Embedding())
	}
}

func TestStateStrings(t *testing.T) {
	names := map[State]string{
		StateIdle:            "idle",
		StateVoiceConfigured: "voice_configured",
		StateSeedAssigned:    "seed_assigned",
		StateGenerating:      "generating",
		StateComplete:        "complete",
		StateFailed:          "failed",
		StateCancelled:       "cancelled",
	}
	for state, want := range names {
		if state.String() != want {
			t.Errorf("expected %q, got %q", want, state.String())
		}
	}
}
