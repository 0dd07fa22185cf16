// ABOUTME: Synthesis request type and cache key normalization
// ABOUTME: Equivalent requests normalize to the same deterministic key
package synth

import (
	"fmt"
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Request describes one synthesis job
type Request struct {
	Text   string
	Voice  string
	Speed  float64
	Pitch  float64
	Volume float64
	Format string
}

// normalize fills defaults and canonicalizes fields so that equivalent
// requests collide deterministically: voice ids are trimmed and
// lowercased, numeric parameters rounded to two decimals.
func (r Request) normalize(defaultVoice string) Request {
	n := r
	n.Text = strings.TrimSpace(r.Text)
	n.Voice = strings.ToLower(strings.TrimSpace(r.Voice))
	if n.Voice == "" {
		n.Voice = strings.ToLower(strings.TrimSpace(defaultVoice))
	}
	if n.Speed == 0 {
		n.Speed = 1.0
	}
	if n.Volume == 0 {
		n.Volume = 1.0
	}
	n.Speed = round2(n.Speed)
	n.Pitch = round2(n.Pitch)
	n.Volume = round2(n.Volume)
	if n.Format == "" {
		n.Format = "wav"
	}
	n.Format = strings.ToLower(n.Format)
	return n
}

// Key returns the content-addressed cache key for the normalized request
func (r Request) Key() string {
	h := xxhash.New()
	fmt.Fprintf(h, "%s|%s|%.2f|%.2f|%.2f|%s",
		r.Text, r.Voice, r.Speed, r.Pitch, r.Volume, r.Format)
	return fmt.Sprintf("tts_%016x", h.Sum64())
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
