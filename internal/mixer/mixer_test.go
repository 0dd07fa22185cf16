// ABOUTME: Tests for the software mixer
// ABOUTME: Drives render directly for deterministic block-level assertions
package mixer

import (
	"errors"
	"sync"
	"testing"

	"github.com/VoiceDeck/voicedeck-go/pkg/audio"
)

// captureOutput records rendered blocks per bus
type captureOutput struct {
	mu     sync.Mutex
	blocks map[string][][]int32
}

func newCaptureOutput() *captureOutput {
	return &captureOutput{blocks: make(map[string][][]int32)}
}

func (o *captureOutput) WriteBlock(busID string, samples []int32) {
	cp := make([]int32, len(samples))
	copy(cp, samples)
	o.mu.Lock()
	o.blocks[busID] = append(o.blocks[busID], cp)
	o.mu.Unlock()
}

func (o *captureOutput) count(busID string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.blocks[busID])
}

func (o *captureOutput) last(busID string) []int32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	bs := o.blocks[busID]
	if len(bs) == 0 {
		return nil
	}
	return bs[len(bs)-1]
}

// constantBuffer builds a mix-format buffer of blocks frames at value
func constantBuffer(blocks int, value int32) *audio.Buffer {
	samples := make([]int32, blocks*blockSamples)
	for i := range samples {
		samples[i] = value
	}
	return audio.NewBuffer(samples, MixFormat)
}

func TestHandleLifecycle(t *testing.T) {
	out := newCaptureOutput()
	m := New(out, nil)

	buf := constantBuffer(2, 1000)
	h, err := m.StartHandle("main", buf, 1.0)
	if err != nil {
		t.Fatalf("StartHandle failed: %v", err)
	}
	if got := h.State(); got != HandleQueued {
		t.Fatalf("state after start = %v, want queued", got)
	}

	m.Render()
	if got := h.State(); got != HandlePlaying {
		t.Fatalf("state after first block = %v, want playing", got)
	}

	m.Render()
	if got := h.State(); got != HandleFinished {
		t.Fatalf("state after last block = %v, want finished", got)
	}
	if got := out.count("main"); got != 2 {
		t.Errorf("rendered %d blocks, want 2", got)
	}
	if got := buf.Refs(); got != 1 {
		t.Errorf("buffer refs after finish = %d, want caller's 1", got)
	}
}

func TestConcurrentLimitRejects(t *testing.T) {
	m := New(newCaptureOutput(), nil)
	m.ConfigureBus("main", 2, 1.0)

	buf := constantBuffer(10, 100)
	defer buf.Release()

	if _, err := m.StartHandle("main", buf, 1.0); err != nil {
		t.Fatal(err)
	}
	if _, err := m.StartHandle("main", buf, 1.0); err != nil {
		t.Fatal(err)
	}
	_, err := m.StartHandle("main", buf, 1.0)
	if !errors.Is(err, ErrTooManyConcurrentSounds) {
		t.Fatalf("expected ErrTooManyConcurrentSounds, got %v", err)
	}
	if got := m.Stats().Rejected; got != 1 {
		t.Errorf("rejected = %d, want 1", got)
	}

	// Another bus is unaffected by the first bus's limit
	if _, err := m.StartHandle("alt", buf, 1.0); err != nil {
		t.Errorf("other bus rejected: %v", err)
	}
}

func TestStopQueuedCancelsImmediately(t *testing.T) {
	m := New(newCaptureOutput(), nil)

	buf := constantBuffer(5, 100)
	h, err := m.StartHandle("main", buf, 1.0)
	if err != nil {
		t.Fatal(err)
	}

	m.Stop(h)
	if got := h.State(); got != HandleCancelled {
		t.Fatalf("state = %v, want cancelled", got)
	}
	if got := buf.Refs(); got != 1 {
		t.Errorf("buffer refs = %d, want 1", got)
	}
}

func TestStopPlayingAtBlockBoundary(t *testing.T) {
	out := newCaptureOutput()
	m := New(out, nil)

	buf := constantBuffer(10, 100)
	defer buf.Release()
	h, err := m.StartHandle("main", buf, 1.0)
	if err != nil {
		t.Fatal(err)
	}

	m.Render()
	if got := h.State(); got != HandlePlaying {
		t.Fatalf("state = %v, want playing", got)
	}

	m.Stop(h)
	// Stop takes effect at the next boundary, not mid-block
	if got := h.State(); got != HandlePlaying {
		t.Fatalf("state right after Stop = %v, want still playing", got)
	}

	m.Render()
	if got := h.State(); got != HandleStopped {
		t.Fatalf("state after boundary = %v, want stopped", got)
	}
	if got := out.count("main"); got != 1 {
		t.Errorf("stopped handle contributed %d blocks, want 1", got)
	}
}

func TestMixSumsAndClamps(t *testing.T) {
	out := newCaptureOutput()
	m := New(out, nil)

	// Two near-full-scale clips would exceed the 24-bit range; the mix
	// must clamp rather than wrap.
	loud := int32(audio.Max24Bit - 10)
	a := constantBuffer(1, loud)
	b := constantBuffer(1, loud)
	defer a.Release()
	defer b.Release()

	if _, err := m.StartHandle("main", a, 1.0); err != nil {
		t.Fatal(err)
	}
	if _, err := m.StartHandle("main", b, 1.0); err != nil {
		t.Fatal(err)
	}
	m.Render()

	block := out.last("main")
	if block == nil {
		t.Fatal("no block rendered")
	}
	for i, s := range block {
		if s != audio.Max24Bit {
			t.Fatalf("sample %d = %d, want clamped %d", i, s, audio.Max24Bit)
		}
	}
}

func TestStopOneClipOtherContinues(t *testing.T) {
	out := newCaptureOutput()
	m := New(out, nil)

	a := constantBuffer(4, 100)
	b := constantBuffer(4, 200)
	defer a.Release()
	defer b.Release()

	ha, err := m.StartHandle("main", a, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.StartHandle("main", b, 1.0); err != nil {
		t.Fatal(err)
	}

	m.Render()
	if got := out.last("main")[0]; got != 300 {
		t.Fatalf("mixed sample = %d, want 300", got)
	}

	m.Stop(ha)
	m.Render()
	if got := out.last("main")[0]; got != 200 {
		t.Fatalf("sample after stop = %d, want 200", got)
	}
	if got := ha.State(); got != HandleStopped {
		t.Errorf("stopped handle state = %v", got)
	}
}

func TestVolumeAndBusGain(t *testing.T) {
	out := newCaptureOutput()
	m := New(out, nil)
	m.SetBusGain("main", 0.5)

	buf := constantBuffer(1, 1000)
	defer buf.Release()
	h, err := m.StartHandle("main", buf, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	_ = h

	m.Render()
	if got := out.last("main")[0]; got != 250 {
		t.Errorf("sample = %d, want 250 (0.5 handle * 0.5 bus)", got)
	}
}

func TestSetVolumeMidPlayback(t *testing.T) {
	out := newCaptureOutput()
	m := New(out, nil)

	buf := constantBuffer(3, 1000)
	defer buf.Release()
	h, err := m.StartHandle("main", buf, 1.0)
	if err != nil {
		t.Fatal(err)
	}

	m.Render()
	if got := out.last("main")[0]; got != 1000 {
		t.Fatalf("sample = %d, want 1000", got)
	}

	h.SetVolume(0.1)
	m.Render()
	if got := out.last("main")[0]; got != 100 {
		t.Errorf("sample after SetVolume = %d, want 100", got)
	}
}

func TestNonMixFormatClipConverted(t *testing.T) {
	out := newCaptureOutput()
	m := New(out, nil)

	// Mono 24kHz clip must be upmixed and resampled to the bus format
	samples := make([]int32, 24000/50) // one block worth at source rate
	for i := range samples {
		samples[i] = 500
	}
	buf := audio.NewBuffer(samples, audio.Format{SampleRate: 24000, Channels: 1})
	defer buf.Release()

	if _, err := m.StartHandle("main", buf, 1.0); err != nil {
		t.Fatal(err)
	}
	m.Render()

	block := out.last("main")
	if block == nil {
		t.Fatal("no block rendered")
	}
	if block[0] != 500 || block[1] != 500 {
		t.Errorf("converted samples = %d,%d, want 500,500", block[0], block[1])
	}
	if got := buf.Refs(); got != 1 {
		t.Errorf("source buffer refs = %d, want 1 (mixer owns the converted copy)", got)
	}
}

func TestCloseRejectsNewHandles(t *testing.T) {
	m := New(newCaptureOutput(), nil)
	buf := constantBuffer(2, 100)
	defer buf.Release()

	h, err := m.StartHandle("main", buf, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	m.Close()

	if !h.State().Terminal() {
		t.Errorf("handle not terminal after Close: %v", h.State())
	}
	if _, err := m.StartHandle("main", buf, 1.0); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestStatsSnapshot(t *testing.T) {
	m := New(newCaptureOutput(), nil)
	buf := constantBuffer(5, 100)
	defer buf.Release()

	if _, err := m.StartHandle("main", buf, 1.0); err != nil {
		t.Fatal(err)
	}
	s := m.Stats()
	if s.QueuedHandles != 1 || s.ActiveHandles != 0 {
		t.Errorf("before render: %+v", s)
	}

	m.Render()
	s = m.Stats()
	if s.ActiveHandles != 1 || s.QueuedHandles != 0 {
		t.Errorf("after render: %+v", s)
	}
	if s.BlocksRendered != 1 {
		t.Errorf("blocks = %d, want 1", s.BlocksRendered)
	}
}
