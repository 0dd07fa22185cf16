// ABOUTME: Oto routing backend exposing only the system default device
// ABOUTME: Fallback for platforms where miniaudio is unavailable
package router

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/VoiceDeck/voicedeck-go/pkg/audio"
)

const otoDefaultDeviceID = "default"

// OtoBackend plays through the OS default output only. Oto exposes no
// device selection and allows one context per process, so the backend
// reports a single device and rejects virtual creation.
type OtoBackend struct {
	mu  sync.Mutex
	ctx *oto.Context
}

func NewOtoBackend() *OtoBackend {
	return &OtoBackend{}
}

func (b *OtoBackend) Enumerate() ([]Device, error) {
	return []Device{{
		ID:      otoDefaultDeviceID,
		Name:    "System Default Output",
		Kind:    DevicePhysical,
		Default: true,
	}}, nil
}

func (b *OtoBackend) Open(deviceID string, format audio.Format) (Sink, error) {
	if deviceID != otoDefaultDeviceID {
		return nil, fmt.Errorf("unknown device %q", deviceID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: format.Channels,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			return nil, fmt.Errorf("oto context: %w", err)
		}
		<-ready
		b.ctx = ctx
	}

	pr, pw := io.Pipe()
	player := b.ctx.NewPlayer(pr)
	player.Play()

	return &otoSink{player: player, pr: pr, pw: pw}, nil
}

func (b *OtoBackend) CreateVirtual(string, VirtualKind) (Device, error) {
	return Device{}, ErrVirtualUnsupported
}

func (b *OtoBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx != nil {
		b.ctx.Suspend()
	}
	return nil
}

// otoSink streams 16-bit PCM through a pipe into a persistent player
type otoSink struct {
	player *oto.Player
	pr     *io.PipeReader
	pw     *io.PipeWriter
	closed sync.Once
}

func (s *otoSink) Write(samples []int32) error {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(audio.SampleToInt16(sample)))
	}
	if _, err := s.pw.Write(out); err != nil {
		return fmt.Errorf("pipe write: %w", err)
	}
	return nil
}

func (s *otoSink) Close() error {
	s.closed.Do(func() {
		s.pw.Close()
		s.player.Close()
		s.pr.Close()
	})
	return nil
}
