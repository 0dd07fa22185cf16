// ABOUTME: Tests for clip decoding
// ABOUTME: Covers WAV decoding, raw PCM wrapping, and failure classification
package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/VoiceDeck/voicedeck-go/pkg/audio"
)

// buildWAV constructs a minimal 16-bit PCM WAV file in memory
func buildWAV(sampleRate int, channels int, samples []int16) []byte {
	dataLen := len(samples) * 2
	buf := new(bytes.Buffer)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*channels*2))
	binary.Write(buf, binary.LittleEndian, uint16(channels*2))
	binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	for _, s := range samples {
		binary.Write(buf, binary.LittleEndian, s)
	}

	return buf.Bytes()
}

func TestWAVDecode(t *testing.T) {
	pcm := []int16{0, 100, -100, 32767, -32768, 0, 1, -1}
	data := buildWAV(44100, 2, pcm)

	buf, err := WAV(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("WAV decode failed: %v", err)
	}

	format := buf.Format()
	if format.SampleRate != 44100 {
		t.Errorf("expected sample rate 44100, got %d", format.SampleRate)
	}
	if format.Channels != 2 {
		t.Errorf("expected 2 channels, got %d", format.Channels)
	}
	if len(buf.Samples()) != len(pcm) {
		t.Fatalf("expected %d samples, got %d", len(pcm), len(buf.Samples()))
	}

	for i, want := range pcm {
		if got := buf.Samples()[i]; got != audio.SampleFromInt16(want) {
			t.Errorf("sample %d: expected %d, got %d", i, audio.SampleFromInt16(want), got)
		}
	}
}

func TestWAVDecodeCorrupt(t *testing.T) {
	_, err := WAV(bytes.NewReader([]byte("definitely not audio data")))
	if err == nil {
		t.Fatal("expected error for corrupt input")
	}
	if !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func TestPCM16(t *testing.T) {
	data := []byte{0x00, 0x00, 0x64, 0x00, 0x9C, 0xFF} // 0, 100, -100
	buf := PCM16(data, audio.Format{SampleRate: 44100, Channels: 1})

	want := []int32{0, 100 << 8, -100 << 8}
	if len(buf.Samples()) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(buf.Samples()))
	}
	for i, w := range want {
		if got := buf.Samples()[i]; got != w {
			t.Errorf("sample %d: expected %d, got %d", i, w, got)
		}
	}
}

func TestFileDispatch(t *testing.T) {
	dir := t.TempDir()

	wavPath := filepath.Join(dir, "clip.wav")
	if err := os.WriteFile(wavPath, buildWAV(22050, 1, []int16{1, 2, 3}), 0o644); err != nil {
		t.Fatal(err)
	}

	buf, err := File(wavPath)
	if err != nil {
		t.Fatalf("File dispatch failed for wav: %v", err)
	}
	if buf.Format().SampleRate != 22050 {
		t.Errorf("expected 22050, got %d", buf.Format().SampleRate)
	}
}

func TestFileUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := File(path)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestFileMissing(t *testing.T) {
	_, err := File("/nonexistent/clip.wav")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
