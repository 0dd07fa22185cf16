// ABOUTME: Decoder entry points and error definitions
// ABOUTME: Dispatches clip decoding by file extension
package decode

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/VoiceDeck/voicedeck-go/pkg/audio"
)

// ErrDecode is the terminal decode failure. Every decoder wraps it so
// callers can classify bad input files with errors.Is.
var ErrDecode = errors.New("audio decode failed")

// ErrUnsupportedFormat indicates a file extension no decoder handles.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// File decodes an audio file into a buffer, dispatching on extension.
// Supported: .wav, .mp3, .flac, .ogg, .opus
func File(path string) (*audio.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		return WAV(f)
	case ".mp3":
		return MP3(f)
	case ".flac":
		return FLAC(f)
	case ".ogg", ".opus":
		return Opus(f)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

// PCM16 wraps raw little-endian 16-bit PCM bytes in a buffer. Used for
// synthesis results delivered as bare sample data.
func PCM16(data []byte, format audio.Format) *audio.Buffer {
	numSamples := len(data) / 2
	samples := make([]int32, numSamples)
	for i := 0; i < numSamples; i++ {
		sample16 := int16(uint16(data[i*2]) | uint16(data[i*2+1])<<8)
		samples[i] = audio.SampleFromInt16(sample16)
	}
	return audio.NewBuffer(samples, format)
}
