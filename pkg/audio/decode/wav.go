// ABOUTME: WAV audio decoder
// ABOUTME: Decodes RIFF/WAVE files to int32 samples
package decode

import (
	"fmt"
	"io"

	"github.com/go-audio/wav"

	"github.com/VoiceDeck/voicedeck-go/pkg/audio"
)

// WAV decodes a RIFF/WAVE stream into a buffer
func WAV(r io.ReadSeeker) (*audio.Buffer, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid WAV file", ErrDecode)
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: read WAV data: %v", ErrDecode, err)
	}
	if pcm.Format == nil || pcm.Format.NumChannels == 0 {
		return nil, fmt.Errorf("%w: WAV missing format chunk", ErrDecode)
	}

	bitDepth := int(dec.BitDepth)
	samples := make([]int32, len(pcm.Data))
	switch bitDepth {
	case 16:
		for i, s := range pcm.Data {
			samples[i] = audio.SampleFromInt16(int16(s))
		}
	case 24:
		for i, s := range pcm.Data {
			samples[i] = int32(s)
		}
	case 32:
		for i, s := range pcm.Data {
			samples[i] = int32(s >> 8)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported WAV bit depth %d", ErrDecode, bitDepth)
	}

	format := audio.Format{
		SampleRate: pcm.Format.SampleRate,
		Channels:   pcm.Format.NumChannels,
	}
	return audio.NewBuffer(samples, format), nil
}
