// ABOUTME: Ogg/Opus audio decoder
// ABOUTME: Decodes Opus-in-Ogg clips to int32 samples
package decode

import (
	"fmt"
	"io"

	"gopkg.in/hraban/opus.v2"

	"github.com/VoiceDeck/voicedeck-go/pkg/audio"
)

const (
	// Opus always decodes at 48kHz; streams are decoded as stereo
	opusSampleRate = 48000
	opusChannels   = 2
)

// Opus decodes an Ogg/Opus stream into a buffer
func Opus(r io.Reader) (*audio.Buffer, error) {
	stream, err := opus.NewStream(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open opus stream: %v", ErrDecode, err)
	}
	defer stream.Close()

	var samples []int32
	pcm := make([]int16, 16384)
	for {
		n, err := stream.Read(pcm)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: opus decode: %v", ErrDecode, err)
		}
		for _, s := range pcm[:n*opusChannels] {
			samples = append(samples, audio.SampleFromInt16(s))
		}
	}

	format := audio.Format{SampleRate: opusSampleRate, Channels: opusChannels}
	return audio.NewBuffer(samples, format), nil
}
