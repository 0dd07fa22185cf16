// ABOUTME: FLAC audio decoder
// ABOUTME: Decodes FLAC streams frame-by-frame to int32 samples
package decode

import (
	"fmt"
	"io"

	"github.com/mewkiz/flac"

	"github.com/VoiceDeck/voicedeck-go/pkg/audio"
)

// FLAC decodes a FLAC stream into a buffer, converting the source bit
// depth to the 24-bit range.
func FLAC(r io.Reader) (*audio.Buffer, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("%w: create flac stream: %v", ErrDecode, err)
	}

	info := stream.Info
	channels := int(info.NChannels)
	bitDepth := int(info.BitsPerSample)

	var samples []int32
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: flac frame parse: %v", ErrDecode, err)
		}

		// Interleave the per-channel subframes
		for i := 0; i < int(frame.BlockSize); i++ {
			for ch := 0; ch < channels; ch++ {
				sample := frame.Subframes[ch].Samples[i]
				switch {
				case bitDepth == 24:
					samples = append(samples, sample)
				case bitDepth < 24:
					samples = append(samples, sample<<(24-bitDepth))
				default:
					samples = append(samples, sample>>(bitDepth-24))
				}
			}
		}
	}

	format := audio.Format{SampleRate: int(info.SampleRate), Channels: channels}
	return audio.NewBuffer(samples, format), nil
}
