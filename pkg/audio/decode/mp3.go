// ABOUTME: MP3 audio decoder
// ABOUTME: Decodes MP3 streams to int32 samples
package decode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"

	"github.com/VoiceDeck/voicedeck-go/pkg/audio"
)

// MP3 decodes an MP3 stream into a buffer. The go-mp3 decoder always
// outputs 16-bit stereo at the source sample rate.
func MP3(r io.Reader) (*audio.Buffer, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("%w: create mp3 decoder: %v", ErrDecode, err)
	}

	var samples []int32
	buf := make([]byte, 8192)
	for {
		n, err := dec.Read(buf)
		for i := 0; i+1 < n; i += 2 {
			sample16 := int16(binary.LittleEndian.Uint16(buf[i:]))
			samples = append(samples, audio.SampleFromInt16(sample16))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: mp3 decode: %v", ErrDecode, err)
		}
	}

	format := audio.Format{SampleRate: dec.SampleRate(), Channels: 2}
	return audio.NewBuffer(samples, format), nil
}
