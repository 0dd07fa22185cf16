// ABOUTME: Linear-interpolation resampler and buffer format conversion
// ABOUTME: Brings decoded clips into the mixer's fixed output format
package resample

import (
	"github.com/VoiceDeck/voicedeck-go/pkg/audio"
)

// Resampler performs linear interpolation to convert between sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	position   float64
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
	}
}

// Resample converts input samples to the output sample rate using linear
// interpolation. Both slices hold interleaved samples. Returns the number
// of output samples produced.
func (r *Resampler) Resample(input []int32, output []int32) int {
	if len(input) == 0 {
		return 0
	}

	inputFrames := len(input) / r.channels
	outputFrames := len(output) / r.channels

	outIdx := 0
	for outIdx < outputFrames {
		inputPos := r.position
		inputIdx := int(inputPos)

		if inputIdx >= inputFrames-1 {
			break
		}

		frac := inputPos - float64(inputIdx)

		for ch := 0; ch < r.channels; ch++ {
			sample1 := input[inputIdx*r.channels+ch]
			sample2 := input[(inputIdx+1)*r.channels+ch]
			interpolated := float64(sample1)*(1.0-frac) + float64(sample2)*frac
			output[outIdx*r.channels+ch] = int32(interpolated)
		}

		outIdx++
		r.position += r.ratio
	}

	// Keep fractional position for the next chunk
	r.position -= float64(int(r.position))

	return outIdx * r.channels
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	r.position = 0.0
}

// OutputSamplesNeeded calculates how many output samples will be produced
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	outputFrames := int(float64(inputFrames) / r.ratio)
	return outputFrames * r.channels
}

// ToFormat converts a decoded buffer to the target format, remixing
// channels and resampling as needed. Returns the input buffer unchanged
// when it already matches.
func ToFormat(buf *audio.Buffer, target audio.Format) *audio.Buffer {
	src := buf
	if src.Format().Channels != target.Channels {
		src = remixChannels(src, target.Channels)
	}
	if src.Format().SampleRate == target.SampleRate {
		return src
	}

	r := New(src.Format().SampleRate, target.SampleRate, target.Channels)
	out := make([]int32, r.OutputSamplesNeeded(len(src.Samples()))+target.Channels)
	n := r.Resample(src.Samples(), out)
	return audio.NewBuffer(out[:n], target)
}

// remixChannels converts between mono and stereo interleaving. Mono
// sources duplicate to every output channel; multi-channel sources
// average down to mono.
func remixChannels(buf *audio.Buffer, channels int) *audio.Buffer {
	srcChannels := buf.Format().Channels
	frames := buf.Frames()
	src := buf.Samples()
	out := make([]int32, frames*channels)

	switch {
	case srcChannels == 1:
		for i := 0; i < frames; i++ {
			for ch := 0; ch < channels; ch++ {
				out[i*channels+ch] = src[i]
			}
		}
	case channels == 1:
		for i := 0; i < frames; i++ {
			var sum int64
			for ch := 0; ch < srcChannels; ch++ {
				sum += int64(src[i*srcChannels+ch])
			}
			out[i] = int32(sum / int64(srcChannels))
		}
	default:
		// Same channel count handled by caller; other layouts take the
		// first N channels
		for i := 0; i < frames; i++ {
			for ch := 0; ch < channels; ch++ {
				out[i*channels+ch] = src[i*srcChannels+ch%srcChannels]
			}
		}
	}

	format := audio.Format{SampleRate: buf.Format().SampleRate, Channels: channels}
	return audio.NewBuffer(out, format)
}
