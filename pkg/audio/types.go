// ABOUTME: Core audio type definitions
// ABOUTME: Defines formats and reference-counted PCM buffers
package audio

import (
	"sync/atomic"
	"time"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Format describes a PCM stream format
type Format struct {
	SampleRate int
	Channels   int
}

// FrameBytes returns the byte size of one interleaved frame (int32 samples)
func (f Format) FrameBytes() int {
	return f.Channels * 4
}

// Buffer holds decoded PCM audio. Samples are int32 in the 24-bit range
// regardless of source bit depth. A Buffer is immutable after creation and
// shared by reference: the synthesis cache and any number of playback
// handles may hold it simultaneously, tracked by a reference count.
type Buffer struct {
	format  Format
	samples []int32
	refs    atomic.Int32
}

// NewBuffer wraps decoded samples in a Buffer with an initial reference
// count of one. The caller must not modify samples afterwards.
func NewBuffer(samples []int32, format Format) *Buffer {
	b := &Buffer{format: format, samples: samples}
	b.refs.Store(1)
	return b
}

// Samples returns the interleaved PCM samples. Callers must treat the
// returned slice as read-only.
func (b *Buffer) Samples() []int32 {
	return b.samples
}

// Format returns the buffer's PCM format
func (b *Buffer) Format() Format {
	return b.format
}

// Frames returns the number of interleaved frames
func (b *Buffer) Frames() int {
	if b.format.Channels == 0 {
		return 0
	}
	return len(b.samples) / b.format.Channels
}

// Duration returns the playback duration at the buffer's sample rate
func (b *Buffer) Duration() time.Duration {
	if b.format.SampleRate == 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.format.SampleRate)
}

// SizeBytes returns the resident size of the sample data
func (b *Buffer) SizeBytes() int {
	return len(b.samples) * 4
}

// Retain increments the reference count and returns the buffer
func (b *Buffer) Retain() *Buffer {
	b.refs.Add(1)
	return b
}

// Release decrements the reference count. It returns true when the last
// holder released the buffer.
func (b *Buffer) Release() bool {
	return b.refs.Add(-1) == 0
}

// Refs returns the current reference count
func (b *Buffer) Refs() int32 {
	return b.refs.Load()
}

// SampleToInt16 converts an int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	return int16(sample >> 8)
}

// SampleFromInt16 converts an int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// Clamp24 clamps a widened sample to the 24-bit range
func Clamp24(sample int64) int32 {
	if sample > Max24Bit {
		return Max24Bit
	}
	if sample < Min24Bit {
		return Min24Bit
	}
	return int32(sample)
}
