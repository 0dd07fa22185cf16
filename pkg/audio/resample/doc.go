// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts buffers to the fixed mixing format
// Package resample provides audio sample rate and channel conversion.
//
// Uses linear interpolation for converting between sample rates and
// simple remixing for channel count changes. Clip import uses ToFormat
// to bring arbitrary source material into the mixer's fixed format.
//
// Example:
//
//	mixed := resample.ToFormat(clip, audio.Format{SampleRate: 48000, Channels: 2})
package resample
