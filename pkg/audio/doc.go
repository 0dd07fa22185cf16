// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Buffer types and sample conversion functions
// Package audio provides fundamental audio types shared across the engine.
//
// This package defines the core types used throughout the codebase:
//   - Format: Describes a PCM stream format (sample rate, channels)
//   - Buffer: Immutable, reference-counted decoded PCM audio
//
// Samples are int32 values in the 24-bit range regardless of source bit
// depth. Utilities convert between 16-bit and the 24-bit range:
//
//	// Convert a 16-bit sample into the 24-bit range
//	sample24 := audio.SampleFromInt16(sample16)
package audio
