// ABOUTME: Audio decoder package for clip import and synthesis results
// ABOUTME: Decodes WAV, MP3, FLAC, and Ogg/Opus into PCM buffers
// Package decode turns encoded audio into audio.Buffer values.
//
// Supports: WAV (16/24-bit), MP3, FLAC, Ogg/Opus
//
// All decoders output int32 samples in the 24-bit range for consistent
// processing in the mixing pipeline. Decoders consume a whole clip at
// once; sound effects and synthesized phrases are short, so one-shot
// decoding keeps buffer ownership simple.
package decode
