// Package audio handles raw PCM buffers for the mixing engine.
// It implements tail-first chunk extraction, signed 16-bit mixing with clamping,
// volume scaling, and WAV decoding into the engine's PCM representation.
package audio
