// Package sink provides playback destinations for composite audio chunks.
// Sinks include a structured-log sink, a WAV recorder, local speaker output
// through oto or PortAudio (selected with build tags), and a fan-out sink.
package sink
