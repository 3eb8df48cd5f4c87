//go:build !portaudio
// +build !portaudio

package sink

import (
	"fmt"
	"log/slog"
)

// NewPortAudioSink is unavailable without the portaudio build tag
func NewPortAudioSink(_ Format, _, _ int, _ *slog.Logger) (Sink, error) {
	return nil, fmt.Errorf("portaudio output: %w (rebuild with -tags portaudio)", ErrUnavailable)
}
