package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/config"
)

var (
	// ErrQueueFull is returned when a device sink cannot accept another chunk
	ErrQueueFull = errors.New("playback queue full")

	// ErrClosed is returned by sinks used after Close
	ErrClosed = errors.New("sink closed")

	// ErrUnavailable is returned when a sink was not compiled into the binary
	ErrUnavailable = errors.New("sink not available in this build")
)

// Sink receives composite chunks from the scheduler.
// Play must not block for the chunk's playback duration; chunkID is unique per call.
type Sink interface {
	Play(ctx context.Context, stream string, chunkID int64, pcm []byte) error
	Stop(ctx context.Context, stream string) error
	Close() error
}

// Format describes the PCM layout handed to sinks
type Format struct {
	SampleRate int
	Channels   int
}

// New builds the sink described by cfg.
// Several outputs are combined with a Multi sink.
func New(cfg config.SinkConfig, format Format, logger *slog.Logger) (Sink, error) {
	sinks := make([]Sink, 0, len(cfg.Outputs))

	closeAll := func() {
		for _, s := range sinks {
			s.Close()
		}
	}

	for _, output := range cfg.Outputs {
		var (
			s   Sink
			err error
		)

		switch output {
		case config.OutputLog:
			s = NewLogSink(logger, format)
		case config.OutputWAV:
			s, err = NewWAVSink(cfg.WAVDir, format, logger)
		case config.OutputOto:
			s, err = NewOtoSink(format, cfg.Volume, cfg.QueueSize, logger)
		case config.OutputPortAudio:
			s, err = NewPortAudioSink(format, cfg.Volume, cfg.QueueSize, logger)
		default:
			err = fmt.Errorf("unknown output %q", output)
		}

		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to create %s sink: %w", output, err)
		}

		logger.Info("Playback sink created", slog.String("output", output))
		sinks = append(sinks, s)
	}

	if len(sinks) == 1 {
		return sinks[0], nil
	}

	return NewMulti(sinks...), nil
}
