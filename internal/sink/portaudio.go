//go:build portaudio
// +build portaudio

package sink

import (
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"

	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/audio"
)

const framesPerBuffer = 1024

// PortAudioSink plays composite chunks on the default PortAudio output stream
type PortAudioSink struct {
	*queuePlayer

	stream *portaudio.Stream
	out    []int16
}

// NewPortAudioSink initializes PortAudio and starts the default output stream
func NewPortAudioSink(format Format, volume, queueSize int, logger *slog.Logger) (*PortAudioSink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}

	s := &PortAudioSink{
		out: make([]int16, framesPerBuffer*format.Channels),
	}

	stream, err := portaudio.OpenDefaultStream(0, format.Channels, float64(format.SampleRate), framesPerBuffer, s.out)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("opening stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("starting stream: %w", err)
	}
	s.stream = stream

	s.queuePlayer = newQueuePlayer("portaudio", volume, queueSize, logger, s.write)

	logger.Info("PortAudio output started",
		slog.Int("sample_rate", format.SampleRate),
		slog.Int("frames_per_buffer", framesPerBuffer),
	)

	return s, nil
}

// write copies pcm through the stream buffer one block at a time,
// padding the final block with silence
func (s *PortAudioSink) write(pcm []byte) error {
	samples := audio.BytesToSamples(pcm)

	for off := 0; off < len(samples); off += len(s.out) {
		n := copy(s.out, samples[off:])
		for i := n; i < len(s.out); i++ {
			s.out[i] = 0
		}
		if err := s.stream.Write(); err != nil {
			return fmt.Errorf("writing stream: %w", err)
		}
	}
	return nil
}

// Close drains the queue and shuts PortAudio down
func (s *PortAudioSink) Close() error {
	return releaseAll(
		s.queuePlayer.Close,
		func() error {
			if err := s.stream.Stop(); err != nil {
				return fmt.Errorf("stopping stream: %w", err)
			}
			return nil
		},
		func() error {
			if err := s.stream.Close(); err != nil {
				return fmt.Errorf("closing stream: %w", err)
			}
			return nil
		},
		portaudio.Terminate,
	)
}
