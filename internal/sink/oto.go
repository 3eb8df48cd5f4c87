//go:build oto
// +build oto

package sink

import (
	"fmt"
	"log/slog"

	"github.com/hajimehoshi/oto"

	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/audio"
)

// otoBufferDuration is how much audio oto buffers ahead of the device, in milliseconds
const otoBufferDuration = 100

// OtoSink plays composite chunks on the default output device through oto
type OtoSink struct {
	*queuePlayer

	context *oto.Context
	player  *oto.Player
}

// NewOtoSink opens the default output device
func NewOtoSink(format Format, volume, queueSize int, logger *slog.Logger) (*OtoSink, error) {
	bufferBytes := format.SampleRate * otoBufferDuration / 1000 * format.Channels * audio.BytesPerSample

	ctx, err := oto.NewContext(format.SampleRate, format.Channels, audio.BytesPerSample, bufferBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize oto: %w", err)
	}

	s := &OtoSink{
		context: ctx,
		player:  ctx.NewPlayer(),
	}
	s.queuePlayer = newQueuePlayer("oto", volume, queueSize, logger, func(pcm []byte) error {
		_, err := s.player.Write(pcm)
		return err
	})

	logger.Info("Oto output opened",
		slog.Int("sample_rate", format.SampleRate),
		slog.Int("channels", format.Channels),
		slog.Int("volume", volume),
	)

	return s, nil
}

// Close drains the queue and releases the device
func (s *OtoSink) Close() error {
	return releaseAll(
		s.queuePlayer.Close,
		func() error {
			if err := s.player.Close(); err != nil {
				return fmt.Errorf("failed to close oto player: %w", err)
			}
			return nil
		},
		func() error {
			if err := s.context.Close(); err != nil {
				return fmt.Errorf("failed to close oto context: %w", err)
			}
			return nil
		},
	)
}
