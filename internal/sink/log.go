package sink

import (
	"context"
	"log/slog"
	"sync"

	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/audio"
)

// LogSink records every chunk in the structured log instead of playing it
type LogSink struct {
	logger *slog.Logger
	format Format

	mu     sync.Mutex
	chunks map[string]uint64
}

// NewLogSink creates a new log sink
func NewLogSink(logger *slog.Logger, format Format) *LogSink {
	return &LogSink{
		logger: logger,
		format: format,
		chunks: make(map[string]uint64),
	}
}

// Play logs the chunk at debug level
func (s *LogSink) Play(_ context.Context, stream string, chunkID int64, pcm []byte) error {
	s.mu.Lock()
	s.chunks[stream]++
	s.mu.Unlock()

	s.logger.Debug("Playing composite chunk",
		slog.String("stream", stream),
		slog.Int64("chunk_id", chunkID),
		slog.Int("bytes", len(pcm)),
		slog.Duration("duration", audio.ChunkDuration(len(pcm), s.format.SampleRate, s.format.Channels)),
	)
	return nil
}

// Stop logs the end of a stream
func (s *LogSink) Stop(_ context.Context, stream string) error {
	s.mu.Lock()
	played := s.chunks[stream]
	delete(s.chunks, stream)
	s.mu.Unlock()

	s.logger.Info("Playback stream stopped",
		slog.String("stream", stream),
		slog.Uint64("chunks_played", played),
	)
	return nil
}

// Played returns how many chunks were played on stream since its last Stop
func (s *LogSink) Played(stream string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks[stream]
}

// Close implements Sink
func (s *LogSink) Close() error {
	return nil
}
