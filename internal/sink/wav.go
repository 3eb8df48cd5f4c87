package sink

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-audio/wav"

	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/audio"
)

// WAVSink appends composite chunks to <dir>/<stream>.wav
type WAVSink struct {
	dir    string
	format Format
	logger *slog.Logger

	mu         sync.Mutex
	recordings map[string]*recording
	closed     bool
}

// recording is one open WAV file
type recording struct {
	path    string
	file    *os.File
	encoder *wav.Encoder
	lastID  int64
	started bool
	bytes   int
}

// NewWAVSink creates a WAV recorder writing into dir
func NewWAVSink(dir string, format Format, logger *slog.Logger) (*WAVSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create recording directory %s: %w", dir, err)
	}

	return &WAVSink{
		dir:        dir,
		format:     format,
		logger:     logger,
		recordings: make(map[string]*recording),
	}, nil
}

// Play appends pcm to the stream's recording.
// A chunk ID that is not newer than the last written one is ignored.
func (s *WAVSink) Play(_ context.Context, stream string, chunkID int64, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	rec, ok := s.recordings[stream]
	if !ok {
		var err error
		rec, err = s.open(stream)
		if err != nil {
			return err
		}
		s.recordings[stream] = rec
	}

	if rec.started && chunkID <= rec.lastID {
		s.logger.Debug("Ignoring repeated chunk",
			slog.String("stream", stream),
			slog.Int64("chunk_id", chunkID),
		)
		return nil
	}

	if err := rec.encoder.Write(audio.IntBuffer(pcm, s.format.SampleRate, s.format.Channels)); err != nil {
		return fmt.Errorf("failed to write chunk to %s: %w", rec.path, err)
	}

	rec.lastID = chunkID
	rec.started = true
	rec.bytes += len(pcm)
	return nil
}

// Stop finalizes the stream's recording
func (s *WAVSink) Stop(_ context.Context, stream string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recordings[stream]
	if !ok {
		return nil
	}
	delete(s.recordings, stream)

	return s.finalize(rec)
}

// Close finalizes every open recording
func (s *WAVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	for stream, rec := range s.recordings {
		if err := s.finalize(rec); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.recordings, stream)
	}

	return firstErr
}

// Path returns the file a stream is recorded to
func (s *WAVSink) Path(stream string) string {
	return filepath.Join(s.dir, filepath.Base(stream)+".wav")
}

func (s *WAVSink) open(stream string) (*recording, error) {
	path := s.Path(stream)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording %s: %w", path, err)
	}

	s.logger.Info("Recording stream",
		slog.String("stream", stream),
		slog.String("path", path),
	)

	return &recording{
		path:    path,
		file:    file,
		encoder: wav.NewEncoder(file, s.format.SampleRate, 16, s.format.Channels, 1),
	}, nil
}

func (s *WAVSink) finalize(rec *recording) error {
	encErr := rec.encoder.Close()
	fileErr := rec.file.Close()

	s.logger.Info("Recording finalized",
		slog.String("path", rec.path),
		slog.Int("bytes", rec.bytes),
	)

	if encErr != nil {
		return fmt.Errorf("failed to finalize %s: %w", rec.path, encErr)
	}
	if fileErr != nil {
		return fmt.Errorf("failed to close %s: %w", rec.path, fileErr)
	}
	return nil
}
