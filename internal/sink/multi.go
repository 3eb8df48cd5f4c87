package sink

import (
	"context"
	"errors"
)

// Multi fans every call out to several sinks
type Multi struct {
	sinks []Sink
}

// NewMulti creates a fan-out sink
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Play hands the chunk to every sink; one failing sink does not stop the others
func (m *Multi) Play(ctx context.Context, stream string, chunkID int64, pcm []byte) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Play(ctx, stream, chunkID, pcm); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stop stops the stream on every sink
func (m *Multi) Stop(ctx context.Context, stream string) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Stop(ctx, stream); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
