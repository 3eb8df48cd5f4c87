//go:build !oto
// +build !oto

package sink

import (
	"fmt"
	"log/slog"
)

// NewOtoSink is unavailable without the oto build tag
func NewOtoSink(_ Format, _, _ int, _ *slog.Logger) (Sink, error) {
	return nil, fmt.Errorf("oto output: %w (rebuild with -tags oto)", ErrUnavailable)
}
