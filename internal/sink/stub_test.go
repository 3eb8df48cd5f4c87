//go:build !oto && !portaudio
// +build !oto,!portaudio

package sink

import (
	"errors"
	"testing"

	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/config"
)

func TestNewDeviceOutputsUnavailable(t *testing.T) {
	for _, output := range []string{config.OutputOto, config.OutputPortAudio} {
		cfg := config.SinkConfig{
			Outputs:   []string{config.OutputLog, output},
			Volume:    70,
			QueueSize: 4,
		}

		if _, err := New(cfg, testFormat, testLogger()); !errors.Is(err, ErrUnavailable) {
			t.Errorf("%s: expected ErrUnavailable, got %v", output, err)
		}
	}
}
