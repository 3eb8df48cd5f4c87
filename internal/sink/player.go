package sink

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/audio"
)

// queuePlayer feeds chunks to a blocking device writer from its own goroutine,
// so Play returns immediately while the device plays in real time.
type queuePlayer struct {
	name   string
	volume int
	logger *slog.Logger
	write  func(pcm []byte) error

	queue chan []byte
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func newQueuePlayer(name string, volume, size int, logger *slog.Logger, write func([]byte) error) *queuePlayer {
	if size < 1 {
		size = 1
	}

	p := &queuePlayer{
		name:   name,
		volume: volume,
		logger: logger,
		write:  write,
		queue:  make(chan []byte, size),
	}

	p.wg.Add(1)
	go p.run()

	return p
}

func (p *queuePlayer) run() {
	defer p.wg.Done()

	for pcm := range p.queue {
		if err := p.write(pcm); err != nil {
			p.logger.Warn("Device write failed",
				slog.String("sink", p.name),
				slog.Int("bytes", len(pcm)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Play queues pcm for playback at the configured volume
func (p *queuePlayer) Play(_ context.Context, _ string, _ int64, pcm []byte) error {
	scaled := audio.ApplyVolume(pcm, p.volume)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	select {
	case p.queue <- scaled:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop discards queued chunks that have not reached the device yet
func (p *queuePlayer) Stop(_ context.Context, _ string) error {
	dropped := 0
	for {
		select {
		case <-p.queue:
			dropped++
		default:
			if dropped > 0 {
				p.logger.Debug("Discarded queued chunks",
					slog.String("sink", p.name),
					slog.Int("dropped", dropped),
				)
			}
			return nil
		}
	}
}

// Close stops accepting chunks and waits for the writer to drain
func (p *queuePlayer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

// releaseAll runs every step even after a failure and joins the errors
func releaseAll(steps ...func() error) error {
	var errs []error
	for _, step := range steps {
		if err := step(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
