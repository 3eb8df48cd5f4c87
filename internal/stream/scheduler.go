package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/audio"
	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/metrics"
	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/sink"
)

// Scheduler drains one complete cycle at a time, mixes it and hands the
// composite chunk to the sink, pacing itself to the chunk duration
type Scheduler struct {
	streamName    string
	chunkDuration time.Duration

	registry *Registry
	sink     sink.Sink
	clock    Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics
	notify   Listener

	mu    sync.RWMutex
	stats SchedulerStats
}

// SchedulerStats represents scheduler statistics
type SchedulerStats struct {
	Running       bool          `json:"running"`
	Cycles        uint64        `json:"cycles"`
	PartialCycles uint64        `json:"partial_cycles"`
	Overruns      uint64        `json:"overruns"`
	SinkErrors    uint64        `json:"sink_errors"`
	LastChunkID   int64         `json:"last_chunk_id"`
	LastSources   int           `json:"last_sources"`
	LastElapsed   time.Duration `json:"last_elapsed_ns"`
	LastSleep     time.Duration `json:"last_sleep_ns"`
}

// NewScheduler creates a scheduler playing registry cycles on out
func NewScheduler(streamName string, chunkDuration time.Duration, registry *Registry, out sink.Sink,
	clock Clock, logger *slog.Logger, m *metrics.Metrics, notify Listener) *Scheduler {

	if notify == nil {
		notify = func(Event) {}
	}

	return &Scheduler{
		streamName:    streamName,
		chunkDuration: chunkDuration,
		registry:      registry,
		sink:          out,
		clock:         clock,
		logger:        logger,
		metrics:       m,
		notify:        notify,
	}
}

// Run plays cycles until ctx is cancelled or the registry is closed
func (s *Scheduler) Run(ctx context.Context) error {
	s.setRunning(true)
	defer s.setRunning(false)

	s.logger.Info("Playback scheduler started",
		slog.String("stream", s.streamName),
		slog.Duration("chunk_duration", s.chunkDuration),
	)

	for {
		start := s.clock.Now()

		c, err := s.registry.awaitCycle(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				s.logger.Info("Playback scheduler stopping", slog.String("reason", err.Error()))
				return nil
			}
			return err
		}

		// Time spent idle with no sources does not count against the first cycle
		if c.idled {
			start = s.clock.Now()
		}

		mixed := audio.Mix(c.chunks...)
		chunkID := s.nextChunkID()

		playErr := s.sink.Play(ctx, s.streamName, chunkID, mixed)
		if playErr != nil {
			s.metrics.RecordSinkError("play")
			s.logger.Warn("Sink rejected composite chunk",
				slog.String("stream", s.streamName),
				slog.Int64("chunk_id", chunkID),
				slog.String("error", playErr.Error()),
			)
		}

		end := s.clock.Now()
		elapsed := end.Sub(start)
		sleep := SleepBudget(s.chunkDuration, elapsed)
		overrun := elapsed > s.chunkDuration

		s.record(c, chunkID, elapsed, sleep, overrun, playErr != nil)
		s.metrics.RecordCycle(elapsed.Seconds(), len(c.chunks), len(mixed), c.partial)

		s.logger.Debug("Cycle played",
			slog.Int64("chunk_id", chunkID),
			slog.Int("sources", len(c.chunks)),
			slog.Int("bytes", len(mixed)),
			slog.Bool("partial", c.partial),
			slog.Duration("elapsed", elapsed),
			slog.Duration("sleep", sleep),
		)

		s.notify(Event{
			Type:    EventChunkPlayed,
			Time:    end,
			ChunkID: chunkID,
			Sources: c.paths,
			Bytes:   len(mixed),
			Elapsed: elapsed,
			Partial: c.partial,
		})

		if overrun {
			s.metrics.RecordOverrun()
			s.logger.Warn("Cycle overran chunk duration",
				slog.Int64("chunk_id", chunkID),
				slog.Duration("elapsed", elapsed),
				slog.Duration("chunk_duration", s.chunkDuration),
			)
			s.notify(Event{
				Type:    EventOverrun,
				Time:    end,
				ChunkID: chunkID,
				Elapsed: elapsed,
			})
		}

		if err := s.clock.Sleep(ctx, sleep); err != nil {
			s.logger.Info("Playback scheduler stopping", slog.String("reason", err.Error()))
			return nil
		}
	}
}

// GetStats returns current scheduler statistics
func (s *Scheduler) GetStats() SchedulerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// nextChunkID derives a chunk ID from the clock in microseconds, bumped so IDs
// stay strictly increasing when the clock does not advance between cycles
func (s *Scheduler) nextChunkID() int64 {
	id := s.clock.Now().UnixMicro()

	s.mu.Lock()
	defer s.mu.Unlock()

	if id <= s.stats.LastChunkID {
		id = s.stats.LastChunkID + 1
	}
	s.stats.LastChunkID = id
	return id
}

func (s *Scheduler) record(c *cycle, chunkID int64, elapsed, sleep time.Duration, overrun, sinkErr bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Cycles++
	if c.partial {
		s.stats.PartialCycles++
	}
	if overrun {
		s.stats.Overruns++
	}
	if sinkErr {
		s.stats.SinkErrors++
	}
	s.stats.LastChunkID = chunkID
	s.stats.LastSources = len(c.chunks)
	s.stats.LastElapsed = elapsed
	s.stats.LastSleep = sleep
}

func (s *Scheduler) setRunning(running bool) {
	s.mu.Lock()
	s.stats.Running = running
	s.mu.Unlock()
}
