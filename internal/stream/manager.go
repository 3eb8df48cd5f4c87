package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/audio"
	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/metrics"
	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/sink"
)

const sinkStopTimeout = 5 * time.Second

// ManagerConfig contains configuration for the stream manager
type ManagerConfig struct {
	StreamName    string
	SampleRate    int
	Channels      int
	ChunkDuration time.Duration
	StallTimeout  time.Duration
	StallPolicy   string
}

// Option customizes a Manager
type Option func(*Manager)

// WithClock replaces the wall clock used by the scheduler
func WithClock(clock Clock) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithListener subscribes l to engine events
func WithListener(l Listener) Option {
	return func(m *Manager) {
		m.listeners = append(m.listeners, l)
	}
}

// Manager owns the registry, its producers and the playback scheduler
type Manager struct {
	cfg         ManagerConfig
	chunkLength int
	logger      *slog.Logger
	metrics     *metrics.Metrics
	sink        sink.Sink
	clock       Clock

	registry  *Registry
	scheduler *Scheduler

	listeners []Listener

	mu        sync.Mutex
	started   bool
	stopped   bool
	startTime time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// Stats represents manager statistics
type Stats struct {
	StreamName    string         `json:"stream_name"`
	ChunkLength   int            `json:"chunk_length_bytes"`
	ChunkDuration float64        `json:"chunk_duration_seconds"`
	ActiveSources int            `json:"active_sources"`
	Uptime        float64        `json:"uptime_seconds"`
	Scheduler     SchedulerStats `json:"scheduler"`
}

// NewManager creates a stream manager. The scheduler does not run until Start.
func NewManager(logger *slog.Logger, cfg ManagerConfig, decoder audio.Decoder, out sink.Sink,
	m *metrics.Metrics, opts ...Option) (*Manager, error) {

	chunkLength := audio.ChunkLength(cfg.ChunkDuration, cfg.SampleRate, cfg.Channels)
	if chunkLength <= 0 {
		return nil, fmt.Errorf("chunk duration %v yields no samples at %d Hz: %w",
			cfg.ChunkDuration, cfg.SampleRate, audio.ErrInvalidChunkLength)
	}
	if decoder == nil {
		return nil, fmt.Errorf("decoder is required")
	}
	if out == nil {
		return nil, fmt.Errorf("sink is required")
	}

	mgr := &Manager{
		cfg:         cfg,
		chunkLength: chunkLength,
		logger:      logger,
		metrics:     m,
		sink:        out,
		clock:       SystemClock{},
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(mgr)
	}

	mgr.registry = NewRegistry(RegistryConfig{
		SampleRate:   cfg.SampleRate,
		Channels:     cfg.Channels,
		ChunkLength:  chunkLength,
		StallTimeout: cfg.StallTimeout,
		StallPolicy:  cfg.StallPolicy,
	}, decoder, mgr.clock, logger, m, mgr.emit)

	mgr.scheduler = NewScheduler(cfg.StreamName, cfg.ChunkDuration, mgr.registry, out,
		mgr.clock, logger, m, mgr.emit)

	return mgr, nil
}

// emit delivers e to every listener; the set is fixed once NewManager returns
func (m *Manager) emit(e Event) {
	for _, l := range m.listeners {
		l(e)
	}
}

// Start launches the playback scheduler
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrClosed
	}
	if m.started {
		return fmt.Errorf("manager already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.started = true
	m.startTime = m.clock.Now()

	go func() {
		defer close(m.done)
		if err := m.scheduler.Run(runCtx); err != nil {
			m.logger.Error("Playback scheduler failed", slog.String("error", err.Error()))
		}
	}()

	m.logger.Info("Stream manager started",
		slog.String("stream", m.cfg.StreamName),
		slog.Int("chunk_length", m.chunkLength),
		slog.Duration("chunk_duration", m.cfg.ChunkDuration),
		slog.Duration("stall_timeout", m.cfg.StallTimeout),
		slog.String("stall_policy", m.cfg.StallPolicy),
	)

	return nil
}

// Register adds a source; see Registry.Register
func (m *Manager) Register(path string) bool {
	return m.registry.Register(path)
}

// Unregister removes a source; see Registry.Unregister
func (m *Manager) Unregister(path string) bool {
	return m.registry.Unregister(path)
}

// Sources returns a snapshot of the active sources
func (m *Manager) Sources() []SourceInfo {
	return m.registry.Sources()
}

// ActiveCount returns the number of active sources
func (m *Manager) ActiveCount() int {
	return m.registry.ActiveCount()
}

// ChunkLength returns the chunk length in bytes
func (m *Manager) ChunkLength() int {
	return m.chunkLength
}

// Stats returns a snapshot of manager and scheduler statistics
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	var uptime float64
	if m.started {
		uptime = m.clock.Now().Sub(m.startTime).Seconds()
	}
	m.mu.Unlock()

	return Stats{
		StreamName:    m.cfg.StreamName,
		ChunkLength:   m.chunkLength,
		ChunkDuration: m.cfg.ChunkDuration.Seconds(),
		ActiveSources: m.registry.ActiveCount(),
		Uptime:        uptime,
		Scheduler:     m.scheduler.GetStats(),
	}
}

// Stop gracefully stops the stream manager: producers and the scheduler exit,
// then the sink is stopped and closed
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	started := m.started
	cancel := m.cancel
	m.mu.Unlock()

	m.logger.Info("Stopping stream manager...")

	m.registry.Close()
	if cancel != nil {
		cancel()
	}
	if started {
		<-m.done
	}

	ctx, stopCancel := context.WithTimeout(context.Background(), sinkStopTimeout)
	defer stopCancel()

	if err := m.sink.Stop(ctx, m.cfg.StreamName); err != nil {
		m.logger.Warn("Error stopping sink", slog.String("error", err.Error()))
	}
	if err := m.sink.Close(); err != nil {
		m.logger.Warn("Error closing sink", slog.String("error", err.Error()))
	}

	stats := m.scheduler.GetStats()
	m.logger.Info("Stream manager stopped",
		slog.Uint64("cycles", stats.Cycles),
		slog.Uint64("partial_cycles", stats.PartialCycles),
		slog.Uint64("overruns", stats.Overruns),
		slog.Uint64("sink_errors", stats.SinkErrors),
	)
}
