package stream

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/audio"
	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/config"
	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/metrics"
)

// ErrClosed is returned once the registry has been closed
var ErrClosed = errors.New("registry closed")

// RegistryConfig contains the parameters sources are validated and sliced with
type RegistryConfig struct {
	SampleRate   int
	Channels     int
	ChunkLength  int // bytes
	StallTimeout time.Duration
	StallPolicy  string
}

// Registry tracks the active sources and the chunks they publish for the current cycle.
// The active set, ready markers and pending chunks are guarded by mu; producers and the
// scheduler wait on cond and re-check their predicate after every wake.
type Registry struct {
	cfg     RegistryConfig
	decoder audio.Decoder
	clock   Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
	notify  Listener

	mu      sync.Mutex
	cond    *sync.Cond
	active  map[string]*source
	ready   map[string]struct{}
	pending map[string][]byte
	closed  bool

	// Stall timer state; stallGen invalidates timers that were disarmed
	stallTimer   *time.Timer
	stallGen     uint64
	stallExpired bool

	wg sync.WaitGroup
}

// source is one registered PCM buffer and its producer state
type source struct {
	path         string
	sessionID    string
	registeredAt time.Time
	totalBytes   int
	chunker      *audio.Chunker

	// Guarded by Registry.mu
	published      uint64
	publishedBytes int
	consumed       uint64
	removed        bool
}

// SourceInfo is a snapshot of an active source for monitoring and APIs
type SourceInfo struct {
	Path            string    `json:"path"`
	SessionID       string    `json:"session_id"`
	RegisteredAt    time.Time `json:"registered_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	TotalBytes      int       `json:"total_bytes"`
	RemainingBytes  int       `json:"remaining_bytes"`
	ChunksPublished uint64    `json:"chunks_published"`
	ChunksConsumed  uint64    `json:"chunks_consumed"`
	Ready           bool      `json:"ready"`
}

// cycle is the set of chunks captured for one mixing round
type cycle struct {
	paths   []string
	chunks  [][]byte
	partial bool
	idled   bool
}

// NewRegistry creates an empty registry; clock timestamps registrations and events
func NewRegistry(cfg RegistryConfig, decoder audio.Decoder, clock Clock, logger *slog.Logger,
	m *metrics.Metrics, notify Listener) *Registry {

	if notify == nil {
		notify = func(Event) {}
	}

	r := &Registry{
		cfg:     cfg,
		decoder: decoder,
		clock:   clock,
		logger:  logger,
		metrics: m,
		notify:  notify,
		active:  make(map[string]*source),
		ready:   make(map[string]struct{}),
		pending: make(map[string][]byte),
	}
	r.cond = sync.NewCond(&r.mu)

	return r
}

// Register decodes path and starts a producer for it.
// It returns false when path is already active, cannot be decoded, is not in the
// accepted PCM layout, or the registry is closed.
func (r *Registry) Register(path string) bool {
	r.mu.Lock()
	closed := r.closed
	_, exists := r.active[path]
	r.mu.Unlock()

	if closed {
		r.reject(path, metrics.ResultRejected, "registry closed")
		return false
	}
	if exists {
		r.reject(path, metrics.ResultDuplicate, "already active")
		return false
	}

	pcm, err := r.decoder.Decode(path)
	if err != nil {
		r.logger.Warn("Failed to decode source",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		r.metrics.RecordRegistration(metrics.ResultFailed)
		return false
	}

	if pcm.SampleRate != r.cfg.SampleRate || pcm.Channels != r.cfg.Channels {
		r.logger.Warn("Source rejected: unsupported PCM layout",
			slog.String("path", path),
			slog.Int("sample_rate", pcm.SampleRate),
			slog.Int("channels", pcm.Channels),
			slog.Int("expected_sample_rate", r.cfg.SampleRate),
			slog.Int("expected_channels", r.cfg.Channels),
		)
		r.metrics.RecordRegistration(metrics.ResultRejected)
		return false
	}

	totalBytes := len(pcm.Data)
	audio.Reverse(pcm.Data)

	chunker, err := audio.NewChunker(pcm.Data, r.cfg.ChunkLength)
	if err != nil {
		r.logger.Error("Failed to create chunker",
			slog.String("path", path),
			slog.Int("chunk_length", r.cfg.ChunkLength),
			slog.String("error", err.Error()),
		)
		r.metrics.RecordRegistration(metrics.ResultFailed)
		return false
	}

	src := &source{
		path:         path,
		sessionID:    uuid.NewString(),
		registeredAt: r.clock.Now(),
		totalBytes:   totalBytes,
		chunker:      chunker,
	}

	// Another caller may have registered the same path while we were decoding
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.reject(path, metrics.ResultRejected, "registry closed")
		return false
	}
	if _, exists := r.active[path]; exists {
		r.mu.Unlock()
		r.reject(path, metrics.ResultDuplicate, "already active")
		return false
	}
	r.active[path] = src
	count := len(r.active)
	r.wg.Add(1)
	r.cond.Broadcast()
	r.mu.Unlock()

	go r.produce(src)

	r.metrics.RecordRegistration(metrics.ResultAccepted)
	r.metrics.SetActiveSources(count)

	r.logger.Info("Source registered",
		slog.String("path", path),
		slog.String("session_id", src.sessionID),
		slog.Int("bytes", totalBytes),
		slog.Duration("duration", pcm.Duration()),
		slog.Int("active_sources", count),
	)

	r.notify(Event{
		Type:      EventSourceRegistered,
		Time:      r.clock.Now(),
		Path:      path,
		SessionID: src.sessionID,
		Bytes:     totalBytes,
	})

	return true
}

func (r *Registry) reject(path, result, reason string) {
	r.logger.Warn("Source registration refused",
		slog.String("path", path),
		slog.String("reason", reason),
	)
	r.metrics.RecordRegistration(result)
}

// Unregister removes an active source; its producer stops at the next wake.
// It returns false when path is not active.
func (r *Registry) Unregister(path string) bool {
	r.mu.Lock()
	src, ok := r.active[path]
	if !ok {
		r.mu.Unlock()
		return false
	}
	r.removeLocked(src)
	count := len(r.active)
	r.cond.Broadcast()
	r.mu.Unlock()

	r.metrics.RecordUnregistration()
	r.metrics.SetActiveSources(count)

	r.logger.Info("Source unregistered",
		slog.String("path", path),
		slog.String("session_id", src.sessionID),
		slog.Int("active_sources", count),
	)

	r.notify(Event{
		Type:      EventSourceUnregistered,
		Time:      r.clock.Now(),
		Path:      path,
		SessionID: src.sessionID,
	})

	return true
}

// Sources returns a snapshot of the active set ordered by registration time
func (r *Registry) Sources() []SourceInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]SourceInfo, 0, len(r.active))
	for path, src := range r.active {
		_, ready := r.ready[path]

		infos = append(infos, SourceInfo{
			Path:            path,
			SessionID:       src.sessionID,
			RegisteredAt:    src.registeredAt,
			DurationSeconds: audio.ChunkDuration(src.totalBytes, r.cfg.SampleRate, r.cfg.Channels).Seconds(),
			TotalBytes:      src.totalBytes,
			RemainingBytes:  src.totalBytes - src.publishedBytes,
			ChunksPublished: src.published,
			ChunksConsumed:  src.consumed,
			Ready:           ready,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].RegisteredAt.Equal(infos[j].RegisteredAt) {
			return infos[i].Path < infos[j].Path
		}
		return infos[i].RegisteredAt.Before(infos[j].RegisteredAt)
	})

	return infos
}

// ActiveCount returns the size of the active set
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Close wakes every waiter and waits for all producers to exit.
// Register fails after Close.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.disarmStallLocked()
	r.cond.Broadcast()
	r.mu.Unlock()

	r.wg.Wait()
}

// produce publishes one chunk per cycle until the source is exhausted or removed
func (r *Registry) produce(src *source) {
	defer r.wg.Done()

	for {
		chunk, empty := src.chunker.Next()
		if empty {
			break
		}
		if !r.publish(src, chunk) {
			return
		}
		r.metrics.RecordChunkPublished()
	}

	r.retire(src)
}

// publish waits until the previous chunk of src was consumed, then stores chunk
func (r *Registry) publish(src *source, chunk []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for !r.closed && !src.removed && r.isReadyLocked(src.path) {
		r.cond.Wait()
	}
	if r.closed || src.removed {
		return false
	}

	r.pending[src.path] = chunk
	r.ready[src.path] = struct{}{}
	src.published++
	src.publishedBytes += len(chunk)
	r.cond.Broadcast()
	return true
}

// retire removes an exhausted source once its last chunk was consumed
func (r *Registry) retire(src *source) {
	r.mu.Lock()
	for !r.closed && !src.removed && r.isReadyLocked(src.path) {
		r.cond.Wait()
	}

	finished := false
	if !r.closed && r.active[src.path] == src {
		r.removeLocked(src)
		finished = true
	}
	count := len(r.active)
	consumed := src.consumed
	r.cond.Broadcast()
	r.mu.Unlock()

	if !finished {
		return
	}

	r.metrics.RecordSourceFinished()
	r.metrics.SetActiveSources(count)

	r.logger.Info("Source finished",
		slog.String("path", src.path),
		slog.String("session_id", src.sessionID),
		slog.Uint64("chunks_played", consumed),
		slog.Int("active_sources", count),
	)

	r.notify(Event{
		Type:      EventSourceFinished,
		Time:      r.clock.Now(),
		Path:      src.path,
		SessionID: src.sessionID,
	})
}

// awaitCycle blocks until every active source has published a chunk, then
// captures and clears those chunks. When a stall timeout is configured and
// expires, the stall policy decides whether stalled sources are dropped or a
// partial cycle is emitted.
func (r *Registry) awaitCycle(ctx context.Context) (*cycle, error) {
	stop := context.AfterFunc(ctx, r.wake)
	defer stop()

	r.mu.Lock()
	defer r.mu.Unlock()

	c := &cycle{}
	armed := false
	defer func() {
		if armed {
			r.disarmStallLocked()
		}
	}()

	for {
		if r.closed {
			return nil, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.completeLocked() {
			break
		}

		if len(r.active) == 0 {
			c.idled = true
			if armed {
				r.disarmStallLocked()
				armed = false
			}
		} else if !armed && r.cfg.StallTimeout > 0 {
			r.armStallLocked()
			armed = true
		}

		if r.stallExpired {
			r.stallExpired = false
			armed = false
			if r.cfg.StallPolicy == config.StallPolicyPartial {
				if len(r.ready) > 0 {
					c.partial = true
					break
				}
				continue
			}

			dropped := r.dropStalledLocked()
			r.mu.Unlock()
			r.reportStalled(dropped)
			r.mu.Lock()
			continue
		}

		r.cond.Wait()
	}

	r.captureLocked(c)
	r.cond.Broadcast()
	return c, nil
}

// completeLocked reports whether every active source is ready; ready is a subset of active
func (r *Registry) completeLocked() bool {
	return len(r.active) > 0 && len(r.ready) == len(r.active)
}

func (r *Registry) isReadyLocked(path string) bool {
	_, ok := r.ready[path]
	return ok
}

func (r *Registry) captureLocked(c *cycle) {
	c.paths = make([]string, 0, len(r.ready))
	for path := range r.ready {
		c.paths = append(c.paths, path)
	}
	sort.Strings(c.paths)

	c.chunks = make([][]byte, 0, len(c.paths))
	for _, path := range c.paths {
		c.chunks = append(c.chunks, r.pending[path])
		delete(r.pending, path)
		delete(r.ready, path)
		if src, ok := r.active[path]; ok {
			src.consumed++
		}
	}
}

// dropStalledLocked removes every active source that has not published this cycle
func (r *Registry) dropStalledLocked() []*source {
	stalled := make([]*source, 0, len(r.active)-len(r.ready))
	for path, src := range r.active {
		if !r.isReadyLocked(path) {
			stalled = append(stalled, src)
		}
	}
	sort.Slice(stalled, func(i, j int) bool { return stalled[i].path < stalled[j].path })

	for _, src := range stalled {
		r.removeLocked(src)
	}
	r.cond.Broadcast()

	return stalled
}

func (r *Registry) reportStalled(dropped []*source) {
	count := r.ActiveCount()
	r.metrics.RecordSourcesStalled(len(dropped))
	r.metrics.SetActiveSources(count)

	for _, src := range dropped {
		r.logger.Warn("Source dropped after stall timeout",
			slog.String("path", src.path),
			slog.String("session_id", src.sessionID),
			slog.Duration("stall_timeout", r.cfg.StallTimeout),
			slog.Int("active_sources", count),
		)

		r.notify(Event{
			Type:      EventSourceStalled,
			Time:      r.clock.Now(),
			Path:      src.path,
			SessionID: src.sessionID,
			Reason:    "no chunk within stall timeout",
		})
	}
}

func (r *Registry) removeLocked(src *source) {
	src.removed = true
	delete(r.active, src.path)
	delete(r.ready, src.path)
	delete(r.pending, src.path)
}

func (r *Registry) armStallLocked() {
	r.stallGen++
	gen := r.stallGen
	r.stallExpired = false
	r.stallTimer = time.AfterFunc(r.cfg.StallTimeout, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.stallGen == gen {
			r.stallExpired = true
			r.cond.Broadcast()
		}
	})
}

func (r *Registry) disarmStallLocked() {
	r.stallGen++
	r.stallExpired = false
	if r.stallTimer != nil {
		r.stallTimer.Stop()
		r.stallTimer = nil
	}
}

// wake rouses every waiter so it can re-check cancellation
func (r *Registry) wake() {
	r.mu.Lock()
	r.cond.Broadcast()
	r.mu.Unlock()
}
