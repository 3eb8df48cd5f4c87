package stream

import "time"

// EventType identifies an engine event
type EventType string

const (
	EventSourceRegistered   EventType = "source_registered"
	EventSourceUnregistered EventType = "source_unregistered"
	EventSourceFinished     EventType = "source_finished"
	EventSourceStalled      EventType = "source_stalled"
	EventChunkPlayed        EventType = "chunk_played"
	EventOverrun            EventType = "overrun"
)

// Event describes something that happened inside the engine
type Event struct {
	Type      EventType     `json:"type"`
	Time      time.Time     `json:"time"`
	Path      string        `json:"path,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	ChunkID   int64         `json:"chunk_id,omitempty"`
	Sources   []string      `json:"sources,omitempty"`
	Bytes     int           `json:"bytes,omitempty"`
	Elapsed   time.Duration `json:"elapsed_ns,omitempty"`
	Partial   bool          `json:"partial,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}

// Listener receives engine events. It is called synchronously and must not block.
type Listener func(Event)
