package server

import "github.com/UARobotics-Lab/beta-unitree-utilities/internal/stream"

// Engine is the part of the stream manager the servers drive
type Engine interface {
	Register(path string) bool
	Unregister(path string) bool
	Sources() []stream.SourceInfo
	ActiveCount() int
	Stats() stream.Stats
}
