// Package stream runs the fan-in engine: a registry of active PCM sources,
// one producer goroutine per source and a playback scheduler that mixes one
// chunk from every source per cycle and paces output to the chunk duration.
//
// Producers and the scheduler coordinate on a single mutex and condition
// variable. A producer publishes its next chunk only after the scheduler has
// consumed the previous one, and the scheduler mixes only once every active
// source is ready, unless a stall timeout and policy say otherwise.
package stream
