package audio

import (
	"encoding/binary"
	"errors"
	"time"
)

const (
	// BytesPerSample is the width of one signed 16-bit PCM sample
	BytesPerSample = 2

	// SampleRate and Channels are the only PCM layout the engine accepts
	SampleRate = 16000
	Channels   = 1
)

var (
	// ErrInvalidChunkLength is returned when a chunk length is zero or negative
	ErrInvalidChunkLength = errors.New("chunk length must be positive")

	// ErrNilBuffer is returned when no buffer is supplied for extraction
	ErrNilBuffer = errors.New("buffer is nil")
)

// ExtractChunk removes up to chunkLen bytes from the tail of *buf and returns them.
// The last byte remaining in the buffer becomes the first byte of the chunk.
// empty is true only when the buffer held no bytes at call time; a short final
// chunk is returned with empty set to false.
func ExtractChunk(buf *[]byte, chunkLen int) (chunk []byte, empty bool, err error) {
	if buf == nil {
		return nil, false, ErrNilBuffer
	}
	if chunkLen <= 0 {
		return nil, false, ErrInvalidChunkLength
	}

	src := *buf
	if len(src) == 0 {
		return nil, true, nil
	}

	n := chunkLen
	if n > len(src) {
		n = len(src)
	}

	chunk = make([]byte, n)
	for i := 0; i < n; i++ {
		chunk[i] = src[len(src)-1-i]
	}
	*buf = src[:len(src)-n]

	return chunk, false, nil
}

// Reverse reverses b in place.
// Reversing a buffer once at load time makes ExtractChunk yield chunks in
// file order with each chunk's bytes in file order.
func Reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// ChunkLength converts a chunk duration into a sample-aligned byte length
func ChunkLength(duration time.Duration, sampleRate, channels int) int {
	frames := int(duration * time.Duration(sampleRate) / time.Second)
	return frames * channels * BytesPerSample
}

// ChunkDuration returns how long a chunk of n bytes plays for
func ChunkDuration(n, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	frames := n / (channels * BytesPerSample)
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}

// BytesToSamples decodes little-endian 16-bit PCM; a trailing odd byte is ignored
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// SamplesToBytes encodes samples as little-endian 16-bit PCM
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}
