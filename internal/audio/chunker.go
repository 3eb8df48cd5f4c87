package audio

import "sync"

// Chunker drains a load-time reversed PCM buffer one chunk at a time
type Chunker struct {
	buf      []byte
	chunkLen int

	mu sync.Mutex
}

// NewChunker creates a chunker over pcm, which must already be reversed.
// It returns ErrInvalidChunkLength when chunkLen is not positive.
func NewChunker(pcm []byte, chunkLen int) (*Chunker, error) {
	if chunkLen <= 0 {
		return nil, ErrInvalidChunkLength
	}

	return &Chunker{
		buf:      pcm,
		chunkLen: chunkLen,
	}, nil
}

// Next returns the next chunk in playback order.
// empty reports that the buffer was already exhausted.
func (c *Chunker) Next() (chunk []byte, empty bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// chunkLen is validated in NewChunker, so extraction cannot fail here
	chunk, empty, _ = ExtractChunk(&c.buf, c.chunkLen)
	return chunk, empty
}
