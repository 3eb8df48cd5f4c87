package audio

import (
	"encoding/binary"
	"math"
)

// Mix combines PCM chunks into one composite chunk.
// Samples at each position are summed as signed 16-bit little-endian values
// and the sum is clamped to the int16 range once. The output is as long as the
// longest input; shorter inputs contribute silence past their end.
// A single input is returned as an unmodified copy.
func Mix(chunks ...[]byte) []byte {
	switch len(chunks) {
	case 0:
		return nil
	case 1:
		out := make([]byte, len(chunks[0]))
		copy(out, chunks[0])
		return out
	}

	longest := 0
	for _, c := range chunks {
		if len(c) > longest {
			longest = len(c)
		}
	}

	out := make([]byte, longest)
	for pos := 0; pos+BytesPerSample <= longest; pos += BytesPerSample {
		var sum int32
		for _, c := range chunks {
			if pos+BytesPerSample <= len(c) {
				sum += int32(int16(binary.LittleEndian.Uint16(c[pos:])))
			}
		}
		binary.LittleEndian.PutUint16(out[pos:], uint16(clamp16(sum)))
	}

	return out
}

// clamp16 saturates v to the int16 range
func clamp16(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
