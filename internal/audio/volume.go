package audio

import "encoding/binary"

const (
	// MaxVolume is full scale; samples are passed through unchanged
	MaxVolume = 100
)

// ApplyVolume returns a copy of pcm with every sample scaled by percent/100.
// percent is limited to [0, MaxVolume].
func ApplyVolume(pcm []byte, percent int) []byte {
	if percent < 0 {
		percent = 0
	}
	if percent > MaxVolume {
		percent = MaxVolume
	}

	out := make([]byte, len(pcm))
	copy(out, pcm)
	if percent == MaxVolume {
		return out
	}

	for pos := 0; pos+BytesPerSample <= len(out); pos += BytesPerSample {
		s := int32(int16(binary.LittleEndian.Uint16(out[pos:])))
		binary.LittleEndian.PutUint16(out[pos:], uint16(clamp16(s*int32(percent)/MaxVolume)))
	}

	return out
}
