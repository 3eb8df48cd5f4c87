package audio

import (
	"errors"
	"fmt"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	ErrNotWAVFile          = errors.New("not a WAV file")
	ErrUnsupportedEncoding = errors.New("only 16-bit PCM WAV is supported")
)

// wavFormatPCM is the WAVE_FORMAT_PCM tag from the fmt chunk
const wavFormatPCM = 1

// PCM is decoded, interleaved signed 16-bit little-endian audio
type PCM struct {
	SampleRate int
	Channels   int
	Data       []byte
}

// Duration returns the playback length of the PCM data
func (p *PCM) Duration() time.Duration {
	return ChunkDuration(len(p.Data), p.SampleRate, p.Channels)
}

// Decoder turns a source path into PCM
type Decoder interface {
	Decode(path string) (*PCM, error)
}

// WAVDecoder decodes 16-bit PCM WAV files
type WAVDecoder struct{}

// Decode reads the WAV file at path and returns its samples as PCM
func (WAVDecoder) Decode(path string) (*PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%s: %w", path, ErrNotWAVFile)
	}

	if d.WavAudioFormat != wavFormatPCM || d.BitDepth != 16 {
		return nil, fmt.Errorf("%s (format %d, %d-bit): %w",
			path, d.WavAudioFormat, d.BitDepth, ErrUnsupportedEncoding)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read PCM data from %s: %w", path, err)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}

	return &PCM{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		Data:       SamplesToBytes(samples),
	}, nil
}

// IntBuffer wraps PCM bytes in a go-audio buffer for encoding
func IntBuffer(data []byte, sampleRate, channels int) *goaudio.IntBuffer {
	samples := BytesToSamples(data)
	ints := make([]int, len(samples))
	for i, s := range samples {
		ints[i] = int(s)
	}

	return &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
		Data:           ints,
		SourceBitDepth: 16,
	}
}
