package audio

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestExtractChunkFromTail(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	chunk, empty, err := ExtractChunk(&buf, 4)
	if err != nil {
		t.Fatalf("ExtractChunk failed: %v", err)
	}
	if empty {
		t.Error("Expected empty=false for non-empty buffer")
	}
	if !bytes.Equal(chunk, []byte{10, 9, 8, 7}) {
		t.Errorf("Expected chunk [10 9 8 7], got %v", chunk)
	}
	if !bytes.Equal(buf, []byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("Expected remaining [1..6], got %v", buf)
	}
}

func TestExtractChunkShortFinal(t *testing.T) {
	buf := []byte{1, 2, 3}

	chunk, empty, err := ExtractChunk(&buf, 4)
	if err != nil {
		t.Fatalf("ExtractChunk failed: %v", err)
	}
	if empty {
		t.Error("A short final chunk must not be reported as empty")
	}
	if !bytes.Equal(chunk, []byte{3, 2, 1}) {
		t.Errorf("Expected chunk [3 2 1], got %v", chunk)
	}
	if len(buf) != 0 {
		t.Errorf("Expected drained buffer, got %d bytes", len(buf))
	}

	chunk, empty, err = ExtractChunk(&buf, 4)
	if err != nil {
		t.Fatalf("ExtractChunk failed: %v", err)
	}
	if !empty {
		t.Error("Expected empty=true for drained buffer")
	}
	if len(chunk) != 0 {
		t.Errorf("Expected no data from drained buffer, got %v", chunk)
	}
}

func TestExtractChunkInvalidArguments(t *testing.T) {
	buf := []byte{1, 2}

	tests := []struct {
		name     string
		buf      *[]byte
		chunkLen int
		want     error
	}{
		{"zero length", &buf, 0, ErrInvalidChunkLength},
		{"negative length", &buf, -2, ErrInvalidChunkLength},
		{"nil buffer", nil, 4, ErrNilBuffer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ExtractChunk(tt.buf, tt.chunkLen)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	if len(buf) != 2 {
		t.Errorf("Invalid calls must not modify the buffer, got %v", buf)
	}
}

func TestExtractChunkRoundTrip(t *testing.T) {
	original := make([]byte, 37)
	for i := range original {
		original[i] = byte(i * 7)
	}

	// Concatenated extractions from an unreversed buffer equal the reversed buffer
	buf := append([]byte(nil), original...)
	var got []byte
	for {
		chunk, empty, err := ExtractChunk(&buf, 5)
		if err != nil {
			t.Fatalf("ExtractChunk failed: %v", err)
		}
		if empty {
			break
		}
		got = append(got, chunk...)
	}

	want := append([]byte(nil), original...)
	Reverse(want)
	if !bytes.Equal(got, want) {
		t.Errorf("Expected reversed buffer %v, got %v", want, got)
	}

	// Pre-reversed buffers come out in file order
	buf = append([]byte(nil), original...)
	Reverse(buf)
	got = got[:0]
	for {
		chunk, empty, _ := ExtractChunk(&buf, 5)
		if empty {
			break
		}
		got = append(got, chunk...)
	}
	if !bytes.Equal(got, original) {
		t.Errorf("Expected original order %v, got %v", original, got)
	}
}

func TestReverse(t *testing.T) {
	tests := []struct {
		in, want []byte
	}{
		{nil, nil},
		{[]byte{1}, []byte{1}},
		{[]byte{1, 2}, []byte{2, 1}},
		{[]byte{1, 2, 3, 4, 5}, []byte{5, 4, 3, 2, 1}},
	}

	for _, tt := range tests {
		got := append([]byte(nil), tt.in...)
		Reverse(got)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("Reverse(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestChunkLength(t *testing.T) {
	tests := []struct {
		duration time.Duration
		want     int
	}{
		{4 * time.Second, 4 * 16000 * 2},
		{time.Second, 32000},
		{125 * time.Microsecond, 4},
		{0, 0},
	}

	for _, tt := range tests {
		if got := ChunkLength(tt.duration, SampleRate, Channels); got != tt.want {
			t.Errorf("ChunkLength(%v) = %d, want %d", tt.duration, got, tt.want)
		}
	}

	if got := ChunkDuration(32000, SampleRate, Channels); got != time.Second {
		t.Errorf("Expected 1s for 32000 bytes, got %v", got)
	}
}

func TestSampleConversion(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 1234}

	data := SamplesToBytes(samples)
	if len(data) != len(samples)*2 {
		t.Fatalf("Expected %d bytes, got %d", len(samples)*2, len(data))
	}
	if data[2] != 0x01 || data[3] != 0x00 {
		t.Errorf("Expected little-endian encoding of 1, got %x %x", data[2], data[3])
	}

	back := BytesToSamples(append(data, 0xff))
	if len(back) != len(samples) {
		t.Fatalf("Expected trailing odd byte to be ignored, got %d samples", len(back))
	}
	for i := range samples {
		if back[i] != samples[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, samples[i], back[i])
		}
	}
}
