package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
)

func TestWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	samples := []int16{100, -200, 300, -400, 500, 32767, -32768}

	pcm := &PCM{SampleRate: SampleRate, Channels: Channels, Data: SamplesToBytes(samples)}
	if err := writeWAVFile(path, pcm); err != nil {
		t.Fatalf("writeWAVFile failed: %v", err)
	}

	decoded, err := WAVDecoder{}.Decode(path)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.SampleRate != SampleRate {
		t.Errorf("Expected sample rate %d, got %d", SampleRate, decoded.SampleRate)
	}
	if decoded.Channels != Channels {
		t.Errorf("Expected %d channel, got %d", Channels, decoded.Channels)
	}

	got := BytesToSamples(decoded.Data)
	if len(got) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(got))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("Sample %d: expected %d, got %d", i, samples[i], got[i])
		}
	}
}

func TestWAVDecodeReportsLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")

	pcm := &PCM{SampleRate: 44100, Channels: 2, Data: SamplesToBytes([]int16{1, 2, 3, 4})}
	if err := writeWAVFile(path, pcm); err != nil {
		t.Fatalf("writeWAVFile failed: %v", err)
	}

	decoded, err := WAVDecoder{}.Decode(path)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.SampleRate != 44100 || decoded.Channels != 2 {
		t.Errorf("Expected 44100 Hz stereo, got %d Hz %d channels", decoded.SampleRate, decoded.Channels)
	}
	if len(decoded.Data) != 8 {
		t.Errorf("Expected 8 bytes of interleaved PCM, got %d", len(decoded.Data))
	}
}

func TestWAVDecodeErrors(t *testing.T) {
	dir := t.TempDir()

	notWAV := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(notWAV, []byte("definitely not RIFF data"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := (WAVDecoder{}).Decode(notWAV); !errors.Is(err, ErrNotWAVFile) {
		t.Errorf("Expected ErrNotWAVFile, got %v", err)
	}

	if _, err := (WAVDecoder{}).Decode(filepath.Join(dir, "missing.wav")); err == nil {
		t.Error("Expected error for missing file")
	}

	// 8-bit PCM is rejected
	eightBit := filepath.Join(dir, "eight.wav")
	f, err := os.Create(eightBit)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, SampleRate, 8, 1, 1)
	buf := IntBuffer([]byte{0x10, 0x20, 0x30, 0x40}, SampleRate, 1)
	buf.SourceBitDepth = 8
	for i := range buf.Data {
		buf.Data[i] = 100
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if _, err := (WAVDecoder{}).Decode(eightBit); !errors.Is(err, ErrUnsupportedEncoding) {
		t.Errorf("Expected ErrUnsupportedEncoding, got %v", err)
	}
}

// writeWAVFile writes pcm to path as a 16-bit PCM WAV file
func writeWAVFile(path string, pcm *PCM) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, pcm.SampleRate, 16, pcm.Channels, wavFormatPCM)
	if err := enc.Write(IntBuffer(pcm.Data, pcm.SampleRate, pcm.Channels)); err != nil {
		return fmt.Errorf("failed to write PCM data: %w", err)
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV file: %w", err)
	}

	return nil
}
