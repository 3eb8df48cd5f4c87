package protocol

import (
	"encoding/binary"
	"strings"
	"testing"
)

func mustEncodeRequest(t *testing.T, ptype uint8, seq uint32, flags uint8, ts uint64, path string) []byte {
	t.Helper()

	data, err := EncodeRequest(ptype, seq, flags, ts, path)
	if err != nil {
		t.Fatalf("EncodeRequest failed: %v", err)
	}
	return data
}

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		expected    *Header
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid register header",
			data: []byte{
				0x01,       // PacketType: Register
				0x00, 0x1D, // PacketLen: 29 (8 + 10 + 11)
				0x00, 0x00, 0x30, 0x39, // Seq: 12345
				0x00, // Flags
			},
			expected: &Header{
				PacketType: PacketTypeRegister,
				PacketLen:  29,
				Seq:        12345,
				Flags:      0,
			},
		},
		{
			name: "valid ack header",
			data: []byte{
				0x03,       // PacketType: Ack
				0x00, 0x11, // PacketLen: 17
				0x12, 0x34, 0x56, 0x78, // Seq: 305419896
				0x00,
			},
			expected: &Header{
				PacketType: PacketTypeAck,
				PacketLen:  17,
				Seq:        305419896,
			},
		},
		{
			name:        "header too short",
			data:        []byte{0x01, 0x00},
			expectError: true,
			errorMsg:    "header too short",
		},
		{
			name:        "empty data",
			data:        []byte{},
			expectError: true,
			errorMsg:    "header too short",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseHeader(tt.data)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}

			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if *result != *tt.expected {
				t.Errorf("Expected header %+v, got %+v", tt.expected, result)
			}
		})
	}
}

func TestParseRequestPayload(t *testing.T) {
	valid := make([]byte, RequestPayloadHeaderSize+len("/tmp/a.wav"))
	binary.BigEndian.PutUint64(valid[0:], 1701234567890)
	binary.BigEndian.PutUint16(valid[8:], uint16(len("/tmp/a.wav")))
	copy(valid[10:], "/tmp/a.wav")

	tooLong := make([]byte, RequestPayloadHeaderSize+MaxPathLen+1)
	binary.BigEndian.PutUint16(tooLong[8:], MaxPathLen+1)

	tests := []struct {
		name        string
		data        []byte
		expectError bool
		errorMsg    string
	}{
		{name: "valid", data: valid},
		{name: "too short", data: valid[:5], expectError: true, errorMsg: "request payload too short"},
		{name: "truncated path", data: valid[:len(valid)-2], expectError: true, errorMsg: "path length mismatch"},
		{name: "empty path", data: make([]byte, RequestPayloadHeaderSize), expectError: true, errorMsg: "empty path"},
		{name: "path too long", data: tooLong, expectError: true, errorMsg: "path too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseRequestPayload(tt.data)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}

			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if result.Path != "/tmp/a.wav" {
				t.Errorf("Expected path /tmp/a.wav, got %q", result.Path)
			}
			if result.TimestampMs != 1701234567890 {
				t.Errorf("Expected timestamp 1701234567890, got %d", result.TimestampMs)
			}
		})
	}
}

func TestEncodeRequestRoundTrip(t *testing.T) {
	for _, ptype := range []uint8{PacketTypeRegister, PacketTypeUnregister} {
		data := mustEncodeRequest(t, ptype, 42, FlagNoAck, 1701234567890, "sounds/beep.wav")

		if len(data) != HeaderSize+RequestPayloadHeaderSize+len("sounds/beep.wav") {
			t.Errorf("Unexpected packet length %d", len(data))
		}

		packet, err := ParsePacket(data)
		if err != nil {
			t.Fatalf("ParsePacket failed: %v", err)
		}
		if packet.Header.PacketType != ptype {
			t.Errorf("Expected type 0x%02x, got 0x%02x", ptype, packet.Header.PacketType)
		}
		if packet.Header.Seq != 42 {
			t.Errorf("Expected seq 42, got %d", packet.Header.Seq)
		}
		if packet.Header.WantsAck() {
			t.Error("Expected FlagNoAck to suppress the ack")
		}
		if packet.Request == nil || packet.Request.Path != "sounds/beep.wav" {
			t.Errorf("Unexpected request payload %+v", packet.Request)
		}
		if packet.Ack != nil {
			t.Error("Expected no ack payload on a request")
		}
	}
}

func TestEncodeRequestErrors(t *testing.T) {
	tests := []struct {
		name     string
		ptype    uint8
		path     string
		errorMsg string
	}{
		{"ack type", PacketTypeAck, "a.wav", "not a request packet type"},
		{"empty path", PacketTypeRegister, "", "empty path"},
		{"path too long", PacketTypeRegister, strings.Repeat("x", MaxPathLen+1), "path too long"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeRequest(tt.ptype, 1, 0, 0, tt.path)
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
			}
		})
	}

	if _, err := EncodeRequest(PacketTypeRegister, 1, 0, 0, strings.Repeat("x", MaxPathLen)); err != nil {
		t.Errorf("Expected a path of exactly %d bytes to encode, got %v", MaxPathLen, err)
	}
}

func TestEncodeAck(t *testing.T) {
	data := EncodeAck(7, StatusRejected, 1701234567890)

	if len(data) != HeaderSize+AckPayloadSize {
		t.Fatalf("Expected %d bytes, got %d", HeaderSize+AckPayloadSize, len(data))
	}

	packet, err := ParsePacket(data)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}
	if packet.Header.PacketType != PacketTypeAck || packet.Header.Seq != 7 {
		t.Errorf("Unexpected header %s", packet.Header)
	}
	if packet.Ack == nil {
		t.Fatal("Expected ack payload")
	}
	if packet.Ack.Status != StatusRejected {
		t.Errorf("Expected status rejected, got %d", packet.Ack.Status)
	}
	if packet.Ack.TimestampMs != 1701234567890 {
		t.Errorf("Expected timestamp 1701234567890, got %d", packet.Ack.TimestampMs)
	}
}

func TestParsePacketErrors(t *testing.T) {
	valid := EncodeAck(1, StatusAccepted, 0)

	badType := append([]byte(nil), valid...)
	badType[0] = 0x99

	badFlags := append([]byte(nil), valid...)
	badFlags[7] = 0x80

	mismatch := append([]byte(nil), valid...)
	binary.BigEndian.PutUint16(mismatch[1:3], 100)

	tests := []struct {
		name     string
		data     []byte
		errorMsg string
	}{
		{"packet too short", []byte{0x01, 0x00}, "packet too short"},
		{"invalid packet type", badType, "invalid packet type"},
		{"unknown flags", badFlags, "unknown flags"},
		{"packet length mismatch", mismatch, "packet length mismatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePacket(tt.data)
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestValidateHeader(t *testing.T) {
	tests := []struct {
		name        string
		header      *Header
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid register header",
			header: &Header{PacketType: PacketTypeRegister, PacketLen: 29, Seq: 1},
		},
		{
			name:   "valid ack header",
			header: &Header{PacketType: PacketTypeAck, PacketLen: HeaderSize + AckPayloadSize},
		},
		{
			name:        "invalid packet type",
			header:      &Header{PacketType: 0x99, PacketLen: 29},
			expectError: true,
			errorMsg:    "invalid packet type",
		},
		{
			name:        "packet length too small",
			header:      &Header{PacketType: PacketTypeRegister, PacketLen: 5},
			expectError: true,
			errorMsg:    "packet length too small",
		},
		{
			name:        "request without path",
			header:      &Header{PacketType: PacketTypeUnregister, PacketLen: HeaderSize + RequestPayloadHeaderSize},
			expectError: true,
			errorMsg:    "request packet payload too small",
		},
		{
			name:        "request too large",
			header:      &Header{PacketType: PacketTypeRegister, PacketLen: MaxPacketSize + 1},
			expectError: true,
			errorMsg:    "request packet payload too large",
		},
		{
			name:        "ack wrong payload size",
			header:      &Header{PacketType: PacketTypeAck, PacketLen: 20},
			expectError: true,
			errorMsg:    "ack packet payload size mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHeader(tt.header)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestHeaderString(t *testing.T) {
	h := &Header{PacketType: PacketTypeRegister, PacketLen: 29, Seq: 5}
	if got := h.String(); got != "Header{Type:Register, Len:29, Seq:5, Flags:0x00}" {
		t.Errorf("Unexpected header string %q", got)
	}

	a := &AckPayload{Status: StatusAccepted, TimestampMs: 9}
	if got := a.String(); got != "AckPayload{Status:Accepted, TimestampMs:9}" {
		t.Errorf("Unexpected ack string %q", got)
	}
}
