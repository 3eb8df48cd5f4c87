package protocol

import (
	"encoding/binary"
	"fmt"
)

// Protocol constants
const (
	// Packet types
	PacketTypeRegister   = 0x01
	PacketTypeUnregister = 0x02
	PacketTypeAck        = 0x03

	// Header flags
	FlagNoAck = 0x01 // Sender does not want an ack

	// Ack status codes
	StatusAccepted = 0x00
	StatusRejected = 0x01

	// Packet structure sizes
	HeaderSize               = 8  // 1 + 2 + 4 + 1 bytes
	RequestPayloadHeaderSize = 10 // Timestamp (8) + PathLen (2)
	AckPayloadSize           = 9  // Status (1) + Timestamp (8)

	// MaxPathLen bounds the source path carried in a request
	MaxPathLen = 1024

	// MaxPacketSize is the largest valid control packet
	MaxPacketSize = HeaderSize + RequestPayloadHeaderSize + MaxPathLen

	knownFlags = FlagNoAck
)

// Header represents the 8-byte TLV packet header
// Layout: [PacketType:1][PacketLen:2][Seq:4][Flags:1]
type Header struct {
	PacketType uint8  // 0x01=Register, 0x02=Unregister, 0x03=Ack
	PacketLen  uint16 // Total packet size (header + payload)
	Seq        uint32 // Sender-chosen sequence number, echoed in the ack
	Flags      uint8
}

// RequestPayload is the payload of register and unregister packets
// Layout: [TimestampMs:8][PathLen:2][Path:N]
type RequestPayload struct {
	TimestampMs uint64 // Sender's Unix time in milliseconds
	Path        string
}

// AckPayload is the payload of ack packets
// Layout: [Status:1][TimestampMs:8]
type AckPayload struct {
	Status      uint8
	TimestampMs uint64
}

// ParsedPacket represents a fully parsed TLV packet
type ParsedPacket struct {
	Header  *Header
	Request *RequestPayload // Only set for register and unregister packets
	Ack     *AckPayload     // Only set for ack packets
}

// ParseHeader parses the 8-byte TLV packet header
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("header too short: expected %d bytes, got %d", HeaderSize, len(data))
	}

	header := &Header{
		PacketType: data[0],
		PacketLen:  binary.BigEndian.Uint16(data[1:3]),
		Seq:        binary.BigEndian.Uint32(data[3:7]),
		Flags:      data[7],
	}

	return header, nil
}

// ParseRequestPayload parses a register or unregister payload
func ParseRequestPayload(data []byte) (*RequestPayload, error) {
	if len(data) < RequestPayloadHeaderSize {
		return nil, fmt.Errorf("request payload too short: expected at least %d bytes, got %d",
			RequestPayloadHeaderSize, len(data))
	}

	pathLen := int(binary.BigEndian.Uint16(data[8:10]))
	if pathLen == 0 {
		return nil, fmt.Errorf("empty path")
	}
	if pathLen > MaxPathLen {
		return nil, fmt.Errorf("path too long: %d bytes (maximum %d)", pathLen, MaxPathLen)
	}
	if len(data)-RequestPayloadHeaderSize != pathLen {
		return nil, fmt.Errorf("path length mismatch: header says %d bytes, got %d",
			pathLen, len(data)-RequestPayloadHeaderSize)
	}

	return &RequestPayload{
		TimestampMs: binary.BigEndian.Uint64(data[0:8]),
		Path:        string(data[RequestPayloadHeaderSize:]),
	}, nil
}

// ParseAckPayload parses the 9-byte ack payload
func ParseAckPayload(data []byte) (*AckPayload, error) {
	if len(data) < AckPayloadSize {
		return nil, fmt.Errorf("ack payload too short: expected %d bytes, got %d", AckPayloadSize, len(data))
	}

	return &AckPayload{
		Status:      data[0],
		TimestampMs: binary.BigEndian.Uint64(data[1:9]),
	}, nil
}

// ParsePacket parses a complete TLV packet (header + payload)
func ParsePacket(data []byte) (*ParsedPacket, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("packet too short: expected at least %d bytes, got %d", HeaderSize, len(data))
	}

	header, err := ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	if int(header.PacketLen) != len(data) {
		return nil, fmt.Errorf("packet length mismatch: header says %d bytes, got %d bytes",
			header.PacketLen, len(data))
	}

	if err := ValidateHeader(header); err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	packet := &ParsedPacket{Header: header}
	payloadData := data[HeaderSize:]

	switch header.PacketType {
	case PacketTypeRegister, PacketTypeUnregister:
		payload, err := ParseRequestPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse request payload: %w", err)
		}
		packet.Request = payload

	case PacketTypeAck:
		payload, err := ParseAckPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ack payload: %w", err)
		}
		packet.Ack = payload

	default:
		return nil, fmt.Errorf("unknown packet type: 0x%02x", header.PacketType)
	}

	return packet, nil
}

// ValidateHeader validates the packet header fields
func ValidateHeader(header *Header) error {
	if !IsValidPacketType(header.PacketType) {
		return fmt.Errorf("invalid packet type: 0x%02x", header.PacketType)
	}

	if header.Flags&^knownFlags != 0 {
		return fmt.Errorf("unknown flags: 0x%02x", header.Flags)
	}

	if header.PacketLen < HeaderSize {
		return fmt.Errorf("packet length too small: %d (minimum %d)", header.PacketLen, HeaderSize)
	}

	payloadSize := int(header.PacketLen) - HeaderSize
	switch header.PacketType {
	case PacketTypeRegister, PacketTypeUnregister:
		if payloadSize <= RequestPayloadHeaderSize {
			return fmt.Errorf("request packet payload too small: expected more than %d, got %d",
				RequestPayloadHeaderSize, payloadSize)
		}
		if payloadSize > RequestPayloadHeaderSize+MaxPathLen {
			return fmt.Errorf("request packet payload too large: maximum %d, got %d",
				RequestPayloadHeaderSize+MaxPathLen, payloadSize)
		}
	case PacketTypeAck:
		if payloadSize != AckPayloadSize {
			return fmt.Errorf("ack packet payload size mismatch: expected %d, got %d",
				AckPayloadSize, payloadSize)
		}
	}

	return nil
}

// IsValidPacketType checks if the packet type is valid
func IsValidPacketType(ptype uint8) bool {
	return ptype == PacketTypeRegister || ptype == PacketTypeUnregister || ptype == PacketTypeAck
}

// EncodeRequest builds a register or unregister packet
func EncodeRequest(ptype uint8, seq uint32, flags uint8, timestampMs uint64, path string) ([]byte, error) {
	if ptype != PacketTypeRegister && ptype != PacketTypeUnregister {
		return nil, fmt.Errorf("not a request packet type: 0x%02x", ptype)
	}
	if len(path) == 0 {
		return nil, fmt.Errorf("empty path")
	}
	if len(path) > MaxPathLen {
		return nil, fmt.Errorf("path too long: %d bytes (maximum %d)", len(path), MaxPathLen)
	}

	packetLen := HeaderSize + RequestPayloadHeaderSize + len(path)
	buf := make([]byte, packetLen)
	putHeader(buf, &Header{PacketType: ptype, PacketLen: uint16(packetLen), Seq: seq, Flags: flags})

	binary.BigEndian.PutUint64(buf[HeaderSize:HeaderSize+8], timestampMs)
	binary.BigEndian.PutUint16(buf[HeaderSize+8:HeaderSize+10], uint16(len(path)))
	copy(buf[HeaderSize+RequestPayloadHeaderSize:], path)

	return buf, nil
}

// EncodeAck builds an ack packet answering the request with sequence seq
func EncodeAck(seq uint32, status uint8, timestampMs uint64) []byte {
	buf := make([]byte, HeaderSize+AckPayloadSize)
	putHeader(buf, &Header{PacketType: PacketTypeAck, PacketLen: uint16(len(buf)), Seq: seq})

	buf[HeaderSize] = status
	binary.BigEndian.PutUint64(buf[HeaderSize+1:], timestampMs)

	return buf
}

func putHeader(buf []byte, h *Header) {
	buf[0] = h.PacketType
	binary.BigEndian.PutUint16(buf[1:3], h.PacketLen)
	binary.BigEndian.PutUint32(buf[3:7], h.Seq)
	buf[7] = h.Flags
}

// WantsAck reports whether the sender asked for an ack
func (h *Header) WantsAck() bool {
	return h.Flags&FlagNoAck == 0
}

// String returns a human-readable representation of the header
func (h *Header) String() string {
	var packetType string

	switch h.PacketType {
	case PacketTypeRegister:
		packetType = "Register"
	case PacketTypeUnregister:
		packetType = "Unregister"
	case PacketTypeAck:
		packetType = "Ack"
	default:
		packetType = fmt.Sprintf("Unknown(0x%02x)", h.PacketType)
	}

	return fmt.Sprintf("Header{Type:%s, Len:%d, Seq:%d, Flags:0x%02x}",
		packetType, h.PacketLen, h.Seq, h.Flags)
}

// String returns a human-readable representation of the request payload
func (r *RequestPayload) String() string {
	return fmt.Sprintf("RequestPayload{TimestampMs:%d, Path:%q}", r.TimestampMs, r.Path)
}

// String returns a human-readable representation of the ack payload
func (a *AckPayload) String() string {
	status := "Accepted"
	if a.Status != StatusAccepted {
		status = "Rejected"
	}
	return fmt.Sprintf("AckPayload{Status:%s, TimestampMs:%d}", status, a.TimestampMs)
}
