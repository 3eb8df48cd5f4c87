package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/config"
	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/metrics"
	"github.com/UARobotics-Lab/beta-unitree-utilities/internal/protocol"
)

const (
	readDeadline   = time.Second
	packetQueueLen = 256
)

// UDPServer receives TLV control packets and registers or unregisters sources
type UDPServer struct {
	conn    *net.UDPConn
	config  *config.ControlConfig
	logger  *slog.Logger
	engine  Engine
	metrics *metrics.Metrics

	// Concurrency management
	ctx       context.Context
	cancel    context.CancelFunc
	recvWG    sync.WaitGroup
	workersWG sync.WaitGroup
	stopOnce  sync.Once

	// Packet processing
	packetChan chan *incomingPacket

	// Counters for /stats
	packetsReceived  uint64
	packetsProcessed uint64
	parseErrors      uint64
	packetsDropped   uint64
	acksSent         uint64
	mu               sync.RWMutex
}

// incomingPacket represents a received UDP packet with metadata
type incomingPacket struct {
	data       []byte
	remoteAddr *net.UDPAddr
	timestamp  time.Time
}

// NewUDPServer creates a new UDP control server
func NewUDPServer(cfg *config.ControlConfig, logger *slog.Logger, engine Engine, m *metrics.Metrics) *UDPServer {
	ctx, cancel := context.WithCancel(context.Background())

	return &UDPServer{
		config:     cfg,
		logger:     logger,
		engine:     engine,
		metrics:    m,
		ctx:        ctx,
		cancel:     cancel,
		packetChan: make(chan *incomingPacket, packetQueueLen),
	}
}

// Start begins listening for control packets
func (s *UDPServer) Start() error {
	addr, err := net.ResolveUDPAddr("udp", s.config.Address())
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}
	s.conn = conn

	if err := s.conn.SetReadBuffer(s.config.BufferSize); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", s.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	workers := s.config.Workers
	if workers < 1 {
		workers = 1
	}

	s.logger.Info("UDP control server started",
		slog.String("address", s.conn.LocalAddr().String()),
		slog.Int("buffer_size", s.config.BufferSize),
		slog.Int("workers", workers),
	)

	for i := 0; i < workers; i++ {
		s.workersWG.Add(1)
		go s.packetProcessor(i)
	}

	s.recvWG.Add(1)
	go s.receiveLoop()

	return nil
}

// Addr returns the bound address; nil before Start
func (s *UDPServer) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Stop gracefully stops the UDP server
func (s *UDPServer) Stop() error {
	s.stopOnce.Do(s.stop)
	return nil
}

func (s *UDPServer) stop() {
	s.logger.Info("Stopping UDP control server...")

	s.cancel()

	// The receive loop must exit before the queue is closed
	if s.conn != nil {
		if err := s.conn.SetReadDeadline(time.Now()); err != nil {
			s.logger.Warn("Failed to interrupt UDP read", slog.String("error", err.Error()))
		}
	}
	s.recvWG.Wait()

	close(s.packetChan)
	s.workersWG.Wait()

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
		}
	}

	stats := s.GetStatistics()
	s.logger.Info("UDP control server stopped",
		slog.Uint64("packets_received", stats.PacketsReceived),
		slog.Uint64("packets_processed", stats.PacketsProcessed),
		slog.Uint64("parse_errors", stats.ParseErrors),
		slog.Uint64("acks_sent", stats.AcksSent),
	)
}

// receiveLoop is the main packet receiving loop
func (s *UDPServer) receiveLoop() {
	defer s.recvWG.Done()

	if s.conn == nil {
		return
	}

	buffer := make([]byte, protocol.MaxPacketSize+1)

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debug("Receive loop stopping due to context cancellation")
			return
		default:
		}

		// Periodic deadline so cancellation is noticed without traffic
		if err := s.conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			s.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			return
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Error("Failed to read UDP packet", slog.String("error", err.Error()))
				continue
			}
		}

		s.mu.Lock()
		s.packetsReceived++
		s.mu.Unlock()
		s.metrics.RecordPacketReceived()

		// Buffer is reused
		packetData := make([]byte, n)
		copy(packetData, buffer[:n])

		packet := &incomingPacket{
			data:       packetData,
			remoteAddr: remoteAddr,
			timestamp:  time.Now(),
		}

		select {
		case s.packetChan <- packet:
		default:
			s.mu.Lock()
			s.packetsDropped++
			s.mu.Unlock()

			s.logger.Warn("Packet processing queue full, dropping packet",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("packet_size", n),
			)
		}
	}
}

// packetProcessor processes packets from the packet channel
func (s *UDPServer) packetProcessor(workerID int) {
	defer s.workersWG.Done()

	s.logger.Debug("Packet processor started", slog.Int("worker_id", workerID))

	for packet := range s.packetChan {
		s.handlePacket(packet, workerID)
	}

	s.logger.Debug("Packet processor stopped", slog.Int("worker_id", workerID))
}

// handlePacket processes a single incoming packet
func (s *UDPServer) handlePacket(packet *incomingPacket, workerID int) {
	parsed, err := protocol.ParsePacket(packet.data)
	if err != nil {
		s.mu.Lock()
		s.parseErrors++
		s.mu.Unlock()
		s.metrics.RecordParseError()

		s.logger.Warn("Failed to parse control packet",
			slog.String("remote_addr", packet.remoteAddr.String()),
			slog.Int("packet_size", len(packet.data)),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
		)
		return
	}

	s.mu.Lock()
	s.packetsProcessed++
	s.mu.Unlock()
	s.metrics.RecordPacketProcessed()

	header := parsed.Header

	var ok bool
	switch header.PacketType {
	case protocol.PacketTypeRegister:
		ok = s.engine.Register(parsed.Request.Path)
	case protocol.PacketTypeUnregister:
		ok = s.engine.Unregister(parsed.Request.Path)
	case protocol.PacketTypeAck:
		s.logger.Debug("Ignoring ack packet",
			slog.String("remote_addr", packet.remoteAddr.String()),
			slog.Uint64("seq", uint64(header.Seq)),
		)
		return
	}

	s.logger.Info("Control packet processed",
		slog.String("packet", header.String()),
		slog.String("path", parsed.Request.Path),
		slog.Bool("accepted", ok),
		slog.String("remote_addr", packet.remoteAddr.String()),
		slog.Duration("latency", time.Since(packet.timestamp)),
		slog.Int("worker_id", workerID),
	)

	if header.WantsAck() {
		s.sendAck(packet.remoteAddr, header.Seq, ok)
	}
}

func (s *UDPServer) sendAck(addr *net.UDPAddr, seq uint32, accepted bool) {
	status := uint8(protocol.StatusAccepted)
	if !accepted {
		status = protocol.StatusRejected
	}

	ack := protocol.EncodeAck(seq, status, uint64(time.Now().UnixMilli()))
	if _, err := s.conn.WriteToUDP(ack, addr); err != nil {
		s.logger.Warn("Failed to send ack",
			slog.String("remote_addr", addr.String()),
			slog.Uint64("seq", uint64(seq)),
			slog.String("error", err.Error()),
		)
		return
	}

	s.mu.Lock()
	s.acksSent++
	s.mu.Unlock()
}

// GetStatistics returns current server statistics
func (s *UDPServer) GetStatistics() ServerStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ServerStatistics{
		PacketsReceived:  s.packetsReceived,
		PacketsProcessed: s.packetsProcessed,
		ParseErrors:      s.parseErrors,
		PacketsDropped:   s.packetsDropped,
		AcksSent:         s.acksSent,
		ActiveSources:    uint64(s.engine.ActiveCount()),
		QueueSize:        uint64(len(s.packetChan)),
		QueueCapacity:    uint64(cap(s.packetChan)),
	}
}

// ServerStatistics represents control server counters
type ServerStatistics struct {
	PacketsReceived  uint64 `json:"packets_received"`
	PacketsProcessed uint64 `json:"packets_processed"`
	ParseErrors      uint64 `json:"parse_errors"`
	PacketsDropped   uint64 `json:"packets_dropped"`
	AcksSent         uint64 `json:"acks_sent"`
	ActiveSources    uint64 `json:"active_sources"`
	QueueSize        uint64 `json:"queue_size"`
	QueueCapacity    uint64 `json:"queue_capacity"`
}
