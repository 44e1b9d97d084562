package server

import (
	"log/slog"
	"net"
)

// receiveLoop is the main datagram receiving loop. It is the only reader of
// the UDP socket; reply goroutines share the socket for sending.
func (s *Server) receiveLoop() {
	defer s.wg.Done()

	buffer := make([]byte, s.config.ReadBufferSize)

	for {
		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			if isClosed(err) {
				s.logger.Info("Receive loop stopping, socket closed")
				return
			}
			s.metrics.RecordReceiveError()
			s.logger.Error("Failed to read UDP packet", slog.String("error", err.Error()))
			continue
		}

		s.metrics.RecordPacketReceived(n)

		// Create packet data copy (buffer will be reused)
		packet := make([]byte, n)
		copy(packet, buffer[:n])

		s.wg.Add(1)
		go s.handlePacket(packet, remoteAddr)
	}
}

// handlePacket echoes one datagram back to its sender if it is long enough.
// Shorter datagrams are dropped without notice to the sender.
func (s *Server) handlePacket(packet []byte, remoteAddr *net.UDPAddr) {
	defer s.wg.Done()

	if s.config.Verbose {
		s.logger.Debug("Received bytes",
			slog.String("protocol", "udp"),
			slog.String("remote_addr", remoteAddr.String()),
			slog.Int("bytes", len(packet)),
		)
	}

	if len(packet) >= s.config.MinResponseLen {
		sent, err := s.conn.WriteToUDP(packet, remoteAddr)
		if err != nil {
			s.metrics.RecordSendError()
			s.logger.Error("Failed to send UDP packet",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("packet_size", len(packet)),
				slog.String("error", err.Error()),
			)
			return
		}
		s.metrics.RecordPacketEchoed(sent)
		if s.config.Verbose {
			s.logger.Debug("Sent bytes",
				slog.String("protocol", "udp"),
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("bytes", sent),
			)
		}
	} else {
		s.metrics.RecordPacketDropped()
	}
}
