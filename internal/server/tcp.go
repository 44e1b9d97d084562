package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
)

// acceptLoop accepts TCP connections until the listener is closed. Each
// connection gets its own goroutine.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if isClosed(err) {
				s.logger.Info("Accept loop stopping, listener closed")
				return
			}
			s.metrics.RecordAcceptError()
			s.logger.Error("Failed to accept TCP connection", slog.String("error", err.Error()))
			continue
		}

		if !s.track(conn) {
			conn.Close()
			return
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn runs the echo loop for one connection and logs how it ended
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)

	logger := s.logger.With(
		slog.String("protocol", "tcp"),
		slog.String("remote_addr", conn.RemoteAddr().String()),
	)
	logger.Info("Connection established")
	s.metrics.RecordConnectionOpened()

	err := s.echoStream(conn, logger)
	s.metrics.RecordConnectionClosed(err != nil)

	switch {
	case err == nil:
		logger.Info("Connection closed")
	case isClosed(err):
		logger.Info("Connection closed by server shutdown")
	default:
		logger.Error("Connection aborted", slog.String("error", err.Error()))
	}
}

// echoStream accumulates bytes read from rw and writes the whole
// accumulation back once it holds at least MinResponseLen bytes. It returns
// nil when the peer ends the stream. Bytes still pending at that point are
// discarded.
func (s *Server) echoStream(rw io.ReadWriter, logger *slog.Logger) error {
	buf := make([]byte, s.config.ReadBufferSize)
	var pending []byte

	for {
		n, err := rw.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			s.metrics.RecordTCPReceived(n)
			if s.config.Verbose {
				logger.Debug("Received bytes", slog.Int("bytes", n))
			}

			if len(pending) >= s.config.MinResponseLen {
				sent, werr := rw.Write(pending)
				if werr != nil {
					return fmt.Errorf("write %d bytes: %w", len(pending), werr)
				}
				pending = pending[:0]
				s.metrics.RecordFlush(sent)
				if s.config.Verbose {
					logger.Debug("Sent bytes", slog.Int("bytes", sent))
				}
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(pending) > 0 {
					logger.Debug("Discarding bytes below threshold", slog.Int("bytes", len(pending)))
				}
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
	}
}
