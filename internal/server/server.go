package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"

	"github.com/coreos/go-systemd/v22/activation"

	"github.com/skypro1111/echo-service/internal/config"
	"github.com/skypro1111/echo-service/internal/metrics"
)

// Server echoes TCP streams and UDP datagrams received on one address
type Server struct {
	listener net.Listener
	conn     *net.UDPConn
	config   *config.ServerConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics

	wg      sync.WaitGroup
	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	closing bool
}

// NewServer creates a new echo server instance. The configuration is read
// only and shared with every handler goroutine.
func NewServer(cfg *config.ServerConfig, logger *slog.Logger, m *metrics.Metrics) *Server {
	if m == nil {
		m = metrics.NewMetrics()
	}

	return &Server{
		config:  cfg,
		logger:  logger,
		metrics: m,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start binds the TCP listener and the UDP socket and launches the accept
// and receive loops. A bind failure is returned and nothing is served.
func (s *Server) Start() error {
	var err error
	if s.config.SocketActivation {
		err = s.bindActivated()
	} else {
		err = s.bind()
	}
	if err != nil {
		return err
	}

	s.logger.Info("Echo server listening",
		slog.String("tcp_address", s.listener.Addr().String()),
		slog.String("udp_address", s.conn.LocalAddr().String()),
		slog.Int("threads", s.config.Threads),
		slog.Int("min_response_len", s.config.MinResponseLen),
		slog.Bool("verbose", s.config.Verbose),
	)

	s.wg.Add(2)
	go s.acceptLoop()
	go s.receiveLoop()

	return nil
}

func (s *Server) bind() error {
	address := s.config.BindAddress()

	listener, err := net.Listen(s.config.Network("tcp"), address)
	if err != nil {
		return fmt.Errorf("failed to listen on TCP %s: %w", address, err)
	}

	// With an ephemeral port the UDP socket follows the port the kernel
	// picked for TCP.
	if s.config.Port == 0 {
		host, _, err := net.SplitHostPort(address)
		if err != nil {
			listener.Close()
			return fmt.Errorf("failed to split bind address: %w", err)
		}
		port := listener.Addr().(*net.TCPAddr).Port
		address = net.JoinHostPort(host, strconv.Itoa(port))
	}

	udpAddr, err := net.ResolveUDPAddr(s.config.Network("udp"), address)
	if err != nil {
		listener.Close()
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP(s.config.Network("udp"), udpAddr)
	if err != nil {
		listener.Close()
		return fmt.Errorf("failed to listen on UDP %s: %w", address, err)
	}

	s.listener = listener
	s.conn = conn
	return nil
}

// bindActivated takes the sockets passed in by systemd. Exactly one stream
// listener and one datagram socket are expected.
func (s *Server) bindActivated() error {
	var listeners []net.Listener
	var conns []*net.UDPConn

	cleanup := func() {
		for _, l := range listeners {
			l.Close()
		}
		for _, c := range conns {
			c.Close()
		}
	}

	for _, f := range activation.Files(true) {
		if l, err := net.FileListener(f); err == nil {
			listeners = append(listeners, l)
		} else if pc, err := net.FilePacketConn(f); err == nil {
			udp, ok := pc.(*net.UDPConn)
			if !ok {
				pc.Close()
				f.Close()
				cleanup()
				return fmt.Errorf("socket activation: %s is not a UDP socket", f.Name())
			}
			conns = append(conns, udp)
		} else {
			f.Close()
			cleanup()
			return fmt.Errorf("socket activation: unsupported socket %s", f.Name())
		}
		f.Close()
	}

	if len(listeners) != 1 || len(conns) != 1 {
		cleanup()
		return fmt.Errorf("socket activation: expected one stream and one datagram socket, got %d and %d",
			len(listeners), len(conns))
	}

	s.listener = listeners[0]
	s.conn = conns[0]
	return nil
}

// Stop closes both sockets and every open TCP connection, then waits for
// all goroutines to return.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	open := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		open = append(open, c)
	}
	s.mu.Unlock()

	s.logger.Info("Stopping echo server...")

	var errs []error
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close TCP listener: %w", err))
		}
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close UDP socket: %w", err))
		}
	}
	for _, c := range open {
		c.Close()
	}

	s.wg.Wait()

	stats := s.GetStatistics()
	s.logger.Info("Echo server stopped",
		slog.Uint64("connections_accepted", stats.ConnectionsAccepted),
		slog.Uint64("packets_received", stats.PacketsReceived),
		slog.Uint64("packets_echoed", stats.PacketsEchoed),
		slog.Uint64("tcp_bytes_sent", stats.TCPBytesSent),
		slog.Uint64("udp_bytes_sent", stats.UDPBytesSent),
	)

	return errors.Join(errs...)
}

// Addr returns the address of the TCP listener
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// PacketAddr returns the address of the UDP socket
func (s *Server) PacketAddr() net.Addr {
	return s.conn.LocalAddr()
}

// GetStatistics returns current server statistics
func (s *Server) GetStatistics() metrics.Snapshot {
	return s.metrics.Snapshot()
}

// track registers an accepted connection so Stop can close it. It reports
// false when the server is already stopping.
func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()

	if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Warn("Error closing TCP connection",
			slog.String("remote_addr", c.RemoteAddr().String()),
			slog.String("error", err.Error()),
		)
	}
}

// isClosed reports whether err comes from a socket closed by Stop
func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed)
}
