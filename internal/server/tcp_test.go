package server

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/skypro1111/echo-service/internal/metrics"
)

// scriptedConn replays a fixed sequence of reads and records every write
type scriptedConn struct {
	reads    []string
	readErr  error
	writes   []string
	writeErr error
}

func (c *scriptedConn) Read(p []byte) (int, error) {
	if len(c.reads) == 0 {
		if c.readErr != nil {
			return 0, c.readErr
		}
		return 0, io.EOF
	}
	n := copy(p, c.reads[0])
	c.reads = c.reads[1:]
	return n, nil
}

func (c *scriptedConn) Write(p []byte) (int, error) {
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	c.writes = append(c.writes, string(p))
	return len(p), nil
}

func TestEchoStream(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		reads     []string
		writes    []string
	}{
		{
			name:      "accumulates until threshold",
			threshold: 5,
			reads:     []string{"ab", "cde"},
			writes:    []string{"abcde"},
		},
		{
			name:      "flush includes overshoot",
			threshold: 3,
			reads:     []string{"ab", "cdef", "g"},
			writes:    []string{"abcdef"},
		},
		{
			name:      "buffer restarts after flush",
			threshold: 4,
			reads:     []string{"abcd", "ef", "gh", "i"},
			writes:    []string{"abcd", "efgh"},
		},
		{
			name:      "zero threshold flushes every read",
			threshold: 0,
			reads:     []string{"a", "bc", "def"},
			writes:    []string{"a", "bc", "def"},
		},
		{
			name:      "below threshold never echoed",
			threshold: 5,
			reads:     []string{"abc"},
			writes:    nil,
		},
		{
			name:      "immediate end of stream",
			threshold: 1,
			reads:     nil,
			writes:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(createTestServerConfig(tt.threshold), slog.New(slog.NewTextHandler(io.Discard, nil)), metrics.NewMetrics())
			conn := &scriptedConn{reads: tt.reads}

			if err := srv.echoStream(conn, srv.logger); err != nil {
				t.Fatalf("Expected clean end of stream, got: %v", err)
			}

			if strings.Join(conn.writes, "|") != strings.Join(tt.writes, "|") {
				t.Errorf("Expected writes %q, got %q", tt.writes, conn.writes)
			}
		})
	}
}

func TestEchoStreamErrors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("read error aborts", func(t *testing.T) {
		srv := NewServer(createTestServerConfig(5), logger, nil)
		conn := &scriptedConn{reads: []string{"ab"}, readErr: errors.New("connection reset")}

		err := srv.echoStream(conn, logger)
		if err == nil || !strings.Contains(err.Error(), "read: connection reset") {
			t.Errorf("Expected read error, got %v", err)
		}
		if len(conn.writes) != 0 {
			t.Errorf("Expected no writes, got %q", conn.writes)
		}
	})

	t.Run("write error aborts", func(t *testing.T) {
		srv := NewServer(createTestServerConfig(2), logger, nil)
		conn := &scriptedConn{reads: []string{"ab", "cd"}, writeErr: errors.New("broken pipe")}

		err := srv.echoStream(conn, logger)
		if err == nil || !strings.Contains(err.Error(), "write 2 bytes: broken pipe") {
			t.Errorf("Expected write error, got %v", err)
		}
		if len(conn.reads) != 1 {
			t.Errorf("Expected handler to stop after failed write, %d reads left", len(conn.reads))
		}
	})
}
