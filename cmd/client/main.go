// Client sends a single message to an echo server and prints the reply on
// stdout. It exits non-zero if no reply arrives before the timeout.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

func main() {
	target := flag.String("target", "", "the server address")
	payload := flag.String("message", "", "the message to send to the server")
	protocol := flag.String("protocol", "tcp", "the protocol to use with the server [udp,tcp]")
	timeout := flag.Duration("timeout", 2*time.Second, "how long to wait for the echo")
	flag.Parse()

	if *target == "" || *payload == "" {
		flag.Usage()
		os.Exit(2)
	}

	var err error
	switch *protocol {
	case "tcp":
		err = echoTCP(*target, *payload, *timeout, os.Stdout)
	case "udp":
		err = echoUDP(*target, *payload, *timeout, os.Stdout)
	default:
		err = fmt.Errorf("invalid protocol %q", *protocol)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "echo failed: %v\n", err)
		os.Exit(1)
	}
}

// echoTCP writes the payload, half-closes the connection and copies
// everything the server sends back until it closes its side.
func echoTCP(target, payload string, timeout time.Duration, out io.Writer) error {
	conn, err := net.DialTimeout("tcp", target, timeout)
	if err != nil {
		return fmt.Errorf("failed to open connection to [%s]: %w", target, err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(payload)); err != nil {
		return fmt.Errorf("failed to send payload: %w", err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			return fmt.Errorf("failed to close write side: %w", err)
		}
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	n, err := io.Copy(out, conn)
	if err != nil {
		return fmt.Errorf("failed to read from socket after %d bytes: %w", n, err)
	}
	return nil
}

// echoUDP sends one datagram and prints the single reply
func echoUDP(target, payload string, timeout time.Duration, out io.Writer) error {
	conn, err := net.Dial("udp", target)
	if err != nil {
		return fmt.Errorf("failed to open connection to [%s]: %w", target, err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(payload)); err != nil {
		return fmt.Errorf("failed to send payload: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	buf := make([]byte, 65535)
	n, err := conn.Read(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("no reply within %s", timeout)
		}
		return fmt.Errorf("failed to read from socket: %w", err)
	}
	_, err = out.Write(buf[:n])
	return err
}
