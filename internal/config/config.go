package config

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort           = 34567
	DefaultThreads        = 1
	DefaultMinResponseLen = 1
	DefaultReadBufferSize = 65535
)

// Config represents the complete service configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains TCP/UDP echo server configuration
type ServerConfig struct {
	Port             uint16 `yaml:"port"`
	IPv6             bool   `yaml:"ipv6"`
	Threads          int    `yaml:"threads"`
	MinResponseLen   int    `yaml:"min_response_len"` // bytes
	ReadBufferSize   int    `yaml:"read_buffer_size"` // bytes
	Verbose          bool   `yaml:"verbose"`
	SocketActivation bool   `yaml:"socket_activation"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           DefaultPort,
			Threads:        DefaultThreads,
			MinResponseLen: DefaultMinResponseLen,
			ReadBufferSize: DefaultReadBufferSize,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "split",
		},
	}
}

// Load reads and parses the configuration file. Keys missing from the file
// keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration. Port 0 is accepted and asks the
// kernel for an ephemeral port.
func (s *ServerConfig) Validate() error {
	if s.Threads < 1 {
		return fmt.Errorf("threads must be at least 1, got %d", s.Threads)
	}

	if s.MinResponseLen < 0 {
		return fmt.Errorf("min_response_len cannot be negative, got %d", s.MinResponseLen)
	}

	if s.ReadBufferSize < 1 || s.ReadBufferSize > 65535 {
		return fmt.Errorf("read_buffer_size must be between 1 and 65535 bytes, got %d", s.ReadBufferSize)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Anything other than stdout, stderr or split is treated as a file path.
	if l.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}

	return nil
}

// Network returns the network name for the given transport ("tcp" or "udp").
// The IPv6 wildcard is bound dual-stack, the IPv4 wildcard is IPv4 only.
func (s *ServerConfig) Network(transport string) string {
	if s.IPv6 {
		return transport
	}
	return transport + "4"
}

// BindAddress returns the wildcard address of the selected family paired with
// the configured port.
func (s *ServerConfig) BindAddress() string {
	host := net.IPv4zero.String()
	if s.IPv6 {
		host = net.IPv6unspecified.String()
	}
	return net.JoinHostPort(host, strconv.Itoa(int(s.Port)))
}
