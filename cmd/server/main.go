package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/skypro1111/echo-service/internal/config"
	"github.com/skypro1111/echo-service/internal/logging"
	"github.com/skypro1111/echo-service/internal/metrics"
	"github.com/skypro1111/echo-service/internal/server"
)

const (
	serviceName    = "echo-service"
	serviceVersion = "1.0.0"
)

// cliFlags holds the command line values. Only flags given explicitly
// override the configuration file.
type cliFlags struct {
	configPath       string
	port             uint
	ipv6             bool
	threads          int
	minResponseLen   int
	readBufferSize   int
	verbose          bool
	socketActivation bool
}

func parseFlags() *cliFlags {
	f := &cliFlags{}

	flag.StringVar(&f.configPath, "config", "", "Path to an optional YAML configuration file")
	flag.UintVar(&f.port, "port", config.DefaultPort, "TCP/UDP listen port")
	flag.UintVar(&f.port, "p", config.DefaultPort, "Shorthand for -port")
	flag.BoolVar(&f.ipv6, "ipv6", false, "Bind the IPv6 wildcard address instead of IPv4")
	flag.IntVar(&f.threads, "threads", config.DefaultThreads, "Number of OS threads running goroutines")
	flag.IntVar(&f.threads, "t", config.DefaultThreads, "Shorthand for -threads")
	flag.IntVar(&f.minResponseLen, "min-response-len", config.DefaultMinResponseLen, "Bytes required before data is echoed")
	flag.IntVar(&f.minResponseLen, "m", config.DefaultMinResponseLen, "Shorthand for -min-response-len")
	flag.IntVar(&f.readBufferSize, "read-buffer-size", config.DefaultReadBufferSize, "Bytes per TCP read and maximum UDP datagram size")
	flag.BoolVar(&f.verbose, "verbose", false, "Log byte counts for every read and write")
	flag.BoolVar(&f.verbose, "v", false, "Shorthand for -verbose")
	flag.BoolVar(&f.socketActivation, "systemd", false, "Use sockets passed by systemd socket activation")
	flag.Parse()

	return f
}

// apply copies every explicitly set flag into cfg
func (f *cliFlags) apply(cfg *config.Config) error {
	var err error
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "port", "p":
			if f.port > 65535 {
				err = fmt.Errorf("port must be between 0 and 65535, got %d", f.port)
				return
			}
			cfg.Server.Port = uint16(f.port)
		case "ipv6":
			cfg.Server.IPv6 = f.ipv6
		case "threads", "t":
			cfg.Server.Threads = f.threads
		case "min-response-len", "m":
			cfg.Server.MinResponseLen = f.minResponseLen
		case "read-buffer-size":
			cfg.Server.ReadBufferSize = f.readBufferSize
		case "verbose", "v":
			cfg.Server.Verbose = f.verbose
		case "systemd":
			cfg.Server.SocketActivation = f.socketActivation
		}
	})
	if err != nil {
		return err
	}
	return cfg.Validate()
}

func main() {
	flags := parseFlags()

	// Load configuration
	cfg := config.Default()
	if flags.configPath != "" {
		var err error
		cfg, err = config.Load(flags.configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
	}
	if err := flags.apply(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.Server.Verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", flags.configPath),
	)

	runtime.GOMAXPROCS(cfg.Server.Threads)

	srv := server.NewServer(&cfg.Server, logger, metrics.NewMetrics())
	if err := srv.Start(); err != nil {
		logger.Error("Failed to start echo server", slog.String("error", err.Error()))
		closer.Close()
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	if err := srv.Stop(); err != nil {
		logger.Error("Error stopping echo server", slog.String("error", err.Error()))
	}

	logger.Info("Service stopped")
}
