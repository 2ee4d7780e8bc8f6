// Package cmd implements the splitdnsd subcommands.
package cmd

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"grimm.is/splitdns/internal/backend"
	"grimm.is/splitdns/internal/config"
	"grimm.is/splitdns/internal/i18n"
	"grimm.is/splitdns/internal/logging"
)

// Printer formats CLI output for the user's locale.
var Printer = i18n.NewCLIPrinter()

// Stdout and Stdin are swapped out by tests.
var (
	Stdout io.Writer = os.Stdout
	Stdin  io.Reader = os.Stdin
)

// loadConfig reads the configuration, falling back to defaults when the
// default file is absent.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.DefaultPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// setupLogging installs the default logger described by cfg. The returned
// func releases the syslog connection, if any.
func setupLogging(cfg config.LogConfig) (func() error, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	lc := logging.DefaultConfig()
	lc.Level = level
	lc.JSON = cfg.JSON

	closer := func() error { return nil }
	if cfg.SyslogHost != "" {
		sc := logging.DefaultSyslogConfig()
		sc.Host = cfg.SyslogHost
		w, err := logging.NewSyslogWriter(sc)
		if err != nil {
			return nil, fmt.Errorf("syslog: %w", err)
		}
		lc.Output = logging.MultiWriter(os.Stderr, w)
		closer = w.Close
	}

	logging.SetDefault(logging.New(lc))
	return closer, nil
}

// fallback converts the configured fallback upstream.
func fallback(cfg config.FallbackConfig) (backend.Fallback, error) {
	addr, err := netip.ParseAddr(cfg.Address)
	if err != nil {
		return backend.Fallback{}, fmt.Errorf("fallback address: %w", err)
	}
	return backend.Fallback{Address: addr, Hostname: cfg.Hostname, CAFile: cfg.CAFile}, nil
}

// newApplier builds the Knot Resolver applier from cfg.
func newApplier(cfg *config.Config, dryRun bool) (*backend.Applier, error) {
	fb, err := fallback(cfg.Fallback)
	if err != nil {
		return nil, err
	}
	return backend.New(
		backend.SocketDialer(cfg.Resolver.ControlSocket, cfg.Resolver.Timeout),
		backend.Options{
			Fallback: fb,
			DryRun:   dryRun || cfg.Resolver.DryRun,
			Logger:   logging.WithComponent("backend"),
		},
	), nil
}

// readInput reads path, or stdin when path is "-" or empty.
func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(Stdin)
	}
	return os.ReadFile(path)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
