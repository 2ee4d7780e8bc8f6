package cmd

import (
	"context"
	"flag"
	"time"

	"grimm.is/splitdns/internal/connection"
	"grimm.is/splitdns/internal/ctlsock"
)

// RunPush handles the "push" command: send a connection list to a running
// daemon's control socket and report its reply.
func RunPush(args []string) error {
	fs := flag.NewFlagSet("push", flag.ContinueOnError)
	file := fs.String("f", "-", "Connection list (JSON), - for stdin")
	configFile := fs.String("config", "", "Configuration file")
	socket := fs.String("socket", "", "Control socket (default from config)")
	timeout := fs.Duration("timeout", ctlsock.DefaultTimeout, "How long to wait for the daemon")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := *socket
	if path == "" {
		cfg, err := loadConfig(*configFile)
		if err != nil {
			return err
		}
		path = cfg.Control.Socket
	}

	data, err := readInput(*file)
	if err != nil {
		return err
	}
	conns, err := connection.ParseConnections(data)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	return push(ctx, path, conns, *timeout)
}

func push(ctx context.Context, path string, conns connection.Connections, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := ctlsock.Send(ctx, path, conns); err != nil {
		return err
	}
	Printer.Fprintf(Stdout, "Pushed %d connections.\n", len(conns))
	return nil
}
