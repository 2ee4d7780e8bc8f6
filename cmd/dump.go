package cmd

import (
	"context"
	"flag"
	"fmt"
	"time"

	"grimm.is/splitdns/internal/bus"
	"grimm.is/splitdns/internal/collector"
	"grimm.is/splitdns/internal/connection"
	"grimm.is/splitdns/internal/logging"
)

// RunDump handles the "dump" command: print NetworkManager's active
// connections in the JSON form accepted by "zones" and "push".
func RunDump(args []string) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	configFile := fs.String("config", "", "Configuration file")
	format := fs.String("format", formatJSON, "Output format: json, yaml")
	all := fs.Bool("all", false, "Include connections matched by the ignore list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkFormat(*format, formatJSON, formatYAML); err != nil {
		return err
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	conns, err := activeConnections(ctx, cfg.Monitor.BusTimeout)
	if err != nil {
		return err
	}
	if !*all {
		conns = conns.Without(cfg.Filter.Ignore)
	}
	return encode(Stdout, *format, conns.Records())
}

// activeConnections reads every active connection from NetworkManager
// without the settle delay.
func activeConnections(ctx context.Context, busTimeout time.Duration) (connection.Connections, error) {
	nm, err := bus.DialNetworkManager(busTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}
	defer nm.Close()

	c := collector.New(nm, collector.Options{Logger: logging.WithComponent("collector")})
	ids, err := c.ActiveIDs(ctx)
	if err != nil {
		return nil, err
	}
	return c.Resolve(ctx, ids)
}
