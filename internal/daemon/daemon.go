// Package daemon runs the split DNS pipeline: change monitor, property
// collector, zone derivation and backend sync.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"grimm.is/splitdns/internal/backend"
	"grimm.is/splitdns/internal/clock"
	"grimm.is/splitdns/internal/connection"
	"grimm.is/splitdns/internal/events"
	"grimm.is/splitdns/internal/logging"
	"grimm.is/splitdns/internal/zones"
)

// BatchSource commits batches of active connection ids. *monitor.Monitor
// implements it.
type BatchSource interface {
	Run(ctx context.Context, out chan []uint32) error
}

// Resolver turns ids into connections. *collector.Collector implements it.
type Resolver interface {
	Resolve(ctx context.Context, ids []uint32) (connection.Connections, error)
	ActiveIDs(ctx context.Context) ([]uint32, error)
}

// Syncer replaces the resolver's rule set. *backend.Applier implements it.
type Syncer interface {
	Sync(ctx context.Context, set zones.Set) error
	Commands(set zones.Set) []string
}

// Options configure a Daemon.
type Options struct {
	Monitor  BatchSource
	Resolver Resolver
	Syncer   Syncer

	// Ignore drops connections whose id contains any of these substrings.
	Ignore []string
	// InitialSync runs one cycle from the current active connections before
	// the first change arrives.
	InitialSync bool
	DryRun      bool

	Hub    *events.Hub
	Clock  clock.Clock
	Logger *logging.Logger
}

// Daemon owns the pipeline.
type Daemon struct {
	opts   Options
	logger *logging.Logger

	mu      sync.RWMutex
	current zones.Set
	conns   connection.Connections
}

// New creates a daemon. Monitor is only needed for Run.
func New(opts Options) *Daemon {
	if opts.Clock == nil {
		opts.Clock = clock.Default
	}
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent("daemon")
	}
	return &Daemon{opts: opts, logger: opts.Logger}
}

// Run starts the monitor and processes its batches one at a time until ctx
// is done. Failed cycles are logged and published, never returned.
func (d *Daemon) Run(ctx context.Context) error {
	if d.opts.Monitor == nil {
		return errors.New("daemon: no monitor configured")
	}

	batches := make(chan []uint32, 1)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return d.opts.Monitor.Run(ctx, batches)
	})

	g.Go(func() error {
		if d.opts.InitialSync {
			d.initialSync(ctx)
		}
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ids := <-batches:
				d.Process(ctx, ids)
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (d *Daemon) initialSync(ctx context.Context) {
	ids, err := d.opts.Resolver.ActiveIDs(ctx)
	if err != nil {
		d.logger.Warn("initial sync skipped", "error", err)
		return
	}
	d.Process(ctx, ids)
}

// Process runs one cycle for a committed batch and reports whether the
// rules were synced.
func (d *Daemon) Process(ctx context.Context, ids []uint32) bool {
	cycle := uuid.NewString()
	log := d.logger.WithFields(map[string]any{"cycle": cycle})
	d.opts.Hub.EmitBatch(cycle, ids)
	log.Info("connections changed", "ids", ids)

	conns, err := d.opts.Resolver.Resolve(ctx, ids)
	if err != nil {
		log.Warn("collection aborted", "error", err)
		return false
	}
	kept := conns.Without(d.opts.Ignore)
	d.opts.Hub.Publish(events.Event{
		Type:   events.EventConnectionsChanged,
		Cycle:  cycle,
		Source: "daemon",
		Data: events.ConnectionsData{
			Requested: len(ids),
			Resolved:  len(conns),
			Ignored:   len(conns) - len(kept),
			IDs:       kept.IDs(),
		},
	})
	if dropped := len(ids) - len(conns); dropped > 0 {
		log.Debug("connections dropped during collection", "dropped", dropped)
	}

	return d.sync(ctx, log, cycle, "daemon", kept) == nil
}

// ApplyConnections derives and installs zones for connections supplied from
// outside the monitor, such as the control socket.
func (d *Daemon) ApplyConnections(ctx context.Context, conns connection.Connections) error {
	cycle := uuid.NewString()
	log := d.logger.WithFields(map[string]any{"cycle": cycle, "source": "control"})
	return d.sync(ctx, log, cycle, "control", conns.Without(d.opts.Ignore))
}

func (d *Daemon) sync(ctx context.Context, log *logging.Logger, cycle, source string, conns connection.Connections) error {
	set := zones.Derive(conns)
	d.opts.Hub.Publish(events.Event{
		Type:   events.EventZonesDerived,
		Cycle:  cycle,
		Source: source,
		Data:   zoneNames(set),
	})
	log.Debug("zones derived", "forward", len(set.Forward), "reverse", len(set.Reverse))

	start := d.opts.Clock.Now()
	if err := d.opts.Syncer.Sync(ctx, set); err != nil {
		log.Error("rule sync failed", "error", err)
		d.opts.Hub.EmitRulesFailed(cycle, source, failedCommand(err), err)
		return fmt.Errorf("sync rules: %w", err)
	}
	d.opts.Hub.EmitRulesApplied(cycle, source, len(d.opts.Syncer.Commands(set)),
		d.opts.DryRun, d.opts.Clock.Since(start))

	d.mu.Lock()
	d.current = set
	d.conns = conns
	d.mu.Unlock()
	return nil
}

// Current returns the last installed zones and the connections they were
// derived from.
func (d *Daemon) Current() (zones.Set, connection.Connections) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current, d.conns
}

func zoneNames(set zones.Set) events.ZonesData {
	data := events.ZonesData{
		Forward: make([]string, len(set.Forward)),
		Reverse: make([]string, len(set.Reverse)),
	}
	for i, z := range set.Forward {
		data.Forward[i] = z.Domain
	}
	for i, z := range set.Reverse {
		data.Reverse[i] = z.Zone
	}
	return data
}

func failedCommand(err error) string {
	var be *backend.Error
	if errors.As(err, &be) {
		return be.Command
	}
	return ""
}
