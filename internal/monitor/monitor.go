// Package monitor turns NetworkManager change notifications into settled
// batches of active connection ids.
//
// A single network change usually produces a burst of signals. The monitor
// waits in Watching with a long timeout; a signal that carries the
// ActiveConnections property moves it to Debouncing, where every further
// signal restarts a short window. When the short window passes quietly the
// ids from the last ActiveConnections payload are committed as one batch.
package monitor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"grimm.is/splitdns/internal/bus"
	"grimm.is/splitdns/internal/logging"
)

// State is the monitor's position in the debounce cycle.
type State int

const (
	Watching State = iota
	Debouncing
)

func (s State) String() string {
	switch s {
	case Watching:
		return "watching"
	case Debouncing:
		return "debouncing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Timeouts are the per-state wait bounds.
type Timeouts struct {
	Watch    time.Duration
	Debounce time.Duration
}

// DefaultTimeouts returns 1s watching and 20ms debouncing.
func DefaultTimeouts() Timeouts {
	return Timeouts{Watch: time.Second, Debounce: 20 * time.Millisecond}
}

// Timeout returns how long the monitor waits for an event in state s.
func (s State) Timeout(t Timeouts) time.Duration {
	if s == Debouncing {
		return t.Debounce
	}
	return t.Watch
}

// Options configure a Monitor.
type Options struct {
	Timeouts Timeouts
	Logger   *logging.Logger
}

// Monitor runs the debounce state machine over an EventSource. Next must not
// be called concurrently.
type Monitor struct {
	source   bus.EventSource
	timeouts Timeouts
	logger   *logging.Logger

	mu         sync.Mutex
	state      State
	pending    bus.Value
	subscribed bool
}

// New creates a monitor in the Watching state.
func New(source bus.EventSource, opts Options) *Monitor {
	def := DefaultTimeouts()
	if opts.Timeouts.Watch <= 0 {
		opts.Timeouts.Watch = def.Watch
	}
	if opts.Timeouts.Debounce <= 0 {
		opts.Timeouts.Debounce = def.Debounce
	}
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent("monitor")
	}
	return &Monitor{
		source:   source,
		timeouts: opts.Timeouts,
		logger:   opts.Logger,
		state:    Watching,
	}
}

// Subscribe installs the signal match on the event source. Only the first
// successful call reaches the source.
func (m *Monitor) Subscribe(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribed {
		return nil
	}
	if err := m.source.Subscribe(ctx); err != nil {
		return fmt.Errorf("monitor: subscribe: %w", err)
	}
	m.subscribed = true
	return nil
}

// State reports the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Next blocks until a batch commits and returns its ids. The returned slice
// may be empty when every active connection has gone away.
func (m *Monitor) Next(ctx context.Context) ([]uint32, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		state := m.State()
		props, ok, err := m.source.NextEvent(ctx, state.Timeout(m.timeouts))
		if err != nil {
			return nil, fmt.Errorf("monitor: next event: %w", err)
		}

		if !ok {
			if state == Debouncing {
				ids := ExtractIDs(m.pending)
				m.pending = bus.Value{}
				m.setState(Watching)
				return ids, nil
			}
			continue
		}

		// Any event re-enters Watching before the payload is inspected. The
		// last ActiveConnections payload survives until the next commit.
		m.setState(Watching)
		if v, found := props[bus.ActiveConnectionsKey]; found {
			m.pending = v
			m.setState(Debouncing)
			m.logger.Debug("active connections changed, debouncing")
		}
	}
}

// Run subscribes to the source, then commits batches to out until ctx is
// done. out should have capacity 1; an unconsumed batch is replaced by the
// newer one. A failed subscription is returned; later source errors are
// logged and retried after the watch timeout.
func (m *Monitor) Run(ctx context.Context, out chan []uint32) error {
	if err := m.Subscribe(ctx); err != nil {
		return err
	}
	for {
		ids, err := m.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Error("monitor failed, retrying", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.timeouts.Watch):
			}
			continue
		}
		m.logger.Debug("batch committed", "ids", ids)
		Publish(out, ids)
	}
}

// Publish delivers ids on a latest-wins channel: if a previous batch is
// still waiting it is discarded first. Only one goroutine may publish on ch.
func Publish(ch chan []uint32, ids []uint32) {
	for {
		select {
		case ch <- ids:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// ExtractIDs walks a (possibly nested) list of ActiveConnection object paths
// and returns the trailing integer of each. Leaves that are not paths or do
// not end in an integer are dropped.
func ExtractIDs(v bus.Value) []uint32 {
	ids := []uint32{}
	walk(v, &ids)
	return ids
}

func walk(v bus.Value, ids *[]uint32) {
	if items, ok := v.AsList(); ok {
		for _, item := range items {
			walk(item, ids)
		}
		return
	}
	path, ok := v.AsObjectPath()
	if !ok {
		return
	}
	if id, ok := ParseID(path); ok {
		*ids = append(*ids, id)
	}
}

// ParseID returns n for an object path ending in "/<n>", normally
// ".../ActiveConnection/<n>".
func ParseID(path string) (uint32, bool) {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 || idx == len(path)-1 {
		return 0, false
	}
	n, err := strconv.ParseUint(path[idx+1:], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// ObjectPath returns the ActiveConnection object path for id.
func ObjectPath(id uint32) string {
	return bus.ActiveConnectionPrefix + strconv.FormatUint(uint64(id), 10)
}
