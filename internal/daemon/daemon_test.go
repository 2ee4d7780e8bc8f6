package daemon

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/splitdns/internal/backend"
	"grimm.is/splitdns/internal/bus"
	"grimm.is/splitdns/internal/connection"
	"grimm.is/splitdns/internal/events"
	"grimm.is/splitdns/internal/logging"
	"grimm.is/splitdns/internal/monitor"
	"grimm.is/splitdns/internal/zones"
)

type fakeMonitor struct {
	batches [][]uint32
	err     error
}

func (m *fakeMonitor) Run(ctx context.Context, out chan []uint32) error {
	for _, b := range m.batches {
		select {
		case out <- b:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.err != nil {
		return m.err
	}
	<-ctx.Done()
	return ctx.Err()
}

type fakeResolver struct {
	conns     map[uint32]connection.Connection
	active    []uint32
	activeErr error
	err       error
}

func (r *fakeResolver) Resolve(ctx context.Context, ids []uint32) (connection.Connections, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out connection.Connections
	for _, id := range ids {
		if c, ok := r.conns[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeResolver) ActiveIDs(ctx context.Context) ([]uint32, error) {
	return r.active, r.activeErr
}

type recordingSyncer struct {
	mu   sync.Mutex
	sets []zones.Set
	err  error
}

func (s *recordingSyncer) Sync(ctx context.Context, set zones.Set) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets = append(s.sets, set)
	return s.err
}

func (s *recordingSyncer) Commands(set zones.Set) []string {
	return make([]string, set.Len()+1)
}

func (s *recordingSyncer) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sets)
}

func corpVPN() connection.Connection {
	return connection.Connection{
		ID:          "corp-vpn",
		Type:        connection.VPN,
		Addresses:   []connection.Address{{IP: netip.MustParseAddr("10.8.0.5"), Prefix: 24}},
		Nameservers: []netip.Addr{netip.MustParseAddr("10.8.0.1")},
		Domains:     []string{"corp.example"},
	}
}

func dockerBridge() connection.Connection {
	return connection.Connection{
		ID:          "docker0",
		Type:        connection.Other,
		Addresses:   []connection.Address{{IP: netip.MustParseAddr("172.17.0.1"), Prefix: 16}},
		Nameservers: []netip.Addr{netip.MustParseAddr("172.17.0.1")},
		Domains:     []string{"docker.internal"},
	}
}

func newTestDaemon(r Resolver, s Syncer, hub *events.Hub) *Daemon {
	return New(Options{
		Resolver: r,
		Syncer:   s,
		Ignore:   []string{"virbr", "docker"},
		Hub:      hub,
		Logger:   logging.Nop(),
	})
}

func drain(ch <-chan events.Event) []events.Event {
	var out []events.Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestDaemon_Process(t *testing.T) {
	hub := events.NewHub()
	ch := hub.Subscribe(16)
	r := &fakeResolver{conns: map[uint32]connection.Connection{1: corpVPN(), 2: dockerBridge()}}
	s := &recordingSyncer{}
	d := newTestDaemon(r, s, hub)

	require.True(t, d.Process(context.Background(), []uint32{1, 2, 9}))
	require.Len(t, s.sets, 1)
	require.Len(t, s.sets[0].Forward, 1)
	assert.Equal(t, "corp.example", s.sets[0].Forward[0].Domain)

	got := drain(ch)
	require.Len(t, got, 4)
	assert.Equal(t, events.EventBatch, got[0].Type)
	assert.Equal(t, events.EventConnectionsChanged, got[1].Type)
	assert.Equal(t, events.EventZonesDerived, got[2].Type)
	assert.Equal(t, events.EventRulesApplied, got[3].Type)

	cycle := got[0].Cycle
	assert.NotEmpty(t, cycle)
	for _, e := range got {
		assert.Equal(t, cycle, e.Cycle)
	}

	data := got[1].Data.(events.ConnectionsData)
	assert.Equal(t, 3, data.Requested)
	assert.Equal(t, 2, data.Resolved)
	assert.Equal(t, 1, data.Ignored)
	assert.Equal(t, []string{"corp-vpn"}, data.IDs)

	set, conns := d.Current()
	assert.Equal(t, s.sets[0], set)
	assert.Equal(t, []string{"corp-vpn"}, conns.IDs())
}

func TestDaemon_ProcessResolveError(t *testing.T) {
	s := &recordingSyncer{}
	d := newTestDaemon(&fakeResolver{err: context.Canceled}, s, nil)

	assert.False(t, d.Process(context.Background(), []uint32{1}))
	assert.Zero(t, s.calls())
}

func TestDaemon_ProcessSyncFailure(t *testing.T) {
	hub := events.NewHub()
	ch := hub.Subscribe(16, events.EventRulesFailed)
	s := &recordingSyncer{err: &backend.Error{Op: "apply", Command: "policy.del(3)", Err: errors.New("broken pipe")}}
	d := newTestDaemon(&fakeResolver{conns: map[uint32]connection.Connection{1: corpVPN()}}, s, hub)

	assert.False(t, d.Process(context.Background(), []uint32{1}))

	got := drain(ch)
	require.Len(t, got, 1)
	data := got[0].Data.(events.RulesData)
	assert.Equal(t, "policy.del(3)", data.Command)
	assert.Contains(t, data.Error, "broken pipe")

	set, _ := d.Current()
	assert.Zero(t, set.Len())
}

func TestDaemon_ProcessEmptyBatch(t *testing.T) {
	s := &recordingSyncer{}
	d := newTestDaemon(&fakeResolver{}, s, nil)

	assert.True(t, d.Process(context.Background(), []uint32{}))
	require.Len(t, s.sets, 1)
	assert.Zero(t, s.sets[0].Len())
}

func TestDaemon_ApplyConnections(t *testing.T) {
	hub := events.NewHub()
	ch := hub.Subscribe(16)
	s := &recordingSyncer{}
	d := newTestDaemon(&fakeResolver{}, s, hub)

	err := d.ApplyConnections(context.Background(), connection.Connections{corpVPN(), dockerBridge()})
	require.NoError(t, err)
	require.Len(t, s.sets, 1)
	assert.Len(t, s.sets[0].Forward, 1)

	got := drain(ch)
	require.Len(t, got, 2)
	assert.Equal(t, "control", got[0].Source)
	assert.Equal(t, events.EventRulesApplied, got[1].Type)

	s.err = &backend.Error{Op: "connect", Err: errors.New("refused")}
	err = d.ApplyConnections(context.Background(), nil)
	assert.True(t, backend.IsBackendError(err))
}

func TestDaemon_Run(t *testing.T) {
	r := &fakeResolver{
		conns:  map[uint32]connection.Connection{1: corpVPN()},
		active: []uint32{1},
	}
	s := &recordingSyncer{}
	d := New(Options{
		Monitor:     &fakeMonitor{batches: [][]uint32{{1}, {}}},
		Resolver:    r,
		Syncer:      s,
		InitialSync: true,
		Logger:      logging.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return s.calls() == 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDaemon_RunKeepsGoingAfterFailures(t *testing.T) {
	s := &recordingSyncer{err: errors.New("resolver gone")}
	d := New(Options{
		Monitor:  &fakeMonitor{batches: [][]uint32{{1}, {2}, {3}}},
		Resolver: &fakeResolver{},
		Syncer:   s,
		Logger:   logging.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return s.calls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestDaemon_RunMonitorError(t *testing.T) {
	d := New(Options{
		Monitor:  &fakeMonitor{err: errors.New("bus closed")},
		Resolver: &fakeResolver{},
		Syncer:   &recordingSyncer{},
		Logger:   logging.Nop(),
	})
	assert.EqualError(t, d.Run(context.Background()), "bus closed")
}

func TestDaemon_RunRequiresMonitor(t *testing.T) {
	assert.Error(t, New(Options{}).Run(context.Background()))
}

func TestDaemon_InitialSyncError(t *testing.T) {
	s := &recordingSyncer{}
	d := newTestDaemon(&fakeResolver{activeErr: errors.New("no bus")}, s, nil)
	d.initialSync(context.Background())
	assert.Zero(t, s.calls())
}

func TestDaemon_RunWithBusMonitor(t *testing.T) {
	src := bus.NewFake()
	src.Push(bus.FakeEvent{
		Delay: 10 * time.Millisecond,
		Props: bus.Properties{
			bus.ActiveConnectionsKey: bus.List(bus.ObjectPath(monitor.ObjectPath(1))),
		},
	})
	s := &recordingSyncer{}
	d := New(Options{
		Monitor: monitor.New(src, monitor.Options{
			Timeouts: monitor.Timeouts{Watch: 50 * time.Millisecond, Debounce: 10 * time.Millisecond},
			Logger:   logging.Nop(),
		}),
		Resolver: &fakeResolver{conns: map[uint32]connection.Connection{1: corpVPN()}},
		Syncer:   s,
		Logger:   logging.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool { return s.calls() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Equal(t, 1, src.Subscriptions())
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.sets[0].Forward, 1)
	assert.Equal(t, "corp.example", s.sets[0].Forward[0].Domain)
}
