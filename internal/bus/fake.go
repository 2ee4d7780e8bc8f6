package bus

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FakeEvent is one scripted notification. Delay is measured from the
// moment the previous event was delivered (or from Subscribe for the first).
type FakeEvent struct {
	Delay time.Duration
	Props Properties
}

// Fake is an in-memory EventSource and PropertySource.
type Fake struct {
	mu         sync.Mutex
	events     []FakeEvent
	props      map[string]Value
	fail       map[string]error
	subscribed int
	calls      []string

	// pending holds the remaining delay of the head event across timeouts.
	pending time.Duration
	started bool
}

// NewFake returns an empty fake.
func NewFake() *Fake {
	return &Fake{
		props: make(map[string]Value),
		fail:  make(map[string]error),
	}
}

func propKey(object, iface, name string) string {
	return object + "|" + iface + "." + name
}

// Push queues scripted events.
func (f *Fake) Push(events ...FakeEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, events...)
}

// Set stores a property value.
func (f *Fake) Set(object, iface, name string, v Value) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.props[propKey(object, iface, name)] = v
}

// Fail makes a property lookup return err.
func (f *Fake) Fail(object, iface, name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[propKey(object, iface, name)] = err
}

// Subscribe counts subscriptions.
func (f *Fake) Subscribe(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed++
	return nil
}

// Subscriptions reports how many times Subscribe was called.
func (f *Fake) Subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed
}

// NextEvent delivers the head event if its delay fits in timeout, sleeping
// for the delay; otherwise it sleeps for timeout, charges it against the
// head event's delay and reports a timeout. An empty script always times out.
// Like NetworkManager it fails with ErrNotSubscribed before Subscribe.
func (f *Fake) NextEvent(ctx context.Context, timeout time.Duration) (Properties, bool, error) {
	f.mu.Lock()
	if f.subscribed == 0 {
		f.mu.Unlock()
		return nil, false, ErrNotSubscribed
	}
	if len(f.events) == 0 {
		f.mu.Unlock()
		return nil, false, sleepCtx(ctx, timeout)
	}
	if !f.started {
		f.pending = f.events[0].Delay
		f.started = true
	}
	wait := f.pending
	if wait > timeout {
		f.pending -= timeout
		f.mu.Unlock()
		return nil, false, sleepCtx(ctx, timeout)
	}
	ev := f.events[0]
	f.events = f.events[1:]
	if len(f.events) > 0 {
		f.pending = f.events[0].Delay
	} else {
		f.started = false
	}
	f.mu.Unlock()

	if err := sleepCtx(ctx, wait); err != nil {
		return nil, false, err
	}
	if ev.Props == nil {
		ev.Props = Properties{}
	}
	return ev.Props, true, nil
}

// GetProperty returns the stored value, the configured failure, or a
// not-found error.
func (f *Fake) GetProperty(ctx context.Context, object, iface, name string) (Value, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := propKey(object, iface, name)
	f.calls = append(f.calls, key)
	if err, ok := f.fail[key]; ok {
		return Value{}, err
	}
	v, ok := f.props[key]
	if !ok {
		return Value{}, fmt.Errorf("fake: no property %s", key)
	}
	return v, nil
}

// Calls returns every property lookup made so far.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
