package bus

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
)

var (
	// ErrClosed is returned once the underlying bus connection is gone.
	ErrClosed = errors.New("bus: connection closed")
	// ErrNotSubscribed is returned by NextEvent before Subscribe succeeded.
	ErrNotSubscribed = errors.New("bus: NextEvent called before Subscribe")
)

// NetworkManager talks to NetworkManager over the system bus. It implements
// both EventSource and PropertySource.
type NetworkManager struct {
	conn        *dbus.Conn
	callTimeout time.Duration

	mu         sync.Mutex
	signals    chan *dbus.Signal
	subscribed bool
}

// DialNetworkManager opens its own authenticated system bus connection,
// separate from the shared dbus.SystemBus one; Close only affects it.
func DialNetworkManager(callTimeout time.Duration) (*NetworkManager, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("dbus: failed to connect to system bus: %w", err)
	}
	return NewNetworkManager(conn, callTimeout), nil
}

// NewNetworkManager wraps an existing connection.
func NewNetworkManager(conn *dbus.Conn, callTimeout time.Duration) *NetworkManager {
	if callTimeout <= 0 {
		callTimeout = 5 * time.Second
	}
	return &NetworkManager{conn: conn, callTimeout: callTimeout}
}

// Subscribe matches every signal NetworkManager emits on its main interface
// (StateChanged, PropertiesChanged, DeviceAdded, ...).
func (n *NetworkManager) Subscribe(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subscribed {
		return nil
	}

	if err := n.conn.AddMatchSignalContext(ctx,
		dbus.WithMatchSender(NMDest),
		dbus.WithMatchInterface(NMInterface),
	); err != nil {
		return fmt.Errorf("dbus: failed to add match for %s: %w", NMInterface, err)
	}

	n.signals = make(chan *dbus.Signal, 64)
	n.conn.Signal(n.signals)
	n.subscribed = true
	return nil
}

// NextEvent waits for the next signal. Signals without a property bag are
// still events; they come back with empty Properties.
func (n *NetworkManager) NextEvent(ctx context.Context, timeout time.Duration) (Properties, bool, error) {
	n.mu.Lock()
	ch := n.signals
	n.mu.Unlock()
	if ch == nil {
		return nil, false, ErrNotSubscribed
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case <-timer.C:
		return nil, false, nil
	case sig, ok := <-ch:
		if !ok || sig == nil {
			return nil, false, ErrClosed
		}
		return signalProperties(sig), true, nil
	}
}

func signalProperties(sig *dbus.Signal) Properties {
	props := Properties{}
	if len(sig.Body) == 0 {
		return props
	}
	m, ok := FromDBus(sig.Body[0]).AsMap()
	if !ok {
		return props
	}
	for k, v := range m {
		props[k] = v
	}
	return props
}

// GetProperty calls org.freedesktop.DBus.Properties.Get on a NetworkManager
// object.
func (n *NetworkManager) GetProperty(ctx context.Context, object, iface, name string) (Value, error) {
	ctx, cancel := context.WithTimeout(ctx, n.callTimeout)
	defer cancel()

	var variant dbus.Variant
	obj := n.conn.Object(NMDest, dbus.ObjectPath(object))
	err := obj.CallWithContext(ctx, "org.freedesktop.DBus.Properties.Get", 0, iface, name).Store(&variant)
	if err != nil {
		return Value{}, fmt.Errorf("dbus: failed to access %s:%s.%s: %w", object, iface, name, err)
	}
	return FromDBus(variant), nil
}

// Close drops the signal subscription and the bus connection.
func (n *NetworkManager) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.signals != nil {
		n.conn.RemoveSignal(n.signals)
		n.signals = nil
	}
	return n.conn.Close()
}

// FromDBus converts a value decoded by godbus into a Value. Unknown types
// become an invalid Value.
func FromDBus(v any) Value {
	switch t := v.(type) {
	case nil:
		return Value{}
	case dbus.Variant:
		return FromDBus(t.Value())
	case *dbus.Variant:
		if t == nil {
			return Value{}
		}
		return FromDBus(t.Value())
	case dbus.ObjectPath:
		return ObjectPath(string(t))
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case dbus.Signature:
		return String(t.String())
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Uint(rv.Uint())
	case reflect.Slice, reflect.Array:
		items := make([]Value, rv.Len())
		for i := range items {
			items[i] = FromDBus(rv.Index(i).Interface())
		}
		return List(items...)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}
		}
		m := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = FromDBus(iter.Value().Interface())
		}
		return Map(m)
	}
	return Value{}
}
