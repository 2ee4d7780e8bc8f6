package bus

import (
	"context"
	"time"
)

// NetworkManager D-Bus names.
const (
	NMDest                 = "org.freedesktop.NetworkManager"
	NMPath                 = "/org/freedesktop/NetworkManager"
	NMInterface            = "org.freedesktop.NetworkManager"
	ActiveConnectionPrefix = "/org/freedesktop/NetworkManager/ActiveConnection/"
	ActiveInterface        = "org.freedesktop.NetworkManager.Connection.Active"
	IP4ConfigInterface     = "org.freedesktop.NetworkManager.IP4Config"

	// ActiveConnectionsKey is the property that lists active connections,
	// both on the root object and in PropertiesChanged/StateChanged bags.
	ActiveConnectionsKey = "ActiveConnections"
)

// EventSource delivers NetworkManager change notifications.
type EventSource interface {
	// Subscribe installs the signal match. Call once before NextEvent.
	Subscribe(ctx context.Context) error

	// NextEvent blocks for at most timeout. ok is false when the timeout
	// expired with no event.
	NextEvent(ctx context.Context, timeout time.Duration) (props Properties, ok bool, err error)
}

// PropertySource reads single properties of bus objects.
type PropertySource interface {
	GetProperty(ctx context.Context, object, iface, name string) (Value, error)
}
