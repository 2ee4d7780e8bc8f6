// Package collector resolves active connection ids into full connection
// records by reading NetworkManager properties.
package collector

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/netip"
	"time"

	"grimm.is/splitdns/internal/bus"
	"grimm.is/splitdns/internal/clock"
	"grimm.is/splitdns/internal/connection"
	"grimm.is/splitdns/internal/logging"
	"grimm.is/splitdns/internal/monitor"
)

// DefaultSettle is how long Resolve waits for NetworkManager to finish
// reconfiguring before reading properties.
const DefaultSettle = 1500 * time.Millisecond

// Options configure a Collector.
type Options struct {
	// Settle is the delay before the first lookup. Zero disables it; use
	// DefaultSettle for the usual behaviour.
	Settle time.Duration
	Clock  clock.Clock
	Logger *logging.Logger
}

// Collector reads connection properties from a PropertySource.
type Collector struct {
	src    bus.PropertySource
	settle time.Duration
	clock  clock.Clock
	logger *logging.Logger
}

// New creates a collector.
func New(src bus.PropertySource, opts Options) *Collector {
	if opts.Clock == nil {
		opts.Clock = clock.Default
	}
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent("collector")
	}
	return &Collector{
		src:    src,
		settle: opts.Settle,
		clock:  opts.Clock,
		logger: opts.Logger,
	}
}

// lookupError names the property that could not be read.
type lookupError struct {
	object string
	prop   string
	err    error
}

func (e *lookupError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s %s: unexpected value type", e.object, e.prop)
	}
	return fmt.Sprintf("%s %s: %v", e.object, e.prop, e.err)
}

func (e *lookupError) Unwrap() error { return e.err }

// Resolve returns a Connection for every id whose properties could all be
// read. Ids that fail any lookup are dropped; a connection that disappears
// between the change signal and the lookup is normal. The only error is
// ctx's.
func (c *Collector) Resolve(ctx context.Context, ids []uint32) (connection.Connections, error) {
	if c.settle > 0 {
		if err := clock.Sleep(ctx, c.clock, c.settle); err != nil {
			return nil, err
		}
	}

	conns := make(connection.Connections, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		conn, err := c.resolveOne(ctx, id)
		if err != nil {
			c.logger.Debug("dropping connection", "id", id, "error", err)
			continue
		}
		conns = append(conns, conn)
	}
	return conns, nil
}

func (c *Collector) resolveOne(ctx context.Context, id uint32) (connection.Connection, error) {
	active := monitor.ObjectPath(id)
	get := func(object, iface, prop string) (bus.Value, error) {
		v, err := c.src.GetProperty(ctx, object, iface, prop)
		if err != nil {
			return bus.Value{}, &lookupError{object: object, prop: prop, err: err}
		}
		return v, nil
	}

	var (
		conn connection.Connection
		ok   bool
	)

	v, err := get(active, bus.ActiveInterface, "Id")
	if err != nil {
		return conn, err
	}
	if conn.ID, ok = v.AsString(); !ok {
		return conn, &lookupError{object: active, prop: "Id"}
	}

	if v, err = get(active, bus.ActiveInterface, "Type"); err != nil {
		return conn, err
	}
	typ, ok := v.AsString()
	if !ok {
		return conn, &lookupError{object: active, prop: "Type"}
	}
	conn.Type = connection.ParseType(typ)

	if v, err = get(active, bus.ActiveInterface, "Default"); err != nil {
		return conn, err
	}
	if conn.Default, ok = v.AsBool(); !ok {
		return conn, &lookupError{object: active, prop: "Default"}
	}

	if v, err = get(active, bus.ActiveInterface, "Ip4Config"); err != nil {
		return conn, err
	}
	ip4, ok := v.AsObjectPath()
	if !ok {
		return conn, &lookupError{object: active, prop: "Ip4Config"}
	}

	if v, err = get(ip4, bus.IP4ConfigInterface, "Domains"); err != nil {
		return conn, err
	}
	domains, ok := v.AsStrings()
	if !ok {
		return conn, &lookupError{object: ip4, prop: "Domains"}
	}

	if v, err = get(ip4, bus.IP4ConfigInterface, "Searches"); err != nil {
		return conn, err
	}
	searches, ok := v.AsStrings()
	if !ok {
		return conn, &lookupError{object: ip4, prop: "Searches"}
	}
	conn.Domains = append(domains, searches...)

	if v, err = get(ip4, bus.IP4ConfigInterface, "Nameservers"); err != nil {
		return conn, err
	}
	nameservers, ok := v.AsUint32s()
	if !ok {
		return conn, &lookupError{object: ip4, prop: "Nameservers"}
	}
	conn.Nameservers = make([]netip.Addr, 0, len(nameservers))
	for _, ns := range nameservers {
		conn.Nameservers = append(conn.Nameservers, IPv4FromBus(ns))
	}

	if v, err = get(ip4, bus.IP4ConfigInterface, "Addresses"); err != nil {
		return conn, err
	}
	addresses, ok := v.AsUint32Matrix()
	if !ok {
		return conn, &lookupError{object: ip4, prop: "Addresses"}
	}
	conn.Addresses = make([]connection.Address, 0, len(addresses))
	for _, a := range addresses {
		// [address, prefix, gateway]; entries without a prefix are skipped.
		if len(a) < 2 || a[1] > 32 {
			continue
		}
		conn.Addresses = append(conn.Addresses, connection.Address{
			IP:     IPv4FromBus(a[0]),
			Prefix: uint8(a[1]),
		})
	}

	return conn, nil
}

// ActiveIDs reads the ids of all currently active connections from the
// NetworkManager root object.
func (c *Collector) ActiveIDs(ctx context.Context) ([]uint32, error) {
	v, err := c.src.GetProperty(ctx, bus.NMPath, bus.NMInterface, bus.ActiveConnectionsKey)
	if err != nil {
		return nil, fmt.Errorf("collector: active connections: %w", err)
	}
	return monitor.ExtractIDs(v), nil
}

// SwapBytes reverses the byte order of u.
func SwapBytes(u uint32) uint32 {
	return u>>24 | (u>>8)&0xff00 | (u<<8)&0xff0000 | u<<24
}

// IPv4FromBus converts a NetworkManager u32 address, which is in network
// byte order read as a little-endian integer, into an address.
func IPv4FromBus(u uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], SwapBytes(u))
	return netip.AddrFrom4(b)
}
