// Package connection holds the DNS-relevant view of an active network
// connection and the normalizer that turns loosely typed connection records
// into it.
package connection

import (
	"net/netip"
	"strings"
)

// Type is the kind of link a connection runs over.
type Type int

const (
	Ethernet Type = iota
	VPN
	WiFi
	Other
)

// ParseType classifies a NetworkManager connection type string
// (e.g. "802-3-ethernet", "802-11-wireless", "vpn").
// Checks are case-sensitive and run in the order ethernet, wireless, vpn.
func ParseType(s string) Type {
	switch {
	case strings.Contains(s, "ethernet"):
		return Ethernet
	case strings.Contains(s, "wireless"):
		return WiFi
	case strings.Contains(s, "vpn"):
		return VPN
	default:
		return Other
	}
}

// Rank returns the priority of the connection type. Lower wins.
func (t Type) Rank() int {
	switch t {
	case Ethernet:
		return 0
	case VPN:
		return 1
	case WiFi:
		return 2
	default:
		return 3
	}
}

func (t Type) String() string {
	switch t {
	case Ethernet:
		return "ethernet"
	case VPN:
		return "vpn"
	case WiFi:
		return "wifi"
	default:
		return "other"
	}
}

// Address is an IPv4 interface address with its CIDR prefix length.
type Address struct {
	IP     netip.Addr
	Prefix uint8
}

func (a Address) String() string {
	return netip.PrefixFrom(a.IP, int(a.Prefix)).String()
}

// Connection is one active network connection.
type Connection struct {
	ID          string
	Type        Type
	Default     bool
	Addresses   []Address
	Nameservers []netip.Addr
	Domains     []string
}

// Connections is the batch handed from the collector to the zone deriver.
type Connections []Connection

// Without returns the connections whose ID contains none of the patterns.
// Virtual bridges (virbr0, docker0) carry addresses but no useful DNS.
func (c Connections) Without(patterns []string) Connections {
	if len(patterns) == 0 {
		return c
	}
	out := make(Connections, 0, len(c))
next:
	for _, conn := range c {
		for _, p := range patterns {
			if p != "" && strings.Contains(conn.ID, p) {
				continue next
			}
		}
		out = append(out, conn)
	}
	return out
}

// IDs returns the display names of the connections, in order.
func (c Connections) IDs() []string {
	ids := make([]string, len(c))
	for i, conn := range c {
		ids[i] = conn.ID
	}
	return ids
}
