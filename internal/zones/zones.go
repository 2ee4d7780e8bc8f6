// Package zones derives split-horizon forwarding zones from the set of
// active connections.
//
// A domain or reverse zone claimed by several connections is owned by the
// connection whose type ranks highest (Ethernet before VPN before WiFi);
// on equal rank the connection listed first wins.
package zones

import (
	"net/netip"
	"slices"

	"grimm.is/splitdns/internal/connection"
)

// Forward routes queries under Domain to Nameservers.
type Forward struct {
	Domain      string
	Nameservers []netip.Addr
	Type        connection.Type
}

// Reverse routes PTR queries under Zone to Nameservers.
type Reverse struct {
	Zone        string
	Nameservers []netip.Addr
	Type        connection.Type
}

// Set is the full derived configuration for one pipeline iteration.
type Set struct {
	Forward []Forward
	Reverse []Reverse
}

// Derive computes both zone lists.
func Derive(conns connection.Connections) Set {
	return Set{
		Forward: DeriveForward(conns),
		Reverse: DeriveReverse(conns),
	}
}

// Len returns the total number of zones.
func (s Set) Len() int {
	return len(s.Forward) + len(s.Reverse)
}

// DeriveForward returns one zone per distinct domain, ordered by first
// appearance.
func DeriveForward(conns connection.Connections) []Forward {
	var all []Forward
	for _, c := range conns {
		for _, d := range c.Domains {
			all = append(all, Forward{
				Domain:      d,
				Nameservers: slices.Clone(c.Nameservers),
				Type:        c.Type,
			})
		}
	}
	return dedupe(all, func(z Forward) (string, connection.Type) { return z.Domain, z.Type })
}

// DeriveReverse returns one zone per private reverse zone touched by any
// connection address, ordered by first appearance.
func DeriveReverse(conns connection.Connections) []Reverse {
	var all []Reverse
	for _, c := range conns {
		for _, a := range c.Addresses {
			zone, ok := ReverseZone(a.IP)
			if !ok {
				continue
			}
			all = append(all, Reverse{
				Zone:        zone,
				Nameservers: slices.Clone(c.Nameservers),
				Type:        c.Type,
			})
		}
	}
	return dedupe(all, func(z Reverse) (string, connection.Type) { return z.Zone, z.Type })
}

// dedupe keeps, per key, the candidate with the lowest rank. A later
// candidate only replaces the current owner when its rank is strictly lower.
func dedupe[Z any](candidates []Z, key func(Z) (string, connection.Type)) []Z {
	owner := make(map[string]int, len(candidates))
	var order []string
	for i, z := range candidates {
		k, t := key(z)
		cur, seen := owner[k]
		if !seen {
			owner[k] = i
			order = append(order, k)
			continue
		}
		if _, curType := key(candidates[cur]); t.Rank() < curType.Rank() {
			owner[k] = i
		}
	}
	out := make([]Z, 0, len(order))
	for _, k := range order {
		out = append(out, candidates[owner[k]])
	}
	return out
}
