// Package probe checks split routing from the outside: it works out which
// nameserver a name should be forwarded to and queries it directly.
package probe

import (
	"net/netip"
	"strings"

	"github.com/miekg/dns"

	"grimm.is/splitdns/internal/zones"
)

// Route is the forwarding decision for one query name.
type Route struct {
	Name   string // fully qualified query name
	Zone   string // matched zone, empty for the fallback
	Server netip.Addr
	// Fallback is true when no zone matched.
	Fallback bool
	// Leaks is set for a fallback route whose name lies in private reverse
	// space: the PTR query would reach the public resolver.
	Leaks bool
}

// Resolve picks the zone that owns name using longest-suffix matching over
// the set. IP literals are turned into their in-addr.arpa name first.
// Zones without a nameserver are never matched, since no rule exists for them.
func Resolve(set zones.Set, name string) Route {
	qname := QueryName(name)
	r := Route{Name: qname, Fallback: true}
	best := -1

	consider := func(zone string, servers []netip.Addr) {
		if len(servers) == 0 {
			return
		}
		z := dns.CanonicalName(zone)
		if !dns.IsSubDomain(z, qname) {
			return
		}
		if n := dns.CountLabel(z); n > best {
			best = n
			r.Zone = strings.TrimSuffix(z, ".")
			r.Server = servers[0]
			r.Fallback = false
		}
	}

	for _, z := range set.Forward {
		consider(z.Domain, z.Nameservers)
	}
	if strings.HasSuffix(qname, ".in-addr.arpa.") {
		for _, z := range set.Reverse {
			consider(z.Zone, z.Nameservers)
		}
	}
	r.Leaks = r.Fallback && privateReverse(qname)
	return r
}

func privateReverse(qname string) bool {
	for _, z := range zones.PrivateReverseZones {
		if dns.IsSubDomain(dns.Fqdn(z), qname) {
			return true
		}
	}
	return false
}

// QueryName normalizes name to a lower-case FQDN, mapping IPv4 literals to
// their reverse lookup name.
func QueryName(name string) string {
	name = strings.TrimSpace(name)
	if ip, err := netip.ParseAddr(name); err == nil && ip.Is4() {
		if rev, err := dns.ReverseAddr(ip.String()); err == nil {
			return rev
		}
	}
	return dns.CanonicalName(name)
}

// Nameservers returns the first nameserver of every zone in the set, once
// each, in zone order. These are the servers the resolver forwards to.
func Nameservers(set zones.Set) []netip.Addr {
	var out []netip.Addr
	seen := make(map[netip.Addr]bool)
	add := func(servers []netip.Addr) {
		if len(servers) == 0 || seen[servers[0]] {
			return
		}
		seen[servers[0]] = true
		out = append(out, servers[0])
	}
	for _, z := range set.Forward {
		add(z.Nameservers)
	}
	for _, z := range set.Reverse {
		add(z.Nameservers)
	}
	return out
}
