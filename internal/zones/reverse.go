package zones

import (
	"fmt"
	"net/netip"
)

// PrivateReverseZones lists every reverse zone covering RFC 1918 space.
// ReverseZone only ever returns members of this list.
var PrivateReverseZones = []string{
	"168.192.in-addr.arpa",
	"16.172.in-addr.arpa",
	"17.172.in-addr.arpa",
	"18.172.in-addr.arpa",
	"19.172.in-addr.arpa",
	"20.172.in-addr.arpa",
	"21.172.in-addr.arpa",
	"22.172.in-addr.arpa",
	"23.172.in-addr.arpa",
	"24.172.in-addr.arpa",
	"25.172.in-addr.arpa",
	"26.172.in-addr.arpa",
	"27.172.in-addr.arpa",
	"28.172.in-addr.arpa",
	"29.172.in-addr.arpa",
	"30.172.in-addr.arpa",
	"31.172.in-addr.arpa",
	"10.in-addr.arpa",
}

// ReverseZone maps a private IPv4 address to the reverse zone that covers
// it. 172.16.0.0/12 resolves to the per-/16 zone of the second octet.
func ReverseZone(ip netip.Addr) (string, bool) {
	if !ip.Is4() {
		return "", false
	}
	o := ip.As4()
	switch {
	case o[0] == 10:
		return "10.in-addr.arpa", true
	case o[0] == 172 && o[1] >= 16 && o[1] <= 31:
		return fmt.Sprintf("%d.172.in-addr.arpa", o[1]), true
	case o[0] == 192 && o[1] == 168:
		return "168.192.in-addr.arpa", true
	default:
		return "", false
	}
}
