package probe

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// PingFunc checks that addr answers ICMP echo. Replaceable in tests.
var PingFunc = func(ctx context.Context, addr netip.Addr) (time.Duration, error) {
	pinger, err := probing.NewPinger(addr.String())
	if err != nil {
		return 0, fmt.Errorf("failed to create pinger: %w", err)
	}

	pinger.Count = 1
	pinger.Timeout = time.Second
	pinger.SetPrivileged(false)

	if err := pinger.RunWithContext(ctx); err != nil {
		return 0, err
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, fmt.Errorf("packet loss")
	}
	return stats.AvgRtt, nil
}

// Reachable pings every distinct nameserver in the set once. The result maps
// each server to nil or its failure.
func Reachable(ctx context.Context, servers []netip.Addr) map[netip.Addr]error {
	out := make(map[netip.Addr]error, len(servers))
	for _, s := range servers {
		if _, seen := out[s]; seen {
			continue
		}
		_, err := PingFunc(ctx, s)
		out[s] = err
	}
	return out
}
