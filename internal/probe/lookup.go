package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/miekg/dns"

	"grimm.is/splitdns/internal/backend"
	"grimm.is/splitdns/internal/zones"
)

// DefaultTimeout bounds a single query.
const DefaultTimeout = 5 * time.Second

// Result is the outcome of one probe query.
type Result struct {
	Route  Route
	Server string // host:port actually queried
	Net    string // "udp" or "tcp-tls"
	Answer []dns.RR
	Rcode  int
	RTT    time.Duration
}

// Prober sends queries along the route the resolver should take.
type Prober struct {
	Fallback backend.Fallback
	Timeout  time.Duration

	port string // plain DNS port, 53 unless overridden in tests
}

// Lookup resolves which server owns name and queries it for qtype.
// Matched zones are queried over UDP on port 53; everything else goes to
// the fallback over DNS-over-TLS, or plain UDP when it has no hostname.
func (p *Prober) Lookup(ctx context.Context, set zones.Set, name string, qtype uint16) (*Result, error) {
	route := Resolve(set, name)
	res := &Result{Route: route}

	client, addr, err := p.client(route)
	if err != nil {
		return nil, err
	}
	res.Server = addr
	res.Net = client.Net
	if res.Net == "" {
		res.Net = "udp"
	}

	m := new(dns.Msg)
	m.SetQuestion(route.Name, qtype)
	m.RecursionDesired = true

	in, rtt, err := client.ExchangeContext(ctx, m, addr)
	if err != nil {
		return res, fmt.Errorf("query %s via %s: %w", route.Name, addr, err)
	}
	res.Answer = in.Answer
	res.Rcode = in.Rcode
	res.RTT = rtt
	return res, nil
}

func (p *Prober) client(route Route) (*dns.Client, string, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	port := p.port
	if port == "" {
		port = "53"
	}
	if !route.Fallback {
		return &dns.Client{Timeout: timeout}, hostPort(route.Server, port), nil
	}

	fb := p.Fallback
	if !fb.Address.IsValid() {
		fb = backend.DefaultFallback()
	}
	if fb.Hostname == "" {
		return &dns.Client{Timeout: timeout}, hostPort(fb.Address, port), nil
	}

	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: fb.Hostname,
	}
	if fb.CAFile != "" {
		pool, err := loadCAs(fb.CAFile)
		if err != nil {
			return nil, "", err
		}
		cfg.RootCAs = pool
	}
	return &dns.Client{
		Net:       "tcp-tls",
		TLSConfig: cfg,
		Timeout:   timeout,
	}, hostPort(fb.Address, "853"), nil
}

func loadCAs(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates in %s", path)
	}
	return pool, nil
}

func hostPort(addr netip.Addr, port string) string {
	return net.JoinHostPort(addr.String(), port)
}

// ParseType maps a record type name such as "A" or "ptr" to its code.
func ParseType(s string) (uint16, error) {
	if t, ok := dns.StringToType[strings.ToUpper(s)]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("unknown record type %q", s)
}
