package cmd

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"

	"grimm.is/splitdns/internal/connection"
	"grimm.is/splitdns/internal/probe"
	"grimm.is/splitdns/internal/zones"
)

// RunProbe handles the "probe" command: show which upstream should answer a
// name and query it directly.
func RunProbe(args []string) error {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	configFile := fs.String("config", "", "Configuration file")
	file := fs.String("f", "", "Connection list (JSON) instead of asking NetworkManager")
	qtype := fs.String("type", "", "Record type (default A, PTR for addresses)")
	timeout := fs.Duration("timeout", probe.DefaultTimeout, "Query timeout")
	ping := fs.Bool("ping", false, "Also ping every zone nameserver")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: probe [options] <name>")
	}
	name := fs.Arg(0)

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return err
	}
	fb, err := fallback(cfg.Fallback)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	var conns connection.Connections
	if *file != "" {
		data, err := readInput(*file)
		if err != nil {
			return err
		}
		if conns, err = connection.ParseConnections(data); err != nil {
			return err
		}
	} else if conns, err = activeConnections(ctx, cfg.Monitor.BusTimeout); err != nil {
		return err
	}
	set := zones.Derive(conns.Without(cfg.Filter.Ignore))

	t := *qtype
	if t == "" {
		t = defaultType(name)
	}
	code, err := probe.ParseType(t)
	if err != nil {
		return err
	}

	p := &probe.Prober{Fallback: fb, Timeout: *timeout}
	res, err := p.Lookup(ctx, set, name, code)
	if res != nil {
		printRoute(res.Route, res.Server, res.Net)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(Stdout, "%s %s (%s)\n", label("rcode"), dns.RcodeToString[res.Rcode], res.RTT.Round(time.Microsecond))
	for _, rr := range res.Answer {
		fmt.Fprintln(Stdout, rr.String())
	}

	if *ping {
		servers := probe.Nameservers(set)
		results := probe.Reachable(ctx, servers)
		for _, addr := range servers {
			status := "ok"
			if err := results[addr]; err != nil {
				status = errorStyle.Render(err.Error())
			}
			fmt.Fprintf(Stdout, "%s %s %s\n", label("ping"), addr, status)
		}
	}
	return nil
}

func printRoute(r probe.Route, server, network string) {
	zone := r.Zone
	if r.Fallback {
		zone = "(fallback)"
	}
	fmt.Fprintf(Stdout, "%s %s\n", label("name"), r.Name)
	if r.Leaks {
		zone += " " + errorStyle.Render("private reverse name, no internal zone")
	}
	fmt.Fprintf(Stdout, "%s %s\n", label("zone"), zone)
	fmt.Fprintf(Stdout, "%s %s/%s\n", label("server"), server, network)
}

// defaultType is PTR for addresses and reverse names, A otherwise.
func defaultType(name string) string {
	if strings.HasSuffix(probe.QueryName(name), ".in-addr.arpa.") {
		return "PTR"
	}
	return "A"
}
