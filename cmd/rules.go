package cmd

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
)

// RunRules handles the "rules" command: list the forwarding rules installed
// in Knot Resolver, or remove them all with -flush.
func RunRules(args []string) error {
	fs := flag.NewFlagSet("rules", flag.ContinueOnError)
	configFile := fs.String("config", "", "Configuration file")
	flush := fs.Bool("flush", false, "Remove every installed rule")
	raw := fs.Bool("raw", false, "Print the resolver's listing verbatim")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return err
	}
	applier, err := newApplier(cfg, false)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	if *flush {
		if err := applier.RemoveAll(ctx); err != nil {
			return err
		}
		Printer.Fprintln(Stdout, "All rules removed.")
		return nil
	}

	ids, listing, err := applier.Rules(ctx)
	if err != nil {
		return err
	}
	if *raw {
		fmt.Fprintln(Stdout, strings.TrimRight(listing, "\n"))
		return nil
	}
	Printer.Fprintf(Stdout, "%d rules installed\n", len(ids))
	if len(ids) == 0 {
		return nil
	}
	rows := make([][]string, len(ids))
	for i, id := range ids {
		rows[i] = []string{strconv.Itoa(id)}
	}
	_, err = fmt.Fprint(Stdout, renderTable([]string{"ID"}, rows))
	return err
}
