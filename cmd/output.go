package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/netip"
	"strings"

	"gopkg.in/yaml.v2"

	"grimm.is/splitdns/internal/zones"
)

// Output formats accepted by -format.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func checkFormat(format string, allowed ...string) error {
	for _, f := range allowed {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("unknown format %q (want %s)", format, strings.Join(allowed, ", "))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func encode(w io.Writer, format string, v any) error {
	switch format {
	case formatYAML:
		return writeYAML(w, v)
	default:
		return writeJSON(w, v)
	}
}

// zoneView is the printable form of one derived zone.
type zoneView struct {
	Kind        string   `json:"kind" yaml:"kind"`
	Zone        string   `json:"zone" yaml:"zone"`
	Nameservers []string `json:"nameservers" yaml:"nameservers"`
	Type        string   `json:"type" yaml:"type"`
}

func zoneViews(set zones.Set) []zoneView {
	out := make([]zoneView, 0, set.Len())
	for _, z := range set.Forward {
		out = append(out, zoneView{Kind: "forward", Zone: z.Domain, Nameservers: addrStrings(z.Nameservers), Type: z.Type.String()})
	}
	for _, z := range set.Reverse {
		out = append(out, zoneView{Kind: "reverse", Zone: z.Zone, Nameservers: addrStrings(z.Nameservers), Type: z.Type.String()})
	}
	return out
}

func printZones(w io.Writer, set zones.Set, format string) error {
	if format != formatText {
		return encode(w, format, zoneViews(set))
	}
	if set.Len() == 0 {
		Printer.Fprintln(w, "No zones.")
		return nil
	}
	var rows [][]string
	for _, v := range zoneViews(set) {
		ns := "-"
		if len(v.Nameservers) > 0 {
			ns = strings.Join(v.Nameservers, ",")
		}
		rows = append(rows, []string{v.Kind, v.Zone, ns, v.Type})
	}
	_, err := io.WriteString(w, renderTable([]string{"KIND", "ZONE", "NAMESERVER", "TYPE"}, rows))
	return err
}

func addrStrings(addrs []netip.Addr) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}
