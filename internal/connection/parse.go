package connection

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// Record is the loosely typed form of a connection as produced by
// NetworkManager helper scripts and accepted on the control socket.
type Record struct {
	ID          string   `json:"id" yaml:"id"`
	Type        string   `json:"type" yaml:"type"`
	Default     bool     `json:"default" yaml:"default"`
	Addresses   []string `json:"addresses" yaml:"addresses"`
	Nameservers []string `json:"nameservers" yaml:"nameservers"`
	Domains     []string `json:"domains" yaml:"domains"`
}

// ParseError reports input that is not a JSON array of connection records.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed connection list: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// wireRecord mirrors Record with pointers so absent fields can be told
// apart from empty ones.
type wireRecord struct {
	ID          *string   `json:"id"`
	Type        *string   `json:"type"`
	Default     *bool     `json:"default"`
	Addresses   *[]string `json:"addresses"`
	Nameservers *[]string `json:"nameservers"`
	Domains     *[]string `json:"domains"`
}

func (w wireRecord) record(i int) (Record, error) {
	switch {
	case w.ID == nil:
		return Record{}, fmt.Errorf("record %d: missing field \"id\"", i)
	case w.Type == nil:
		return Record{}, fmt.Errorf("record %d: missing field \"type\"", i)
	case w.Default == nil:
		return Record{}, fmt.Errorf("record %d: missing field \"default\"", i)
	case w.Addresses == nil:
		return Record{}, fmt.Errorf("record %d: missing field \"addresses\"", i)
	case w.Nameservers == nil:
		return Record{}, fmt.Errorf("record %d: missing field \"nameservers\"", i)
	case w.Domains == nil:
		return Record{}, fmt.Errorf("record %d: missing field \"domains\"", i)
	}
	return Record{
		ID:          *w.ID,
		Type:        *w.Type,
		Default:     *w.Default,
		Addresses:   *w.Addresses,
		Nameservers: *w.Nameservers,
		Domains:     *w.Domains,
	}, nil
}

// ParseConnections decodes a JSON array of records into Connections.
// Only structural problems are errors; unparsable addresses and nameservers
// are dropped from their lists and the connection is kept.
func ParseConnections(data []byte) (Connections, error) {
	var wire []wireRecord
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &ParseError{Err: err}
	}
	if wire == nil {
		return nil, &ParseError{Err: fmt.Errorf("expected array, got %q", strings.TrimSpace(string(data)))}
	}
	records := make([]Record, 0, len(wire))
	for i, w := range wire {
		r, err := w.record(i)
		if err != nil {
			return nil, &ParseError{Err: err}
		}
		records = append(records, r)
	}
	return FromRecords(records), nil
}

// FromRecords normalizes already-decoded records.
func FromRecords(records []Record) Connections {
	conns := make(Connections, 0, len(records))
	for _, r := range records {
		conns = append(conns, r.Connection())
	}
	return conns
}

// Connection converts a single record, filtering invalid fields.
func (r Record) Connection() Connection {
	c := Connection{
		ID:          r.ID,
		Type:        ParseType(r.Type),
		Default:     r.Default,
		Addresses:   make([]Address, 0, len(r.Addresses)),
		Nameservers: make([]netip.Addr, 0, len(r.Nameservers)),
		Domains:     append([]string(nil), r.Domains...),
	}
	for _, s := range r.Addresses {
		if a, ok := ParseAddress(s); ok {
			c.Addresses = append(c.Addresses, a)
		}
	}
	for _, s := range r.Nameservers {
		if ns, ok := ParseNameserver(s); ok {
			c.Nameservers = append(c.Nameservers, ns)
		}
	}
	return c
}

// ParseAddress parses "a.b.c.d/prefix". The prefix component is required.
func ParseAddress(s string) (Address, bool) {
	ipStr, prefixStr, found := strings.Cut(s, "/")
	if !found {
		return Address{}, false
	}
	ip, ok := ParseNameserver(ipStr)
	if !ok {
		return Address{}, false
	}
	prefix, err := strconv.ParseUint(prefixStr, 10, 8)
	if err != nil || prefix > 32 {
		return Address{}, false
	}
	return Address{IP: ip, Prefix: uint8(prefix)}, true
}

// ParseNameserver parses a dotted IPv4 address.
func ParseNameserver(s string) (netip.Addr, bool) {
	ip, err := netip.ParseAddr(s)
	if err != nil || !ip.Is4() {
		return netip.Addr{}, false
	}
	return ip, true
}

// recordTypes are NetworkManager type strings that ParseType maps back to
// the same Type.
var recordTypes = map[Type]string{
	Ethernet: "802-3-ethernet",
	WiFi:     "802-11-wireless",
	VPN:      "vpn",
	Other:    "generic",
}

// Record converts the connection back to its loose form.
func (c Connection) Record() Record {
	r := Record{
		ID:          c.ID,
		Type:        recordTypes[c.Type],
		Default:     c.Default,
		Addresses:   make([]string, len(c.Addresses)),
		Nameservers: make([]string, len(c.Nameservers)),
		Domains:     append([]string{}, c.Domains...),
	}
	for i, a := range c.Addresses {
		r.Addresses[i] = a.String()
	}
	for i, ns := range c.Nameservers {
		r.Nameservers[i] = ns.String()
	}
	return r
}

// Records converts every connection to its loose form.
func (c Connections) Records() []Record {
	out := make([]Record, len(c))
	for i, conn := range c {
		out[i] = conn.Record()
	}
	return out
}

// MarshalJSON encodes the connections in the format ParseConnections accepts.
func (c Connections) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Records())
}
