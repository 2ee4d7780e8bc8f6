package backend

import (
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
)

// ListRulesCommand prints the installed policy rules.
const ListRulesCommand = "policy.rules"

// Fallback is the catch-all upstream for names no zone claims. With a
// Hostname the upstream is reached over DNS-over-TLS.
type Fallback struct {
	Address  netip.Addr
	Hostname string
	CAFile   string
}

// DefaultFallback forwards to Cloudflare over TLS.
func DefaultFallback() Fallback {
	return Fallback{
		Address:  netip.MustParseAddr("1.1.1.1"),
		Hostname: "cloudflare-dns.com",
		CAFile:   "/etc/pki/tls/certs/ca-bundle.crt",
	}
}

// AddStubCommand forwards name and everything below it to ns.
func AddStubCommand(ns netip.Addr, name string) string {
	return fmt.Sprintf("policy.add(policy.suffix(policy.STUB('%s'), {todname('%s')}))", ns, luaQuote(name))
}

// FallbackCommand installs the catch-all rule.
func FallbackCommand(f Fallback) string {
	if f.Hostname == "" {
		return fmt.Sprintf("policy.add(policy.all(policy.FORWARD('%s')))", f.Address)
	}
	target := fmt.Sprintf("'%s', hostname='%s'", f.Address, luaQuote(f.Hostname))
	if f.CAFile != "" {
		target += fmt.Sprintf(", ca_file='%s'", luaQuote(f.CAFile))
	}
	return fmt.Sprintf("policy.add(policy.all(policy.TLS_FORWARD({{%s}})))", target)
}

// DeleteRuleCommand removes the rule with the given id.
func DeleteRuleCommand(id int) string {
	return "policy.del(" + strconv.Itoa(id) + ")"
}

var ruleIDPattern = regexp.MustCompile(`\[id\] => (\d+)`)

// ParseRuleIDs extracts rule ids from a policy.rules response in the order
// they are listed.
func ParseRuleIDs(resp string) []int {
	var ids []int
	for _, line := range strings.Split(resp, "\n") {
		m := ruleIDPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// luaQuote escapes a value for a single-quoted Lua string.
func luaQuote(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`).Replace(s)
}
