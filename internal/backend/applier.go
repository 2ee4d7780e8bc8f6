// Package backend installs derived zones as forwarding rules in Knot
// Resolver through its control socket.
package backend

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/pmezard/go-difflib/difflib"

	"grimm.is/splitdns/internal/logging"
	"grimm.is/splitdns/internal/zones"
)

// Options configure an Applier.
type Options struct {
	Fallback Fallback
	// DryRun logs commands instead of sending them. Reads (policy.rules)
	// still go to the resolver.
	DryRun bool
	Logger *logging.Logger
}

// Applier manages the resolver's rule set. Sync, Apply and RemoveAll are
// serialised; at most one cycle talks to the resolver at a time.
type Applier struct {
	dial     Dialer
	fallback Fallback
	dryRun   bool
	logger   *logging.Logger

	mu   sync.Mutex
	last []string
}

// New creates an Applier. A zero Fallback means DefaultFallback.
func New(dial Dialer, opts Options) *Applier {
	if !opts.Fallback.Address.IsValid() {
		opts.Fallback = DefaultFallback()
	}
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent("backend")
	}
	return &Applier{
		dial:     dial,
		fallback: opts.Fallback,
		dryRun:   opts.DryRun,
		logger:   opts.Logger,
	}
}

// Commands renders the command list Apply would send for set. Zones without
// a nameserver are left out.
func (a *Applier) Commands(set zones.Set) []string {
	cmds, _ := a.commands(set)
	return cmds
}

func (a *Applier) commands(set zones.Set) ([]string, []error) {
	cmds := make([]string, 0, set.Len()+1)
	var skipped []error
	for _, z := range set.Forward {
		if len(z.Nameservers) == 0 {
			skipped = append(skipped, fmt.Errorf("%s: %w", z.Domain, ErrNoNameserver))
			continue
		}
		cmds = append(cmds, AddStubCommand(z.Nameservers[0], z.Domain))
	}
	for _, z := range set.Reverse {
		if len(z.Nameservers) == 0 {
			skipped = append(skipped, fmt.Errorf("%s: %w", z.Zone, ErrNoNameserver))
			continue
		}
		cmds = append(cmds, AddStubCommand(z.Nameservers[0], z.Zone))
	}
	return append(cmds, FallbackCommand(a.fallback)), skipped
}

// Apply installs one rule per zone followed by the fallback rule.
func (a *Applier) Apply(ctx context.Context, set zones.Set) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return a.apply(ctx, s, set)
}

// RemoveAll deletes every installed rule, highest listed id first, since the
// resolver renumbers the remaining rules after each deletion.
func (a *Applier) RemoveAll(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return a.removeAll(ctx, s)
}

// Sync replaces the installed rules with set: RemoveAll then Apply over one
// session.
func (a *Applier) Sync(ctx context.Context, set zones.Set) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := a.removeAll(ctx, s); err != nil {
		return err
	}
	return a.apply(ctx, s, set)
}

// Rules lists the installed rule ids along with the raw listing.
func (a *Applier) Rules(ctx context.Context) ([]int, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, err := a.open(ctx)
	if err != nil {
		return nil, "", err
	}
	defer s.Close()

	resp, err := s.Do(ctx, ListRulesCommand)
	if err != nil {
		return nil, resp, &Error{Op: "list", Command: ListRulesCommand, Err: err}
	}
	return ParseRuleIDs(resp), resp, nil
}

func (a *Applier) open(ctx context.Context) (Session, error) {
	s, err := a.dial(ctx)
	if err != nil {
		return nil, &Error{Op: "connect", Err: err}
	}
	return s, nil
}

func (a *Applier) removeAll(ctx context.Context, s Session) error {
	resp, err := s.Do(ctx, ListRulesCommand)
	if err != nil {
		return &Error{Op: "list", Command: ListRulesCommand, Err: err}
	}
	ids := ParseRuleIDs(resp)
	a.logger.Debug("removing rules", "ids", ids)

	for i := len(ids) - 1; i >= 0; i-- {
		if err := a.send(ctx, s, "remove", DeleteRuleCommand(ids[i])); err != nil {
			return err
		}
	}
	return nil
}

func (a *Applier) apply(ctx context.Context, s Session, set zones.Set) error {
	cmds, skipped := a.commands(set)
	for _, err := range skipped {
		a.logger.Warn("skipping zone", "error", err)
	}

	for _, cmd := range cmds {
		if err := a.send(ctx, s, "apply", cmd); err != nil {
			return err
		}
	}

	if diff := commandDiff(a.last, cmds); diff != "" {
		a.logger.Debug("rule set changed", "diff", diff)
	}
	a.last = cmds
	a.logger.Info("rules applied", "forward", len(set.Forward), "reverse", len(set.Reverse),
		"commands", len(cmds), "dry_run", a.dryRun)
	return nil
}

// send issues one mutating command, checking ctx first so a cancelled cycle
// stops between commands.
func (a *Applier) send(ctx context.Context, s Session, op, cmd string) error {
	if err := ctx.Err(); err != nil {
		return &Error{Op: op, Command: cmd, Err: err}
	}
	if a.dryRun {
		a.logger.Info("dry run", "command", cmd)
		return nil
	}
	resp, err := s.Do(ctx, cmd)
	if err != nil {
		return &Error{Op: op, Command: cmd, Err: err}
	}
	if r := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(resp), ">")); r != "" {
		a.logger.Debug("resolver replied", "command", cmd, "response", r)
	}
	return nil
}

// commandDiff renders a unified diff of two command lists. Empty when equal.
func commandDiff(before, after []string) string {
	if slices.Equal(before, after) {
		return ""
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        lines(before),
		B:        lines(after),
		FromFile: "installed",
		ToFile:   "derived",
		Context:  1,
	})
	if err != nil {
		return ""
	}
	return diff
}

func lines(cmds []string) []string {
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c + "\n"
	}
	return out
}

// IsBackendError reports whether err came from the resolver transport.
func IsBackendError(err error) bool {
	var be *Error
	return errors.As(err, &be)
}
