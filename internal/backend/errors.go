package backend

import (
	"errors"
	"fmt"
)

// ErrNoNameserver marks a zone that cannot be forwarded because its owning
// connection advertised no nameserver.
var ErrNoNameserver = errors.New("zone has no nameserver")

// Error is a transport failure talking to the resolver. Op is "connect",
// "apply", "remove" or "list"; Command is the command in flight, if any.
type Error struct {
	Op      string
	Command string
	Err     error
}

func (e *Error) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("backend %s: %q: %v", e.Op, e.Command, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
