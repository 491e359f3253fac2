package sharedstate

import (
	"fmt"
	"strings"
)

// Policy selects how a caller acquires the lock of a State.
type Policy int

const (
	// Blocking waits until the lock is free. It always succeeds eventually.
	Blocking Policy = iota

	// BestEffort tries the lock once and gives up immediately if another
	// actor holds it.
	BestEffort
)

// String returns the canonical name of the policy.
func (p Policy) String() string {
	switch p {
	case Blocking:
		return "blocking"
	case BestEffort:
		return "best-effort"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy converts a textual policy name into a Policy. "trylock" is
// accepted as an alias of "best-effort".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "blocking", "lock":
		return Blocking, nil
	case "best-effort", "besteffort", "trylock", "try":
		return BestEffort, nil
	default:
		return Blocking, fmt.Errorf("unknown lock policy %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(text []byte) error {
	parsed, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}

	*p = parsed

	return nil
}
