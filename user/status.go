package user

import (
	"fmt"

	"github.com/ValerySidorin/rill/internal/wire"
)

// Status is the account state of a user. Only the single-byte code
// crosses the wire; code assignment is stable across versions.
type Status byte

const (
	StatusActive   Status = 1
	StatusInactive Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// ParseStatus maps a human name to a Status. Used by config and CLI.
func ParseStatus(name string) (Status, error) {
	switch name {
	case "active":
		return StatusActive, nil
	case "inactive":
		return StatusInactive, nil
	default:
		return 0, fmt.Errorf("unknown user status: %q", name)
	}
}

func ReadStatus(r *wire.Reader) (Status, error) {
	b, err := r.Byte()
	if err != nil {
		return 0, err
	}
	s := Status(b)
	switch s {
	case StatusActive, StatusInactive:
		return s, nil
	default:
		return 0, fmt.Errorf("user status code %d: %w", b, wire.ErrMalformed)
	}
}
