package verification

import (
	"fmt"

	"swarmgov/internal/types"
)

// Mode is the access mode a gate check covers.
type Mode string

const (
	ModeRead  Mode = "read"
	ModeWrite Mode = "write"
)

// Gate authorizes an operation before it reaches ledger state. Denial is
// fatal for the current operation and never retried.
type Gate interface {
	Check(mode Mode) error
}

// StaticGate grants or denies each mode from fixed flags.
type StaticGate struct {
	Read  bool
	Write bool
}

func (g StaticGate) Check(mode Mode) error {
	allowed := false
	switch mode {
	case ModeRead:
		allowed = g.Read
	case ModeWrite:
		allowed = g.Write
	}
	if !allowed {
		return fmt.Errorf("%w: %s access", types.ErrPermissionDenied, mode)
	}
	return nil
}

// AllowAll grants every mode.
func AllowAll() Gate {
	return StaticGate{Read: true, Write: true}
}
