package step

import (
	"fmt"
	"strings"
)

// TxPolicy decides whether the phases of a step share one transaction.
type TxPolicy int

const (
	// Independent lets each phase commit on its own. A failure in a later
	// phase leaves earlier phases committed; nothing compensates.
	Independent TxPolicy = iota
	// Atomic runs every phase in one transaction, rolled back on failure.
	Atomic
)

func (p TxPolicy) String() string {
	switch p {
	case Atomic:
		return "atomic"
	default:
		return "independent"
	}
}

// ParseTxPolicy maps a config value onto a TxPolicy. Empty means Independent.
func ParseTxPolicy(s string) (TxPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "independent":
		return Independent, nil
	case "atomic":
		return Atomic, nil
	default:
		return Independent, fmt.Errorf("invalid transaction policy: %s (valid: independent, atomic)", s)
	}
}

// State is the lifecycle of a step execution.
type State int

const (
	NotRun State = iota
	Running
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "not-run"
	}
}
