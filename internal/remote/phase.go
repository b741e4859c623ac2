package remote

import (
	"fmt"

	gderrors "gitdeck.dev/gitdeck/internal/errors"
)

// Phase is the lifecycle position of a remote operation
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseAwaitingCredentials
	PhaseTransferring
	PhaseCompleted
	PhaseFailed
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseAwaitingCredentials:
		return "awaiting-credentials"
	case PhaseTransferring:
		return "transferring"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	case PhaseCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Terminal reports whether no transition leaves p
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseCancelled
}

var transitions = map[Phase][]Phase{
	PhaseIdle:                {PhaseConnecting, PhaseFailed, PhaseCancelled},
	PhaseConnecting:          {PhaseTransferring, PhaseAwaitingCredentials, PhaseCompleted, PhaseFailed, PhaseCancelled},
	PhaseAwaitingCredentials: {PhaseConnecting, PhaseFailed, PhaseCancelled},
	PhaseTransferring:        {PhaseCompleted, PhaseFailed, PhaseCancelled},
}

// CanTransition reports whether from -> to is an allowed phase change
func CanTransition(from, to Phase) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to Phase) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, gderrors.ErrInvalidTransition)
	}
	return nil
}
