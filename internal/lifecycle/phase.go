package lifecycle

import (
	"fmt"

	"github.com/zerepy/zerepyctl/internal/errors"
)

// Phase is a step of an operation's state machine.
type Phase string

// Install phases.
const (
	PhaseProbing      Phase = "probing"
	PhaseFetching     Phase = "fetching"
	PhaseProvisioning Phase = "provisioning"
	PhaseDone         Phase = "done"
)

// Serve phases. Serve starts in PhaseProbing as well.
const (
	PhasePrecondition Phase = "precondition"
	PhaseLaunching    Phase = "launching"
	PhaseTunneling    Phase = "tunneling"
	PhaseStopped      Phase = "stopped"
)

// PhaseError records the phase an operation failed in. It unwraps to the
// component error so severity and sentinel checks keep working.
type PhaseError struct {
	Op    string
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s failed while %s: %v", e.Op, e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// PhaseOf returns the phase recorded on err, or "" if none.
func PhaseOf(err error) Phase {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase
	}
	return ""
}

func failed(op string, phase Phase, err error) error {
	return &PhaseError{Op: op, Phase: phase, Err: err}
}
