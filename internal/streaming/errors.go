package streaming

import (
	"errors"
	"fmt"
	"strings"
)

// Protocol errors. Each one means a session and the coordinator disagree
// about the plan; callers should surface them rather than retry.
var (
	ErrDuplicatePeer     = errors.New("peer already registered")
	ErrUnknownPeer       = errors.New("peer not registered")
	ErrAlreadyTerminal   = errors.New("session already terminal")
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrPlanExists        = errors.New("plan already registered")
	ErrPlanResolved      = errors.New("plan already resolved")
)

// errorFor attaches the offending peer or plan to one of the errors above.
func errorFor(err error, subject string) error {
	return fmt.Errorf("%w: %s", err, subject)
}

// StreamError is the failure result of a plan. It carries the full aggregate
// state, including sessions that succeeded.
type StreamError struct {
	State StreamState
}

func (e *StreamError) Error() string {
	failed := e.State.FailedPeers()
	return fmt.Sprintf("stream %s failed: %d of %d sessions failed (%s)",
		e.State.PlanID, len(failed), len(e.State.Sessions), strings.Join(failed, ", "))
}
