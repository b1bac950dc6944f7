package session

import (
	"github.com/qmuntal/stateless"
)

// Stream lifecycle states. A session cycles back to streaming on each new
// turn; the terminal-looking states only terminate the current stream.
const (
	StateIdle      = "idle"
	StateStreaming = "streaming"
	StateCompleted = "completed"
	StateFailed    = "failed"
	StateCancelled = "cancelled"
)

const (
	triggerBegin    = "begin"
	triggerComplete = "complete"
	triggerFail     = "fail"
	triggerCancel   = "cancel"
)

// newLifecycle builds the per-session stream FSM. Cancel is a no-op in every
// state except streaming, which is what makes cancellation idempotent.
func newLifecycle() *stateless.StateMachine {
	fsm := stateless.NewStateMachine(StateIdle)

	fsm.Configure(StateIdle).
		Permit(triggerBegin, StateStreaming).
		Ignore(triggerCancel)

	fsm.Configure(StateStreaming).
		Permit(triggerComplete, StateCompleted).
		Permit(triggerFail, StateFailed).
		Permit(triggerCancel, StateCancelled)

	for _, done := range []string{StateCompleted, StateFailed, StateCancelled} {
		fsm.Configure(done).
			Permit(triggerBegin, StateStreaming).
			Ignore(triggerCancel)
	}

	return fsm
}
