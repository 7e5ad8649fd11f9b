package streaming

// Event is one notification dispatched to the listeners of a plan.
type Event interface {
	streamEvent()
}

// PreparedEvent is fired once a session has agreed on its transfer with the peer.
type PreparedEvent struct {
	PlanID  PlanID
	Session SessionInfo
}

// ProgressEvent carries one progress report of one session.
type ProgressEvent struct {
	PlanID   PlanID
	Progress ProgressInfo
}

// SessionCompleteEvent is the last event fired for a peer. Err is nil when
// the session succeeded.
type SessionCompleteEvent struct {
	PlanID  PlanID
	Session SessionInfo
	Err     error
}

// Success reports whether the session finished without error.
func (e *SessionCompleteEvent) Success() bool { return e.Err == nil }

// PlanCompleteEvent is fired once, when the plan resolves. Err is a
// *StreamError when at least one session failed.
type PlanCompleteEvent struct {
	State StreamState
	Err   error
}

func (*PreparedEvent) streamEvent()        {}
func (*ProgressEvent) streamEvent()        {}
func (*SessionCompleteEvent) streamEvent() {}
func (*PlanCompleteEvent) streamEvent()    {}

// Listener receives the events of a plan. Calls run synchronously on the
// goroutine of the reporting session and a listener is never called
// concurrently with itself. A slow listener delays the session that reported
// the event, so listeners should return quickly or hand work off.
type Listener interface {
	HandleStreamEvent(ev Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ev Event)

// HandleStreamEvent calls f(ev).
func (f ListenerFunc) HandleStreamEvent(ev Event) { f(ev) }
