package streaming

import (
	"context"
	"log/slog"
	"sync"
)

// ResultFuture resolves to the outcome of a streaming plan once every session
// of the plan has finished.
//
// Sessions report to the future as they advance; the future forwards the
// reports to the coordinator and to the registered listeners, and resolves
// exactly once when the coordinator has no active session left. Resolution
// fails with a *StreamError if any session failed.
type ResultFuture struct {
	PlanID      PlanID
	Description string

	coordinator *Coordinator
	logger      *slog.Logger

	// mu serializes coordinator updates, dispatch and the completion check.
	mu sync.Mutex

	lmu       sync.Mutex
	listeners []Listener
	resolved  bool
	final     *PlanCompleteEvent

	done chan struct{}
}

// Option configures a ResultFuture.
type Option func(*ResultFuture)

// WithLogger sets the logger used for plan lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(f *ResultFuture) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewResultFuture creates the future of plan id over coordinator. A plan with
// no session to wait for, on a node that is not only receiving, resolves
// immediately to an empty successful state.
func NewResultFuture(id PlanID, description string, coordinator *Coordinator, opts ...Option) *ResultFuture {
	f := &ResultFuture{
		PlanID:      id,
		Description: description,
		coordinator: coordinator,
		logger:      slog.Default(),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("plan_id", id.String())

	if !coordinator.IsReceiving() && !coordinator.HasActiveSessions() {
		f.mu.Lock()
		f.maybeCompleteLocked()
		f.mu.Unlock()
	}
	return f
}

// Coordinator returns the coordinator of the plan, for diagnostics.
func (f *ResultFuture) Coordinator() *Coordinator {
	return f.coordinator
}

// Equal reports whether f and other belong to the same plan.
func (f *ResultFuture) Equal(other *ResultFuture) bool {
	if f == nil || other == nil {
		return f == other
	}
	return f.PlanID == other.PlanID
}

// CurrentState returns a snapshot of the plan as it is now.
func (f *ResultFuture) CurrentState() StreamState {
	return StreamState{
		PlanID:      f.PlanID,
		Description: f.Description,
		Sessions:    f.coordinator.Snapshot(),
	}
}

// AddEventListener registers l for every event fired from now on. If the plan
// has already resolved, l receives the PlanCompleteEvent immediately instead;
// earlier progress is not replayed.
func (f *ResultFuture) AddEventListener(l Listener) {
	f.lmu.Lock()
	if !f.resolved {
		f.listeners = append(f.listeners, l)
		f.lmu.Unlock()
		return
	}
	final := f.final
	f.lmu.Unlock()

	l.HandleStreamEvent(final)
}

// RegisterSession registers the session of a new peer with the coordinator.
// A resolved plan accepts no more sessions and returns ErrPlanResolved.
func (f *ResultFuture) RegisterSession(info SessionInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lmu.Lock()
	resolved := f.resolved
	f.lmu.Unlock()
	if resolved {
		return errorFor(ErrPlanResolved, f.PlanID.String())
	}

	if err := f.coordinator.RegisterPeer(info.Peer, info); err != nil {
		f.logger.Error("session registration rejected", "peer", info.Peer, "error", err)
		return err
	}
	return nil
}

// HandleSessionPrepared records the agreed transfer of a session and
// notifies listeners. Preparation never completes a plan.
func (f *ResultFuture) HandleSessionPrepared(peer string, receiving, sending StreamSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.coordinator.Prepare(peer, receiving, sending); err != nil {
		f.logger.Error("session preparation rejected", "peer", peer, "error", err)
		return err
	}
	info, _ := f.coordinator.SessionInfo(peer)
	f.logger.Info("prepared session", "peer", peer,
		"receiving_files", receiving.Files, "receiving_bytes", receiving.TotalSize,
		"sending_files", sending.Files, "sending_bytes", sending.TotalSize)
	f.fireLocked(&PreparedEvent{PlanID: f.PlanID, Session: info})
	return nil
}

// HandleProgress records a progress report and forwards it to listeners.
func (f *ResultFuture) HandleProgress(p ProgressInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.coordinator.UpdateProgress(p); err != nil {
		f.logger.Error("progress rejected", "peer", p.Peer, "file", p.FileName, "error", err)
		return err
	}
	f.fireLocked(&ProgressEvent{PlanID: f.PlanID, Progress: p})
	return nil
}

// HandleSessionComplete records the outcome of the session with peer (a nil
// reason means success), notifies listeners, and resolves the future if no
// session is left active.
func (f *ResultFuture) HandleSessionComplete(peer string, reason error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.coordinator.MarkSessionTerminal(peer, reason); err != nil {
		f.logger.Error("session completion rejected", "peer", peer, "error", err)
		return err
	}
	info, _ := f.coordinator.SessionInfo(peer)
	if reason != nil {
		f.logger.Warn("session failed", "peer", peer, "error", reason)
	} else {
		f.logger.Info("session complete", "peer", peer)
	}
	f.fireLocked(&SessionCompleteEvent{PlanID: f.PlanID, Session: info, Err: reason})
	f.maybeCompleteLocked()
	return nil
}

// maybeCompleteLocked resolves the future when no session is active. f.mu
// must be held. Resolving twice is a no-op.
func (f *ResultFuture) maybeCompleteLocked() {
	if f.coordinator.HasActiveSessions() {
		return
	}

	f.lmu.Lock()
	if f.resolved {
		f.lmu.Unlock()
		return
	}
	state := f.CurrentState()
	final := &PlanCompleteEvent{State: state}
	if state.HasFailedSession() {
		final.Err = &StreamError{State: state}
		f.logger.Warn("stream failed", "failed_peers", state.FailedPeers())
	} else {
		f.logger.Info("all sessions completed", "sessions", len(state.Sessions))
	}
	f.resolved = true
	f.final = final
	listeners := append([]Listener(nil), f.listeners...)
	f.lmu.Unlock()

	close(f.done)
	for _, l := range listeners {
		l.HandleStreamEvent(final)
	}
}

// fireLocked dispatches ev to a snapshot of the listeners in registration
// order. f.mu must be held.
func (f *ResultFuture) fireLocked(ev Event) {
	f.lmu.Lock()
	listeners := append([]Listener(nil), f.listeners...)
	f.lmu.Unlock()

	for _, l := range listeners {
		l.HandleStreamEvent(ev)
	}
}

// Done returns a channel closed once the plan has resolved.
func (f *ResultFuture) Done() <-chan struct{} {
	return f.done
}

// Result returns the resolution event, or ok=false while the plan is still
// pending.
func (f *ResultFuture) Result() (ev *PlanCompleteEvent, ok bool) {
	f.lmu.Lock()
	defer f.lmu.Unlock()

	return f.final, f.resolved
}

// Wait blocks until the plan resolves or ctx is done. On failure the returned
// error is a *StreamError and the state still lists every session.
func (f *ResultFuture) Wait(ctx context.Context) (StreamState, error) {
	select {
	case <-f.done:
		ev, _ := f.Result()
		return ev.State, ev.Err
	case <-ctx.Done():
		return StreamState{}, ctx.Err()
	}
}
