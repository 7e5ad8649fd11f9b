package streaming

import (
	"fmt"
	"sync"
)

// Session is the unit of work handling every transfer with one peer for one
// plan. It reports each of its transitions to the plan's future.
//
// Calls on a Session are serialized, so reports for one peer reach the
// listeners in the order the session made them.
type Session struct {
	Peer  string
	Index int

	future *ResultFuture

	mu    sync.Mutex
	state SessionState
}

// NewSession registers a session with peer in the plan of future.
func NewSession(future *ResultFuture, peer string, index int) (*Session, error) {
	info := NewSessionInfo(peer, index, StreamSummary{}, StreamSummary{})
	if err := future.RegisterSession(info); err != nil {
		return nil, err
	}
	return &Session{
		Peer:   peer,
		Index:  index,
		future: future,
		state:  StateInitialized,
	}, nil
}

// OpenSession binds a session to a peer registered with the plan's
// coordinator before the future was created.
func OpenSession(future *ResultFuture, peer string) (*Session, error) {
	info, ok := future.Coordinator().SessionInfo(peer)
	if !ok {
		return nil, errorFor(ErrUnknownPeer, peer)
	}
	if info.IsTerminal() {
		return nil, errorFor(ErrAlreadyTerminal, peer)
	}
	return &Session{
		Peer:   peer,
		Index:  info.SessionIndex,
		future: future,
		state:  info.State,
	}, nil
}

// PlanID returns the plan the session belongs to.
func (s *Session) PlanID() PlanID {
	return s.future.PlanID
}

// State returns the current lifecycle phase.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info returns the coordinator's current view of this session.
func (s *Session) Info() SessionInfo {
	info, _ := s.future.Coordinator().SessionInfo(s.Peer)
	return info
}

// Prepare records what will be received from and sent to the peer and moves
// the session to streaming.
func (s *Session) Prepare(receiving, sending StreamSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInitialized {
		return s.transitionError(StatePreparing)
	}
	s.state = StatePreparing
	if err := s.future.HandleSessionPrepared(s.Peer, receiving, sending); err != nil {
		return err
	}
	s.state = StateStreaming
	return nil
}

// Progress reports the transfer position of one file.
func (s *Session) Progress(file string, dir Direction, current, total int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStreaming {
		return s.transitionError(StateStreaming)
	}
	return s.future.HandleProgress(ProgressInfo{
		Peer:         s.Peer,
		SessionIndex: s.Index,
		FileName:     file,
		Direction:    dir,
		CurrentBytes: current,
		TotalBytes:   total,
	})
}

// Complete ends the session successfully.
func (s *Session) Complete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStreaming {
		return s.transitionError(StateComplete)
	}
	return s.finishLocked(StateComplete, nil)
}

// Fail ends the session with reason. It may be called from any phase that is
// not already terminal.
func (s *Session) Fail(reason error) error {
	if reason == nil {
		reason = fmt.Errorf("session with %s failed", s.Peer)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return s.transitionError(StateFailed)
	}
	return s.finishLocked(StateFailed, reason)
}

func (s *Session) finishLocked(state SessionState, reason error) error {
	if err := s.future.HandleSessionComplete(s.Peer, reason); err != nil {
		return err
	}
	s.state = state
	return nil
}

func (s *Session) transitionError(to SessionState) error {
	return fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, s.state, to, s.Peer)
}
