package streaming

import (
	"sync"
)

// Coordinator tracks every session of one plan and whether each has finished.
//
// It is pure bookkeeping: it never fires events and never resolves anything.
// A Coordinator is safe for concurrent use.
type Coordinator struct {
	mu        sync.RWMutex
	receiving bool
	sessions  map[string]*SessionInfo
	order     []string // registration order
}

// NewCoordinator returns an empty coordinator. receiving is true when this
// node only takes the receiving side of the plan.
func NewCoordinator(receiving bool) *Coordinator {
	return &Coordinator{
		receiving: receiving,
		sessions:  make(map[string]*SessionInfo),
	}
}

// RegisterPeer adds a session entry for peer.
func (c *Coordinator) RegisterPeer(peer string, info SessionInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.sessions[peer]; exists {
		return errorFor(ErrDuplicatePeer, peer)
	}
	info = info.clone()
	info.Peer = peer
	c.sessions[peer] = &info
	c.order = append(c.order, peer)
	return nil
}

// UpdateProgress merges a progress report into the session of p.Peer.
func (c *Coordinator) UpdateProgress(p ProgressInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, err := c.liveLocked(p.Peer)
	if err != nil {
		return err
	}
	info.updateProgress(p)
	return nil
}

// Prepare records what the session with peer agreed to transfer and moves it
// to the streaming phase.
func (c *Coordinator) Prepare(peer string, receiving, sending StreamSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, err := c.liveLocked(peer)
	if err != nil {
		return err
	}
	info.ReceivingSummary = receiving
	info.SendingSummary = sending
	info.State = StateStreaming
	return nil
}

// MarkSessionTerminal records the outcome of the session with peer. A nil
// reason means success. The outcome can be recorded only once.
func (c *Coordinator) MarkSessionTerminal(peer string, reason error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, err := c.liveLocked(peer)
	if err != nil {
		return err
	}
	if reason != nil {
		info.State = StateFailed
		info.FailureReason = reason.Error()
	} else {
		info.State = StateComplete
	}
	return nil
}

// liveLocked returns the entry of a registered, non-terminal peer.
func (c *Coordinator) liveLocked(peer string) (*SessionInfo, error) {
	info, ok := c.sessions[peer]
	if !ok {
		return nil, errorFor(ErrUnknownPeer, peer)
	}
	if info.IsTerminal() {
		return nil, errorFor(ErrAlreadyTerminal, peer)
	}
	return info, nil
}

// HasActiveSessions reports whether at least one session has not finished.
func (c *Coordinator) HasActiveSessions() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, info := range c.sessions {
		if !info.IsTerminal() {
			return true
		}
	}
	return false
}

// IsReceiving reports whether this node only receives in this plan.
func (c *Coordinator) IsReceiving() bool {
	return c.receiving
}

// SessionInfo returns a copy of the current info of peer.
func (c *Coordinator) SessionInfo(peer string) (SessionInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, ok := c.sessions[peer]
	if !ok {
		return SessionInfo{}, false
	}
	return info.clone(), true
}

// Peers returns every registered peer in registration order.
func (c *Coordinator) Peers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]string(nil), c.order...)
}

// Snapshot returns a point-in-time copy of every session, in registration order.
func (c *Coordinator) Snapshot() []SessionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]SessionInfo, 0, len(c.order))
	for _, peer := range c.order {
		out = append(out, c.sessions[peer].clone())
	}
	return out
}
