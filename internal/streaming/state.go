package streaming

import (
	"fmt"
	"strings"
)

// StreamState is the aggregate view of every session of a plan.
type StreamState struct {
	PlanID      PlanID
	Description string
	Sessions    []SessionInfo
}

// HasFailedSession reports whether at least one session failed.
func (s StreamState) HasFailedSession() bool {
	for _, info := range s.Sessions {
		if info.IsFailed() {
			return true
		}
	}
	return false
}

// FailedPeers returns the peers whose session failed, in session order.
func (s StreamState) FailedPeers() []string {
	var peers []string
	for _, info := range s.Sessions {
		if info.IsFailed() {
			peers = append(peers, info.Peer)
		}
	}
	return peers
}

// TotalBytesReceived sums received bytes over all sessions.
func (s StreamState) TotalBytesReceived() int64 {
	var n int64
	for _, info := range s.Sessions {
		n += info.TotalSizeReceived()
	}
	return n
}

// TotalBytesSent sums sent bytes over all sessions.
func (s StreamState) TotalBytesSent() int64 {
	var n int64
	for _, info := range s.Sessions {
		n += info.TotalSizeSent()
	}
	return n
}

func (s StreamState) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "stream %s (%s): %d sessions", s.PlanID, s.Description, len(s.Sessions))
	for _, info := range s.Sessions {
		fmt.Fprintf(&b, "; %s %s", info.Peer, info.State)
		if info.FailureReason != "" {
			fmt.Fprintf(&b, " (%s)", info.FailureReason)
		}
	}
	return b.String()
}
