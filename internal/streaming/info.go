package streaming

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// PlanID identifies one streaming plan across every node taking part in it.
type PlanID = uuid.UUID

// NewPlanID returns a fresh random plan identity.
func NewPlanID() PlanID {
	return uuid.New()
}

// ParsePlanID parses the canonical textual form of a plan identity.
func ParsePlanID(s string) (PlanID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return PlanID{}, fmt.Errorf("parse plan id %q: %w", s, err)
	}
	return id, nil
}

// Direction tells whether a file is flowing out of or into this node.
type Direction int

const (
	DirectionOut Direction = iota
	DirectionIn
)

func (d Direction) String() string {
	if d == DirectionIn {
		return "in"
	}
	return "out"
}

// SessionState is the lifecycle phase of a session.
type SessionState int

const (
	StateInitialized SessionState = iota
	StatePreparing
	StateStreaming
	StateComplete
	StateFailed
)

var sessionStateNames = map[SessionState]string{
	StateInitialized: "initialized",
	StatePreparing:   "preparing",
	StateStreaming:   "streaming",
	StateComplete:    "complete",
	StateFailed:      "failed",
}

func (s SessionState) String() string {
	if name, ok := sessionStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition can leave s.
func (s SessionState) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// ProgressInfo is one progress report for one file of one session.
type ProgressInfo struct {
	Peer         string    `json:"peer"`
	SessionIndex int       `json:"session_index"`
	FileName     string    `json:"file_name"`
	Direction    Direction `json:"direction"`
	CurrentBytes int64     `json:"current_bytes"`
	TotalBytes   int64     `json:"total_bytes"`
}

// IsCompleted reports whether the whole file has been transferred.
func (p ProgressInfo) IsCompleted() bool {
	return p.CurrentBytes >= p.TotalBytes
}

func (p ProgressInfo) String() string {
	arrow := "to"
	if p.Direction == DirectionIn {
		arrow = "from"
	}
	return fmt.Sprintf("%s %d/%d bytes %s %s", p.FileName, p.CurrentBytes, p.TotalBytes, arrow, p.Peer)
}

// StreamSummary describes what a session agreed to send or receive.
type StreamSummary struct {
	Files     int   `json:"files"`
	TotalSize int64 `json:"total_size"`
}

// SessionInfo is a snapshot of one session's transfer counters and outcome.
//
// Values handed out by the coordinator are deep copies; mutating them has no
// effect on the coordinator's bookkeeping.
type SessionInfo struct {
	Peer              string
	SessionIndex      int
	ReceivingSummary  StreamSummary
	SendingSummary    StreamSummary
	State             SessionState
	FailureReason     string
	receivingProgress map[string]ProgressInfo
	sendingProgress   map[string]ProgressInfo
}

// NewSessionInfo returns the initial info for a session with peer.
func NewSessionInfo(peer string, sessionIndex int, receiving, sending StreamSummary) SessionInfo {
	return SessionInfo{
		Peer:              peer,
		SessionIndex:      sessionIndex,
		ReceivingSummary:  receiving,
		SendingSummary:    sending,
		State:             StateInitialized,
		receivingProgress: make(map[string]ProgressInfo),
		sendingProgress:   make(map[string]ProgressInfo),
	}
}

// IsSending reports whether this node sends anything to the peer.
func (s SessionInfo) IsSending() bool { return s.SendingSummary.Files > 0 }

// IsReceiving reports whether this node receives anything from the peer.
func (s SessionInfo) IsReceiving() bool { return s.ReceivingSummary.Files > 0 }

// IsFailed reports whether the session ended in failure.
func (s SessionInfo) IsFailed() bool { return s.State == StateFailed }

// IsTerminal reports whether the session has finished, successfully or not.
func (s SessionInfo) IsTerminal() bool { return s.State.Terminal() }

// updateProgress merges p into the per-file progress for its direction.
func (s *SessionInfo) updateProgress(p ProgressInfo) {
	if p.Direction == DirectionIn {
		if s.receivingProgress == nil {
			s.receivingProgress = make(map[string]ProgressInfo)
		}
		s.receivingProgress[p.FileName] = p
		return
	}
	if s.sendingProgress == nil {
		s.sendingProgress = make(map[string]ProgressInfo)
	}
	s.sendingProgress[p.FileName] = p
}

// ReceivingFiles returns the latest progress of every file being received,
// ordered by file name.
func (s SessionInfo) ReceivingFiles() []ProgressInfo {
	return sortedProgress(s.receivingProgress)
}

// SendingFiles returns the latest progress of every file being sent,
// ordered by file name.
func (s SessionInfo) SendingFiles() []ProgressInfo {
	return sortedProgress(s.sendingProgress)
}

// TotalFilesReceived is the number of fully received files.
func (s SessionInfo) TotalFilesReceived() int { return completedFiles(s.receivingProgress) }

// TotalFilesSent is the number of fully sent files.
func (s SessionInfo) TotalFilesSent() int { return completedFiles(s.sendingProgress) }

// TotalSizeReceived is the number of bytes received so far.
func (s SessionInfo) TotalSizeReceived() int64 { return currentBytes(s.receivingProgress) }

// TotalSizeSent is the number of bytes sent so far.
func (s SessionInfo) TotalSizeSent() int64 { return currentBytes(s.sendingProgress) }

// TotalSizeToReceive is the number of bytes this session expects to receive.
func (s SessionInfo) TotalSizeToReceive() int64 { return s.ReceivingSummary.TotalSize }

// TotalSizeToSend is the number of bytes this session expects to send.
func (s SessionInfo) TotalSizeToSend() int64 { return s.SendingSummary.TotalSize }

// clone returns a copy that shares no maps with s.
func (s SessionInfo) clone() SessionInfo {
	out := s
	out.receivingProgress = copyProgress(s.receivingProgress)
	out.sendingProgress = copyProgress(s.sendingProgress)
	return out
}

func copyProgress(m map[string]ProgressInfo) map[string]ProgressInfo {
	out := make(map[string]ProgressInfo, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedProgress(m map[string]ProgressInfo) []ProgressInfo {
	out := make([]ProgressInfo, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
	return out
}

func completedFiles(m map[string]ProgressInfo) int {
	n := 0
	for _, p := range m {
		if p.IsCompleted() {
			n++
		}
	}
	return n
}

func currentBytes(m map[string]ProgressInfo) int64 {
	var n int64
	for _, p := range m {
		n += p.CurrentBytes
	}
	return n
}
