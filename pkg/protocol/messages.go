package protocol

import "fmt"

// Error reports why the remote side gave up on a session.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RemoteError is an Error received from the peer.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %s: %s", e.Code, e.Message)
}

// StreamInit opens a session: the initiator tells the peer which plan the
// session belongs to and what it is about to send.
type StreamInit struct {
	PlanID       string `json:"plan_id"`
	Description  string `json:"description"`
	SessionIndex int    `json:"session_index"`
	From         string `json:"from"`
	Files        int    `json:"files"`
	TotalBytes   int64  `json:"total_bytes"`
}

// StreamAccept is the peer's answer to StreamInit.
type StreamAccept struct {
	PlanID string `json:"plan_id"`
}

// FileHeader precedes the bytes of one file on its own stream.
type FileHeader struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// StreamComplete is sent by the initiator once every file has been written.
type StreamComplete struct {
	Files      int   `json:"files"`
	TotalBytes int64 `json:"total_bytes"`
}

// StreamAck confirms the receiver stored everything StreamComplete announced.
type StreamAck struct {
	Files      int   `json:"files"`
	TotalBytes int64 `json:"total_bytes"`
}

// SessionSummary is the feed rendering of one session.
type SessionSummary struct {
	Peer           string `json:"peer"`
	SessionIndex   int    `json:"session_index"`
	State          string `json:"state"`
	FailureReason  string `json:"failure_reason,omitempty"`
	ReceivingFiles int    `json:"receiving_files"`
	ReceivingBytes int64  `json:"receiving_bytes"`
	SendingFiles   int    `json:"sending_files"`
	SendingBytes   int64  `json:"sending_bytes"`
	ReceivedBytes  int64  `json:"received_bytes"`
	SentBytes      int64  `json:"sent_bytes"`
}

// EventPrepared is pushed when a session has been prepared.
type EventPrepared struct {
	Session SessionSummary `json:"session"`
}

// EventProgress is pushed for each progress report.
type EventProgress struct {
	Peer         string `json:"peer"`
	FileName     string `json:"file_name"`
	Direction    string `json:"direction"`
	CurrentBytes int64  `json:"current_bytes"`
	TotalBytes   int64  `json:"total_bytes"`
}

// EventSessionComplete is pushed when a session ends.
type EventSessionComplete struct {
	Session SessionSummary `json:"session"`
	Success bool           `json:"success"`
}

// EventPlanComplete is pushed once, when the plan resolves.
type EventPlanComplete struct {
	Description string           `json:"description"`
	Success     bool             `json:"success"`
	Error       string           `json:"error,omitempty"`
	Sessions    []SessionSummary `json:"sessions"`
}
