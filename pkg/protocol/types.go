package protocol

// Message types exchanged on a streaming session.
const (
	TypeError          = "error"
	TypeStreamInit     = "stream_init"
	TypeStreamAccept   = "stream_accept"
	TypeFileHeader     = "file_header"
	TypeStreamComplete = "stream_complete"
	TypeStreamAck      = "stream_ack"
)

// Event types pushed to feed subscribers.
const (
	TypeEventPrepared        = "event_prepared"
	TypeEventProgress        = "event_progress"
	TypeEventSessionComplete = "event_session_complete"
	TypeEventPlanComplete    = "event_plan_complete"
)

// Error codes carried by Error messages.
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeRejected     = "REJECTED"
	CodeTransferFail = "TRANSFER_FAILED"
)
