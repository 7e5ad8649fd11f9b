package eventfeed

import (
	"fmt"

	"github.com/sheerbytes/streamplan/internal/streaming"
	"github.com/sheerbytes/streamplan/pkg/protocol"
)

// Encode renders a stream event as a feed envelope.
func Encode(ev streaming.Event) (protocol.Envelope, error) {
	var (
		msgType string
		planID  streaming.PlanID
		payload any
	)
	switch e := ev.(type) {
	case *streaming.PreparedEvent:
		msgType, planID = protocol.TypeEventPrepared, e.PlanID
		payload = protocol.EventPrepared{Session: summarize(e.Session)}
	case *streaming.ProgressEvent:
		msgType, planID = protocol.TypeEventProgress, e.PlanID
		payload = protocol.EventProgress{
			Peer:         e.Progress.Peer,
			FileName:     e.Progress.FileName,
			Direction:    e.Progress.Direction.String(),
			CurrentBytes: e.Progress.CurrentBytes,
			TotalBytes:   e.Progress.TotalBytes,
		}
	case *streaming.SessionCompleteEvent:
		msgType, planID = protocol.TypeEventSessionComplete, e.PlanID
		payload = protocol.EventSessionComplete{Session: summarize(e.Session), Success: e.Success()}
	case *streaming.PlanCompleteEvent:
		msgType, planID = protocol.TypeEventPlanComplete, e.State.PlanID
		out := protocol.EventPlanComplete{
			Description: e.State.Description,
			Success:     e.Err == nil,
			Sessions:    make([]protocol.SessionSummary, 0, len(e.State.Sessions)),
		}
		if e.Err != nil {
			out.Error = e.Err.Error()
		}
		for _, info := range e.State.Sessions {
			out.Sessions = append(out.Sessions, summarize(info))
		}
		payload = out
	default:
		return protocol.Envelope{}, fmt.Errorf("unsupported event %T", ev)
	}

	env, err := protocol.NewEnvelope(msgType, "", payload)
	if err != nil {
		return protocol.Envelope{}, err
	}
	env.PlanID = planID.String()
	return env, nil
}

func summarize(info streaming.SessionInfo) protocol.SessionSummary {
	return protocol.SessionSummary{
		Peer:           info.Peer,
		SessionIndex:   info.SessionIndex,
		State:          info.State.String(),
		FailureReason:  info.FailureReason,
		ReceivingFiles: info.ReceivingSummary.Files,
		ReceivingBytes: info.ReceivingSummary.TotalSize,
		SendingFiles:   info.SendingSummary.Files,
		SendingBytes:   info.SendingSummary.TotalSize,
		ReceivedBytes:  info.TotalSizeReceived(),
		SentBytes:      info.TotalSizeSent(),
	}
}
