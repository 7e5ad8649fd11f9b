package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNewEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		msgType string
		msgID   string
		payload any
		wantErr bool
	}{
		{
			name:    "stream init",
			msgType: TypeStreamInit,
			msgID:   "test123",
			payload: StreamInit{PlanID: "p", Files: 2, TotalBytes: 10},
		},
		{
			name:    "error",
			msgType: TypeError,
			msgID:   "test456",
			payload: Error{Code: CodeRejected, Message: "duplicate peer"},
		},
		{
			name:    "nil payload",
			msgType: TypeStreamAck,
			msgID:   "test000",
			payload: nil,
		},
		{
			name:    "unmarshalable payload",
			msgType: TypeStreamAck,
			msgID:   "bad",
			payload: make(chan int),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := NewEnvelope(tt.msgType, tt.msgID, tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewEnvelope() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if env.V != ProtocolVersion {
				t.Errorf("V = %d, want %d", env.V, ProtocolVersion)
			}
			if env.Type != tt.msgType {
				t.Errorf("Type = %s, want %s", env.Type, tt.msgType)
			}
			if env.MsgID != tt.msgID {
				t.Errorf("MsgID = %s, want %s", env.MsgID, tt.msgID)
			}
		})
	}
}

func TestNewEnvelope_GeneratesMsgID(t *testing.T) {
	env, err := NewEnvelope(TypeStreamAck, "", nil)
	if err != nil {
		t.Fatalf("NewEnvelope() error = %v", err)
	}
	if len(env.MsgID) != 16 {
		t.Errorf("MsgID length = %d, want 16", len(env.MsgID))
	}
}

func TestEnvelope_ValidateBasic(t *testing.T) {
	tests := []struct {
		name    string
		env     Envelope
		wantErr bool
	}{
		{"valid", Envelope{V: ProtocolVersion, Type: TypeStreamInit, MsgID: "a"}, false},
		{"wrong version", Envelope{V: 2, Type: TypeStreamInit, MsgID: "a"}, true},
		{"missing type", Envelope{V: ProtocolVersion, MsgID: "a"}, true},
		{"missing msg id", Envelope{V: ProtocolVersion, Type: TypeStreamInit}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.env.ValidateBasic(); (err != nil) != tt.wantErr {
				t.Errorf("ValidateBasic() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvelope_Expect(t *testing.T) {
	ok, _ := NewEnvelope(TypeStreamAccept, "", StreamAccept{PlanID: "p"})
	if err := ok.Expect(TypeStreamAccept); err != nil {
		t.Fatalf("Expect() error = %v", err)
	}
	if err := ok.Expect(TypeStreamAck); err == nil {
		t.Fatal("Expect() should reject a different type")
	}

	remote, _ := NewEnvelope(TypeError, "", Error{Code: CodeRejected, Message: "plan is gone"})
	err := remote.Expect(TypeStreamAccept)
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("Expect() error = %v, want *RemoteError", err)
	}
	if re.Code != CodeRejected || re.Message != "plan is gone" {
		t.Errorf("RemoteError = %+v", re)
	}
}

func TestEnvelope_DecodePayloadEmpty(t *testing.T) {
	env, _ := NewEnvelope(TypeStreamAck, "", nil)
	var ack StreamAck
	if err := env.DecodePayload(&ack); err == nil {
		t.Fatal("DecodePayload() should fail on an empty payload")
	}
}

func TestEnvelope_JSONFieldNames(t *testing.T) {
	env, _ := NewEnvelope(TypeEventProgress, "m1", EventProgress{Peer: "a", FileName: "f", CurrentBytes: 1, TotalBytes: 2})
	env.PlanID = "plan-1"
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, key := range []string{"v", "type", "msg_id", "plan_id", "payload"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
	if _, ok := raw["from"]; ok {
		t.Errorf("empty from should be omitted: %s", data)
	}
}
