package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxFrameSize bounds the encoded size of one envelope on a stream.
const MaxFrameSize = 64 * 1024

// WriteFrame writes env as a 4-byte big-endian length followed by its JSON
// encoding.
func WriteFrame(w io.Writer, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if len(data) > MaxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", len(data))
	}
	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one envelope written by WriteFrame.
func ReadFrame(r io.Reader) (Envelope, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Envelope{}, fmt.Errorf("read frame header: %w", err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return Envelope{}, fmt.Errorf("frame too large: %d bytes", n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return Envelope{}, fmt.Errorf("read frame body: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return env, nil
}

// WriteMessage wraps payload in an envelope of msgType for plan and writes it.
func WriteMessage(w io.Writer, msgType, planID string, payload any) error {
	env, err := NewEnvelope(msgType, "", payload)
	if err != nil {
		return err
	}
	env.PlanID = planID
	return WriteFrame(w, env)
}

// ReadMessage reads one envelope, checks it is of msgType and decodes its
// payload into out.
func ReadMessage(r io.Reader, msgType string, out any) (Envelope, error) {
	env, err := ReadFrame(r)
	if err != nil {
		return Envelope{}, err
	}
	if err := env.Expect(msgType); err != nil {
		return env, err
	}
	if out != nil {
		if err := env.DecodePayload(out); err != nil {
			return env, err
		}
	}
	return env, nil
}
