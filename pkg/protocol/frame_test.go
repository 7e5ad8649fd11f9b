package protocol

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

func TestFrame_WriteRead(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, TypeFileHeader, "plan-1", FileHeader{Name: "a/b.db", Size: 42}); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	if err := WriteMessage(&buf, TypeStreamComplete, "plan-1", StreamComplete{Files: 1, TotalBytes: 42}); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	var hdr FileHeader
	env, err := ReadMessage(&buf, TypeFileHeader, &hdr)
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if env.PlanID != "plan-1" {
		t.Errorf("PlanID = %s, want plan-1", env.PlanID)
	}
	if hdr.Name != "a/b.db" || hdr.Size != 42 {
		t.Errorf("FileHeader = %+v", hdr)
	}

	var done StreamComplete
	if _, err := ReadMessage(&buf, TypeStreamComplete, &done); err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if done.Files != 1 || done.TotalBytes != 42 {
		t.Errorf("StreamComplete = %+v", done)
	}
	if buf.Len() != 0 {
		t.Errorf("%d trailing bytes", buf.Len())
	}
}

func TestFrame_RawBytesFollowHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, TypeFileHeader, "", FileHeader{Name: "f", Size: 5}); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	buf.WriteString("hello")

	var hdr FileHeader
	if _, err := ReadMessage(&buf, TypeFileHeader, &hdr); err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if got := buf.String(); got != "hello" {
		t.Errorf("body = %q, want hello", got)
	}
}

func TestFrame_TooLarge(t *testing.T) {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], MaxFrameSize+1)
	if _, err := ReadFrame(bytes.NewReader(hdr[:])); err == nil {
		t.Fatal("ReadFrame() should reject oversized frames")
	}

	big := FileHeader{Name: strings.Repeat("x", MaxFrameSize)}
	if err := WriteMessage(&bytes.Buffer{}, TypeFileHeader, "", big); err == nil {
		t.Fatal("WriteMessage() should reject oversized frames")
	}
}

func TestFrame_Truncated(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, TypeStreamAck, "", StreamAck{}); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	data := buf.Bytes()
	if _, err := ReadFrame(bytes.NewReader(data[:len(data)-1])); err == nil {
		t.Fatal("ReadFrame() should fail on a truncated body")
	}
	if _, err := ReadFrame(bytes.NewReader(data[:2])); err == nil {
		t.Fatal("ReadFrame() should fail on a truncated header")
	}
}
