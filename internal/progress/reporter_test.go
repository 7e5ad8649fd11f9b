package progress

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheerbytes/streamplan/internal/streaming"
)

func TestReporter_Lifecycle(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	var out bytes.Buffer
	r := newReporterWithNow(&out, time.Second, func() time.Time { return now })

	c := streaming.NewCoordinator(false)
	require.NoError(t, c.RegisterPeer("a", streaming.NewSessionInfo("a", 0, streaming.StreamSummary{}, streaming.StreamSummary{})))
	require.NoError(t, c.RegisterPeer("b", streaming.NewSessionInfo("b", 1, streaming.StreamSummary{}, streaming.StreamSummary{})))
	f := streaming.NewResultFuture(streaming.NewPlanID(), "repair", c)
	f.AddEventListener(r)

	require.NoError(t, f.HandleSessionPrepared("a", streaming.StreamSummary{}, streaming.StreamSummary{Files: 1, TotalSize: 2048}))
	require.NoError(t, f.HandleSessionPrepared("b", streaming.StreamSummary{}, streaming.StreamSummary{Files: 1, TotalSize: 2048}))

	now = now.Add(time.Second)
	require.NoError(t, f.HandleProgress(streaming.ProgressInfo{Peer: "a", FileName: "f", CurrentBytes: 1024, TotalBytes: 2048}))
	// Throttled: same instant, file not finished.
	require.NoError(t, f.HandleProgress(streaming.ProgressInfo{Peer: "a", FileName: "f", CurrentBytes: 1536, TotalBytes: 2048}))
	// Always printed: file finished.
	require.NoError(t, f.HandleProgress(streaming.ProgressInfo{Peer: "a", FileName: "f", CurrentBytes: 2048, TotalBytes: 2048}))

	require.NoError(t, f.HandleSessionComplete("a", nil))
	require.NoError(t, f.HandleSessionComplete("b", errors.New("connection refused")))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 7, out.String())
	assert.Contains(t, lines[0], "prepared session with a: sending 1 files (2.0 KiB)")
	assert.Contains(t, lines[2], "1.0 KiB / 4.0 KiB (25.0%)")
	assert.Contains(t, lines[3], "2.0 KiB / 4.0 KiB (50.0%)")
	assert.Contains(t, lines[4], "session with a complete")
	assert.Contains(t, lines[5], "session with b failed: connection refused")
	assert.Contains(t, lines[6], "stream failed")
	assert.Contains(t, lines[6], "1 of 2 sessions failed")
}

func TestReporter_Success(t *testing.T) {
	var out bytes.Buffer
	r := NewReporter(&out, time.Second)

	f := streaming.NewResultFuture(streaming.NewPlanID(), "noop", streaming.NewCoordinator(false))
	f.AddEventListener(r)

	assert.Contains(t, out.String(), "all 0 sessions completed")
}
