package peerstream

import (
	"bytes"
	"context"
	"crypto/rand"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheerbytes/streamplan/internal/quictransport"
	"github.com/sheerbytes/streamplan/internal/streaming"
	"github.com/sheerbytes/streamplan/internal/streamtest"
)

type eventLog struct {
	mu     sync.Mutex
	events []streaming.Event
}

func (l *eventLog) HandleStreamEvent(ev streaming.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) count(match func(streaming.Event) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if match(ev) {
			n++
		}
	}
	return n
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

// startReceiver runs a receiver on a loopback port and returns its address.
func startReceiver(t *testing.T, ctx context.Context, mgr *streaming.Manager, out string, listeners ...streaming.Listener) string {
	t.Helper()

	ln, err := quictransport.Listen("127.0.0.1:0", slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	r := &Receiver{
		Manager:          mgr,
		OutDir:           out,
		Listeners:        listeners,
		ChunkSize:        16 * 1024,
		ProgressInterval: -1,
	}
	go r.Serve(ctx, ln)
	return ln.Addr().String()
}

func TestSendReceive_TwoPeers(t *testing.T) {
	ctx := streamtest.Context(t)

	src := t.TempDir()
	big := randomBytes(t, 200*1024)
	small := []byte("sstable summary")
	writeFile(t, filepath.Join(src, "ks", "data.db"), big)
	writeFile(t, filepath.Join(src, "ks", "summary.db"), small)
	writeFile(t, filepath.Join(src, "ks", "empty.db"), nil)

	files, err := CollectFiles([]string{filepath.Join(src, "ks")})
	require.NoError(t, err)
	require.Len(t, files, 3)

	outA, outB := t.TempDir(), t.TempDir()
	mgrA, mgrB := streaming.NewManager(nil), streaming.NewManager(nil)
	recvLog := &eventLog{}
	addrA := startReceiver(t, ctx, mgrA, outA, recvLog)
	addrB := startReceiver(t, ctx, mgrB, outB)

	sendLog := &eventLog{}
	sender := &Sender{
		Manager:          streaming.NewManager(nil),
		NodeID:           "node-1",
		ChunkSize:        8 * 1024,
		ProgressInterval: -1,
	}
	future, err := sender.Start(ctx, Plan{
		Description: "repair",
		Peers:       []string{addrA, addrB},
		Files:       files,
		Listeners:   []streaming.Listener{sendLog},
	})
	require.NoError(t, err)

	state, err := future.Wait(ctx)
	require.NoError(t, err)
	require.Len(t, state.Sessions, 2)
	for _, info := range state.Sessions {
		assert.Equal(t, streaming.StateComplete, info.State)
		assert.Equal(t, 3, info.TotalFilesSent())
		assert.Equal(t, int64(len(big)+len(small)), info.TotalSizeSent())
	}

	for _, out := range []string{outA, outB} {
		dir := filepath.Join(out, future.PlanID.String(), "ks")
		got, err := os.ReadFile(filepath.Join(dir, "data.db"))
		require.NoError(t, err)
		assert.True(t, bytes.Equal(big, got))
		got, err = os.ReadFile(filepath.Join(dir, "summary.db"))
		require.NoError(t, err)
		assert.Equal(t, small, got)
		fi, err := os.Stat(filepath.Join(dir, "empty.db"))
		require.NoError(t, err)
		assert.Zero(t, fi.Size())
	}

	assert.Equal(t, 2, sendLog.count(func(ev streaming.Event) bool {
		_, ok := ev.(*streaming.PreparedEvent)
		return ok
	}))
	assert.Greater(t, sendLog.count(func(ev streaming.Event) bool {
		_, ok := ev.(*streaming.ProgressEvent)
		return ok
	}), 6)

	require.Eventually(t, func() bool {
		return recvLog.count(func(ev streaming.Event) bool {
			pc, ok := ev.(*streaming.PlanCompleteEvent)
			return ok && pc.Err == nil
		}) == 1
	}, streamtest.DefaultTimeout, 10*time.Millisecond)
	_, tracked := mgrA.Get(future.PlanID)
	assert.False(t, tracked)
}

func TestSendReceive_UnreachablePeerFailsPlan(t *testing.T) {
	ctx := streamtest.Context(t)

	src := t.TempDir()
	writeFile(t, filepath.Join(src, "data.db"), randomBytes(t, 4096))
	files, err := CollectFiles([]string{filepath.Join(src, "data.db")})
	require.NoError(t, err)

	good := startReceiver(t, ctx, streaming.NewManager(nil), t.TempDir())

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	dead := pc.LocalAddr().String()
	require.NoError(t, pc.Close())

	sender := &Sender{
		Manager:     streaming.NewManager(nil),
		NodeID:      "node-1",
		DialTimeout: 500 * time.Millisecond,
	}
	future, err := sender.Start(ctx, Plan{
		Description: "rebuild",
		Peers:       []string{good, dead},
		Files:       files,
	})
	require.NoError(t, err)

	state, err := future.Wait(ctx)
	var streamErr *streaming.StreamError
	require.ErrorAs(t, err, &streamErr)
	require.Len(t, state.Sessions, 2)
	assert.Equal(t, []string{dead}, state.FailedPeers())
	assert.Equal(t, streaming.StateComplete, state.Sessions[0].State)
	assert.Equal(t, int64(4096), state.Sessions[0].TotalSizeSent())
}

func TestSender_NoPeersResolvesImmediately(t *testing.T) {
	sender := &Sender{Manager: streaming.NewManager(nil)}
	future, err := sender.Start(context.Background(), Plan{Description: "noop"})
	require.NoError(t, err)

	state, err := future.Wait(streamtest.Context(t))
	require.NoError(t, err)
	assert.Empty(t, state.Sessions)
}

func TestSender_DuplicatePeer(t *testing.T) {
	sender := &Sender{Manager: streaming.NewManager(nil)}
	_, err := sender.Start(context.Background(), Plan{Peers: []string{"a:1", "a:1"}})
	require.ErrorIs(t, err, streaming.ErrDuplicatePeer)
}
