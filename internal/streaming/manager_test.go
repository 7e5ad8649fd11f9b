package streaming

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheerbytes/streamplan/internal/streamtest"
)

func TestManager_RegisterAndRemoveOnCompletion(t *testing.T) {
	m := NewManager(nil)
	c := NewCoordinator(false)
	require.NoError(t, c.RegisterPeer("a", NewSessionInfo("a", 0, StreamSummary{}, StreamSummary{})))

	rec := &recorder{}
	f, err := m.Init(NewPlanID(), "repair", []Listener{rec}, c)
	require.NoError(t, err)

	got, ok := m.Get(f.PlanID)
	require.True(t, ok)
	assert.Same(t, f, got)
	assert.Len(t, m.Active(), 1)

	require.ErrorIs(t, m.Register(f), ErrPlanExists)

	require.NoError(t, f.HandleSessionComplete("a", nil))
	_, ok = m.Get(f.PlanID)
	assert.False(t, ok, "resolved plans leave the registry")
	assert.Empty(t, m.Active())
	assert.Len(t, rec.completions(), 1)
}

func TestManager_EmptyPlanIsNeverTracked(t *testing.T) {
	m := NewManager(nil)
	f, err := m.Init(NewPlanID(), "noop", nil, NewCoordinator(false))
	require.NoError(t, err)

	_, err = f.Wait(streamtest.Context(t))
	require.NoError(t, err)
	_, ok := m.Get(f.PlanID)
	assert.False(t, ok)
}

func TestManager_InitReceivingSideReusesPlan(t *testing.T) {
	m := NewManager(nil)
	id := NewPlanID()
	rec := &recorder{}

	f1, s1, err := m.InitReceivingSide(0, id, "bootstrap", "10.0.0.1:7000", []Listener{rec})
	require.NoError(t, err)
	f2, s2, err := m.InitReceivingSide(0, id, "bootstrap", "10.0.0.2:7000", nil)
	require.NoError(t, err)

	assert.Same(t, f1, f2)
	assert.True(t, f1.Coordinator().IsReceiving())
	assert.Equal(t, []string{"10.0.0.1:7000", "10.0.0.2:7000"}, f1.Coordinator().Peers())

	_, _, err = m.InitReceivingSide(1, id, "bootstrap", "10.0.0.1:7000", nil)
	require.ErrorIs(t, err, ErrDuplicatePeer)

	require.NoError(t, s1.Prepare(StreamSummary{Files: 1, TotalSize: 1}, StreamSummary{}))
	require.NoError(t, s1.Complete())
	streamtest.AssertPending(t, f1.Done())

	require.NoError(t, s2.Fail(nil))
	_, err = f1.Wait(streamtest.Context(t))
	require.Error(t, err)

	_, ok := m.Get(id)
	assert.False(t, ok)
	assert.Len(t, rec.completions(), 1)
}

func TestManager_InitReceivingSideReplacesResolvedPlan(t *testing.T) {
	m := NewManager(nil)
	id := NewPlanID()

	stale, sa, err := m.InitReceivingSide(0, id, "repair", "peerA", nil)
	require.NoError(t, err)
	require.NoError(t, sa.Prepare(StreamSummary{Files: 1, TotalSize: 1}, StreamSummary{}))
	require.NoError(t, sa.Complete())
	_, err = stale.Wait(streamtest.Context(t))
	require.NoError(t, err)

	// A lookup that raced with the resolution still finds the old future.
	m.mu.Lock()
	m.plans[id] = stale
	m.mu.Unlock()

	f, sb, err := m.InitReceivingSide(1, id, "repair", "peerB", nil)
	require.NoError(t, err)
	assert.NotSame(t, stale, f)
	assert.Equal(t, []string{"peerA"}, stale.Coordinator().Peers())
	assert.Equal(t, []string{"peerB"}, f.Coordinator().Peers())
	streamtest.AssertPending(t, f.Done())

	require.NoError(t, sb.Fail(errors.New("disk full")))
	_, err = f.Wait(streamtest.Context(t))
	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Equal(t, []string{"peerB"}, streamErr.State.FailedPeers())
}

func TestManager_SessionJoiningDuringResolutionIsNotLost(t *testing.T) {
	m := NewManager(nil)
	id := NewPlanID()

	first, sa, err := m.InitReceivingSide(0, id, "repair", "peerA", nil)
	require.NoError(t, err)

	type joined struct {
		future  *ResultFuture
		session *Session
		err     error
	}
	joins := make(chan joined, 1)
	var once bool
	first.AddEventListener(ListenerFunc(func(ev Event) {
		if _, ok := ev.(*SessionCompleteEvent); ok && !once {
			once = true
			// Runs while peerA's completion still holds the plan.
			go func() {
				f, s, err := m.InitReceivingSide(1, id, "repair", "peerB", nil)
				joins <- joined{f, s, err}
			}()
		}
	}))

	require.NoError(t, sa.Prepare(StreamSummary{Files: 1, TotalSize: 1}, StreamSummary{}))
	require.NoError(t, sa.Complete())

	ctx := streamtest.Context(t)
	j := streamtest.ReadItem(t, ctx, joins)
	require.NoError(t, j.err)
	assert.NotSame(t, first, j.future)
	assert.Equal(t, []string{"peerA"}, first.Coordinator().Peers())

	require.NoError(t, j.session.Fail(errors.New("disk full")))
	_, err = j.future.Wait(ctx)
	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	assert.Len(t, streamErr.State.Sessions, 1)
}
