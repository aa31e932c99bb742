package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/lobby-server/internal/engine"
	"github.com/DoyleJ11/lobby-server/internal/fanout"
	"github.com/DoyleJ11/lobby-server/internal/fanout/fanouttest"
	"github.com/DoyleJ11/lobby-server/internal/lobby"
	"github.com/DoyleJ11/lobby-server/internal/metrics"
)

func newTestHub(t *testing.T) (*Hub, *fanout.Registry) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	conns := fanout.NewRegistry()
	log := zaptest.NewLogger(t)
	h := NewHub(ctx, Config{
		Limits:  engine.Limits{MaxPlayers: 2, MaxSpectators: 2, MinPlayers: 2},
		Fanout:  fanout.New(conns, log, nil),
		Log:     log,
		Metrics: metrics.New(),
	})
	return h, conns
}

func TestHub_Create_Get_SamePointer(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()

	lb1, err := h.Resolve(ctx, "ZED123", true)
	require.NoError(t, err)
	lb2, err := h.Get(ctx, "ZED123")
	require.NoError(t, err)
	lb3, err := h.Resolve(ctx, "ZED123", true)
	require.NoError(t, err)

	assert.Same(t, lb1, lb2)
	assert.Same(t, lb1, lb3)
}

func TestHub_MissingRoomWithoutCreate(t *testing.T) {
	h, _ := newTestHub(t)
	_, err := h.Resolve(context.Background(), "nope", false)
	require.ErrorIs(t, err, ErrRoomNotFound)
	_, err = h.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestHub_DestroyedRoomIsForgottenAndRecreatedFresh(t *testing.T) {
	h, conns := newTestHub(t)
	ctx := context.Background()

	lb, err := h.Resolve(ctx, "R1", true)
	require.NoError(t, err)
	for _, id := range []string{"a", "b"} {
		require.NoError(t, conns.Register(id, fanouttest.NewConn()))
		require.NoError(t, lb.Join(ctx, id, id))
	}
	require.NoError(t, lb.Send(ctx, lobby.Leave{MemberID: "b", Disconnect: true}))

	select {
	case <-lb.Done():
	case <-time.After(time.Second):
		t.Fatal("lobby did not close after abandonment")
	}

	_, err = h.Resolve(ctx, "R1", false)
	require.ErrorIs(t, err, ErrRoomNotFound)

	fresh, err := h.Resolve(ctx, "R1", true)
	require.NoError(t, err)
	assert.NotSame(t, lb, fresh)
	v, err := fresh.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, v.NumMembers)
	assert.Equal(t, 0, v.Version)
}

func TestHub_List(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()
	for _, code := range []string{"A", "B", "C"} {
		_, err := h.Resolve(ctx, code, true)
		require.NoError(t, err)
	}
	all, err := h.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestHub_Shutdown(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()
	lb, err := h.Resolve(ctx, "R1", true)
	require.NoError(t, err)

	sctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(sctx))

	select {
	case <-lb.Done():
	case <-time.After(time.Second):
		t.Fatal("lobby still running after hub shutdown")
	}
	_, err = h.Resolve(ctx, "R1", true)
	require.ErrorIs(t, err, ErrHubClosed)
	require.NoError(t, h.Shutdown(sctx), "second shutdown is a no-op")
}
