package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/lobby-server/internal/engine"
	"github.com/DoyleJ11/lobby-server/internal/fanout"
	"github.com/DoyleJ11/lobby-server/internal/hub"
	"github.com/DoyleJ11/lobby-server/internal/metrics"
	"github.com/DoyleJ11/lobby-server/internal/router"
	"github.com/DoyleJ11/lobby-server/pkg/types"
)

func newServer(t *testing.T, stop <-chan struct{}) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := zaptest.NewLogger(t)
	m := metrics.New()
	fan := fanout.New(fanout.NewRegistry(), log, m)
	h := hub.NewHub(ctx, hub.Config{
		Limits:  engine.Limits{MaxPlayers: 2, MaxSpectators: 2, MinPlayers: 2},
		Fanout:  fan,
		Log:     log,
		Metrics: m,
	})
	rt := router.New(h, fan, log, m)

	srv := httptest.NewServer(Handler(rt, Config{
		OutboxSize:   16,
		ReadLimit:    4096,
		WriteTimeout: 2 * time.Second,
		PingInterval: 50 * time.Millisecond,
		Stop:         stop,
		Log:          log,
		Metrics:      m,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.CloseNow() })
	return c
}

func write(t *testing.T, c *websocket.Conn, msg map[string]any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, c, msg))
}

// readType reads until a message of msgType arrives.
func readType(t *testing.T, c *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		var m map[string]any
		require.NoError(t, wsjson.Read(ctx, c, &m))
		if m["type"] == msgType {
			return m
		}
	}
}

func TestHandler_StartHandshakeOverWebsocket(t *testing.T) {
	srv := newServer(t, nil)
	host := dial(t, srv)
	guest := dial(t, srv)

	write(t, host, map[string]any{"type": "join", "roomId": "R1", "id": "host", "isHost": true})
	res := readType(t, host, types.TypeJoinResult)
	require.Equal(t, true, res["success"])

	write(t, guest, map[string]any{"type": "join", "roomId": "R1", "id": "guest"})
	res = readType(t, guest, types.TypeJoinResult)
	require.Equal(t, true, res["success"])
	info := readType(t, guest, types.TypeRoomInfo)
	assert.Equal(t, float64(2), info["playerCount"])

	write(t, guest, map[string]any{"type": "ready", "ready": true})
	write(t, host, map[string]any{"type": "start"})
	readType(t, host, types.TypeConfirmRequest)
	readType(t, guest, types.TypeConfirmRequest)

	write(t, host, map[string]any{"type": "confirm"})
	write(t, guest, map[string]any{"type": "confirm"})
	readType(t, host, types.TypeGameStart)
	readType(t, guest, types.TypeGameStart)
}

func TestHandler_PingPongAndBinaryIgnored(t *testing.T) {
	srv := newServer(t, nil)
	c := dial(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageBinary, []byte(`{"type":"ping"}`)))
	write(t, c, map[string]any{"type": "ping"})

	var m map[string]any
	require.NoError(t, wsjson.Read(ctx, c, &m))
	assert.Equal(t, types.TypePong, m["type"])
}

func TestHandler_CloseActsAsDisconnect(t *testing.T) {
	srv := newServer(t, nil)
	host := dial(t, srv)
	guest := dial(t, srv)

	write(t, host, map[string]any{"type": "join", "roomId": "R1", "id": "host", "isHost": true})
	readType(t, host, types.TypeJoinResult)
	write(t, guest, map[string]any{"type": "join", "roomId": "R1", "id": "guest"})
	readType(t, guest, types.TypeJoinResult)

	require.NoError(t, guest.Close(websocket.StatusNormalClosure, ""))
	abort := readType(t, host, types.TypeGameAbort)
	assert.Equal(t, types.ReasonNotEnoughPlayers, abort["reason"])
}

func TestHandler_StopClosesGoingAway(t *testing.T) {
	stop := make(chan struct{})
	srv := newServer(t, stop)
	c := dial(t, srv)

	write(t, c, map[string]any{"type": "ping"})
	readType(t, c, types.TypePong)

	close(stop)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}
