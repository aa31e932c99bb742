package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/lobby-server/internal/engine"
	"github.com/DoyleJ11/lobby-server/internal/fanout"
	"github.com/DoyleJ11/lobby-server/internal/fanout/fanouttest"
	"github.com/DoyleJ11/lobby-server/internal/hub"
	"github.com/DoyleJ11/lobby-server/internal/metrics"
	"github.com/DoyleJ11/lobby-server/pkg/types"
)

type fixture struct {
	hub     *hub.Hub
	conns   *fanout.Registry
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := zaptest.NewLogger(t)
	m := metrics.New()
	conns := fanout.NewRegistry()
	h := hub.NewHub(ctx, hub.Config{
		Limits:  engine.Limits{MaxPlayers: 4, MaxSpectators: 2, MinPlayers: 2},
		Fanout:  fanout.New(conns, log, m),
		Log:     log,
		Metrics: m,
	})
	return &fixture{
		hub:   h,
		conns: conns,
		handler: SetupRoutes(Deps{
			Hub:       h,
			WebSocket: http.NotFoundHandler(),
			Metrics:   m,
			Log:       log,
		}),
	}
}

func (f *fixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

// seat creates room code with one member in it.
func (f *fixture) seat(t *testing.T, code, id string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.conns.Register(id, fanouttest.NewConn()))
	lb, err := f.hub.Resolve(ctx, code, true)
	require.NoError(t, err)
	require.NoError(t, lb.Join(ctx, id, id))
}

func TestGenerateCode(t *testing.T) {
	seen := map[string]bool{}
	for n := 0; n < 50; n++ {
		c, err := GenerateCode()
		require.NoError(t, err)
		require.Len(t, c, codeLength)
		assert.Equal(t, strings.ToUpper(c), c)
		seen[c] = true
	}
	assert.Greater(t, len(seen), 45)
}

func TestCreateRoom_ReturnsUnusedCode(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/rooms")
	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		RoomID string `json:"roomId"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Len(t, body.RoomID, codeLength)

	// Not created until a host joins.
	_, err := f.hub.Get(context.Background(), body.RoomID)
	assert.ErrorIs(t, err, hub.ErrRoomNotFound)
}

func TestGetRoom(t *testing.T) {
	f := newFixture(t)
	f.seat(t, "ABC123", "a")

	rec := f.do(t, http.MethodGet, "/rooms/ABC123")
	require.Equal(t, http.StatusOK, rec.Code)
	var info types.RoomInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&info))
	assert.Equal(t, "ABC123", info.RoomID)
	assert.Equal(t, "a", info.HostID)
	assert.Equal(t, 1, info.PlayerCount)
	assert.Equal(t, 4, info.MaxPlayers)

	rec = f.do(t, http.MethodGet, "/rooms/NOPE00")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRooms(t *testing.T) {
	f := newFixture(t)
	f.seat(t, "BBBBBB", "b")
	f.seat(t, "AAAAAA", "a")

	rec := f.do(t, http.MethodGet, "/rooms")
	require.Equal(t, http.StatusOK, rec.Code)
	var rooms []roomSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rooms))
	require.Len(t, rooms, 2)
	assert.Equal(t, "AAAAAA", rooms[0].RoomID)
	assert.Equal(t, "BBBBBB", rooms[1].RoomID)
	assert.Equal(t, "waiting", rooms[0].Phase)
	assert.Equal(t, 1, rooms[0].PlayerCount)
}

func TestHealthzAndMetrics(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz").Code)

	f.seat(t, "CCCCCC", "c")
	rec := f.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lobby_rooms_active 1")
}
