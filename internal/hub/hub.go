package hub

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lobby-server/internal/engine"
	"github.com/DoyleJ11/lobby-server/internal/fanout"
	"github.com/DoyleJ11/lobby-server/internal/lobby"
	"github.com/DoyleJ11/lobby-server/internal/metrics"
)

const shutdownGrace = 2 * time.Second

var ErrRoomNotFound = errors.New("room not found")
var ErrHubClosed = errors.New("hub closed")

type HubMsg interface{ isHubMsg() }

// EnsureLobby returns the live lobby for Code, creating it when Create is
// set. Reply receives nil when the room does not exist and Create is false.
type EnsureLobby struct {
	Code   string
	Create bool
	Reply  chan *lobby.Lobby
}

type GetLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

// RemoveLobby drops Code only while it still maps to Lobby.
type RemoveLobby struct {
	Code  string
	Lobby *lobby.Lobby
}

type ListLobbies struct {
	Reply chan []*lobby.Lobby
}

type ShutdownHub struct{}

func (EnsureLobby) isHubMsg() {}
func (GetLobby) isHubMsg()    {}
func (RemoveLobby) isHubMsg() {}
func (ListLobbies) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

// Config is applied to every lobby the hub creates.
type Config struct {
	Limits      engine.Limits
	IdleTimeout time.Duration
	Fanout      *fanout.Fanout
	Log         *zap.Logger
	Metrics     *metrics.Metrics
}

// Hub is the room registry: the only place rooms are created or forgotten.
type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	cfg     Config
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, cfg Config) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		cfg:     cfg,
		log:     cfg.Log.Named("hub"),
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

// Done is closed after the hub stops.
func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureLobby:
				lb := h.live(msg.Code)
				if lb == nil && msg.Create {
					lb = h.create(msg.Code)
				}
				msg.Reply <- lb // May be nil

			case GetLobby:
				msg.Reply <- h.live(msg.Code) // May be nil

			case RemoveLobby:
				if h.lobbies[msg.Code] == msg.Lobby {
					h.forget(msg.Code)
				}

			case ListLobbies:
				out := make([]*lobby.Lobby, 0, len(h.lobbies))
				for code := range h.lobbies {
					if lb := h.live(code); lb != nil {
						out = append(out, lb)
					}
				}
				msg.Reply <- out

			case ShutdownHub:
				stopping := make([]*lobby.Lobby, 0, len(h.lobbies))
				for code, lb := range h.lobbies {
					select {
					case lb.Inbox() <- lobby.Shutdown{}:
						stopping = append(stopping, lb)
					default:
						// The parent cancel below stops it anyway.
					}
					h.forget(code)
				}
				h.awaitLobbies(stopping)
				h.log.Info("hub shut down", zap.Int("rooms", len(stopping)))
				h.cancel()
				return
			}
		}
	}
}

// live returns the registered lobby for code unless it has already
// destroyed itself, in which case the entry is dropped.
// awaitLobbies gives stopping lobbies a bounded window to notify their
// members before the hub context is cancelled under them.
func (h *Hub) awaitLobbies(lobbies []*lobby.Lobby) {
	grace := time.NewTimer(shutdownGrace)
	defer grace.Stop()
	for _, lb := range lobbies {
		select {
		case <-lb.Done():
		case <-grace.C:
			h.log.Warn("rooms still stopping at shutdown deadline")
			return
		}
	}
}

func (h *Hub) live(code string) *lobby.Lobby {
	lb := h.lobbies[code]
	if lb == nil {
		return nil
	}
	if lb.Closed() {
		h.forget(code)
		return nil
	}
	return lb
}

func (h *Hub) create(code string) *lobby.Lobby {
	lb := lobby.NewLobby(h.ctx, code, lobby.Config{
		Limits:      h.cfg.Limits,
		IdleTimeout: h.cfg.IdleTimeout,
		Fanout:      h.cfg.Fanout,
		Log:         h.cfg.Log,
		Metrics:     h.cfg.Metrics,
		OnClose:     h.onClose,
	})
	h.lobbies[code] = lb
	h.cfg.Metrics.RoomOpened()
	h.log.Info("room created", zap.String("room", code), zap.Int("rooms", len(h.lobbies)))
	return lb
}

func (h *Hub) forget(code string) {
	delete(h.lobbies, code)
	h.cfg.Metrics.RoomClosed()
}

// onClose runs on the lobby goroutine.
func (h *Hub) onClose(lb *lobby.Lobby) {
	select {
	case h.inbox <- RemoveLobby{Code: lb.Code(), Lobby: lb}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) ask(ctx context.Context, msg HubMsg) error {
	if h.ctx.Err() != nil {
		return ErrHubClosed
	}
	select {
	case h.inbox <- msg:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, h *Hub, reply chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-h.ctx.Done():
		return zero, ErrHubClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Resolve finds the lobby for code. With create set, a missing room is
// created; otherwise ErrRoomNotFound is returned.
func (h *Hub) Resolve(ctx context.Context, code string, create bool) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	if err := h.ask(ctx, EnsureLobby{Code: code, Create: create, Reply: reply}); err != nil {
		return nil, err
	}
	lb, err := await(ctx, h, reply)
	if err != nil {
		return nil, err
	}
	if lb == nil {
		return nil, ErrRoomNotFound
	}
	return lb, nil
}

func (h *Hub) Get(ctx context.Context, code string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	if err := h.ask(ctx, GetLobby{Code: code, Reply: reply}); err != nil {
		return nil, err
	}
	lb, err := await(ctx, h, reply)
	if err != nil {
		return nil, err
	}
	if lb == nil {
		return nil, ErrRoomNotFound
	}
	return lb, nil
}

func (h *Hub) List(ctx context.Context) ([]*lobby.Lobby, error) {
	reply := make(chan []*lobby.Lobby, 1)
	if err := h.ask(ctx, ListLobbies{Reply: reply}); err != nil {
		return nil, err
	}
	return await(ctx, h, reply)
}

// Shutdown stops every lobby and the hub itself.
func (h *Hub) Shutdown(ctx context.Context) error {
	if err := h.ask(ctx, ShutdownHub{}); err != nil {
		if errors.Is(err, ErrHubClosed) {
			return nil
		}
		return err
	}
	select {
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
