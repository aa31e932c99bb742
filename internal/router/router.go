package router

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lobby-server/internal/engine"
	"github.com/DoyleJ11/lobby-server/internal/fanout"
	"github.com/DoyleJ11/lobby-server/internal/hub"
	"github.com/DoyleJ11/lobby-server/internal/lobby"
	"github.com/DoyleJ11/lobby-server/internal/metrics"
	"github.com/DoyleJ11/lobby-server/pkg/types"
)

const (
	// joinAttempts bounds retries when a room is destroyed between lookup and join.
	joinAttempts = 3

	// leaveTimeout bounds delivery of a Leave. It is detached from the
	// connection context.
	leaveTimeout = 5 * time.Second
)

// Session is the router's view of one connection. It is only touched by that
// connection's reader goroutine.
type Session struct {
	conn     fanout.Conn
	memberID string
	room     *lobby.Lobby
}

func NewSession(c fanout.Conn) *Session {
	return &Session{conn: c}
}

// MemberID is empty until the first join registers the connection.
func (s *Session) MemberID() string { return s.memberID }

// Room returns the lobby the session is seated in, or nil. A lobby that has
// destroyed itself no longer counts.
func (s *Session) Room() *lobby.Lobby {
	if s.room != nil && s.room.Closed() {
		s.room = nil
	}
	return s.room
}

type Router struct {
	hub     *hub.Hub
	fan     *fanout.Fanout
	log     *zap.Logger
	metrics *metrics.Metrics
	newID   func() string
}

type Option func(*Router)

// WithIDGenerator replaces the UUID generator used for members that join
// without an id.
func WithIDGenerator(fn func() string) Option {
	return func(r *Router) { r.newID = fn }
}

func New(h *hub.Hub, fan *fanout.Fanout, log *zap.Logger, m *metrics.Metrics, opts ...Option) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{
		hub:     h,
		fan:     fan,
		log:     log.Named("router"),
		metrics: m,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route decodes one inbound payload and dispatches it. Undecodable payloads
// and messages that need a room the session is not in are dropped silently.
func (r *Router) Route(ctx context.Context, s *Session, data []byte) {
	msg, err := types.Decode(data)
	if err != nil {
		reason := "protocol"
		if errors.Is(err, types.ErrUnknownType) {
			reason = "unknown_type"
		}
		r.metrics.Dropped(reason)
		r.log.Debug("dropped payload", zap.String("member", s.memberID), zap.Error(err))
		return
	}
	r.metrics.Inbound(types.TypeOf(msg))

	switch m := msg.(type) {
	case types.Join:
		r.join(ctx, s, m)
	case types.Ping:
		r.reply(s, types.NewPong())
	case types.Leave:
		r.leave(s, false)
	case types.Ready:
		r.forward(ctx, s, engine.Command{Type: engine.CmdSetReady, Ready: m.Ready})
	case types.Start:
		r.forward(ctx, s, engine.Command{Type: engine.CmdRequestStart})
	case types.Confirm:
		r.forward(ctx, s, engine.Command{Type: engine.CmdConfirmStart})
	case types.RequestRoomInfo:
		r.forward(ctx, s, engine.Command{Type: engine.CmdRoomInfo})
	case types.SelectChar:
		r.forward(ctx, s, engine.Command{Type: engine.CmdSelectCharacter, CharacterID: m.CharID})
	case types.ChangeRole:
		r.forward(ctx, s, engine.Command{Type: engine.CmdChangeRole, Role: engine.Role(m.To)})
	}
}

// Disconnect is the transport close event. It removes the member from its
// room once and releases the member id.
func (r *Router) Disconnect(s *Session) {
	r.leave(s, true)
	if s.memberID != "" {
		r.fan.Registry().Unregister(s.memberID, s.conn)
	}
}

func (r *Router) join(ctx context.Context, s *Session, m types.Join) {
	if s.Room() != nil {
		r.reply(s, types.NewJoinFailure(types.ReasonAlreadyInRoom))
		return
	}
	if m.RoomID == "" {
		r.reply(s, types.NewJoinFailure(types.ReasonRoomNotFound))
		return
	}

	if s.memberID == "" {
		id := m.ID
		if id == "" {
			id = r.newID()
		}
		if err := r.fan.Registry().Register(id, s.conn); err != nil {
			r.log.Debug("join rejected", zap.String("member", id), zap.Error(err))
			r.reply(s, types.NewJoinFailure(types.ReasonDuplicateID))
			return
		}
		s.memberID = id
	}

	name := m.Name
	if name == "" {
		name = defaultName(s.memberID)
	}

	for n := 0; n < joinAttempts; n++ {
		lb, err := r.hub.Resolve(ctx, m.RoomID, m.IsHost)
		if err != nil {
			if ctx.Err() == nil {
				r.reply(s, types.NewJoinFailure(types.ReasonRoomNotFound))
			}
			return
		}

		err = lb.Join(ctx, s.memberID, name)
		switch {
		case err == nil:
			s.room = lb
			r.log.Debug("member seated", zap.String("member", s.memberID), zap.String("room", lb.Code()))
			return
		case errors.Is(err, lobby.ErrClosed):
			continue
		case ctx.Err() != nil:
			// The join may already be queued and seat the member after we
			// stop waiting. Keep the room so Disconnect sends a Leave behind it.
			s.room = lb
			return
		default:
			// Rejected; the lobby has already answered.
			return
		}
	}
	r.reply(s, types.NewJoinFailure(types.ReasonRoomNotFound))
}

func (r *Router) leave(s *Session, disconnect bool) {
	lb := s.Room()
	if lb == nil {
		if !disconnect {
			r.metrics.Dropped("no_room")
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	err := lb.Send(ctx, lobby.Leave{MemberID: s.memberID, Disconnect: disconnect})
	if err != nil && !errors.Is(err, lobby.ErrClosed) {
		// Still seated as far as we know; a later leave or Disconnect retries.
		r.log.Warn("leave not delivered", zap.String("member", s.memberID), zap.Error(err))
		return
	}
	s.room = nil
}

func (r *Router) forward(ctx context.Context, s *Session, cmd engine.Command) {
	lb := s.Room()
	if lb == nil {
		r.metrics.Dropped("no_room")
		return
	}
	cmd.MemberID = s.memberID
	if err := lb.Send(ctx, lobby.FromClient{Cmd: cmd}); err != nil {
		if errors.Is(err, lobby.ErrClosed) {
			s.room = nil
		}
		r.metrics.Dropped("no_room")
	}
}

func (r *Router) reply(s *Session, msg any) {
	if err := r.fan.Unicast(s.conn, msg); err != nil {
		r.log.Debug("reply not delivered", zap.String("member", s.memberID), zap.Error(err))
	}
}

func defaultName(id string) string {
	if len(id) > 4 {
		id = id[:4]
	}
	return "Player-" + id
}
