package lobby

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lobby-server/internal/engine"
	"github.com/DoyleJ11/lobby-server/internal/fanout"
	"github.com/DoyleJ11/lobby-server/internal/metrics"
	"github.com/DoyleJ11/lobby-server/pkg/types"
)

// ErrClosed is returned for messages sent to a destroyed lobby.
var ErrClosed = errors.New("lobby closed")

type Msg interface{ isLobbyMsg() }

type FromClient struct {
	Cmd engine.Command
}

func (FromClient) isLobbyMsg() {}

type Join struct {
	MemberID string
	Name     string
	Reply    chan error // buffered; nil error means the member is seated
}

func (Join) isLobbyMsg() {}

// Leave removes a member. Disconnect marks a transport close rather than an
// explicit leave; the effect is the same.
type Leave struct {
	MemberID   string
	Disconnect bool
}

func (Leave) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type View struct {
	Version    int
	NumMembers int
	State      engine.State
	Info       types.RoomInfo
}

type Config struct {
	Limits      engine.Limits
	IdleTimeout time.Duration // destroy if still empty after this; <= 0 disables
	Fanout      *fanout.Fanout
	Log         *zap.Logger
	Metrics     *metrics.Metrics
	OnClose     func(*Lobby) // called from the lobby goroutine after self-destruction
}

// Lobby owns one room. Every operation on the room runs on its goroutine,
// one message at a time.
type Lobby struct {
	code    string
	inbox   chan Msg
	state   engine.State
	version int
	fan     *fanout.Fanout
	log     *zap.Logger
	metrics *metrics.Metrics
	onClose func(*Lobby)
	idle    *time.Timer
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewLobby(parent context.Context, code string, cfg Config) *Lobby {
	ctx, cancel := context.WithCancel(parent)

	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	l := &Lobby{
		code:    code,
		inbox:   make(chan Msg, 64), // Small buffer
		state:   engine.NewState(code, cfg.Limits),
		fan:     cfg.Fanout,
		log:     log.Named("lobby").With(zap.String("room", code)),
		metrics: cfg.Metrics,
		onClose: cfg.OnClose,
		ctx:     ctx,
		cancel:  cancel,
	}
	if cfg.IdleTimeout > 0 {
		l.idle = time.NewTimer(cfg.IdleTimeout)
	}

	go l.loop()
	return l
}

func (l *Lobby) Code() string { return l.code }

// Done is closed once the lobby stops processing messages.
func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }

func (l *Lobby) Closed() bool {
	select {
	case <-l.ctx.Done():
		return true
	default:
		return false
	}
}

// Expose the inbox so tests or the router can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Send enqueues msg unless the lobby is gone or ctx ends first.
func (l *Lobby) Send(ctx context.Context, msg Msg) error {
	if l.Closed() {
		return ErrClosed
	}
	select {
	case l.inbox <- msg:
		return nil
	case <-l.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join seats a member and waits for the outcome. Engine rejections have
// already been answered with a joinResult when they are returned here.
func (l *Lobby) Join(ctx context.Context, memberID, name string) error {
	reply := make(chan error, 1)
	if err := l.Send(ctx, Join{MemberID: memberID, Name: name, Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-l.ctx.Done():
		select {
		case err := <-reply:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// View returns a consistent copy of the room.
func (l *Lobby) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := l.Send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-l.ctx.Done():
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (l *Lobby) loop() {
	var idle <-chan time.Time
	if l.idle != nil {
		idle = l.idle.C
		defer l.idle.Stop()
	}

	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case <-idle:
			idle = nil
			if len(l.state.Members) == 0 {
				l.log.Info("room idle, destroying")
				l.destroy()
				return
			}

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				events, next, err := engine.Apply(l.state, engine.Command{
					Type: engine.CmdJoin, MemberID: msg.MemberID, Name: msg.Name,
				})
				if err != nil {
					reason := engine.Reason(err)
					if reason == "" {
						reason = types.ReasonRoomNotFound
					}
					l.send(types.NewJoinFailure(reason), []string{msg.MemberID})
					l.log.Debug("join rejected", zap.String("member", msg.MemberID), zap.Error(err))
					answer(msg.Reply, err)
					break
				}
				l.commit(next, events, true)
				answer(msg.Reply, nil)

			case Leave:
				typ := engine.CmdLeave
				if msg.Disconnect {
					typ = engine.CmdDisconnect
				}
				l.apply(engine.Command{Type: typ, MemberID: msg.MemberID})

			case FromClient:
				l.apply(msg.Cmd)

			case GetState:
				msg.Reply <- View{
					Version:    l.version,
					NumMembers: len(l.state.Members),
					State:      l.state.Clone(),
					Info:       l.roomInfo(),
				}

			case Shutdown:
				l.shutdown()
				return
			}

			if l.state.Closed {
				l.destroy()
				return
			}
		}
	}
}

func answer(ch chan error, err error) {
	if ch == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}

func (l *Lobby) apply(cmd engine.Command) {
	events, next, err := engine.Apply(l.state, cmd)
	if err != nil {
		// Validation failures have no reply; the next snapshot is authoritative.
		l.log.Debug("command ignored",
			zap.String("cmd", string(cmd.Type)),
			zap.String("member", cmd.MemberID),
			zap.Error(err))
		return
	}
	l.commit(next, events, cmd.Type != engine.CmdRoomInfo)
}

func (l *Lobby) commit(next engine.State, events []engine.Event, bump bool) {
	l.state = next
	if bump {
		l.version++
	}
	if l.idle != nil && len(l.state.Members) > 0 {
		l.idle.Stop()
	}

	for _, ev := range events {
		to := ev.To
		if to == nil {
			to = l.state.MemberIDs()
		}

		switch ev.Type {
		case engine.EvtJoined:
			l.send(types.NewJoinResult(ev.MemberID), to)
			l.log.Debug("member joined", zap.String("member", ev.MemberID))

		case engine.EvtSnapshot:
			l.send(l.roomInfo(), to)

		case engine.EvtGameAbort:
			l.send(types.NewGameAbort(ev.Reason), to)
			l.metrics.RoomAborted()
			l.log.Info("room aborted", zap.String("reason", ev.Reason))

		case engine.EvtConfirmRequest:
			l.send(types.NewConfirmRequest(), to)

		case engine.EvtConfirmUpdate:
			l.send(types.NewConfirmUpdate(ev.Count, ev.Total), to)

		case engine.EvtGameStart:
			l.send(types.NewGameStart(l.playerInfos()), to)
			l.metrics.MatchStarted()
			l.log.Info("match started", zap.Int("players", l.state.PlayerCount()))

		case engine.EvtCharResult:
			l.send(types.NewCharResult(l.selections()), to)

		case engine.EvtRoomClosed:
			// handled by the loop once delivery is done
		}
	}
}

func (l *Lobby) send(msg any, to []string) {
	if l.fan == nil || len(to) == 0 {
		return
	}
	_, _ = l.fan.Broadcast(msg, to)
}

// destroy ends a lobby whose room no longer exists.
func (l *Lobby) destroy() {
	l.state.Closed = true
	l.cancel()
	l.log.Info("room destroyed", zap.Int("version", l.version))
	if l.onClose != nil {
		l.onClose(l)
	}
}

// shutdown is the server-initiated stop.
func (l *Lobby) shutdown() {
	l.send(types.NewError("server shutting down"), l.state.MemberIDs())
	l.state.Closed = true
	l.cancel()
}

func (l *Lobby) roomInfo() types.RoomInfo {
	spectators := []types.SpectatorInfo{}
	for _, m := range l.state.Spectators() {
		spectators = append(spectators, types.SpectatorInfo{ID: m.ID, Name: m.Name})
	}
	players := l.playerInfos()
	return types.RoomInfo{
		Type:           types.TypeRoomInfo,
		RoomID:         l.code,
		Version:        l.version,
		Phase:          string(l.state.Phase),
		HostID:         l.state.HostID,
		Players:        players,
		Spectators:     spectators,
		PlayerCount:    len(players),
		SpectatorCount: len(spectators),
		MaxPlayers:     l.state.Limits.MaxPlayers,
		MaxSpectators:  l.state.Limits.MaxSpectators,
	}
}

func (l *Lobby) playerInfos() []types.PlayerInfo {
	players := []types.PlayerInfo{}
	for _, m := range l.state.Players() {
		players = append(players, types.PlayerInfo{
			ID: m.ID, Name: m.Name, Ready: m.Ready, IsHost: m.ID == l.state.HostID,
		})
	}
	return players
}

func (l *Lobby) selections() []types.CharSelection {
	out := []types.CharSelection{}
	for _, m := range l.state.Players() {
		if c, ok := l.state.Selections[m.ID]; ok {
			out = append(out, types.CharSelection{ID: m.ID, Name: m.Name, CharID: c})
		}
	}
	return out
}
