package engine

import (
	"errors"
	"slices"
)

var ErrRoomClosed = errors.New("room closed")
var ErrAlreadyMember = errors.New("already a member")
var ErrUnknownMember = errors.New("unknown member")
var ErrRoomFull = errors.New("room full")
var ErrSpectatorFull = errors.New("spectator seats full")
var ErrWrongPhase = errors.New("wrong phase")
var ErrNotHost = errors.New("not the host")
var ErrNotPlayer = errors.New("not a player")
var ErrNotEnoughPlayers = errors.New("not enough players")
var ErrPlayersNotReady = errors.New("players not ready")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Phase string

const (
	PhaseWaiting    Phase = "waiting"
	PhaseConfirming Phase = "confirming"
	PhaseActive     Phase = "active"
)

type Role string

const (
	RolePlayer    Role = "player"
	RoleSpectator Role = "spectator"
)

type Member struct {
	ID    string
	Name  string
	Role  Role
	Ready bool
}

type Limits struct {
	MaxPlayers    int
	MaxSpectators int
	MinPlayers    int
}

// State is one room. Members is kept in join order; HostID is only ever
// written by ElectHost. Confirmations is meaningful in PhaseConfirming and
// Selections in PhaseActive.
type State struct {
	RoomID        string
	Phase         Phase
	Limits        Limits
	Members       []Member
	HostID        string
	Confirmations map[string]bool
	Selections    map[string]string
	Closed        bool
}

type CommandType string

const (
	CmdJoin            CommandType = "Join"
	CmdLeave           CommandType = "Leave"
	CmdDisconnect      CommandType = "Disconnect"
	CmdSetReady        CommandType = "SetReady"
	CmdRequestStart    CommandType = "RequestStart"
	CmdConfirmStart    CommandType = "ConfirmStart"
	CmdChangeRole      CommandType = "ChangeRole"
	CmdSelectCharacter CommandType = "SelectCharacter"
	CmdRoomInfo        CommandType = "RoomInfo"
)

/*
	CmdJoin            -> EvtJoined -> EvtSnapshot
	CmdLeave           -> EvtSnapshot | EvtGameAbort -> EvtRoomClosed | EvtRoomClosed
	CmdDisconnect      -> same as CmdLeave
	CmdSetReady        -> EvtSnapshot
	CmdRequestStart    -> EvtConfirmRequest
	CmdConfirmStart    -> EvtConfirmUpdate [-> EvtGameStart]
	CmdChangeRole      -> EvtSnapshot
	CmdSelectCharacter -> [EvtCharResult]
	CmdRoomInfo        -> EvtSnapshot (to the requester only)
*/

type Command struct {
	Type        CommandType
	MemberID    string
	Name        string
	Ready       bool
	Role        Role
	CharacterID string
}

type EventType string

const (
	EvtJoined         EventType = "Joined"
	EvtSnapshot       EventType = "Snapshot"
	EvtGameAbort      EventType = "GameAbort"
	EvtConfirmRequest EventType = "ConfirmRequest"
	EvtConfirmUpdate  EventType = "ConfirmUpdate"
	EvtGameStart      EventType = "GameStart"
	EvtCharResult     EventType = "CharResult"
	EvtRoomClosed     EventType = "RoomClosed"
)

// Event is an outcome of Apply. To == nil addresses every member of the
// resulting state.
type Event struct {
	Type     EventType
	To       []string
	MemberID string
	Reason   string
	Count    int
	Total    int
}

// Apply runs cmd against s. On error s is returned untouched and no events
// are produced; callers treat that as "ignored".
func Apply(s State, cmd Command) ([]Event, State, error) {
	if s.Closed {
		return nil, s, ErrRoomClosed
	}

	n := s.Clone()
	var (
		events []Event
		err    error
	)

	switch cmd.Type {
	case CmdJoin:
		events, err = n.join(cmd.MemberID, cmd.Name)
	case CmdLeave, CmdDisconnect:
		events, err = n.remove(cmd.MemberID)
	case CmdSetReady:
		events, err = n.setReady(cmd.MemberID, cmd.Ready)
	case CmdRequestStart:
		events, err = n.requestStart(cmd.MemberID)
	case CmdConfirmStart:
		events, err = n.confirmStart(cmd.MemberID)
	case CmdChangeRole:
		events, err = n.changeRole(cmd.MemberID, cmd.Role)
	case CmdSelectCharacter:
		events, err = n.selectCharacter(cmd.MemberID, cmd.CharacterID)
	case CmdRoomInfo:
		if _, ok := n.Member(cmd.MemberID); !ok {
			return nil, s, ErrUnknownMember
		}
		return []Event{{Type: EvtSnapshot, To: []string{cmd.MemberID}}}, s, nil
	default:
		return nil, s, ErrUnsupportedCommand
	}

	if err != nil {
		return nil, s, err
	}
	return events, n, nil
}

func (s *State) join(id, name string) ([]Event, error) {
	if id == "" {
		return nil, ErrUnknownMember
	}
	if s.indexOf(id) >= 0 {
		return nil, ErrAlreadyMember
	}

	var role Role
	switch {
	case s.Phase == PhaseWaiting && s.PlayerCount() < s.Limits.MaxPlayers:
		role = RolePlayer
	case s.SpectatorCount() < s.Limits.MaxSpectators:
		role = RoleSpectator
	case s.Limits.MaxSpectators == 0:
		return nil, ErrRoomFull
	default:
		return nil, ErrSpectatorFull
	}

	s.Members = append(s.Members, Member{ID: id, Name: name, Role: role})
	s.HostID = ElectHost(s.Members, s.HostID)

	return []Event{
		{Type: EvtJoined, To: []string{id}, MemberID: id},
		{Type: EvtSnapshot},
	}, nil
}

func (s *State) remove(id string) ([]Event, error) {
	i := s.indexOf(id)
	if i < 0 {
		return nil, ErrUnknownMember
	}
	gone := s.Members[i]
	s.Members = slices.Delete(s.Members, i, i+1)
	delete(s.Confirmations, id)
	delete(s.Selections, id)
	s.HostID = ElectHost(s.Members, s.HostID)

	if len(s.Members) == 0 {
		s.Closed = true
		return []Event{{Type: EvtRoomClosed}}, nil
	}

	// Abandonment: losing a player below the viable count ends the room.
	if gone.Role == RolePlayer && s.PlayerCount() < s.Limits.MinPlayers {
		s.Closed = true
		return []Event{
			{Type: EvtGameAbort, Reason: AbortNotEnoughPlayers},
			{Type: EvtRoomClosed},
		}, nil
	}

	if s.Phase == PhaseConfirming {
		s.setPhase(PhaseWaiting)
	}
	return []Event{{Type: EvtSnapshot}}, nil
}

func (s *State) setReady(id string, ready bool) ([]Event, error) {
	i := s.indexOf(id)
	if i < 0 {
		return nil, ErrUnknownMember
	}
	if s.Members[i].Role != RolePlayer {
		return nil, ErrNotPlayer
	}
	s.Members[i].Ready = ready
	return []Event{{Type: EvtSnapshot}}, nil
}

func (s *State) requestStart(id string) ([]Event, error) {
	if id == "" || id != s.HostID {
		return nil, ErrNotHost
	}
	if s.Phase != PhaseWaiting {
		return nil, ErrWrongPhase
	}
	if s.PlayerCount() < s.Limits.MinPlayers {
		return nil, ErrNotEnoughPlayers
	}
	for _, m := range s.Members {
		if m.Role == RolePlayer && m.ID != s.HostID && !m.Ready {
			return nil, ErrPlayersNotReady
		}
	}

	s.setPhase(PhaseConfirming)
	return []Event{{Type: EvtConfirmRequest}}, nil
}

func (s *State) confirmStart(id string) ([]Event, error) {
	if s.Phase != PhaseConfirming {
		return nil, ErrWrongPhase
	}
	m, ok := s.Member(id)
	if !ok {
		return nil, ErrUnknownMember
	}
	if m.Role != RolePlayer {
		return nil, ErrNotPlayer
	}

	s.Confirmations[id] = true
	count, total := len(s.Confirmations), s.PlayerCount()
	events := []Event{{Type: EvtConfirmUpdate, Count: count, Total: total}}

	if count >= total {
		s.setPhase(PhaseActive)
		clear(s.Selections)
		events = append(events, Event{Type: EvtGameStart})
	}
	return events, nil
}

func (s *State) changeRole(id string, to Role) ([]Event, error) {
	if s.Phase != PhaseWaiting {
		return nil, ErrWrongPhase
	}
	if to != RolePlayer && to != RoleSpectator {
		return nil, ErrUnsupportedCommand
	}
	i := s.indexOf(id)
	if i < 0 {
		return nil, ErrUnknownMember
	}
	m := s.Members[i]
	s.Members = slices.Delete(s.Members, i, i+1)

	role := RoleSpectator
	switch {
	case to == RolePlayer && s.PlayerCount() < s.Limits.MaxPlayers:
		role = RolePlayer
	case s.SpectatorCount() >= s.Limits.MaxSpectators:
		// Only reachable when a player asks to watch and the gallery is full.
		return nil, ErrSpectatorFull
	}

	m.Role = role
	m.Ready = false
	s.Members = append(s.Members, m)
	s.HostID = ElectHost(s.Members, s.HostID)
	return []Event{{Type: EvtSnapshot}}, nil
}

func (s *State) selectCharacter(id, charID string) ([]Event, error) {
	if s.Phase != PhaseActive {
		return nil, ErrWrongPhase
	}
	m, ok := s.Member(id)
	if !ok {
		return nil, ErrUnknownMember
	}
	if m.Role != RolePlayer {
		return nil, ErrNotPlayer
	}

	s.Selections[id] = charID
	if !s.SelectionsComplete() {
		return nil, nil
	}
	return []Event{{Type: EvtCharResult}}, nil
}

func (s *State) setPhase(p Phase) {
	s.Phase = p
	clear(s.Confirmations)
}
