package engine

import (
	"errors"

	"github.com/DoyleJ11/lobby-server/pkg/types"
)

// AbortNotEnoughPlayers is the gameAbort reason for an abandoned room.
const AbortNotEnoughPlayers = types.ReasonNotEnoughPlayers

func NewState(roomID string, limits Limits) State {
	return State{
		RoomID:        roomID,
		Phase:         PhaseWaiting,
		Limits:        limits,
		Members:       []Member{},
		Confirmations: map[string]bool{},
		Selections:    map[string]string{},
	}
}

// Clone deep-copies the mutable parts of s.
func (s State) Clone() State {
	n := s
	n.Members = append([]Member(nil), s.Members...)
	n.Confirmations = make(map[string]bool, len(s.Confirmations))
	for k, v := range s.Confirmations {
		n.Confirmations[k] = v
	}
	n.Selections = make(map[string]string, len(s.Selections))
	for k, v := range s.Selections {
		n.Selections[k] = v
	}
	return n
}

func (s State) indexOf(id string) int {
	for i, m := range s.Members {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (s State) Member(id string) (Member, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.Members[i], true
	}
	return Member{}, false
}

func (s State) MemberIDs() []string {
	ids := make([]string, 0, len(s.Members))
	for _, m := range s.Members {
		ids = append(ids, m.ID)
	}
	return ids
}

// Players returns the player members in join order.
func (s State) Players() []Member { return s.withRole(RolePlayer) }

func (s State) Spectators() []Member { return s.withRole(RoleSpectator) }

func (s State) withRole(r Role) []Member {
	out := []Member{}
	for _, m := range s.Members {
		if m.Role == r {
			out = append(out, m)
		}
	}
	return out
}

func (s State) PlayerCount() int    { return s.count(RolePlayer) }
func (s State) SpectatorCount() int { return s.count(RoleSpectator) }

func (s State) count(r Role) int {
	n := 0
	for _, m := range s.Members {
		if m.Role == r {
			n++
		}
	}
	return n
}

// SelectionsComplete reports whether every current player has a pick.
func (s State) SelectionsComplete() bool {
	players := 0
	for _, m := range s.Members {
		if m.Role != RolePlayer {
			continue
		}
		players++
		if _, ok := s.Selections[m.ID]; !ok {
			return false
		}
	}
	return players > 0
}

// Reason maps a join rejection to its wire reason. Errors with no reply
// defined map to "".
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrRoomFull):
		return types.ReasonRoomFull
	case errors.Is(err, ErrSpectatorFull):
		return types.ReasonSpectatorFull
	case errors.Is(err, ErrAlreadyMember):
		return types.ReasonAlreadyInRoom
	case errors.Is(err, ErrRoomClosed):
		return types.ReasonRoomNotFound
	default:
		return ""
	}
}
