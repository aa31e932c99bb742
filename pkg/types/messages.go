package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Client -> Server
//
//   join:            roomId, id?, name?, isHost?
//   leave:           {}
//   ready:           ready
//   start:           {}
//   confirm:         {}
//   requestRoomInfo: {}
//   selectChar:      charId (string or number)
//   changeRole:      to ("player" | "spectator")
//   ping:            {}

const (
	TypeJoin            = "join"
	TypeLeave           = "leave"
	TypeReady           = "ready"
	TypeStart           = "start"
	TypeConfirm         = "confirm"
	TypeRequestRoomInfo = "requestRoomInfo"
	TypeSelectChar      = "selectChar"
	TypeChangeRole      = "changeRole"
	TypePing            = "ping"
)

const (
	RolePlayer    = "player"
	RoleSpectator = "spectator"
)

// MaxNameRunes caps display names after normalisation.
const MaxNameRunes = 24

var (
	// ErrProtocol wraps every decode failure. Callers drop the payload.
	ErrProtocol    = errors.New("protocol error")
	ErrUnknownType = fmt.Errorf("%w: unknown type", ErrProtocol)
)

// Inbound is one decoded client message. The concrete type is the discriminator.
type Inbound interface{ isInbound() }

type Join struct {
	RoomID string `json:"roomId"`
	ID     string `json:"id"`
	Name   string `json:"name"`
	IsHost bool   `json:"isHost"`
}

type Leave struct{}

type Ready struct {
	Ready bool `json:"ready"`
}

type Start struct{}

type Confirm struct{}

type RequestRoomInfo struct{}

type SelectChar struct {
	CharID string `json:"charId"`
}

type ChangeRole struct {
	To string `json:"to"`
}

type Ping struct{}

func (Join) isInbound()            {}
func (Leave) isInbound()           {}
func (Ready) isInbound()           {}
func (Start) isInbound()           {}
func (Confirm) isInbound()         {}
func (RequestRoomInfo) isInbound() {}
func (SelectChar) isInbound()      {}
func (ChangeRole) isInbound()      {}
func (Ping) isInbound()            {}

// Decode parses a text payload into its tagged variant and checks the
// fields that variant requires. Any failure wraps ErrProtocol.
func Decode(data []byte) (Inbound, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	switch env.Type {
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrProtocol)

	case TypeJoin:
		var m Join
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: join: %v", ErrProtocol, err)
		}
		// A blank roomId still decodes; the join is answered as RoomNotFound.
		m.RoomID = strings.TrimSpace(m.RoomID)
		m.ID = strings.TrimSpace(m.ID)
		m.Name = NormalizeName(m.Name)
		return m, nil

	case TypeLeave:
		return Leave{}, nil

	case TypeReady:
		var raw struct {
			Ready *bool `json:"ready"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: ready: %v", ErrProtocol, err)
		}
		if raw.Ready == nil {
			return nil, fmt.Errorf("%w: ready: missing ready", ErrProtocol)
		}
		return Ready{Ready: *raw.Ready}, nil

	case TypeStart:
		return Start{}, nil

	case TypeConfirm:
		return Confirm{}, nil

	case TypeRequestRoomInfo:
		return RequestRoomInfo{}, nil

	case TypeSelectChar:
		var raw struct {
			CharID json.RawMessage `json:"charId"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: selectChar: %v", ErrProtocol, err)
		}
		id, err := scalarID(raw.CharID)
		if err != nil {
			return nil, fmt.Errorf("%w: selectChar: %v", ErrProtocol, err)
		}
		return SelectChar{CharID: id}, nil

	case TypeChangeRole:
		var m ChangeRole
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: changeRole: %v", ErrProtocol, err)
		}
		switch m.To {
		case RolePlayer, RoleSpectator:
			return m, nil
		}
		return nil, fmt.Errorf("%w: changeRole: bad role %q", ErrProtocol, m.To)

	case TypePing:
		return Ping{}, nil

	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownType, env.Type)
	}
}

// scalarID accepts a JSON string or number and returns its text form.
func scalarID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", errors.New("missing charId")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return "", errors.New("empty charId")
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("charId must be a string or number")
	}
	return n.String(), nil
}

// NormalizeName trims, NFC-normalises, strips control characters and caps
// the result at MaxNameRunes.
func NormalizeName(s string) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > MaxNameRunes {
		s = strings.TrimSpace(string([]rune(s)[:MaxNameRunes]))
	}
	return s
}

// TypeOf returns the wire discriminator for m.
func TypeOf(m Inbound) string {
	switch m.(type) {
	case Join:
		return TypeJoin
	case Leave:
		return TypeLeave
	case Ready:
		return TypeReady
	case Start:
		return TypeStart
	case Confirm:
		return TypeConfirm
	case RequestRoomInfo:
		return TypeRequestRoomInfo
	case SelectChar:
		return TypeSelectChar
	case ChangeRole:
		return TypeChangeRole
	case Ping:
		return TypePing
	default:
		return ""
	}
}
