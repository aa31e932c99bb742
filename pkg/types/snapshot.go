package types

// Server -> Client

const (
	TypeJoinResult     = "joinResult"
	TypeRoomInfo       = "roomInfo"
	TypeGameAbort      = "gameAbort"
	TypeConfirmRequest = "confirmRequest"
	TypeConfirmUpdate  = "confirmUpdate"
	TypeGameStart      = "gameStart"
	TypeCharResult     = "charResult"
	TypeError          = "error"
	TypePong           = "pong"
)

// Reasons carried by joinResult and gameAbort.
const (
	ReasonRoomNotFound     = "RoomNotFound"
	ReasonRoomFull         = "RoomFull"
	ReasonSpectatorFull    = "SpectatorFull"
	ReasonAlreadyInRoom    = "AlreadyInRoom"
	ReasonDuplicateID      = "DuplicateId"
	ReasonNotEnoughPlayers = "NotEnoughPlayers"
)

type JoinResult struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
	ID      string `json:"id,omitempty"` // member id assigned to the connection
}

type PlayerInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	IsHost bool   `json:"isHost"`
}

type SpectatorInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoomInfo is the snapshot broadcast after membership or readiness changes.
type RoomInfo struct {
	Type           string          `json:"type"`
	RoomID         string          `json:"roomId"`
	Version        int             `json:"version"`
	Phase          string          `json:"phase"`
	HostID         string          `json:"hostId,omitempty"`
	Players        []PlayerInfo    `json:"players"`
	Spectators     []SpectatorInfo `json:"spectators"`
	PlayerCount    int             `json:"playerCount"`
	SpectatorCount int             `json:"spectatorCount"`
	MaxPlayers     int             `json:"maxPlayers"`
	MaxSpectators  int             `json:"maxSpectators"`
}

type GameAbort struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type ConfirmRequest struct {
	Type string `json:"type"`
}

type ConfirmUpdate struct {
	Type         string `json:"type"`
	ConfirmCount int    `json:"confirmCount"`
	PlayerCount  int    `json:"playerCount"`
}

type GameStart struct {
	Type    string       `json:"type"`
	Players []PlayerInfo `json:"players"`
}

type CharSelection struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	CharID string `json:"charId"`
}

type CharResult struct {
	Type    string          `json:"type"`
	Results []CharSelection `json:"results"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Pong struct {
	Type string `json:"type"`
}

func NewJoinResult(id string) JoinResult {
	return JoinResult{Type: TypeJoinResult, Success: true, ID: id}
}

func NewJoinFailure(reason string) JoinResult {
	return JoinResult{Type: TypeJoinResult, Success: false, Reason: reason}
}

func NewGameAbort(reason string) GameAbort {
	return GameAbort{Type: TypeGameAbort, Reason: reason}
}

func NewConfirmRequest() ConfirmRequest { return ConfirmRequest{Type: TypeConfirmRequest} }

func NewConfirmUpdate(count, total int) ConfirmUpdate {
	return ConfirmUpdate{Type: TypeConfirmUpdate, ConfirmCount: count, PlayerCount: total}
}

func NewGameStart(players []PlayerInfo) GameStart {
	return GameStart{Type: TypeGameStart, Players: players}
}

func NewCharResult(results []CharSelection) CharResult {
	return CharResult{Type: TypeCharResult, Results: results}
}

func NewError(msg string) Error { return Error{Type: TypeError, Message: msg} }

func NewPong() Pong { return Pong{Type: TypePong} }
