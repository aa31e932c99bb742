package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lobby-server/internal/hub"
	"github.com/DoyleJ11/lobby-server/internal/lobby"
)

const (
	codeLength   = 6
	codeAttempts = 16
	viewTimeout  = 2 * time.Second
)

var errNoFreeCode = errors.New("no free room code")

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, codeLength)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

// freeCode returns a code no live room uses. The room itself is only created
// when a host joins with it.
func freeCode(ctx context.Context, h *hub.Hub, log *zap.Logger) (string, error) {
	for n := 0; n < codeAttempts; n++ {
		c, err := GenerateCode()
		if err != nil {
			return "", err
		}
		_, err = h.Get(ctx, c)
		if errors.Is(err, hub.ErrRoomNotFound) {
			return c, nil
		}
		if err != nil {
			return "", err
		}
		log.Debug("collision on code, regenerating", zap.String("code", c))
	}
	return "", errNoFreeCode
}

func CreateRoom(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, err := freeCode(r.Context(), h, log)
		if err != nil {
			log.Error("failed to generate code", zap.Error(err))
			http.Error(w, "failed to generate code", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, struct {
			RoomID string `json:"roomId"`
		}{RoomID: code})
	}
}

type roomSummary struct {
	RoomID         string `json:"roomId"`
	Phase          string `json:"phase"`
	Version        int    `json:"version"`
	PlayerCount    int    `json:"playerCount"`
	SpectatorCount int    `json:"spectatorCount"`
	MaxPlayers     int    `json:"maxPlayers"`
	MaxSpectators  int    `json:"maxSpectators"`
}

func ListRooms(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), viewTimeout)
		defer cancel()

		lobbies, err := h.List(ctx)
		if err != nil {
			http.Error(w, "room registry unavailable", http.StatusServiceUnavailable)
			return
		}

		out := make([]roomSummary, 0, len(lobbies))
		for _, lb := range lobbies {
			v, err := lb.View(ctx)
			if err != nil {
				// Destroyed since it was listed.
				continue
			}
			out = append(out, roomSummary{
				RoomID:         v.Info.RoomID,
				Phase:          v.Info.Phase,
				Version:        v.Version,
				PlayerCount:    v.Info.PlayerCount,
				SpectatorCount: v.Info.SpectatorCount,
				MaxPlayers:     v.Info.MaxPlayers,
				MaxSpectators:  v.Info.MaxSpectators,
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
		writeJSON(w, http.StatusOK, out)
	}
}

func GetRoom(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), viewTimeout)
		defer cancel()

		lb, err := h.Get(ctx, chi.URLParam(r, "roomId"))
		if err != nil {
			notFoundOr503(w, err)
			return
		}
		v, err := lb.View(ctx)
		if err != nil {
			notFoundOr503(w, err)
			return
		}
		writeJSON(w, http.StatusOK, v.Info)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func notFoundOr503(w http.ResponseWriter, err error) {
	if errors.Is(err, hub.ErrRoomNotFound) || errors.Is(err, lobby.ErrClosed) {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	http.Error(w, "room registry unavailable", http.StatusServiceUnavailable)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
