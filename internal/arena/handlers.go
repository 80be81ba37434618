package arena

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Cabritto-Corps/battlecore/internal/battle"
	"github.com/Cabritto-Corps/battlecore/pkg/types"
)

// BotDelay is how long the arena bot "thinks" before answering a move.
var BotDelay = 1200 * time.Millisecond

func StartBattle(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.StartBattleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "validation", "bad json")
			return
		}
		playerChar, ok := CharacterByID(req.CharacterID)
		if !ok {
			writeError(w, http.StatusBadRequest, "validation", "no such character")
			return
		}
		botChar := RandomBot()

		battleID := uuid.NewString()
		playerID := uuid.NewString()
		state := battle.State{
			BattleID: battleID,
			Player:   toCombatant(playerID, playerChar),
			Enemy:    toCombatant(botChar.ID, botChar),
			Turn:     battle.SidePlayer,
			Phase:    battle.PhaseActive,
		}

		reply := make(chan *Room, 1)
		h.Inbox() <- CreateBattle{State: state, BotDelay: BotDelay, Reply: reply}
		if <-reply == nil {
			writeError(w, http.StatusInternalServerError, "internal", "failed to create battle")
			return
		}

		writeJSON(w, http.StatusCreated, types.StartBattleResponse{
			BattleID:        battleID,
			PlayerID:        playerID,
			PlayerCharacter: playerChar,
			BotCharacter:    botChar,
			Turn:            playerID,
		})
	}
}

func SubmitAttack(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, ok := lookupRoom(h, w, r)
		if !ok {
			return
		}
		var req types.AttackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "validation", "bad json")
			return
		}

		reply := make(chan AttackReply, 1)
		room.Inbox() <- Attack{
			PlayerID: r.Header.Get("X-Player-ID"),
			MoveID:   req.MoveID,
			Reply:    reply,
		}
		res := <-reply
		if res.Status != http.StatusOK {
			writeJSON(w, res.Status, res.Err)
			return
		}
		writeJSON(w, http.StatusOK, res.Resp)
	}
}

func BattleSnapshot(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, ok := lookupRoom(h, w, r)
		if !ok {
			return
		}
		reply := make(chan types.SnapshotResponse, 1)
		room.Inbox() <- GetSnapshot{Reply: reply}
		writeJSON(w, http.StatusOK, <-reply)
	}
}

func EndBattle(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.EndBattleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "validation", "bad json")
			return
		}
		// The report is acknowledged even for unknown battles: ending
		// must never block a client from leaving.
		h.Inbox() <- RemoveBattle{ID: chi.URLParam(r, "battleID")}
		w.WriteHeader(http.StatusNoContent)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func lookupRoom(h *Hub, w http.ResponseWriter, r *http.Request) (*Room, bool) {
	reply := make(chan *Room, 1)
	h.Inbox() <- GetBattle{ID: chi.URLParam(r, "battleID"), Reply: reply}
	room := <-reply
	if room == nil {
		writeError(w, http.StatusNotFound, "not_found", "battle not found")
		return nil, false
	}
	return room, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, types.ErrorResponse{Code: code, Message: message})
}

func toCombatant(userID string, ch types.Character) battle.Combatant {
	moves := make([]battle.Move, 0, len(ch.Moves))
	for _, m := range ch.Moves {
		moves = append(moves, battle.Move{ID: m.ID, Name: m.Name, Power: m.Power})
	}
	return battle.Combatant{
		ID:    userID,
		Name:  ch.Name,
		HP:    ch.HP,
		MaxHP: ch.MaxHP,
		Stats: battle.Stats{Strength: ch.Strength, Defense: ch.Defense},
		Moves: moves,
	}
}
