package arena

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Cabritto-Corps/battlecore/internal/battle"
	"github.com/Cabritto-Corps/battlecore/pkg/types"
)

type RoomMsg interface{ isRoomMsg() }

// Join registers a realtime subscriber for this battle's channel.
type Join struct {
	ClientID string
	Outbox   chan types.Envelope
}

type Leave struct{ ClientID string }

// Attack is the player's move, carried in from the HTTP handler.
type Attack struct {
	PlayerID string
	MoveID   string
	Reply    chan AttackReply
}

type GetSnapshot struct {
	Reply chan types.SnapshotResponse
}

type Shutdown struct{}

type botActMsg struct{ gen int }

func (Join) isRoomMsg()        {}
func (Leave) isRoomMsg()       {}
func (Attack) isRoomMsg()      {}
func (GetSnapshot) isRoomMsg() {}
func (Shutdown) isRoomMsg()    {}
func (botActMsg) isRoomMsg()   {}

type AttackReply struct {
	Status int
	Resp   types.AttackResponse
	Err    types.ErrorResponse
}

// Room is one authoritative battle. Like the client controller it is a
// single-goroutine actor; the resolver here is the server-side replica
// of the damage formula.
type Room struct {
	inbox       chan RoomMsg
	state       battle.State
	resolver    *battle.Resolver
	botDelay    time.Duration
	gen         int
	botTimer    *time.Timer
	subscribers map[string]chan types.Envelope
	log         *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewRoom(parent context.Context, initial battle.State, botDelay time.Duration, log *zap.Logger) *Room {
	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		inbox:       make(chan RoomMsg, 64),
		state:       initial,
		resolver:    battle.NewResolver(time.Now().UnixNano()),
		botDelay:    botDelay,
		subscribers: make(map[string]chan types.Envelope),
		log:         log.With(zap.String("battle_id", initial.BattleID)),
		ctx:         ctx,
		cancel:      cancel,
	}
	go r.loop()
	return r
}

func (r *Room) Inbox() chan<- RoomMsg { return r.inbox }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.subscribers[msg.ClientID] = msg.Outbox

			case Leave:
				delete(r.subscribers, msg.ClientID)

			case Attack:
				msg.Reply <- r.handleAttack(msg)

			case GetSnapshot:
				msg.Reply <- types.SnapshotResponse{
					BattleLog: r.state.Log,
					Turn:      r.state.Combatant(r.state.Turn).ID,
					WinnerID:  r.winnerID(),
				}

			case botActMsg:
				r.handleBotAct(msg.gen)

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) handleAttack(msg Attack) AttackReply {
	if r.state.Phase == battle.PhaseEnded {
		return rejected(http.StatusConflict, "battle_over", "battle already over")
	}
	if r.state.Combatant(r.state.Turn).ID != msg.PlayerID {
		return rejected(http.StatusConflict, "not_your_turn", "not your turn")
	}
	side, ok := r.state.SideOf(msg.PlayerID)
	if !ok {
		return rejected(http.StatusBadRequest, "validation", "unknown combatant")
	}
	move, ok := r.state.Combatant(side).MoveByID(msg.MoveID)
	if !ok {
		return rejected(http.StatusBadRequest, "validation", "unknown move")
	}

	out := r.resolver.Resolve(r.state, side, move)
	_, next, err := battle.Apply(r.state, out)
	if err != nil {
		return rejected(http.StatusConflict, "battle_over", err.Error())
	}
	r.state = next

	resp := r.attackResponse(side, move.Name, out)
	r.broadcastAttack(side, resp)

	if r.state.Phase == battle.PhaseActive && r.state.Turn == battle.SideEnemy {
		r.armBot()
	}
	return AttackReply{Status: http.StatusOK, Resp: resp}
}

// handleBotAct plays the bot's counterattack and pushes it to
// subscribers; the opponent's move only travels the realtime channel
// (or a poll), exactly like production.
func (r *Room) handleBotAct(gen int) {
	if gen != r.gen || r.state.Phase != battle.PhaseActive || r.state.Turn != battle.SideEnemy {
		return
	}
	move, ok := r.resolver.PickMove(r.state.Enemy)
	if !ok {
		return
	}
	out := r.resolver.Resolve(r.state, battle.SideEnemy, move)
	_, next, err := battle.Apply(r.state, out)
	if err != nil {
		r.log.Warn("bot action rejected", zap.Error(err))
		return
	}
	r.state = next

	r.broadcastAttack(battle.SideEnemy, r.attackResponse(battle.SideEnemy, move.Name, out))
	if r.state.Phase == battle.PhaseEnded {
		r.broadcast(types.EventBattleEnd, types.BattleEndEvent{WinnerID: r.winnerID()})
	}
}

func (r *Room) armBot() {
	r.gen++
	gen := r.gen
	r.botTimer = time.AfterFunc(r.botDelay, func() {
		select {
		case r.inbox <- botActMsg{gen: gen}:
		case <-r.ctx.Done():
		}
	})
}

func (r *Room) attackResponse(attacker battle.Side, moveName string, out battle.Outcome) types.AttackResponse {
	return types.AttackResponse{
		Damage:      out.Damage,
		Heal:        out.Heal,
		TargetHP:    r.state.Combatant(attacker.Opponent()).HP,
		AttackerHP:  r.state.Combatant(attacker).HP,
		Turn:        r.state.Combatant(r.state.Turn).ID,
		BattleEnded: r.state.Phase == battle.PhaseEnded,
		WinnerID:    r.winnerID(),
		MoveName:    moveName,
	}
}

func (r *Room) broadcastAttack(attacker battle.Side, resp types.AttackResponse) {
	r.broadcast(types.EventBattleAttack, types.AttackEvent{
		AttackerID:  r.state.Combatant(attacker).ID,
		MoveName:    resp.MoveName,
		Damage:      resp.Damage,
		Heal:        resp.Heal,
		TargetHP:    resp.TargetHP,
		AttackerHP:  resp.AttackerHP,
		Turn:        resp.Turn,
		BattleEnded: resp.BattleEnded,
		WinnerID:    resp.WinnerID,
	})
}

func (r *Room) broadcast(evType types.EventType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.log.Error("marshal broadcast", zap.Error(err))
		return
	}
	env := types.Envelope{Type: evType, BattleID: r.state.BattleID, Data: data}
	for id, ch := range r.subscribers {
		select {
		case ch <- env:
		default:
			// Slow subscriber: drop them rather than stall the room.
			// The outbox belongs to the connection handler and may be
			// re-joined later, so it is never closed from here.
			delete(r.subscribers, id)
			r.log.Debug("dropped slow subscriber", zap.String("client_id", id))
		}
	}
}

func (r *Room) winnerID() string {
	if r.state.Phase != battle.PhaseEnded {
		return ""
	}
	return r.state.Combatant(r.state.Winner).ID
}

func (r *Room) shutdown() {
	if r.botTimer != nil {
		r.botTimer.Stop()
	}
	clear(r.subscribers)
	r.cancel()
}

func rejected(status int, code, message string) AttackReply {
	return AttackReply{Status: status, Err: types.ErrorResponse{Code: code, Message: message}}
}
