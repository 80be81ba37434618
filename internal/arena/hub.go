// Package arena is a local authoritative battle backend: it serves the
// gateway HTTP contract and fans battle events out over the realtime
// websocket endpoint, so the client core's full dual-channel loop can
// run without the production backend.
package arena

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Cabritto-Corps/battlecore/internal/battle"
)

type HubMsg interface{ isHubMsg() }

type CreateBattle struct {
	State    battle.State
	BotDelay time.Duration
	Reply    chan *Room
}

type GetBattle struct {
	ID    string
	Reply chan *Room
}

type RemoveBattle struct {
	ID string
}

type ShutdownHub struct{}

func (CreateBattle) isHubMsg() {}
func (GetBattle) isHubMsg()    {}
func (RemoveBattle) isHubMsg() {}
func (ShutdownHub) isHubMsg()  {}

// Hub owns the set of live battles. All access goes through its inbox.
type Hub struct {
	inbox   chan HubMsg
	battles map[string]*Room
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		battles: make(map[string]*Room),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateBattle:
				if room := h.battles[msg.State.BattleID]; room != nil {
					msg.Reply <- room
					break
				}
				room := NewRoom(h.ctx, msg.State, msg.BotDelay, h.log)
				h.battles[msg.State.BattleID] = room
				msg.Reply <- room

			case GetBattle:
				msg.Reply <- h.battles[msg.ID] // may be nil

			case RemoveBattle:
				if room := h.battles[msg.ID]; room != nil {
					room.Inbox() <- Shutdown{}
					delete(h.battles, msg.ID)
				}

			case ShutdownHub:
				for _, room := range h.battles {
					room.Inbox() <- Shutdown{}
				}
				clear(h.battles)
				h.cancel()
			}
		}
	}
}
