package arena

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/Cabritto-Corps/battlecore/pkg/types"
)

// RealtimeHandler is the pub/sub endpoint. Clients send
// subscribe/unsubscribe control frames for battle channels and receive
// envelope JSON for everything published on them.
func RealtimeHandler(h *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan types.Envelope, 8)
		clientID := uuid.NewString()

		// One battle subscription per client; a new subscribe replaces
		// the previous one.
		var current *Room
		leave := func() {
			if current != nil {
				current.Inbox() <- Leave{ClientID: clientID}
				current = nil
			}
		}
		defer leave()

		// The outbox is owned by this handler; rooms only send on it and
		// never close it. The writer exits with the connection.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for {
				select {
				case env := <-out:
					payload, _ := json.Marshal(env)
					ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
					_ = conn.Write(ctx, websocket.MessageText, payload)
					cancel()
				case <-writeCtx.Done():
					return
				}
			}
		}()

		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				return
			}

			var req types.SubscribeRequest
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}
			battleID, ok := strings.CutPrefix(req.Channel, "battle:")
			if !ok {
				continue
			}

			switch req.Action {
			case "subscribe":
				reply := make(chan *Room, 1)
				h.Inbox() <- GetBattle{ID: battleID, Reply: reply}
				room := <-reply
				if room == nil {
					continue
				}
				leave()
				room.Inbox() <- Join{ClientID: clientID, Outbox: out}
				current = room

			case "unsubscribe":
				leave()
			}
		}
	}
}
