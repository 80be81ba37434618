package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/Cabritto-Corps/battlecore/pkg/types"
)

const wsWriteTimeout = 3 * time.Second

// WS is the websocket-backed adapter. Subscriptions are control frames
// sent to the backend's realtime endpoint; inbound frames are envelope
// JSON fanned out to registered handlers.
type WS struct {
	url string
	log *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	cancel    context.CancelFunc
	handlers  map[int]Handler
	nextID    int
	connected atomic.Bool
}

func NewWS(url string, log *zap.Logger) *WS {
	return &WS{
		url:      url,
		log:      log,
		handlers: map[int]Handler{},
	}
}

func (w *WS) Connect(ctx context.Context, userID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.connected.Load() {
		return nil
	}

	conn, _, err := websocket.Dial(ctx, w.url+"?user="+userID, nil)
	if err != nil {
		return fmt.Errorf("dial realtime: %w", err)
	}
	readCtx, cancel := context.WithCancel(context.Background())
	w.conn = conn
	w.cancel = cancel
	w.connected.Store(true)
	go w.readLoop(readCtx, conn)
	return nil
}

func (w *WS) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			w.connected.Store(false)
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				w.log.Warn("realtime read failed", zap.Error(err))
			}
			return
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			w.log.Warn("bad realtime frame", zap.Error(err))
			continue
		}
		w.dispatch(env)
	}
}

func (w *WS) dispatch(env types.Envelope) {
	w.mu.Lock()
	hs := make([]Handler, 0, len(w.handlers))
	for _, h := range w.handlers {
		hs = append(hs, h)
	}
	w.mu.Unlock()
	for _, h := range hs {
		h(env)
	}
}

func (w *WS) Subscribe(ctx context.Context, channel string) error {
	return w.control(ctx, types.SubscribeRequest{Action: "subscribe", Channel: channel})
}

func (w *WS) Unsubscribe(ctx context.Context, channel string) error {
	return w.control(ctx, types.SubscribeRequest{Action: "unsubscribe", Channel: channel})
}

func (w *WS) control(ctx context.Context, req types.SubscribeRequest) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil || !w.connected.Load() {
		return fmt.Errorf("%s %s: not connected", req.Action, req.Channel)
	}
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, req); err != nil {
		return fmt.Errorf("%s %s: %w", req.Action, req.Channel, err)
	}
	return nil
}

func (w *WS) OnMessage(h Handler) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID
	w.nextID++
	w.handlers[id] = h
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.handlers, id)
	}
}

func (w *WS) IsConnected() bool { return w.connected.Load() }

func (w *WS) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.connected.Load() {
		return nil
	}
	w.connected.Store(false)
	w.cancel()
	return w.conn.Close(websocket.StatusNormalClosure, "bye")
}
