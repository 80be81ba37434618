package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Cabritto-Corps/battlecore/pkg/types"
)

// Redis adapts a Redis pub/sub connection to the Adapter contract.
// Envelope JSON is published on battle/user channels by the backend.
type Redis struct {
	client *redis.Client
	log    *zap.Logger

	mu        sync.Mutex
	pubsub    *redis.PubSub
	cancel    context.CancelFunc
	handlers  map[int]Handler
	nextID    int
	connected atomic.Bool
}

func NewRedis(client *redis.Client, log *zap.Logger) *Redis {
	return &Redis{
		client:   client,
		log:      log,
		handlers: map[int]Handler{},
	}
}

func (r *Redis) Connect(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connected.Load() {
		return nil
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect realtime cache: %w", err)
	}

	// One PubSub carries every subscription; channels are added and
	// removed on the fly.
	r.pubsub = r.client.Subscribe(ctx, UserChannel(userID))
	loopCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.connected.Store(true)
	go r.readLoop(loopCtx, r.pubsub)
	return nil
}

func (r *Redis) readLoop(ctx context.Context, pubsub *redis.PubSub) {
	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				r.connected.Store(false)
				r.log.Info("pubsub channel closed")
				return
			}
			var env types.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.log.Warn("bad pubsub payload",
					zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			r.dispatch(env)

		case <-ctx.Done():
			return
		}
	}
}

func (r *Redis) dispatch(env types.Envelope) {
	r.mu.Lock()
	hs := make([]Handler, 0, len(r.handlers))
	for _, h := range r.handlers {
		hs = append(hs, h)
	}
	r.mu.Unlock()
	for _, h := range hs {
		h(env)
	}
}

func (r *Redis) Subscribe(ctx context.Context, channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pubsub == nil {
		return fmt.Errorf("subscribe %s: not connected", channel)
	}
	return r.pubsub.Subscribe(ctx, channel)
}

func (r *Redis) Unsubscribe(ctx context.Context, channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pubsub == nil {
		return nil
	}
	return r.pubsub.Unsubscribe(ctx, channel)
}

func (r *Redis) OnMessage(h Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.handlers[id] = h
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.handlers, id)
	}
}

func (r *Redis) IsConnected() bool { return r.connected.Load() }

func (r *Redis) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected.Load() {
		return nil
	}
	r.connected.Store(false)
	r.cancel()
	return r.pubsub.Close()
}
