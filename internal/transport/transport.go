// Package transport wraps the real-time publish/subscribe connection
// used for low-latency battle event delivery. The session controller
// only sees the Adapter contract; websocket and Redis implementations
// live here alongside a Fake for tests.
package transport

import (
	"context"

	"github.com/Cabritto-Corps/battlecore/pkg/types"
)

// Handler receives every decoded envelope from the channel(s) this
// client is subscribed to. Handlers must not block.
type Handler func(msg types.Envelope)

type Adapter interface {
	// Connect is idempotent; a second call on a live connection is a
	// no-op.
	Connect(ctx context.Context, userID string) error
	Subscribe(ctx context.Context, channel string) error
	Unsubscribe(ctx context.Context, channel string) error
	// OnMessage registers a handler and returns its removal func.
	OnMessage(h Handler) (remove func())
	IsConnected() bool
	Close() error
}

// BattleChannel names the pub/sub channel carrying one battle's events.
// At most one battle channel is live per client at a time.
func BattleChannel(battleID string) string {
	return "battle:" + battleID
}

// UserChannel carries per-user events, notably match_found.
func UserChannel(userID string) string {
	return "user:" + userID
}
