package arena_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Cabritto-Corps/battlecore/internal/arena"
	"github.com/Cabritto-Corps/battlecore/internal/gateway"
	"github.com/Cabritto-Corps/battlecore/internal/transport"
	"github.com/Cabritto-Corps/battlecore/pkg/types"
)

// Runs the gateway client and the websocket transport against a real
// arena instance: attack over HTTP, receive the confirmation and the
// bot's counterattack over the realtime channel.
func TestArena_FullBattleLoop(t *testing.T) {
	prev := arena.BotDelay
	arena.BotDelay = 50 * time.Millisecond
	t.Cleanup(func() { arena.BotDelay = prev })

	ctx := context.Background()
	h := arena.NewHub(ctx, zap.NewNop())
	t.Cleanup(func() { h.Inbox() <- arena.ShutdownHub{} })

	srv := httptest.NewServer(arena.SetupRoutes(h))
	t.Cleanup(srv.Close)

	gw := gateway.NewClient(srv.URL, zap.NewNop())
	start, err := gw.StartBattle(ctx, "char-ember")
	require.NoError(t, err)
	require.NotEmpty(t, start.BattleID)
	require.Equal(t, start.PlayerID, start.Turn)
	gw.PlayerID = start.PlayerID

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime"
	tp := transport.NewWS(wsURL, zap.NewNop())
	require.NoError(t, tp.Connect(ctx, start.PlayerID))
	t.Cleanup(func() { _ = tp.Close() })

	events := make(chan types.Envelope, 16)
	remove := tp.OnMessage(func(env types.Envelope) { events <- env })
	t.Cleanup(remove)

	require.NoError(t, tp.Subscribe(ctx, transport.BattleChannel(start.BattleID)))
	// The subscribe frame is handled asynchronously by the server; give
	// it a moment before attacking so the broadcast finds us joined.
	time.Sleep(100 * time.Millisecond)

	resp, err := gw.SubmitAttack(ctx, start.BattleID, "mv-claw")
	require.NoError(t, err)
	require.Less(t, resp.TargetHP, start.BotCharacter.HP)
	require.NotEqual(t, start.PlayerID, resp.Turn)

	own := nextAttack(t, events)
	require.Equal(t, start.PlayerID, own.AttackerID)
	require.Equal(t, resp.TargetHP, own.TargetHP)

	counter := nextAttack(t, events)
	require.Equal(t, start.BotCharacter.ID, counter.AttackerID)
	require.Equal(t, start.PlayerID, counter.Turn)

	snap, err := gw.BattleSnapshot(ctx, start.BattleID)
	require.NoError(t, err)
	require.Len(t, snap.BattleLog, 2)

	require.NoError(t, gw.EndBattle(ctx, start.BattleID, types.EndBattleRequest{
		WinnerID: start.PlayerID, Log: snap.BattleLog,
	}))

	_, err = gw.BattleSnapshot(ctx, start.BattleID)
	var apiErr *gateway.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 404, apiErr.Status)
}

func TestArena_AttackOutOfTurnRejected(t *testing.T) {
	ctx := context.Background()
	h := arena.NewHub(ctx, zap.NewNop())
	t.Cleanup(func() { h.Inbox() <- arena.ShutdownHub{} })

	srv := httptest.NewServer(arena.SetupRoutes(h))
	t.Cleanup(srv.Close)

	gw := gateway.NewClient(srv.URL, zap.NewNop())
	start, err := gw.StartBattle(ctx, "char-gale")
	require.NoError(t, err)

	// Wrong identity: the bot's id instead of ours.
	gw.PlayerID = start.BotCharacter.ID
	_, err = gw.SubmitAttack(ctx, start.BattleID, "mv-gust")
	require.ErrorIs(t, err, gateway.ErrNotYourTurn)
}

func TestArena_RealtimeDisconnectReleasesWriter(t *testing.T) {
	ctx := context.Background()
	h := arena.NewHub(ctx, zap.NewNop())
	t.Cleanup(func() { h.Inbox() <- arena.ShutdownHub{} })

	srv := httptest.NewServer(arena.SetupRoutes(h))
	t.Cleanup(srv.Close)

	gw := gateway.NewClient(srv.URL, zap.NewNop())
	start, err := gw.StartBattle(ctx, "char-terra")
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime"
	before := runtime.NumGoroutine()

	for i := 0; i < 5; i++ {
		tp := transport.NewWS(wsURL, zap.NewNop())
		require.NoError(t, tp.Connect(ctx, start.PlayerID))
		require.NoError(t, tp.Subscribe(ctx, transport.BattleChannel(start.BattleID)))
		require.NoError(t, tp.Close())
	}

	// Every per-connection goroutine must exit with its handler; a
	// subscribe without an unsubscribe is a routine client exit path.
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+3
	}, 2*time.Second, 20*time.Millisecond)
}

func nextAttack(t *testing.T, events chan types.Envelope) types.AttackEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-events:
			if env.Type != types.EventBattleAttack {
				continue
			}
			var ev types.AttackEvent
			require.NoError(t, json.Unmarshal(env.Data, &ev))
			return ev
		case <-deadline:
			t.Fatalf("timed out waiting for attack event")
		}
	}
}
