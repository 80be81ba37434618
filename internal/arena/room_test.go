package arena

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Cabritto-Corps/battlecore/internal/battle"
	"github.com/Cabritto-Corps/battlecore/pkg/types"
)

func newRoomState() battle.State {
	return battle.State{
		BattleID: "b1",
		Player: battle.Combatant{
			ID: "p1", Name: "Ember", HP: 200, MaxHP: 200,
			Stats: battle.Stats{Strength: 120, Defense: 100},
			Moves: []battle.Move{{ID: "m1", Name: "Claw Swipe", Power: 40}},
		},
		Enemy: battle.Combatant{
			ID: "bot", Name: "Gale", HP: 180, MaxHP: 180,
			Stats: battle.Stats{Strength: 110, Defense: 95},
			Moves: []battle.Move{{ID: "m3", Name: "Gust Blade", Power: 45}},
		},
		Turn:  battle.SidePlayer,
		Phase: battle.PhaseActive,
	}
}

func newTestRoom(t *testing.T, botDelay time.Duration) *Room {
	t.Helper()
	r := NewRoom(context.Background(), newRoomState(), botDelay, zap.NewNop())
	t.Cleanup(func() { r.Inbox() <- Shutdown{} })
	return r
}

func attack(t *testing.T, r *Room, playerID, moveID string) AttackReply {
	t.Helper()
	reply := make(chan AttackReply, 1)
	r.Inbox() <- Attack{PlayerID: playerID, MoveID: moveID, Reply: reply}
	return <-reply
}

func waitEnvelope(t *testing.T, ch chan types.Envelope, timeout time.Duration) types.Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for envelope")
		return types.Envelope{}
	}
}

func TestRoom_Attack_OutOfTurnRejected(t *testing.T) {
	r := newTestRoom(t, time.Hour)

	res := attack(t, r, "bot", "m3")
	if res.Status != http.StatusConflict || res.Err.Code != "not_your_turn" {
		t.Fatalf("want 409 not_your_turn, got %d %q", res.Status, res.Err.Code)
	}
}

func TestRoom_Attack_UnknownMoveRejected(t *testing.T) {
	r := newTestRoom(t, time.Hour)

	res := attack(t, r, "p1", "nope")
	if res.Status != http.StatusBadRequest || res.Err.Code != "validation" {
		t.Fatalf("want 400 validation, got %d %q", res.Status, res.Err.Code)
	}
}

func TestRoom_Attack_AppliesAndBroadcasts(t *testing.T) {
	r := newTestRoom(t, time.Hour)

	out := make(chan types.Envelope, 8)
	r.Inbox() <- Join{ClientID: "c1", Outbox: out}

	res := attack(t, r, "p1", "m1")
	if res.Status != http.StatusOK {
		t.Fatalf("want 200, got %d %q", res.Status, res.Err.Code)
	}
	if res.Resp.TargetHP >= 180 {
		t.Fatalf("bot must have taken damage, hp %d", res.Resp.TargetHP)
	}
	if res.Resp.Turn != "bot" {
		t.Fatalf("turn must pass to the bot, got %q", res.Resp.Turn)
	}

	env := waitEnvelope(t, out, time.Second)
	if env.Type != types.EventBattleAttack || env.BattleID != "b1" {
		t.Fatalf("unexpected envelope %q for %q", env.Type, env.BattleID)
	}
	var ev types.AttackEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		t.Fatalf("decode attack event: %v", err)
	}
	if ev.AttackerID != "p1" || ev.TargetHP != res.Resp.TargetHP {
		t.Fatalf("broadcast must mirror the HTTP response, got %+v", ev)
	}
}

func TestRoom_BotCounterattacks(t *testing.T) {
	r := newTestRoom(t, 10*time.Millisecond)

	out := make(chan types.Envelope, 8)
	r.Inbox() <- Join{ClientID: "c1", Outbox: out}

	if res := attack(t, r, "p1", "m1"); res.Status != http.StatusOK {
		t.Fatalf("attack rejected: %d %q", res.Status, res.Err.Code)
	}

	waitEnvelope(t, out, time.Second) // the player's own attack

	env := waitEnvelope(t, out, time.Second)
	var ev types.AttackEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		t.Fatalf("decode attack event: %v", err)
	}
	if ev.AttackerID != "bot" {
		t.Fatalf("expected bot counterattack, got attacker %q", ev.AttackerID)
	}
	if ev.Turn != "p1" {
		t.Fatalf("turn must return to the player, got %q", ev.Turn)
	}
}

func TestRoom_SlowSubscriberDropKeepsChannelOpen(t *testing.T) {
	r1 := newTestRoom(t, time.Hour)
	r2 := newTestRoom(t, time.Hour)

	// Full outbox: the next broadcast drops this subscriber.
	out := make(chan types.Envelope, 1)
	out <- types.Envelope{Type: types.EventError}
	r1.Inbox() <- Join{ClientID: "c1", Outbox: out}
	attack(t, r1, "p1", "m1")

	// Only the filler is in the channel; the broadcast was dropped.
	if env := <-out; env.Type != types.EventError {
		t.Fatalf("expected the filler envelope, got %q", env.Type)
	}

	// A reconnecting client reuses its connection outbox on a new
	// subscribe; the old room must not have closed it.
	r2.Inbox() <- Join{ClientID: "c1", Outbox: out}
	attack(t, r2, "p1", "m1")

	env := waitEnvelope(t, out, time.Second)
	if env.Type != types.EventBattleAttack {
		t.Fatalf("want battle_attack on the reused channel, got %q", env.Type)
	}
}

func TestRoom_ShutdownLeavesSubscriberChannelsOpen(t *testing.T) {
	r := NewRoom(context.Background(), newRoomState(), time.Hour, zap.NewNop())

	out := make(chan types.Envelope, 1)
	r.Inbox() <- Join{ClientID: "c1", Outbox: out}
	r.Inbox() <- Shutdown{}

	select {
	case _, ok := <-out:
		if !ok {
			t.Fatalf("room closed a channel it does not own")
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRoom_Snapshot(t *testing.T) {
	r := newTestRoom(t, time.Hour)

	attack(t, r, "p1", "m1")

	reply := make(chan types.SnapshotResponse, 1)
	r.Inbox() <- GetSnapshot{Reply: reply}
	snap := <-reply

	if len(snap.BattleLog) != 1 {
		t.Fatalf("want one log entry, got %v", snap.BattleLog)
	}
	if snap.Turn != "bot" || snap.WinnerID != "" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
