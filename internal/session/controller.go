// Package session owns one active battle on the client. The Controller
// is a single-goroutine actor: submissions, real-time messages, poll
// results and timer fires all land in one inbox and are applied one at
// a time, so BattleSession state is never mutated from two sources at
// once.
package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Cabritto-Corps/battlecore/internal/battle"
	"github.com/Cabritto-Corps/battlecore/internal/gateway"
	"github.com/Cabritto-Corps/battlecore/internal/transport"
	"github.com/Cabritto-Corps/battlecore/pkg/types"
)

type Config struct {
	// GracePeriod is how long the real-time channel gets to deliver the
	// opponent's move before the fallback check runs.
	GracePeriod time.Duration
	// FreshnessThreshold is the max silence on the real-time channel
	// before it is considered unhealthy and polling may start.
	FreshnessThreshold time.Duration
	PollInterval       time.Duration
	// PendingTimeout re-enables input when a submitted attack is never
	// confirmed through any channel.
	PendingTimeout time.Duration
	// BotDelay simulates the bot "thinking" before its counterattack.
	BotDelay    time.Duration
	EventBuffer int
}

func DefaultConfig() Config {
	return Config{
		GracePeriod:        5 * time.Second,
		FreshnessThreshold: 4 * time.Second,
		PollInterval:       3 * time.Second,
		PendingTimeout:     12 * time.Second,
		BotDelay:           1500 * time.Millisecond,
		EventBuffer:        32,
	}
}

type msg interface{ isSessionMsg() }

type submitMsg struct{ moveID string }
type submitResultMsg struct {
	resp types.AttackResponse
	err  error
}
type realtimeMsg struct{ env types.Envelope }
type graceMsg struct{ gen int }
type pollTickMsg struct{ gen int }
type pollResultMsg struct {
	gen  int
	snap types.SnapshotResponse
	err  error
}
type botMsg struct{ gen int }
type pendingMsg struct{ gen int }
type teardownMsg struct{ reply chan struct{} }
type viewMsg struct{ reply chan View }

func (submitMsg) isSessionMsg()       {}
func (submitResultMsg) isSessionMsg() {}
func (realtimeMsg) isSessionMsg()     {}
func (graceMsg) isSessionMsg()        {}
func (pollTickMsg) isSessionMsg()     {}
func (pollResultMsg) isSessionMsg()   {}
func (botMsg) isSessionMsg()          {}
func (pendingMsg) isSessionMsg()      {}
func (teardownMsg) isSessionMsg()     {}
func (viewMsg) isSessionMsg()         {}

// View reflects controller state without data races; test and UI reads
// go through the inbox like everything else.
type View struct {
	State        battle.State
	Pending      bool
	Polling      bool
	LastRealtime time.Time
}

type Controller struct {
	inbox  chan msg
	events chan battle.Event

	state       battle.State
	multiplayer bool
	pending     bool
	// lastRealtime is the arrival time of the most recent accepted
	// message on the push channel; it drives the polling fallback.
	lastRealtime time.Time
	startedAt    time.Time

	gw       gateway.Gateway
	tp       transport.Adapter
	resolver *battle.Resolver
	cfg      Config
	log      *zap.Logger

	// gen invalidates in-flight timer fires and poll results after a
	// turn transition or teardown; stale generations are dropped.
	gen        int
	pendingGen int
	graceTimer *time.Timer
	pollTimer  *time.Timer
	botTimer   *time.Timer
	pendTimer  *time.Timer
	polling    bool

	removeHandler func()
	ctx           context.Context
	cancel        context.CancelFunc
}

// StartBot creates a single-player session resolved entirely locally;
// the only network round-trips are battle start and the final report.
func StartBot(ctx context.Context, gw gateway.Gateway, characterID string, cfg Config, log *zap.Logger) (*Controller, error) {
	resp, err := gw.StartBattle(ctx, characterID)
	if err != nil {
		return nil, fmt.Errorf("start battle: %w", err)
	}

	st := battle.State{
		BattleID: resp.BattleID,
		Player:   combatant(resp.PlayerID, resp.PlayerCharacter),
		Enemy:    combatant(resp.BotCharacter.ID, resp.BotCharacter),
		Turn:     battle.SidePlayer,
		Phase:    battle.PhaseActive,
	}
	if side, ok := st.SideOf(resp.Turn); ok {
		st.Turn = side
	}

	c := newController(ctx, st, false, gw, nil, cfg, log)
	go c.run()
	return c, nil
}

// Join creates a multiplayer session from a match_found event. It
// connects the transport, subscribes the battle channel and registers
// the message handler before the loop starts, so no delivery is lost.
func Join(ctx context.Context, gw gateway.Gateway, tp transport.Adapter, match types.MatchFoundEvent, cfg Config, log *zap.Logger) (*Controller, error) {
	if err := tp.Connect(ctx, match.PlayerID); err != nil {
		return nil, fmt.Errorf("connect realtime: %w", err)
	}

	st := battle.State{
		BattleID: match.BattleID,
		Player:   combatant(match.PlayerID, match.PlayerCharacter),
		Enemy:    combatant(match.OpponentID, match.OpponentCharacter),
		Turn:     battle.SidePlayer,
		Phase:    battle.PhaseActive,
	}
	if side, ok := st.SideOf(match.Turn); ok {
		st.Turn = side
	}

	c := newController(ctx, st, true, gw, tp, cfg, log)
	c.removeHandler = tp.OnMessage(func(env types.Envelope) {
		c.post(realtimeMsg{env: env})
	})
	if err := tp.Subscribe(ctx, transport.BattleChannel(st.BattleID)); err != nil {
		c.removeHandler()
		c.cancel()
		return nil, fmt.Errorf("subscribe battle channel: %w", err)
	}

	go c.run()
	return c, nil
}

func newController(parent context.Context, st battle.State, multiplayer bool, gw gateway.Gateway, tp transport.Adapter, cfg Config, log *zap.Logger) *Controller {
	ctx, cancel := context.WithCancel(parent)
	return &Controller{
		inbox:        make(chan msg, 64),
		events:       make(chan battle.Event, cfg.EventBuffer),
		state:        st,
		multiplayer:  multiplayer,
		lastRealtime: time.Now(),
		startedAt:    time.Now(),
		gw:           gw,
		tp:           tp,
		resolver:     battle.NewResolver(time.Now().UnixNano()),
		cfg:          cfg,
		log:          log.With(zap.String("battle_id", st.BattleID)),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Events is the stream consumed by the presentation layer.
func (c *Controller) Events() <-chan battle.Event { return c.events }

// SubmitAttack queues a local attack. Gating (turn, pending, phase)
// happens inside the loop; rejections surface as AttackRejected events.
func (c *Controller) SubmitAttack(moveID string) {
	c.post(submitMsg{moveID: moveID})
}

func (c *Controller) View() View {
	reply := make(chan View, 1)
	select {
	case c.inbox <- viewMsg{reply: reply}:
	case <-c.ctx.Done():
		return View{}
	}
	select {
	case v := <-reply:
		return v
	case <-c.ctx.Done():
		return View{}
	}
}

// Teardown stops the session: timers cancelled, channel unsubscribed,
// end-of-battle report sent best-effort. It returns once the loop has
// exited or ctx expires; callers navigate away regardless.
func (c *Controller) Teardown(ctx context.Context) {
	reply := make(chan struct{})
	select {
	case c.inbox <- teardownMsg{reply: reply}:
	case <-c.ctx.Done():
		return
	case <-ctx.Done():
		return
	}
	select {
	case <-reply:
	case <-ctx.Done():
	}
}

func (c *Controller) post(m msg) {
	select {
	case c.inbox <- m:
	case <-c.ctx.Done():
	}
}

// after schedules a timer whose fire is tagged with the current
// generation; fires from a superseded generation are ignored.
func (c *Controller) after(d time.Duration, build func(gen int) msg) *time.Timer {
	m := build(c.gen)
	return time.AfterFunc(d, func() { c.post(m) })
}

func combatant(userID string, ch types.Character) battle.Combatant {
	moves := make([]battle.Move, 0, len(ch.Moves))
	for _, m := range ch.Moves {
		moves = append(moves, battle.Move{ID: m.ID, Name: m.Name, Power: m.Power})
	}
	maxHP := ch.MaxHP
	if maxHP == 0 {
		maxHP = ch.HP
	}
	return battle.Combatant{
		ID:    userID,
		Name:  ch.Name,
		HP:    ch.HP,
		MaxHP: maxHP,
		Stats: battle.Stats{Strength: ch.Strength, Defense: ch.Defense},
		Moves: moves,
	}
}
