package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Cabritto-Corps/battlecore/internal/battle"
	"github.com/Cabritto-Corps/battlecore/internal/gateway"
	"github.com/Cabritto-Corps/battlecore/internal/transport"
	"github.com/Cabritto-Corps/battlecore/pkg/types"
)

func (c *Controller) run() {
	c.enterTurn()
	for {
		select {
		case <-c.ctx.Done():
			c.stopAllTimers()
			return

		case m := <-c.inbox:
			switch msg := m.(type) {
			case submitMsg:
				c.handleSubmit(msg.moveID)
			case submitResultMsg:
				c.handleSubmitResult(msg)
			case realtimeMsg:
				c.handleRealtime(msg.env)
			case graceMsg:
				c.handleGrace(msg.gen)
			case pollTickMsg:
				c.handlePollTick(msg.gen)
			case pollResultMsg:
				c.handlePollResult(msg)
			case botMsg:
				c.handleBot(msg.gen)
			case pendingMsg:
				c.handlePendingTimeout(msg.gen)
			case viewMsg:
				msg.reply <- View{
					State:        c.state,
					Pending:      c.pending,
					Polling:      c.polling,
					LastRealtime: c.lastRealtime,
				}
			case teardownMsg:
				c.handleTeardown(msg.reply)
				return
			}
		}
	}
}

func (c *Controller) handleSubmit(moveID string) {
	if err := battle.CanSubmit(c.state, c.pending); err != nil {
		c.emit(battle.Event{Type: battle.EvtAttackRejected, Reason: err.Error()})
		return
	}
	move, ok := c.state.Player.MoveByID(moveID)
	if !ok {
		c.emit(battle.Event{Type: battle.EvtAttackRejected, Reason: battle.ErrUnknownMove.Error()})
		return
	}

	c.pending = true

	if !c.multiplayer {
		out := c.resolver.Resolve(c.state, battle.SidePlayer, move)
		c.pending = false
		c.applyOutcome(out)
		return
	}

	// Optimistic flip: gates further input until confirmation, nothing
	// more. HP and winner only ever come from confirmed payloads.
	if c.state.Turn == battle.SidePlayer {
		c.state.Turn = battle.SideEnemy
		c.emit(battle.Event{Type: battle.EvtTurnChanged, Side: battle.SideEnemy})
	}
	c.armPendingTimer()

	battleID := c.state.BattleID
	go func() {
		resp, err := c.gw.SubmitAttack(c.ctx, battleID, move.ID)
		c.post(submitResultMsg{resp: resp, err: err})
	}()
}

func (c *Controller) handleSubmitResult(m submitResultMsg) {
	if !c.pending {
		// Already resolved through the real-time channel or the
		// pending timeout.
		return
	}
	if m.err != nil {
		c.clearPending()
		c.restorePlayerTurn()
		reason := "attack failed to send"
		if errors.Is(m.err, gateway.ErrNotYourTurn) {
			reason = "not your turn"
		}
		c.appendLog("attack not confirmed: " + reason)
		c.emit(battle.Event{Type: battle.EvtAttackRejected, Reason: reason})
		c.log.Warn("attack submission failed", zap.Error(m.err))
		return
	}

	out := battle.Outcome{
		BattleID:   c.state.BattleID,
		Attacker:   battle.SidePlayer,
		MoveName:   m.resp.MoveName,
		Damage:     m.resp.Damage,
		Heal:       m.resp.Heal,
		TargetHP:   m.resp.TargetHP,
		AttackerHP: healHP(m.resp.Heal, m.resp.AttackerHP),
		Ended:      m.resp.BattleEnded,
	}
	if side, ok := c.state.SideOf(m.resp.Turn); ok {
		out.NextTurn = side
	}
	if side, ok := c.state.SideOf(m.resp.WinnerID); ok {
		out.Winner = side
	}
	c.clearPending()
	c.applyOutcome(out)
}

func (c *Controller) handleRealtime(env types.Envelope) {
	if env.BattleID != c.state.BattleID {
		// Cross-session message: never mutates state, never surfaced.
		c.log.Debug("cross-battle message discarded",
			zap.String("got", env.BattleID), zap.String("type", string(env.Type)))
		return
	}

	switch env.Type {
	case types.EventBattleAttack:
		var ev types.AttackEvent
		if !c.decode(env, &ev) {
			return
		}
		c.handleAttackEvent(ev)

	case types.EventBattleStateUpdate:
		var ev types.StateUpdateEvent
		if !c.decode(env, &ev) {
			return
		}
		u := battle.Update{BattleID: c.state.BattleID, HP: map[battle.Side]int{}}
		for userID, hp := range ev.HP {
			if side, ok := c.state.SideOf(userID); ok {
				u.HP[side] = hp
			}
		}
		if side, ok := c.state.SideOf(ev.Turn); ok {
			u.Turn = side
		}
		c.touchRealtime()
		c.applyUpdate(u)

	case types.EventBattleEnd:
		var ev types.BattleEndEvent
		if !c.decode(env, &ev) {
			return
		}
		winner, ok := c.state.SideOf(ev.WinnerID)
		if !ok {
			c.log.Warn("battle_end with unknown winner", zap.String("winner_id", ev.WinnerID))
			return
		}
		c.touchRealtime()
		c.applyUpdate(battle.Update{BattleID: c.state.BattleID, Ended: true, Winner: winner})

	case types.EventError:
		var ev types.ErrorEvent
		if !c.decode(env, &ev) {
			return
		}
		c.touchRealtime()
		if !c.pending {
			return
		}
		c.clearPending()
		c.restorePlayerTurn()
		c.appendLog("attack rejected: " + ev.Message)
		c.emit(battle.Event{Type: battle.EvtAttackRejected, Reason: ev.Message})

	case types.EventMatchFound:
		// A session already exists; a new match belongs to matchmaking,
		// not to this controller.
		c.log.Warn("match_found during active battle discarded")

	default:
		c.log.Debug("unknown realtime event discarded", zap.String("type", string(env.Type)))
	}
}

func (c *Controller) handleAttackEvent(ev types.AttackEvent) {
	attacker, ok := c.state.SideOf(ev.AttackerID)
	if !ok {
		c.log.Warn("attack from unknown combatant discarded",
			zap.String("attacker_id", ev.AttackerID))
		return
	}

	out := battle.Outcome{
		BattleID:   c.state.BattleID,
		Attacker:   attacker,
		MoveName:   ev.MoveName,
		Damage:     ev.Damage,
		Heal:       ev.Heal,
		TargetHP:   ev.TargetHP,
		AttackerHP: healHP(ev.Heal, ev.AttackerHP),
		Ended:      ev.BattleEnded,
	}
	if side, ok := c.state.SideOf(ev.Turn); ok {
		out.NextTurn = side
	}
	if side, ok := c.state.SideOf(ev.WinnerID); ok {
		out.Winner = side
	}

	c.touchRealtime()
	if c.applyOutcome(out) && attacker == battle.SidePlayer {
		// The server's confirmation of our own action beats anything
		// derived locally; it also unblocks input.
		c.clearPending()
	}
}

func (c *Controller) handleGrace(gen int) {
	if gen != c.gen || !c.multiplayer || c.state.Phase != battle.PhaseActive ||
		c.state.Turn != battle.SideEnemy {
		return
	}
	if time.Since(c.lastRealtime) < c.cfg.FreshnessThreshold {
		// Channel looks healthy; keep watching instead of polling.
		c.graceTimer = c.after(c.cfg.GracePeriod, func(gen int) msg { return graceMsg{gen: gen} })
		return
	}
	c.log.Info("realtime channel silent, falling back to polling",
		zap.Duration("silence", time.Since(c.lastRealtime)))
	c.polling = true
	c.issuePoll()
}

func (c *Controller) handlePollTick(gen int) {
	if gen != c.gen || !c.polling || c.state.Phase != battle.PhaseActive {
		return
	}
	c.issuePoll()
}

// issuePoll re-checks channel freshness before every request; a healthy
// channel stops the fallback immediately.
func (c *Controller) issuePoll() {
	if time.Since(c.lastRealtime) < c.cfg.FreshnessThreshold {
		c.stopPolling()
		return
	}
	gen := c.gen
	battleID := c.state.BattleID
	go func() {
		snap, err := c.gw.BattleSnapshot(c.ctx, battleID)
		c.post(pollResultMsg{gen: gen, snap: snap, err: err})
	}()
}

func (c *Controller) handlePollResult(m pollResultMsg) {
	if m.gen != c.gen || !c.polling || c.state.Phase != battle.PhaseActive {
		// Includes the stale-poll-after-termination case: discarded.
		return
	}
	if m.err != nil {
		c.log.Warn("battle poll failed", zap.Error(m.err))
		c.schedulePoll()
		return
	}
	if m.snap.WinnerID != "" {
		winner, ok := c.state.SideOf(m.snap.WinnerID)
		if !ok {
			c.log.Warn("poll snapshot with unknown winner",
				zap.String("winner_id", m.snap.WinnerID))
			c.schedulePoll()
			return
		}
		c.applyUpdate(battle.Update{BattleID: c.state.BattleID, Ended: true, Winner: winner})
		return
	}
	// Nothing new: the poll path is read-only reconciliation.
	c.schedulePoll()
}

func (c *Controller) schedulePoll() {
	c.pollTimer = c.after(c.cfg.PollInterval, func(gen int) msg { return pollTickMsg{gen: gen} })
}

func (c *Controller) handleBot(gen int) {
	if gen != c.gen || c.multiplayer || c.state.Phase != battle.PhaseActive ||
		c.state.Turn != battle.SideEnemy {
		return
	}
	move, ok := c.resolver.PickMove(c.state.Enemy)
	if !ok {
		return
	}
	c.applyOutcome(c.resolver.Resolve(c.state, battle.SideEnemy, move))
}

func (c *Controller) handlePendingTimeout(gen int) {
	if gen != c.pendingGen || !c.pending {
		return
	}
	c.clearPending()
	c.restorePlayerTurn()
	c.appendLog("connection issue: attack was not confirmed")
	c.emit(battle.Event{Type: battle.EvtAttackRejected, Reason: "connection issue"})
	c.log.Warn("pending attack timed out")
}

func (c *Controller) handleTeardown(reply chan struct{}) {
	c.stopAllTimers()

	// The controller ctx is about to be cancelled; teardown I/O gets
	// its own short deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if c.multiplayer && c.tp != nil {
		if err := c.tp.Unsubscribe(ctx, transport.BattleChannel(c.state.BattleID)); err != nil {
			c.log.Warn("unsubscribe failed", zap.Error(err))
		}
		if c.removeHandler != nil {
			c.removeHandler()
		}
	}

	if c.state.Phase == battle.PhaseEnded {
		report := types.EndBattleRequest{
			WinnerID:        c.state.Combatant(c.state.Winner).ID,
			DurationSeconds: int(time.Since(c.startedAt).Seconds()),
			Log:             c.state.Log,
		}
		if err := c.gw.EndBattle(ctx, c.state.BattleID, report); err != nil {
			// Best-effort persistence; the user leaves regardless.
			c.log.Warn("end battle report failed", zap.Error(err))
		}
	}

	c.cancel()
	close(reply)
}

// applyOutcome runs the reducer and reports whether the outcome was
// applied. Stale and cross-battle signals are discarded quietly.
func (c *Controller) applyOutcome(out battle.Outcome) bool {
	events, next, err := battle.Apply(c.state, out)
	return c.finishTransition(events, next, err)
}

func (c *Controller) applyUpdate(u battle.Update) bool {
	events, next, err := battle.ApplyUpdate(c.state, u)
	return c.finishTransition(events, next, err)
}

func (c *Controller) finishTransition(events []battle.Event, next battle.State, err error) bool {
	if err != nil {
		switch {
		case errors.Is(err, battle.ErrStaleSignal):
			c.log.Debug("redundant battle signal discarded")
		case errors.Is(err, battle.ErrBattleOver):
			c.log.Debug("signal after battle end discarded")
		default:
			c.log.Debug("battle signal discarded", zap.Error(err))
		}
		return false
	}
	c.state = next
	for _, ev := range events {
		c.emit(ev)
	}

	c.invalidateTimers()
	if c.state.Phase == battle.PhaseEnded {
		c.clearPending()
		return true
	}
	c.enterTurn()
	return true
}

// enterTurn arms whichever deferred work the new turn needs: the bot's
// move in single-player, the fallback watch in multiplayer.
func (c *Controller) enterTurn() {
	if c.state.Phase != battle.PhaseActive || c.state.Turn != battle.SideEnemy {
		return
	}
	if c.multiplayer {
		c.graceTimer = c.after(c.cfg.GracePeriod, func(gen int) msg { return graceMsg{gen: gen} })
		return
	}
	c.botTimer = c.after(c.cfg.BotDelay, func(gen int) msg { return botMsg{gen: gen} })
}

// touchRealtime records an accepted push delivery and cancels any
// active polling: the channel has proven itself healthy.
func (c *Controller) touchRealtime() {
	c.lastRealtime = time.Now()
	if c.polling {
		c.stopPolling()
		// The message may turn out to be redundant and produce no
		// transition, so the fallback watch is re-armed here.
		c.enterTurn()
	}
}

func (c *Controller) stopPolling() {
	c.polling = false
	if c.pollTimer != nil {
		c.pollTimer.Stop()
		c.pollTimer = nil
	}
}

// invalidateTimers cancels grace/poll/bot work on every turn
// transition; in-flight fires and poll responses die on the gen check.
func (c *Controller) invalidateTimers() {
	c.gen++
	c.stopPolling()
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
	if c.botTimer != nil {
		c.botTimer.Stop()
		c.botTimer = nil
	}
}

func (c *Controller) stopAllTimers() {
	c.invalidateTimers()
	c.clearPending()
}

func (c *Controller) armPendingTimer() {
	gen := c.pendingGen
	c.pendTimer = time.AfterFunc(c.cfg.PendingTimeout, func() {
		c.post(pendingMsg{gen: gen})
	})
}

func (c *Controller) clearPending() {
	c.pending = false
	c.pendingGen++
	if c.pendTimer != nil {
		c.pendTimer.Stop()
		c.pendTimer = nil
	}
}

// restorePlayerTurn undoes the optimistic flip after a failed or
// unconfirmed submission; the action stays retryable.
func (c *Controller) restorePlayerTurn() {
	if c.state.Phase != battle.PhaseActive || c.state.Turn == battle.SidePlayer {
		return
	}
	c.state.Turn = battle.SidePlayer
	c.emit(battle.Event{Type: battle.EvtTurnChanged, Side: battle.SidePlayer})
}

func (c *Controller) appendLog(entry string) {
	c.state.Log = append(c.state.Log, entry)
	c.emit(battle.Event{Type: battle.EvtLogAppended, Entry: entry})
}

func (c *Controller) emit(ev battle.Event) {
	select {
	case c.events <- ev:
	default:
		// Presentation is not keeping up; dropping beats blocking the
		// loop.
		c.log.Warn("presentation event dropped", zap.String("type", string(ev.Type)))
	}
}

func (c *Controller) decode(env types.Envelope, out any) bool {
	if err := json.Unmarshal(env.Data, out); err != nil {
		c.log.Warn("bad event payload",
			zap.String("type", string(env.Type)), zap.Error(err))
		return false
	}
	return true
}

// healHP keeps the wire's zero-value attacker_hp from zeroing a
// combatant: it is only meaningful on heal events.
func healHP(heal, attackerHP int) int {
	if heal > 0 && attackerHP > 0 {
		return attackerHP
	}
	return -1
}
