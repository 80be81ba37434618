package battle

import (
	"errors"
	"fmt"
)

var ErrBattleMismatch = errors.New("signal for a different battle")
var ErrBattleOver = errors.New("battle already over")
var ErrWrongTurn = errors.New("not your turn")
var ErrActionPending = errors.New("attack awaiting confirmation")
var ErrUnknownMove = errors.New("unknown move")
var ErrUnknownCombatant = errors.New("unknown combatant")
var ErrNoWinner = errors.New("battle end without a winner")

// ErrStaleSignal marks an accepted but redundant delivery: the signal
// matched this battle yet changed nothing. Callers treat it as proof
// the channel is alive, not as a failure.
var ErrStaleSignal = errors.New("stale signal")

type EventType string

const (
	EvtHPChanged      EventType = "HPChanged"
	EvtTurnChanged    EventType = "TurnChanged"
	EvtBattleEnded    EventType = "BattleEnded"
	EvtLogAppended    EventType = "LogAppended"
	EvtAttackRejected EventType = "AttackRejected"
)

// Event is what the presentation layer consumes.
type Event struct {
	Type   EventType
	Side   Side   // HPChanged, TurnChanged
	HP     int    // HPChanged
	Winner Side   // BattleEnded
	Entry  string // LogAppended
	Reason string // AttackRejected
}

// Outcome is one confirmed attack resolution, normalized from either a
// server payload or the local resolver. TargetHP/AttackerHP below zero
// mean "not provided"; the reducer then derives HP from Damage/Heal.
// Server-provided absolute values always win over local arithmetic.
type Outcome struct {
	BattleID   string
	Attacker   Side
	MoveName   string
	Damage     int
	Heal       int
	TargetHP   int
	AttackerHP int
	NextTurn   Side
	Ended      bool
	Winner     Side // "" = derive from HP
}

// Update is an authoritative resync (poll snapshot or state-update
// event). HP carries absolute values per side; missing sides are left
// untouched. Turn "" means unchanged.
type Update struct {
	BattleID string
	HP       map[Side]int
	Turn     Side
	Ended    bool
	Winner   Side
}

// Apply resolves one confirmed attack against the state. It returns the
// presentation events the transition produced and the next state; the
// input state is never mutated. Termination is checked before any turn
// transition, so an end flag beats a turn field in the same payload.
func Apply(s State, out Outcome) ([]Event, State, error) {
	if out.BattleID != s.BattleID {
		return nil, s, ErrBattleMismatch
	}
	if s.Phase == PhaseEnded {
		return nil, s, ErrBattleOver
	}

	next := s
	target := out.Attacker.Opponent()
	var entry string

	if out.Heal > 0 {
		hp := s.Combatant(out.Attacker).HP + out.Heal
		if out.AttackerHP >= 0 {
			hp = out.AttackerHP
		}
		next = next.withHP(out.Attacker, hp)
		entry = fmt.Sprintf("%s used %s and restored %d HP",
			s.Combatant(out.Attacker).Name, out.MoveName, out.Heal)
	} else {
		hp := s.Combatant(target).HP - out.Damage
		if out.TargetHP >= 0 {
			hp = out.TargetHP
		}
		next = next.withHP(target, hp)
		entry = fmt.Sprintf("%s used %s for %d damage",
			s.Combatant(out.Attacker).Name, out.MoveName, out.Damage)
	}

	ended := out.Ended || next.Player.HP == 0 || next.Enemy.HP == 0
	hpChanged := next.Player.HP != s.Player.HP || next.Enemy.HP != s.Enemy.HP

	// Redundant delivery of an already-applied attack: absolute HP and
	// turn match what we have, and nothing terminal is being said.
	if !ended && !hpChanged && (out.NextTurn == "" || out.NextTurn == s.Turn) {
		return nil, s, ErrStaleSignal
	}

	events := appendLog(nil, &next, entry)
	if hp := next.Combatant(out.Attacker).HP; hp != s.Combatant(out.Attacker).HP {
		events = append(events, Event{Type: EvtHPChanged, Side: out.Attacker, HP: hp})
	}
	if hp := next.Combatant(target).HP; hp != s.Combatant(target).HP {
		events = append(events, Event{Type: EvtHPChanged, Side: target, HP: hp})
	}

	if ended {
		winner := out.Winner
		if winner == "" {
			winner = survivor(next, out.Attacker)
		}
		return finish(events, next, winner)
	}

	if out.NextTurn != "" && out.NextTurn != next.Turn {
		next.Turn = out.NextTurn
		events = append(events, Event{Type: EvtTurnChanged, Side: next.Turn})
	}
	return events, next, nil
}

// ApplyUpdate reconciles an authoritative snapshot. A snapshot that
// reveals nothing new yields ErrStaleSignal and an unchanged state, so
// the poll path stays read-only.
func ApplyUpdate(s State, u Update) ([]Event, State, error) {
	if u.BattleID != s.BattleID {
		return nil, s, ErrBattleMismatch
	}
	if s.Phase == PhaseEnded {
		return nil, s, ErrBattleOver
	}

	next := s
	var events []Event
	for _, side := range []Side{SidePlayer, SideEnemy} {
		hp, ok := u.HP[side]
		if !ok {
			continue
		}
		next = next.withHP(side, hp)
		if got := next.Combatant(side).HP; got != s.Combatant(side).HP {
			events = append(events, Event{Type: EvtHPChanged, Side: side, HP: got})
		}
	}

	if u.Ended || next.Player.HP == 0 || next.Enemy.HP == 0 {
		winner := u.Winner
		if winner == "" {
			// A snapshot has no attacker to credit; without an explicit
			// winner only a knockout can name one.
			switch {
			case next.Enemy.HP == 0 && next.Player.HP > 0:
				winner = SidePlayer
			case next.Player.HP == 0 && next.Enemy.HP > 0:
				winner = SideEnemy
			default:
				return nil, s, ErrNoWinner
			}
		}
		return finish(events, next, winner)
	}

	if u.Turn != "" && u.Turn != next.Turn {
		next.Turn = u.Turn
		events = append(events, Event{Type: EvtTurnChanged, Side: next.Turn})
	}
	if len(events) == 0 {
		return nil, s, ErrStaleSignal
	}
	return events, next, nil
}

// CanSubmit is the local submission gate: active battle, player's turn,
// nothing pending. Pending is tracked outside the pure state by the
// session controller.
func CanSubmit(s State, pending bool) error {
	if s.Phase == PhaseEnded {
		return ErrBattleOver
	}
	// Pending is checked first: after the optimistic turn flip a second
	// submission is blocked by the unconfirmed action, not by the turn.
	if pending {
		return ErrActionPending
	}
	if s.Turn != SidePlayer {
		return ErrWrongTurn
	}
	return nil
}

func (s State) withHP(side Side, hp int) State {
	if side == SidePlayer {
		s.Player.HP = clampHP(hp, s.Player.MaxHP)
	} else {
		s.Enemy.HP = clampHP(hp, s.Enemy.MaxHP)
	}
	return s
}

// survivor picks the side with HP left; a simultaneous zero goes to the
// last attacker.
func survivor(s State, attacker Side) Side {
	switch {
	case s.Player.HP > 0 && s.Enemy.HP == 0:
		return SidePlayer
	case s.Enemy.HP > 0 && s.Player.HP == 0:
		return SideEnemy
	default:
		return attacker
	}
}

func finish(events []Event, next State, winner Side) ([]Event, State, error) {
	next.Phase = PhaseEnded
	next.Winner = winner
	entry := fmt.Sprintf("%s wins the battle", next.Combatant(winner).Name)
	events = appendLog(events, &next, entry)
	events = append(events, Event{Type: EvtBattleEnded, Winner: winner})
	return events, next, nil
}

func appendLog(events []Event, s *State, entry string) []Event {
	s.Log = append(s.Log, entry)
	return append(events, Event{Type: EvtLogAppended, Entry: entry})
}
