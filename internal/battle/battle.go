// Package battle holds the pure battle state machine: combatant state,
// the reducer that applies confirmed outcomes, and the local resolver
// used for bot fights. Nothing in here touches the network or timers.
package battle


// Side identifies a combatant relative to the local client. It is used
// both for turn ownership and for the winner of an ended battle.
type Side string

const (
	SidePlayer Side = "player"
	SideEnemy  Side = "enemy"
)

func (s Side) Opponent() Side {
	if s == SidePlayer {
		return SideEnemy
	}
	return SidePlayer
}

type Phase string

const (
	PhaseActive Phase = "active"
	PhaseEnded  Phase = "ended" // terminal; no further turn or HP mutation
)

type Stats struct {
	Strength int
	Defense  int
}

// Move with negative Power heals the caster by |Power| instead of
// damaging the target.
type Move struct {
	ID    string
	Name  string
	Power int
}

type Combatant struct {
	ID    string
	Name  string
	HP    int
	MaxHP int
	Stats Stats
	Moves []Move
}

func (c Combatant) MoveByID(id string) (Move, bool) {
	for _, m := range c.Moves {
		if m.ID == id {
			return m, true
		}
	}
	return Move{}, false
}

// State is one battle as seen by the local client. HP fields are
// mutated only by Apply/ApplyUpdate with confirmed outcomes.
type State struct {
	BattleID string
	Player   Combatant
	Enemy    Combatant
	Turn     Side
	Phase    Phase
	Winner   Side // meaningful only when Phase == PhaseEnded
	Log      []string
}

func (s State) Combatant(side Side) Combatant {
	if side == SidePlayer {
		return s.Player
	}
	return s.Enemy
}

func (s State) SideOf(userID string) (Side, bool) {
	switch userID {
	case s.Player.ID:
		return SidePlayer, true
	case s.Enemy.ID:
		return SideEnemy, true
	default:
		return "", false
	}
}

func clampHP(hp, maxHP int) int {
	if hp < 0 {
		return 0
	}
	if hp > maxHP {
		return maxHP
	}
	return hp
}
