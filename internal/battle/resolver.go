package battle

import (
	"math"
	"math/rand"
)

// Variance bounds applied to damage rolls. Healing rolls no variance.
const varianceSpread = 0.15

// Damage computes the deterministic part of the combat formula for a
// given variance draw. Exported so multiplayer UIs can show a
// prediction; in multiplayer the server-confirmed value is the only
// one ever applied to state.
func Damage(power, attackerStrength, defenderDefense int, variance float64) int {
	base := float64(power) + float64(attackerStrength-defenderDefense)*0.1
	dmg := int(math.Floor(base * (1 + variance)))
	if dmg < 1 {
		dmg = 1
	}
	return dmg
}

// Resolver computes bot-mode combat outcomes locally, with no network
// round-trip. The pseudorandom source is the only hidden state.
type Resolver struct {
	rng *rand.Rand
}

func NewResolver(seed int64) *Resolver {
	return &Resolver{rng: rand.New(rand.NewSource(seed))}
}

// Resolve applies the combat formula for one action and returns the
// outcome ready for Apply. HP fields are left unset so the reducer
// derives them; the turn always flips to the opponent.
func (r *Resolver) Resolve(s State, attacker Side, move Move) Outcome {
	out := Outcome{
		BattleID:   s.BattleID,
		Attacker:   attacker,
		MoveName:   move.Name,
		TargetHP:   -1,
		AttackerHP: -1,
		NextTurn:   attacker.Opponent(),
	}
	if move.Power < 0 {
		out.Heal = -move.Power
		return out
	}
	variance := (r.rng.Float64()*2 - 1) * varianceSpread
	atk := s.Combatant(attacker).Stats
	def := s.Combatant(attacker.Opponent()).Stats
	out.Damage = Damage(move.Power, atk.Strength, def.Defense, variance)
	return out
}

// PickMove selects uniformly from the combatant's move set. Used for
// the bot and for any non-player-controlled combatant.
func (r *Resolver) PickMove(c Combatant) (Move, bool) {
	if len(c.Moves) == 0 {
		return Move{}, false
	}
	return c.Moves[r.rng.Intn(len(c.Moves))], true
}
