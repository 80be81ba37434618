package arena

import (
	"math/rand"

	"github.com/Cabritto-Corps/battlecore/pkg/types"
)

// Roster is the arena's built-in character sheet set.
var Roster = []types.Character{
	{
		ID: "char-ember", Name: "Ember", HP: 250, MaxHP: 250, Strength: 120, Defense: 100,
		Moves: []types.Move{
			{ID: "mv-claw", Name: "Claw Swipe", Power: 40},
			{ID: "mv-flare", Name: "Flare Burst", Power: 55},
			{ID: "mv-mend", Name: "Mend", Power: -30},
		},
	},
	{
		ID: "char-gale", Name: "Gale", HP: 220, MaxHP: 220, Strength: 135, Defense: 90,
		Moves: []types.Move{
			{ID: "mv-gust", Name: "Gust Blade", Power: 45},
			{ID: "mv-dive", Name: "Dive Strike", Power: 60},
		},
	},
	{
		ID: "char-terra", Name: "Terra", HP: 300, MaxHP: 300, Strength: 100, Defense: 120,
		Moves: []types.Move{
			{ID: "mv-slam", Name: "Boulder Slam", Power: 50},
			{ID: "mv-root", Name: "Rooted Guard", Power: -25},
		},
	},
}

func CharacterByID(id string) (types.Character, bool) {
	for _, c := range Roster {
		if c.ID == id {
			return c, true
		}
	}
	return types.Character{}, false
}

func RandomBot() types.Character {
	return Roster[rand.Intn(len(Roster))]
}
