// Package types holds the wire shapes shared by the battle client core
// and the backend: real-time event envelopes pushed over the pub/sub
// channel and the request/response bodies of the battle HTTP API.
package types

import "encoding/json"

type EventType string

const (
	EventBattleAttack      EventType = "battle_attack"
	EventBattleStateUpdate EventType = "battle_state_update"
	EventBattleEnd         EventType = "battle_end"
	EventError             EventType = "error"
	EventMatchFound        EventType = "match_found"
)

// Envelope is the framing of every message on the real-time channel.
// Data is decoded per Type into one of the event structs below.
type Envelope struct {
	Type     EventType       `json:"type"`
	BattleID string          `json:"battle_id"`
	Data     json.RawMessage `json:"data"`
}

// AttackEvent reports a confirmed attack (or self-heal). TargetHP and
// Turn are authoritative server values; clients must apply them rather
// than recompute damage locally.
type AttackEvent struct {
	AttackerID  string `json:"attacker_id"`
	MoveName    string `json:"move_name"`
	Damage      int    `json:"damage"`
	Heal        int    `json:"heal,omitempty"`
	TargetHP    int    `json:"target_hp"`
	AttackerHP  int    `json:"attacker_hp"`
	Turn        string `json:"turn"` // user id expected to act next
	BattleEnded bool   `json:"battle_ended"`
	WinnerID    string `json:"winner_id,omitempty"`
}

// StateUpdateEvent carries an authoritative resync of HP totals and
// turn ownership, keyed by user id.
type StateUpdateEvent struct {
	HP   map[string]int `json:"hp"`
	Turn string         `json:"turn,omitempty"`
}

type BattleEndEvent struct {
	WinnerID string `json:"winner_id"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type MatchFoundEvent struct {
	BattleID          string    `json:"battle_id"`
	PlayerID          string    `json:"player_id"`
	OpponentID        string    `json:"opponent_id"`
	PlayerCharacter   Character `json:"player_character"`
	OpponentCharacter Character `json:"opponent_character"`
	Turn              string    `json:"turn"` // user id acting first
}

// Character is the combatant sheet as served by the backend.
type Character struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	HP       int    `json:"hp"`
	MaxHP    int    `json:"max_hp"`
	Strength int    `json:"strength"`
	Defense  int    `json:"defense"`
	Moves    []Move `json:"moves"`
}

// Move with negative Power heals the caster by |Power|.
type Move struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Power int    `json:"power"`
}

// HTTP bodies.

type StartBattleRequest struct {
	CharacterID string `json:"character_id"`
}

type StartBattleResponse struct {
	BattleID        string    `json:"battle_id"`
	PlayerID        string    `json:"player_id"`
	PlayerCharacter Character `json:"player_character"`
	BotCharacter    Character `json:"bot_character"`
	Turn            string    `json:"turn"`
}

type AttackRequest struct {
	MoveID string `json:"move_id"`
}

type AttackResponse struct {
	Damage      int    `json:"damage"`
	Heal        int    `json:"heal,omitempty"`
	TargetHP    int    `json:"target_hp"`
	AttackerHP  int    `json:"attacker_hp"`
	Turn        string `json:"turn"`
	BattleEnded bool   `json:"battle_ended"`
	WinnerID    string `json:"winner_id,omitempty"`
	MoveName    string `json:"move_name"`
}

type SnapshotResponse struct {
	BattleLog []string `json:"battle_log"`
	Turn      string   `json:"turn,omitempty"`
	WinnerID  string   `json:"winner_id,omitempty"`
}

type EndBattleRequest struct {
	WinnerID        string   `json:"winner_id"`
	DurationSeconds int      `json:"duration_seconds"`
	Log             []string `json:"log"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client -> server control frames on the websocket real-time endpoint.
type SubscribeRequest struct {
	Action  string `json:"action"` // "subscribe" | "unsubscribe"
	Channel string `json:"channel"`
}
