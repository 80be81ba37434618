// Package gateway is the synchronous request/response boundary to the
// battle backend: starting a battle, submitting an attack, reading a
// snapshot, and reporting the result.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/Cabritto-Corps/battlecore/pkg/types"
)

var ErrNotYourTurn = errors.New("not your turn")
var ErrValidation = errors.New("invalid request")

// APIError is a structured rejection from the backend. It unwraps to
// the sentinel matching its code so callers can errors.Is against it.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend rejected request (%d %s): %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case "not_your_turn":
		return ErrNotYourTurn
	case "validation":
		return ErrValidation
	default:
		return nil
	}
}

type Gateway interface {
	StartBattle(ctx context.Context, characterID string) (types.StartBattleResponse, error)
	// SubmitAttack is retried with bounded backoff on transient
	// failures; a structured rejection is returned as *APIError.
	SubmitAttack(ctx context.Context, battleID, moveID string) (types.AttackResponse, error)
	// BattleSnapshot is read-only and side-effect-free.
	BattleSnapshot(ctx context.Context, battleID string) (types.SnapshotResponse, error)
	// EndBattle is best-effort; callers log and move on if it fails.
	EndBattle(ctx context.Context, battleID string, report types.EndBattleRequest) error
}
