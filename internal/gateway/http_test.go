package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Cabritto-Corps/battlecore/pkg/types"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, zap.NewNop())
	c.MaxSubmitElapsed = 2 * time.Second
	return c, srv
}

func TestClient_StartBattle(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/battles", r.URL.Path)

		var req types.StartBattleRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "char-ember", req.CharacterID)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(types.StartBattleResponse{
			BattleID: "b1", PlayerID: "p1", Turn: "p1",
		})
	}))

	resp, err := c.StartBattle(context.Background(), "char-ember")
	require.NoError(t, err)
	require.Equal(t, "b1", resp.BattleID)
	require.Equal(t, "p1", resp.PlayerID)
}

func TestClient_SubmitAttack_RejectionIsPermanent(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(types.ErrorResponse{
			Code: "not_your_turn", Message: "not your turn",
		})
	}))

	_, err := c.SubmitAttack(context.Background(), "b1", "m1")
	require.ErrorIs(t, err, ErrNotYourTurn)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusConflict, apiErr.Status)

	// A rejection the server already saw must not be replayed.
	require.Equal(t, int32(1), calls.Load())
}

func TestClient_SubmitAttack_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.AttackResponse{
			Damage: 52, TargetHP: 128, AttackerHP: 200, Turn: "p2", MoveName: "Claw",
		})
	}))

	resp, err := c.SubmitAttack(context.Background(), "b1", "m1")
	require.NoError(t, err)
	require.Equal(t, 52, resp.Damage)
	require.Equal(t, int32(2), calls.Load())
}

func TestClient_SubmitAttack_RespectsContextCancel(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.SubmitAttack(ctx, "b1", "m1")
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNotYourTurn))
}

func TestClient_BattleSnapshot(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/battles/b1", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.SnapshotResponse{
			BattleLog: []string{"Ember used Claw for 52 damage"},
			Turn:      "p2",
		})
	}))

	snap, err := c.BattleSnapshot(context.Background(), "b1")
	require.NoError(t, err)
	require.Len(t, snap.BattleLog, 1)
	require.Equal(t, "p2", snap.Turn)
}

func TestClient_SendsPlayerIDHeader(t *testing.T) {
	var got atomic.Value
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("X-Player-ID"))
		w.WriteHeader(http.StatusNoContent)
	}))
	c.PlayerID = "p1"

	err := c.EndBattle(context.Background(), "b1", types.EndBattleRequest{WinnerID: "p1"})
	require.NoError(t, err)
	require.Equal(t, "p1", got.Load())
}
