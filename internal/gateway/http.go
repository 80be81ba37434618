package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/Cabritto-Corps/battlecore/pkg/types"
)

// Client talks to the battle HTTP API. Attack submissions retry with
// exponential backoff until MaxSubmitElapsed; 4xx rejections are
// permanent and surface immediately.
type Client struct {
	base string
	http *http.Client
	log  *zap.Logger

	// MaxSubmitElapsed bounds the submission retry window.
	MaxSubmitElapsed time.Duration

	// PlayerID identifies the local player on every request once a
	// battle has been started or joined.
	PlayerID string
}

func NewClient(baseURL string, log *zap.Logger) *Client {
	return &Client{
		base:             baseURL,
		http:             &http.Client{Timeout: 10 * time.Second},
		log:              log,
		MaxSubmitElapsed: 8 * time.Second,
	}
}

func (c *Client) StartBattle(ctx context.Context, characterID string) (types.StartBattleResponse, error) {
	var resp types.StartBattleResponse
	err := c.do(ctx, http.MethodPost, "/battles",
		types.StartBattleRequest{CharacterID: characterID}, &resp)
	return resp, err
}

func (c *Client) SubmitAttack(ctx context.Context, battleID, moveID string) (types.AttackResponse, error) {
	var resp types.AttackResponse
	path := "/battles/" + battleID + "/attack"

	op := func() error {
		err := c.do(ctx, http.MethodPost, path, types.AttackRequest{MoveID: moveID}, &resp)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status < 500 {
			// The server saw and rejected the request; retrying would
			// just replay the rejection.
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxElapsedTime = c.MaxSubmitElapsed
	err := backoff.Retry(op, backoff.WithContext(policy, ctx))
	return resp, err
}

func (c *Client) BattleSnapshot(ctx context.Context, battleID string) (types.SnapshotResponse, error) {
	var resp types.SnapshotResponse
	err := c.do(ctx, http.MethodGet, "/battles/"+battleID, nil, &resp)
	return resp, err
}

func (c *Client) EndBattle(ctx context.Context, battleID string, report types.EndBattleRequest) error {
	return c.do(ctx, http.MethodPost, "/battles/"+battleID+"/end", report, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.PlayerID != "" {
		req.Header.Set("X-Player-ID", c.PlayerID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		var body types.ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&body); decodeErr == nil {
			apiErr.Code = body.Code
			apiErr.Message = body.Message
		}
		c.log.Debug("request rejected",
			zap.String("path", path), zap.Int("status", resp.StatusCode),
			zap.String("code", apiErr.Code))
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
