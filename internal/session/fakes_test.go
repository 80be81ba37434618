package session

import (
	"context"
	"sync"

	"github.com/Cabritto-Corps/battlecore/pkg/types"
)

// fakeGateway scripts backend responses and counts calls. Attack calls
// can be held open with block to keep a submission pending.
type fakeGateway struct {
	mu sync.Mutex

	startResp types.StartBattleResponse
	startErr  error

	attackResp  types.AttackResponse
	attackErr   error
	attackCalls int
	block       chan struct{} // when set, SubmitAttack waits on it

	snapResp  types.SnapshotResponse
	snapErr   error
	snapCalls int

	endCalls int
	endErr   error
}

func (f *fakeGateway) StartBattle(ctx context.Context, characterID string) (types.StartBattleResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startResp, f.startErr
}

func (f *fakeGateway) SubmitAttack(ctx context.Context, battleID, moveID string) (types.AttackResponse, error) {
	f.mu.Lock()
	f.attackCalls++
	block := f.block
	resp, err := f.attackResp, f.attackErr
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return types.AttackResponse{}, ctx.Err()
		}
		f.mu.Lock()
		resp, err = f.attackResp, f.attackErr
		f.mu.Unlock()
	}
	return resp, err
}

func (f *fakeGateway) BattleSnapshot(ctx context.Context, battleID string) (types.SnapshotResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapCalls++
	return f.snapResp, f.snapErr
}

func (f *fakeGateway) EndBattle(ctx context.Context, battleID string, report types.EndBattleRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endCalls++
	return f.endErr
}

func (f *fakeGateway) attackCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attackCalls
}

func (f *fakeGateway) snapCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapCalls
}

func (f *fakeGateway) endCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.endCalls
}

func (f *fakeGateway) setSnapshot(snap types.SnapshotResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapResp = snap
}
