package checkpoint

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/question-oracle/db"
	"github.com/omni/question-oracle/entity"
)

// RepoStore keeps the checkpoint in the checkpoints table, one row per chain and contract.
type RepoStore struct {
	repo    entity.CheckpointsRepo
	chainID string
	address common.Address
}

func NewRepoStore(repo entity.CheckpointsRepo, chainID string, address common.Address) *RepoStore {
	return &RepoStore{
		repo:    repo,
		chainID: chainID,
		address: address,
	}
}

func (s *RepoStore) Load(ctx context.Context) (uint64, error) {
	cp, err := s.repo.GetByChainIDAndAddress(ctx, s.chainID, s.address)
	if err = db.IgnoreErrNotFound(err); err != nil {
		return 0, fmt.Errorf("can't read checkpoint: %v: %w", err, ErrStorage)
	}
	if cp == nil {
		return 0, nil
	}
	return cp.LastProcessedBlock, nil
}

func (s *RepoStore) Save(ctx context.Context, height uint64) error {
	err := s.repo.Ensure(ctx, &entity.Checkpoint{
		ChainID:            s.chainID,
		Address:            s.address,
		LastProcessedBlock: height,
	})
	if err != nil {
		return fmt.Errorf("can't write checkpoint: %v: %w", err, ErrStorage)
	}
	return nil
}
