package entity

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type Checkpoint struct {
	ChainID            string         `db:"chain_id"`
	Address            common.Address `db:"address"`
	LastProcessedBlock uint64         `db:"last_processed_block"`
	CreatedAt          *time.Time     `db:"created_at"`
	UpdatedAt          *time.Time     `db:"updated_at"`
}

type CheckpointsRepo interface {
	Ensure(ctx context.Context, checkpoint *Checkpoint) error
	GetByChainIDAndAddress(ctx context.Context, chainID string, addr common.Address) (*Checkpoint, error)
}
