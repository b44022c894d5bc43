package entity

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Answer is a journal record of a submitted provideAnswer transaction.
type Answer struct {
	ID                      uint           `db:"id"`
	ChainID                 string         `db:"chain_id"`
	Contract                common.Address `db:"contract"`
	BlockNumber             uint64         `db:"block_number"`
	LogIndex                uint           `db:"log_index"`
	QuestionTransactionHash common.Hash    `db:"question_transaction_hash"`
	User                    common.Address `db:"user_address"`
	Question                string         `db:"question"`
	Answer                  string         `db:"answer"`
	TransactionHash         common.Hash    `db:"transaction_hash"`
	Nonce                   uint64         `db:"nonce"`
	CreatedAt               *time.Time     `db:"created_at"`
	UpdatedAt               *time.Time     `db:"updated_at"`
}

type AnswersRepo interface {
	Ensure(ctx context.Context, answer *Answer) error
	FindByUser(ctx context.Context, chainID string, user common.Address, limit uint64) ([]*Answer, error)
	GetByTxHash(ctx context.Context, txHash common.Hash) (*Answer, error)
}
