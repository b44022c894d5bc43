package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/question-oracle/db"
	"github.com/omni/question-oracle/entity"
)

type answersRepo basePostgresRepo

func NewAnswersRepo(table string, db *db.DB) entity.AnswersRepo {
	return (*answersRepo)(newBasePostgresRepo(table, db))
}

func (r *answersRepo) Ensure(ctx context.Context, answer *entity.Answer) error {
	q, args, err := sq.Insert(r.table).
		Columns("chain_id", "contract", "block_number", "log_index", "question_transaction_hash", "user_address", "question", "answer", "transaction_hash", "nonce").
		Values(answer.ChainID, answer.Contract, answer.BlockNumber, answer.LogIndex, answer.QuestionTransactionHash, answer.User, answer.Question, answer.Answer, answer.TransactionHash, answer.Nonce).
		Suffix("ON CONFLICT (transaction_hash) DO UPDATE SET updated_at = NOW()").
		Suffix("RETURNING id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	err = r.db.GetContext(ctx, &answer.ID, q, args...)
	if err != nil {
		return fmt.Errorf("can't insert answer: %w", err)
	}
	return nil
}

func (r *answersRepo) FindByUser(ctx context.Context, chainID string, user common.Address, limit uint64) ([]*entity.Answer, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"chain_id": chainID, "user_address": user}).
		OrderBy("block_number DESC", "log_index DESC", "id DESC").
		Limit(limit).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	answers := make([]*entity.Answer, 0, 10)
	err = r.db.SelectContext(ctx, &answers, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get answers by user: %w", err)
	}
	return answers, nil
}

func (r *answersRepo) GetByTxHash(ctx context.Context, txHash common.Hash) (*entity.Answer, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"transaction_hash": txHash}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	answer := new(entity.Answer)
	err = r.db.GetContext(ctx, answer, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't get answer by tx hash: %w", err)
	}
	return answer, nil
}
