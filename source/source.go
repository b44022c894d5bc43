package source

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/omni/question-oracle/contract"
	"github.com/omni/question-oracle/contract/oracleabi"
	"github.com/omni/question-oracle/entity"
	"github.com/omni/question-oracle/ethclient"
	"github.com/omni/question-oracle/logging"
)

var (
	// ErrRetrieval is returned when the chain can't be queried or the returned events can't be decoded.
	ErrRetrieval = errors.New("event retrieval failed")
	// ErrSubscriptionClosed is returned when a live subscription is dropped by the node.
	ErrSubscriptionClosed = errors.New("subscription closed")
)

const defaultMaxBlockRangeSize = 1000

type Config struct {
	Address            common.Address
	BlockConfirmations uint64
	MaxBlockRangeSize  uint64
	SafeLogsRequest    bool
}

// QuestionSource reads NewQuestion events of a single oracle contract.
type QuestionSource struct {
	logger   logging.Logger
	client   ethclient.Client
	contract *contract.OracleContract
	cfg      Config
}

func NewQuestionSource(logger logging.Logger, client ethclient.Client, cfg Config) *QuestionSource {
	if cfg.MaxBlockRangeSize == 0 {
		cfg.MaxBlockRangeSize = defaultMaxBlockRangeSize
	}
	return &QuestionSource{
		logger: logger.WithFields(logrus.Fields{
			"chain_id": client.ChainID(),
			"contract": cfg.Address,
		}),
		client:   client,
		contract: contract.NewOracleContract(client, cfg.Address),
		cfg:      cfg,
	}
}

// LatestHeight returns the chain head lowered by the configured number of confirmations.
func (s *QuestionSource) LatestHeight(ctx context.Context) (uint64, error) {
	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("can't fetch latest block number: %v: %w", err, ErrRetrieval)
	}
	if head < s.cfg.BlockConfirmations {
		return 0, nil
	}
	return head - s.cfg.BlockConfirmations, nil
}

// FetchSince returns all questions in (from, latest] together with the latest height.
func (s *QuestionSource) FetchSince(ctx context.Context, from uint64) ([]*entity.Question, uint64, error) {
	latest, err := s.LatestHeight(ctx)
	if err != nil {
		return nil, 0, err
	}
	if latest <= from {
		return nil, latest, nil
	}
	questions, err := s.FetchRange(ctx, from+1, latest)
	if err != nil {
		return nil, 0, err
	}
	return questions, latest, nil
}

// FetchRange returns all questions emitted in [from, to] ordered by (block, log index).
// Partial results are never returned.
func (s *QuestionSource) FetchRange(ctx context.Context, from, to uint64) ([]*entity.Question, error) {
	var questions []*entity.Question
	for start := from; start <= to; {
		end := start + s.cfg.MaxBlockRangeSize - 1
		if end > to || end < start {
			end = to
		}
		batch, err := s.fetchChunk(ctx, start, end)
		if err != nil {
			return nil, err
		}
		questions = append(questions, batch...)
		if end == to {
			break
		}
		start = end + 1
	}
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].Before(questions[j])
	})
	s.logger.WithFields(logrus.Fields{
		"count":      len(questions),
		"from_block": from,
		"to_block":   to,
	}).Debug("fetched questions in range")
	return questions, nil
}

func (s *QuestionSource) fetchChunk(ctx context.Context, from, to uint64) ([]*entity.Question, error) {
	q := s.filterQuery()
	q.FromBlock = new(big.Int).SetUint64(from)
	q.ToBlock = new(big.Int).SetUint64(to)

	var logs []types.Log
	var err error
	if s.cfg.SafeLogsRequest {
		logs, err = s.client.FilterLogsSafe(ctx, q)
	} else {
		logs, err = s.client.FilterLogs(ctx, q)
	}
	if err != nil {
		return nil, fmt.Errorf("can't fetch logs in range [%d, %d]: %v: %w", from, to, err, ErrRetrieval)
	}

	questions := make([]*entity.Question, 0, len(logs))
	for i := range logs {
		if logs[i].Removed {
			continue
		}
		question, err := s.decode(&logs[i])
		if err != nil {
			return nil, err
		}
		if question != nil {
			questions = append(questions, question)
		}
	}
	return questions, nil
}

func (s *QuestionSource) filterQuery() ethereum.FilterQuery {
	return ethereum.FilterQuery{
		Addresses: []common.Address{s.cfg.Address},
		Topics:    [][]common.Hash{{oracleabi.NewQuestionEventSignature}},
	}
}

// decode returns nil for logs that are not NewQuestion events of the watched contract.
func (s *QuestionSource) decode(log *types.Log) (*entity.Question, error) {
	if log.Address != s.cfg.Address {
		return nil, nil
	}
	event, data, err := s.contract.ParseLog(log)
	if err != nil {
		return nil, fmt.Errorf("can't parse log %d in tx %s: %v: %w", log.Index, log.TxHash, err, ErrRetrieval)
	}
	if event != oracleabi.NewQuestion {
		return nil, nil
	}
	user, ok := data["user"].(common.Address)
	if !ok {
		return nil, fmt.Errorf("unexpected user type %T in tx %s: %w", data["user"], log.TxHash, ErrRetrieval)
	}
	text, ok := data["question"].(string)
	if !ok {
		return nil, fmt.Errorf("unexpected question type %T in tx %s: %w", data["question"], log.TxHash, ErrRetrieval)
	}
	return &entity.Question{
		ChainID:         s.client.ChainID(),
		Contract:        log.Address,
		BlockNumber:     log.BlockNumber,
		LogIndex:        log.Index,
		TransactionHash: log.TxHash,
		User:            user,
		Text:            text,
	}, nil
}

// Subscribe listens for new questions until ctx is done or the subscription fails.
// Only websocket and ipc endpoints support subscriptions.
func (s *QuestionSource) Subscribe(ctx context.Context, notify func(*entity.Question)) error {
	ch := make(chan types.Log, 16)
	sub, err := s.client.SubscribeFilterLogs(ctx, s.filterQuery(), ch)
	if err != nil {
		return fmt.Errorf("can't subscribe to logs: %v: %w", err, ErrRetrieval)
	}
	defer sub.Unsubscribe()

	s.logger.Info("subscribed to new questions")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err = <-sub.Err():
			if err == nil {
				return ErrSubscriptionClosed
			}
			return fmt.Errorf("%v: %w", err, ErrSubscriptionClosed)
		case log := <-ch:
			if log.Removed {
				continue
			}
			question, err := s.decode(&log)
			if err != nil {
				s.logger.WithError(err).Warn("can't decode live log")
				continue
			}
			if question != nil {
				notify(question)
			}
		}
	}
}
