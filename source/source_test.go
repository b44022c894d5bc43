package source_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/omni/question-oracle/contract/oracleabi"
	"github.com/omni/question-oracle/entity"
	"github.com/omni/question-oracle/ethclient/mocks"
	"github.com/omni/question-oracle/source"
)

var (
	contractAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	userA        = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	userB        = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

func userTopic(user common.Address) common.Hash {
	return common.BytesToHash(user.Bytes())
}

func newQuestionLog(t *testing.T, block uint64, index uint, user common.Address, question string) types.Log {
	t.Helper()
	data, err := oracleabi.OracleABI.Events[oracleabi.NewQuestionEventName].Inputs.NonIndexed().Pack(question)
	require.NoError(t, err)
	return types.Log{
		Address:     contractAddr,
		Topics:      []common.Hash{oracleabi.NewQuestionEventSignature, userTopic(user)},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(common.Big1),
		Index:       index,
	}
}

func rangeQuery(from, to uint64) interface{} {
	return mock.MatchedBy(func(q ethereum.FilterQuery) bool {
		return q.FromBlock.Uint64() == from && q.ToBlock.Uint64() == to &&
			len(q.Addresses) == 1 && q.Addresses[0] == contractAddr
	})
}

func newSource(client *mocks.MockClient, cfg source.Config) *source.QuestionSource {
	logger, _ := test.NewNullLogger()
	cfg.Address = contractAddr
	return source.NewQuestionSource(logger, client, cfg)
}

func TestQuestionSource_LatestHeight(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(1337)
	client.On("BlockNumber", mock.Anything).Return(uint64(110), nil).Once()
	client.On("BlockNumber", mock.Anything).Return(uint64(3), nil).Once()
	client.On("BlockNumber", mock.Anything).Return(uint64(0), errors.New("connection refused")).Once()
	s := newSource(client, source.Config{BlockConfirmations: 10})

	latest, err := s.LatestHeight(t.Context())
	require.NoError(t, err)
	require.EqualValues(t, 100, latest)

	latest, err = s.LatestHeight(t.Context())
	require.NoError(t, err)
	require.Zero(t, latest)

	_, err = s.LatestHeight(t.Context())
	require.ErrorIs(t, err, source.ErrRetrieval)
	client.AssertExpectations(t)
}

func TestQuestionSource_FetchRange(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(1337)
	removed := newQuestionLog(t, 12, 0, userB, "reorged")
	removed.Removed = true
	client.On("FilterLogs", mock.Anything, rangeQuery(10, 14)).Return([]types.Log{
		newQuestionLog(t, 12, 5, userB, "second"),
		removed,
		newQuestionLog(t, 12, 1, userA, "first"),
	}, nil).Once()
	client.On("FilterLogs", mock.Anything, rangeQuery(15, 17)).Return([]types.Log{
		newQuestionLog(t, 15, 0, userA, "third"),
	}, nil).Once()
	s := newSource(client, source.Config{MaxBlockRangeSize: 5})

	questions, err := s.FetchRange(t.Context(), 10, 17)
	require.NoError(t, err)
	require.Len(t, questions, 3)
	require.Equal(t, &entity.Question{
		ChainID:         "1337",
		Contract:        contractAddr,
		BlockNumber:     12,
		LogIndex:        1,
		TransactionHash: common.BigToHash(common.Big1),
		User:            userA,
		Text:            "first",
	}, questions[0])
	require.Equal(t, "second", questions[1].Text)
	require.Equal(t, userB, questions[1].User)
	require.Equal(t, "third", questions[2].Text)
	client.AssertExpectations(t)
}

func TestQuestionSource_FetchRange_Safe(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(1337)
	client.On("FilterLogsSafe", mock.Anything, rangeQuery(1, 1)).Return([]types.Log{}, nil).Once()
	s := newSource(client, source.Config{SafeLogsRequest: true})

	questions, err := s.FetchRange(t.Context(), 1, 1)
	require.NoError(t, err)
	require.Empty(t, questions)
	client.AssertExpectations(t)
}

func TestQuestionSource_FetchRange_Errors(t *testing.T) {
	t.Parallel()

	t.Run("failed chunk discards everything", func(t *testing.T) {
		t.Parallel()
		client := mocks.NewMockClient(1337)
		client.On("FilterLogs", mock.Anything, rangeQuery(1, 2)).Return([]types.Log{
			newQuestionLog(t, 1, 0, userA, "q"),
		}, nil).Once()
		client.On("FilterLogs", mock.Anything, rangeQuery(3, 4)).Return(nil, context.DeadlineExceeded).Once()
		s := newSource(client, source.Config{MaxBlockRangeSize: 2})

		questions, err := s.FetchRange(t.Context(), 1, 4)
		require.ErrorIs(t, err, source.ErrRetrieval)
		require.Nil(t, questions)
	})

	t.Run("undecodable log", func(t *testing.T) {
		t.Parallel()
		client := mocks.NewMockClient(1337)
		broken := newQuestionLog(t, 1, 0, userA, "q")
		broken.Data = []byte{0x01}
		client.On("FilterLogs", mock.Anything, rangeQuery(1, 1)).Return([]types.Log{broken}, nil).Once()
		s := newSource(client, source.Config{})

		_, err := s.FetchRange(t.Context(), 1, 1)
		require.ErrorIs(t, err, source.ErrRetrieval)
	})
}

func TestQuestionSource_FetchSince(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(1337)
	client.On("BlockNumber", mock.Anything).Return(uint64(100), nil).Once()
	s := newSource(client, source.Config{})

	questions, latest, err := s.FetchSince(t.Context(), 100)
	require.NoError(t, err)
	require.Empty(t, questions)
	require.EqualValues(t, 100, latest)

	client.On("BlockNumber", mock.Anything).Return(uint64(105), nil).Once()
	client.On("FilterLogs", mock.Anything, rangeQuery(101, 105)).Return([]types.Log{
		newQuestionLog(t, 103, 0, userA, "What is 2+2?"),
	}, nil).Once()

	questions, latest, err = s.FetchSince(t.Context(), 100)
	require.NoError(t, err)
	require.Len(t, questions, 1)
	require.EqualValues(t, 105, latest)
	require.Equal(t, "What is 2+2?", questions[0].Text)
	client.AssertExpectations(t)
}

func TestQuestionSource_Subscribe(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(1337)
	sub := event.NewSubscription(func(quit <-chan struct{}) error {
		<-quit
		return nil
	})
	live := newQuestionLog(t, 200, 0, userA, "live")
	client.On("SubscribeFilterLogs", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ch := args.Get(2).(chan<- types.Log)
			go func() { ch <- live }()
		}).
		Return(sub, nil).Once()
	s := newSource(client, source.Config{})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	var got []*entity.Question
	err := s.Subscribe(ctx, func(q *entity.Question) {
		got = append(got, q)
		cancel()
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "live", got[0].Text)
	require.EqualValues(t, 200, got[0].BlockNumber)
}

func TestQuestionSource_Subscribe_Unsupported(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(1337)
	client.On("SubscribeFilterLogs", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("notifications not supported")).Once()
	s := newSource(client, source.Config{})

	err := s.Subscribe(t.Context(), func(*entity.Question) {})
	require.ErrorIs(t, err, source.ErrRetrieval)
}
