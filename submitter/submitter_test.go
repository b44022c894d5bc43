package submitter_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/omni/question-oracle/contract/oracleabi"
	"github.com/omni/question-oracle/ethclient/mocks"
	"github.com/omni/question-oracle/submitter"
	"github.com/omni/question-oracle/utils"
)

const testPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	contractAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	oracleAddr   = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	userAddr     = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

func newSubmitter(t *testing.T, client *mocks.MockClient, cfg submitter.Config) *submitter.Submitter {
	t.Helper()
	key, err := utils.ParsePrivateKey(testPrivateKey)
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	cfg.ContractAddress = contractAddr
	cfg.PrivateKey = key
	return submitter.NewSubmitter(logger, client, cfg)
}

func expectedCalldata(t *testing.T, answer string) []byte {
	t.Helper()
	data, err := oracleabi.OracleABI.Pack(oracleabi.ProvideAnswerMethod, userAddr, answer)
	require.NoError(t, err)
	return data
}

func estimateCall(data []byte) interface{} {
	return mock.MatchedBy(func(msg ethereum.CallMsg) bool {
		return msg.From == oracleAddr && msg.To != nil && *msg.To == contractAddr && string(msg.Data) == string(data)
	})
}

func TestSubmitter_Submit_DynamicFee(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(1337)
	data := expectedCalldata(t, "4")
	client.On("PendingNonceAt", mock.Anything, oracleAddr).Return(uint64(7), nil).Once()
	client.On("EstimateGas", mock.Anything, estimateCall(data)).Return(uint64(30000), nil).Once()
	client.On("HeaderByNumber", mock.Anything, (*big.Int)(nil)).Return(&types.Header{BaseFee: big.NewInt(10)}, nil).Once()
	client.On("SuggestGasTipCap", mock.Anything).Return(big.NewInt(2), nil).Once()

	var sent *types.Transaction
	client.On("SendTransaction", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		sent = args.Get(1).(*types.Transaction)
	}).Return(nil).Once()

	s := newSubmitter(t, client, submitter.Config{GasLimitMultiplier: 1.5})
	tx, err := s.Submit(t.Context(), userAddr, "4")
	require.NoError(t, err)
	require.NotNil(t, sent)
	require.Equal(t, sent.Hash(), tx.Hash())

	require.EqualValues(t, types.DynamicFeeTxType, sent.Type())
	require.EqualValues(t, 7, sent.Nonce())
	require.EqualValues(t, 45000, sent.Gas())
	require.EqualValues(t, 2, sent.GasTipCap().Int64())
	require.EqualValues(t, 22, sent.GasFeeCap().Int64())
	require.EqualValues(t, 1337, sent.ChainId().Int64())
	require.Equal(t, contractAddr, *sent.To())
	require.Equal(t, data, sent.Data())

	sender, err := types.Sender(client.Signer(), sent)
	require.NoError(t, err)
	require.Equal(t, oracleAddr, sender)
	client.AssertExpectations(t)
}

func TestSubmitter_Submit_Legacy(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(1337)
	client.On("PendingNonceAt", mock.Anything, oracleAddr).Return(uint64(0), nil).Once()
	client.On("EstimateGas", mock.Anything, mock.Anything).Return(uint64(30000), nil).Once()
	client.On("HeaderByNumber", mock.Anything, (*big.Int)(nil)).Return(&types.Header{}, nil).Once()
	client.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(1000000000), nil).Once()
	client.On("SendTransaction", mock.Anything, mock.MatchedBy(func(tx *types.Transaction) bool {
		return tx.Type() == types.LegacyTxType && tx.Gas() == 30000 && tx.GasPrice().Int64() == 1000000000
	})).Return(nil).Once()

	s := newSubmitter(t, client, submitter.Config{GasLimitMultiplier: 1})
	_, err := s.Submit(t.Context(), userAddr, "4")
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestSubmitter_Submit_Errors(t *testing.T) {
	t.Parallel()

	t.Run("gas estimation failure is not signed", func(t *testing.T) {
		t.Parallel()
		client := mocks.NewMockClient(1337)
		client.On("PendingNonceAt", mock.Anything, oracleAddr).Return(uint64(0), nil).Once()
		client.On("EstimateGas", mock.Anything, mock.Anything).Return(uint64(0), errors.New("execution reverted: only oracle")).Once()

		_, err := newSubmitter(t, client, submitter.Config{}).Submit(t.Context(), userAddr, "4")
		require.ErrorIs(t, err, submitter.ErrGasEstimation)
		require.ErrorContains(t, err, "only oracle")
		client.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)
	})

	t.Run("nonce failure", func(t *testing.T) {
		t.Parallel()
		client := mocks.NewMockClient(1337)
		client.On("PendingNonceAt", mock.Anything, oracleAddr).Return(uint64(0), context.DeadlineExceeded).Once()

		_, err := newSubmitter(t, client, submitter.Config{}).Submit(t.Context(), userAddr, "4")
		require.ErrorIs(t, err, submitter.ErrNonce)
		client.AssertNotCalled(t, "EstimateGas", mock.Anything, mock.Anything)
	})

	t.Run("rejected by node", func(t *testing.T) {
		t.Parallel()
		client := mocks.NewMockClient(1337)
		client.On("PendingNonceAt", mock.Anything, oracleAddr).Return(uint64(0), nil).Once()
		client.On("EstimateGas", mock.Anything, mock.Anything).Return(uint64(30000), nil).Once()
		client.On("HeaderByNumber", mock.Anything, (*big.Int)(nil)).Return(&types.Header{}, nil).Once()
		client.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(1), nil).Once()
		client.On("SendTransaction", mock.Anything, mock.Anything).Return(errors.New("insufficient funds for gas * price + value")).Once()

		_, err := newSubmitter(t, client, submitter.Config{}).Submit(t.Context(), userAddr, "4")
		require.ErrorIs(t, err, submitter.ErrSubmission)
		require.ErrorContains(t, err, "insufficient funds")
	})
}

func TestSubmitter_Submit_WaitReceipt(t *testing.T) {
	t.Parallel()

	prepare := func(client *mocks.MockClient) {
		client.On("PendingNonceAt", mock.Anything, oracleAddr).Return(uint64(0), nil).Once()
		client.On("EstimateGas", mock.Anything, mock.Anything).Return(uint64(30000), nil).Once()
		client.On("HeaderByNumber", mock.Anything, (*big.Int)(nil)).Return(&types.Header{}, nil).Once()
		client.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(1), nil).Once()
		client.On("SendTransaction", mock.Anything, mock.Anything).Return(nil).Once()
	}
	cfg := submitter.Config{
		WaitReceipt:         true,
		ReceiptTimeout:      time.Second,
		ReceiptPollInterval: time.Millisecond,
	}

	t.Run("mined", func(t *testing.T) {
		t.Parallel()
		client := mocks.NewMockClient(1337)
		prepare(client)
		client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(nil, ethereum.NotFound).Once()
		client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(&types.Receipt{
			Status:      types.ReceiptStatusSuccessful,
			BlockNumber: big.NewInt(101),
		}, nil).Once()

		_, err := newSubmitter(t, client, cfg).Submit(t.Context(), userAddr, "4")
		require.NoError(t, err)
		client.AssertExpectations(t)
	})

	t.Run("reverted", func(t *testing.T) {
		t.Parallel()
		client := mocks.NewMockClient(1337)
		prepare(client)
		client.On("TransactionReceipt", mock.Anything, mock.Anything).Return(&types.Receipt{
			Status:      types.ReceiptStatusFailed,
			BlockNumber: big.NewInt(101),
		}, nil).Once()

		tx, err := newSubmitter(t, client, cfg).Submit(t.Context(), userAddr, "4")
		require.ErrorIs(t, err, submitter.ErrSubmission)
		require.NotNil(t, tx)
	})
}

type nonceTrackingClient struct {
	*mocks.MockClient
	mu      sync.Mutex
	pending uint64
	sent    map[uint64]int
}

func (c *nonceTrackingClient) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending, nil
}

func (c *nonceTrackingClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	time.Sleep(5 * time.Millisecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent[tx.Nonce()]++
	c.pending = tx.Nonce() + 1
	return nil
}

func TestSubmitter_Submit_SerializesNonces(t *testing.T) {
	t.Parallel()

	mockClient := mocks.NewMockClient(1337)
	mockClient.On("EstimateGas", mock.Anything, mock.Anything).Return(uint64(30000), nil)
	mockClient.On("HeaderByNumber", mock.Anything, (*big.Int)(nil)).Return(&types.Header{}, nil)
	mockClient.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(1), nil)
	client := &nonceTrackingClient{MockClient: mockClient, sent: make(map[uint64]int)}

	key, err := utils.ParsePrivateKey(testPrivateKey)
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	s := submitter.NewSubmitter(logger, client, submitter.Config{ContractAddress: contractAddr, PrivateKey: key})

	const n = 5
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Submit(context.Background(), userAddr, "4")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, client.sent, n)
	for nonce, count := range client.sent {
		require.Less(t, nonce, uint64(n))
		require.Equal(t, 1, count)
	}
}

func TestSubmitter_VerifyOracle(t *testing.T) {
	t.Parallel()

	client := mocks.NewMockClient(1337)
	s := newSubmitter(t, client, submitter.Config{})
	require.Equal(t, oracleAddr, s.Address())

	ok, err := oracleabi.OracleABI.Methods[oracleabi.OracleAddressMethod].Outputs.Pack(oracleAddr)
	require.NoError(t, err)
	other, err := oracleabi.OracleABI.Methods[oracleabi.OracleAddressMethod].Outputs.Pack(userAddr)
	require.NoError(t, err)
	client.On("CallContract", mock.Anything, mock.Anything).Return(ok, nil).Once()
	client.On("CallContract", mock.Anything, mock.Anything).Return(other, nil).Once()

	require.NoError(t, s.VerifyOracle(t.Context()))
	require.ErrorIs(t, s.VerifyOracle(t.Context()), submitter.ErrOracleAddress)
}
