package ethclient

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	ErrIncompatibleChainID = errors.New("rpc url returned incompatible chainID")
	ErrNodeIsNotSynced     = errors.New("node is not synced to the requested block")
	ErrInvalidLogsQuery    = errors.New("invalid logs filter query")
)

type Client interface {
	ChainID() string
	Signer() types.Signer
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, n *big.Int) (*types.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	FilterLogsSafe(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	Close()
}

type rpcClient struct {
	chainID   string
	url       string
	timeout   time.Duration
	rawClient *rpc.Client
	client    *ethclient.Client
	signer    types.Signer
}

// NewClient dials the node and verifies that it serves the expected chain.
// An empty chainID accepts whatever the node reports.
func NewClient(url string, timeout time.Duration, chainID string) (Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	rawClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("can't dial JSON rpc url: %w", err)
	}
	client := &rpcClient{
		url:       url,
		timeout:   timeout,
		rawClient: rawClient,
		client:    ethclient.NewClient(rawClient),
	}
	rpcChainID, err := client.client.ChainID(ctx)
	if err != nil {
		rawClient.Close()
		return nil, fmt.Errorf("can't get chainID: %w", err)
	}
	if chainID != "" && rpcChainID.String() != chainID {
		rawClient.Close()
		return nil, fmt.Errorf("received chainID %s != expected %s: %w", rpcChainID, chainID, ErrIncompatibleChainID)
	}
	client.chainID = rpcChainID.String()
	client.signer = types.NewLondonSigner(rpcChainID)
	return client, nil
}

func (c *rpcClient) ChainID() string {
	return c.chainID
}

func (c *rpcClient) Signer() types.Signer {
	return c.signer
}

func (c *rpcClient) Close() {
	c.rawClient.Close()
}

func (c *rpcClient) BlockNumber(ctx context.Context) (uint64, error) {
	defer ObserveDuration(c.chainID, c.url, "eth_blockNumber")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	n, err := c.client.BlockNumber(ctx)
	ObserveError(c.chainID, c.url, "eth_blockNumber", err)
	return n, err
}

func (c *rpcClient) HeaderByNumber(ctx context.Context, n *big.Int) (*types.Header, error) {
	defer ObserveDuration(c.chainID, c.url, "eth_getBlockByNumber")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	header, err := c.client.HeaderByNumber(ctx, n)
	ObserveError(c.chainID, c.url, "eth_getBlockByNumber", err)
	return header, err
}

func (c *rpcClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	defer ObserveDuration(c.chainID, c.url, "eth_getLogs")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	logs, err := c.client.FilterLogs(ctx, q)
	ObserveError(c.chainID, c.url, "eth_getLogs", err)
	return logs, err
}

// FilterLogsSafe is the same as FilterLogs, but makes an additional eth_blockNumber
// request to ensure that the node behind RPC is synced to the needed point.
func (c *rpcClient) FilterLogsSafe(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	defer ObserveDuration(c.chainID, c.url, "eth_getLogsSafe")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var err error
	defer func() {
		ObserveError(c.chainID, c.url, "eth_getLogsSafe", err)
	}()

	var arg interface{}
	arg, err = toFilterArg(q)
	if err != nil {
		return nil, fmt.Errorf("can't encode filter argument: %w", err)
	}
	var logs []types.Log
	var blockNumber hexutil.Uint64
	batches := []rpc.BatchElem{
		{
			Method: "eth_getLogs",
			Args:   []interface{}{arg},
			Result: &logs,
		},
		{
			Method: "eth_blockNumber",
			Result: &blockNumber,
		},
	}
	err = c.rawClient.BatchCallContext(ctx, batches)
	if err != nil {
		return nil, fmt.Errorf("can't make batch request: %w", err)
	}
	if err = batches[0].Error; err != nil {
		return nil, fmt.Errorf("can't request logs: %w", err)
	}
	if err = batches[1].Error; err != nil {
		return nil, fmt.Errorf("can't request block number: %w", err)
	}
	if uint64(blockNumber) < q.ToBlock.Uint64() {
		err = ErrNodeIsNotSynced
		return nil, fmt.Errorf("current block %d is older than toBlock %s in the query: %w", blockNumber, q.ToBlock, err)
	}
	return logs, nil
}

// SubscribeFilterLogs is not bounded by the client timeout, the subscription
// lives until ctx is done or the connection drops.
func (c *rpcClient) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	sub, err := c.client.SubscribeFilterLogs(ctx, q, ch)
	ObserveError(c.chainID, c.url, "eth_subscribe", err)
	return sub, err
}

func (c *rpcClient) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	defer ObserveDuration(c.chainID, c.url, "eth_call")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.client.CallContract(ctx, msg, nil)
	ObserveError(c.chainID, c.url, "eth_call", err)
	return res, err
}

func (c *rpcClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	defer ObserveDuration(c.chainID, c.url, "eth_getTransactionCount")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	nonce, err := c.client.PendingNonceAt(ctx, account)
	ObserveError(c.chainID, c.url, "eth_getTransactionCount", err)
	return nonce, err
}

func (c *rpcClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	defer ObserveDuration(c.chainID, c.url, "eth_estimateGas")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	gas, err := c.client.EstimateGas(ctx, msg)
	ObserveError(c.chainID, c.url, "eth_estimateGas", err)
	return gas, err
}

func (c *rpcClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	defer ObserveDuration(c.chainID, c.url, "eth_gasPrice")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	price, err := c.client.SuggestGasPrice(ctx)
	ObserveError(c.chainID, c.url, "eth_gasPrice", err)
	return price, err
}

func (c *rpcClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	defer ObserveDuration(c.chainID, c.url, "eth_maxPriorityFeePerGas")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	tip, err := c.client.SuggestGasTipCap(ctx)
	ObserveError(c.chainID, c.url, "eth_maxPriorityFeePerGas", err)
	return tip, err
}

func (c *rpcClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	defer ObserveDuration(c.chainID, c.url, "eth_sendRawTransaction")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.client.SendTransaction(ctx, tx)
	ObserveError(c.chainID, c.url, "eth_sendRawTransaction", err)
	return err
}

func (c *rpcClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	defer ObserveDuration(c.chainID, c.url, "eth_getTransactionReceipt")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	receipt, err := c.client.TransactionReceipt(ctx, txHash)
	ObserveError(c.chainID, c.url, "eth_getTransactionReceipt", err)
	return receipt, err
}

func toFilterArg(q ethereum.FilterQuery) (interface{}, error) {
	arg := map[string]interface{}{
		"address": q.Addresses,
		"topics":  q.Topics,
	}
	if q.BlockHash != nil {
		return nil, ErrInvalidLogsQuery
	}
	if q.FromBlock == nil {
		arg["fromBlock"] = "0x0"
	} else {
		arg["fromBlock"] = hexutil.EncodeBig(q.FromBlock)
	}
	if q.ToBlock == nil || q.ToBlock.Sign() <= 0 {
		return nil, fmt.Errorf("only positive toBlock is supported: %w", ErrInvalidLogsQuery)
	}
	arg["toBlock"] = hexutil.EncodeBig(q.ToBlock)
	return arg, nil
}
