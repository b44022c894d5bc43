package submitter

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/omni/question-oracle/contract"
	"github.com/omni/question-oracle/ethclient"
	"github.com/omni/question-oracle/logging"
	"github.com/omni/question-oracle/utils"
)

var (
	ErrEncoding      = errors.New("can't encode provideAnswer call")
	ErrNonce         = errors.New("can't obtain account nonce")
	ErrGasEstimation = errors.New("gas estimation failed")
	ErrSigning       = errors.New("can't sign transaction")
	ErrSubmission    = errors.New("transaction submission failed")
	ErrOracleAddress = errors.New("contract oracle address mismatch")
)

const (
	defaultReceiptTimeout      = 2 * time.Minute
	defaultReceiptPollInterval = 2 * time.Second
)

type Config struct {
	ContractAddress     common.Address
	PrivateKey          *ecdsa.PrivateKey
	GasLimitMultiplier  float64
	WaitReceipt         bool
	ReceiptTimeout      time.Duration
	ReceiptPollInterval time.Duration
}

// Submitter signs and sends provideAnswer transactions from the oracle account.
type Submitter struct {
	logger   logging.Logger
	client   ethclient.Client
	contract *contract.OracleContract
	key      *ecdsa.PrivateKey
	from     common.Address
	cfg      Config

	// mu serializes the nonce lookup with the broadcast of the transaction using it.
	mu sync.Mutex
}

func NewSubmitter(logger logging.Logger, client ethclient.Client, cfg Config) *Submitter {
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = defaultReceiptTimeout
	}
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = defaultReceiptPollInterval
	}
	from := utils.KeyAddress(cfg.PrivateKey)
	return &Submitter{
		logger: logger.WithFields(logrus.Fields{
			"chain_id": client.ChainID(),
			"contract": cfg.ContractAddress,
			"oracle":   from,
		}),
		client:   client,
		contract: contract.NewOracleContract(client, cfg.ContractAddress),
		key:      cfg.PrivateKey,
		from:     from,
		cfg:      cfg,
	}
}

func (s *Submitter) Address() common.Address {
	return s.from
}

// VerifyOracle checks that the contract accepts answers from the configured account.
func (s *Submitter) VerifyOracle(ctx context.Context) error {
	oracle, err := s.contract.OracleAddress(ctx)
	if err != nil {
		return err
	}
	if oracle != s.from {
		return fmt.Errorf("contract expects %s, configured account is %s: %w", oracle, s.from, ErrOracleAddress)
	}
	return nil
}

// Submit records the answer for the user on chain and returns the sent transaction.
// A transaction is also returned when it was sent, but the receipt wait failed.
func (s *Submitter) Submit(ctx context.Context, user common.Address, answer string) (*types.Transaction, error) {
	data, err := s.contract.ProvideAnswerCalldata(user, answer)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrEncoding)
	}

	tx, err := s.send(ctx, data)
	if err != nil {
		ObserveSubmission(s.client.ChainID(), err)
		return nil, err
	}
	logger := s.logger.WithFields(logrus.Fields{
		"tx_hash": tx.Hash(),
		"nonce":   tx.Nonce(),
		"gas":     tx.Gas(),
		"user":    user,
	})
	logger.Info("sent provideAnswer transaction")

	if s.cfg.WaitReceipt {
		if err = s.waitReceipt(ctx, logger, tx.Hash()); err != nil {
			ObserveSubmission(s.client.ChainID(), err)
			return tx, err
		}
	}
	ObserveSubmission(s.client.ChainID(), nil)
	return tx, nil
}

func (s *Submitter) send(ctx context.Context, data []byte) (*types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, err := s.client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrNonce)
	}

	to := s.cfg.ContractAddress
	gas, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
		From: s.from,
		To:   &to,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrGasEstimation)
	}
	if s.cfg.GasLimitMultiplier > 1 {
		gas = uint64(float64(gas) * s.cfg.GasLimitMultiplier)
	}

	txData, err := s.buildTxData(ctx, nonce, gas, to, data)
	if err != nil {
		return nil, err
	}
	tx, err := types.SignNewTx(s.key, s.client.Signer(), txData)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrSigning)
	}
	if err = s.client.SendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("can't send transaction %s: %v: %w", tx.Hash(), err, ErrSubmission)
	}
	return tx, nil
}

// buildTxData picks a dynamic fee transaction on chains with a base fee and a legacy one otherwise.
func (s *Submitter) buildTxData(ctx context.Context, nonce, gas uint64, to common.Address, data []byte) (types.TxData, error) {
	head, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("can't fetch latest header: %v: %w", err, ErrSubmission)
	}
	if head.BaseFee == nil {
		gasPrice, err := s.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("can't suggest gas price: %v: %w", err, ErrSubmission)
		}
		return &types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			To:       &to,
			Data:     data,
		}, nil
	}
	tip, err := s.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't suggest gas tip cap: %v: %w", err, ErrSubmission)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	return &types.DynamicFeeTx{
		ChainID:   s.client.Signer().ChainID(),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Data:      data,
	}, nil
}

// waitReceipt treats a transaction still pending after the timeout as submitted.
func (s *Submitter) waitReceipt(ctx context.Context, logger logging.Logger, hash common.Hash) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReceiptTimeout)
	defer cancel()

	for {
		receipt, err := s.client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("transaction %s reverted in block %s: %w", hash, receipt.BlockNumber, ErrSubmission)
			}
			logger.WithFields(logrus.Fields{
				"block_number": receipt.BlockNumber,
				"gas_used":     receipt.GasUsed,
			}).Info("provideAnswer transaction mined")
			return nil
		case !errors.Is(err, ethereum.NotFound):
			logger.WithError(err).Warn("can't fetch transaction receipt")
		}
		if utils.ContextSleep(ctx, s.cfg.ReceiptPollInterval) == nil {
			logger.Warn("transaction receipt not received in time, leaving it pending")
			return nil
		}
	}
}
