package oracle

import (
	"context"
	"fmt"

	"github.com/omni/question-oracle/answer"
	"github.com/omni/question-oracle/config"
	"github.com/omni/question-oracle/ethclient"
	"github.com/omni/question-oracle/logging"
	"github.com/omni/question-oracle/source"
	"github.com/omni/question-oracle/submitter"
)

// Services are the chain and completion collaborators built from the config.
type Services struct {
	Client    ethclient.Client
	Source    *source.QuestionSource
	Answerer  *answer.OpenAIProvider
	Submitter *submitter.Submitter
}

func NewServices(ctx context.Context, logger logging.Logger, cfg *config.Config) (*Services, error) {
	client, err := ethclient.NewClient(cfg.Chain.RPC.Host, cfg.Chain.RPC.Timeout, cfg.Chain.ChainID)
	if err != nil {
		return nil, fmt.Errorf("can't dial rpc client: %w", err)
	}
	key, err := cfg.OracleKey()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("can't parse oracle key: %w", err)
	}

	s := &Services{
		Client: client,
		Source: source.NewQuestionSource(logger.WithField("service", "source"), client, source.Config{
			Address:            cfg.Oracle.ContractAddress,
			BlockConfirmations: cfg.Chain.BlockConfirmations,
			MaxBlockRangeSize:  cfg.Chain.MaxBlockRangeSize,
			SafeLogsRequest:    cfg.Chain.SafeLogsRequest,
		}),
		Answerer: answer.NewOpenAIProvider(logger.WithField("service", "answer"), answer.Config{
			BaseURL: cfg.Completion.BaseURL,
			APIKey:  cfg.Completion.APIKey,
			Model:   cfg.Completion.Model,
			Timeout: cfg.Completion.Timeout,
		}),
		Submitter: submitter.NewSubmitter(logger.WithField("service", "submitter"), client, submitter.Config{
			ContractAddress:    cfg.Oracle.ContractAddress,
			PrivateKey:         key,
			GasLimitMultiplier: cfg.Oracle.GasLimitMultiplier,
			WaitReceipt:        cfg.Oracle.WaitReceipt,
			ReceiptTimeout:     cfg.Oracle.ReceiptTimeout,
		}),
	}

	if err = s.Submitter.VerifyOracle(ctx); err != nil {
		logger.WithError(err).Warn("oracle account check failed, answers are likely to be rejected")
	}
	return s, nil
}

func (s *Services) Close() {
	s.Client.Close()
}
