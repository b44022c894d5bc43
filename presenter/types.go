package presenter

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/question-oracle/oracle"
)

type StatusResult struct {
	ChainID  string         `json:"chainId"`
	Contract common.Address `json:"contract"`
	Oracle   common.Address `json:"oracle"`
	oracle.Status
}

type QuestionInfo struct {
	BlockNumber     uint64      `json:"blockNumber"`
	LogIndex        uint        `json:"logIndex"`
	TransactionHash common.Hash `json:"transactionHash"`
	Text            string      `json:"text"`
}

type AnswerInfo struct {
	User     common.Address `json:"user"`
	Question *QuestionInfo  `json:"question"`
	Answer   string         `json:"answer"`
	TxHash   common.Hash    `json:"txHash"`
	Nonce    uint64         `json:"nonce"`
	Link     string         `json:"link"`
	SentAt   *time.Time     `json:"sentAt,omitempty"`
}
