package presenter

import (
	"fmt"

	"github.com/omni/question-oracle/entity"
)

var formats = map[string]string{
	"1":        "https://etherscan.io/tx/%s",
	"10":       "https://optimistic.etherscan.io/tx/%s",
	"56":       "https://bscscan.com/tx/%s",
	"100":      "https://gnosisscan.io/tx/%s",
	"137":      "https://polygonscan.com/tx/%s",
	"8453":     "https://basescan.org/tx/%s",
	"42161":    "https://arbiscan.io/tx/%s",
	"11155111": "https://sepolia.etherscan.io/tx/%s",
}

func answerToTxLink(answer *entity.Answer) string {
	if format, ok := formats[answer.ChainID]; ok {
		return fmt.Sprintf(format, answer.TransactionHash)
	}
	return answer.TransactionHash.String()
}

func answerToAnswerInfo(answer *entity.Answer) *AnswerInfo {
	return &AnswerInfo{
		User: answer.User,
		Question: &QuestionInfo{
			BlockNumber:     answer.BlockNumber,
			LogIndex:        answer.LogIndex,
			TransactionHash: answer.QuestionTransactionHash,
			Text:            answer.Question,
		},
		Answer: answer.Answer,
		TxHash: answer.TransactionHash,
		Nonce:  answer.Nonce,
		Link:   answerToTxLink(answer),
		SentAt: answer.CreatedAt,
	}
}
