package entity

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Question is a decoded NewQuestion event.
type Question struct {
	ChainID         string
	Contract        common.Address
	BlockNumber     uint64
	LogIndex        uint
	TransactionHash common.Hash
	User            common.Address
	Text            string
}

func (q *Question) Key() string {
	return fmt.Sprintf("%d/%d/%s", q.BlockNumber, q.LogIndex, q.User)
}

// Before reports whether q is ordered strictly before other by (block, log index).
func (q *Question) Before(other *Question) bool {
	return q.BlockNumber < other.BlockNumber || (q.BlockNumber == other.BlockNumber && q.LogIndex < other.LogIndex)
}
