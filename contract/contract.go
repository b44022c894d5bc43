package contract

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/omni/question-oracle/contract/abi"
	"github.com/omni/question-oracle/ethclient"
)

type Contract struct {
	address common.Address
	client  ethclient.Client
	abi     abi.ABI
}

func NewContract(client ethclient.Client, addr common.Address, abi abi.ABI) *Contract {
	return &Contract{addr, client, abi}
}

func (c *Contract) Pack(method string, args ...interface{}) ([]byte, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("cannot encode abi calldata: %w", err)
	}
	return data, nil
}

func (c *Contract) Call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	res, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &c.address,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot call %s(...): %w", method, err)
	}
	values, err := c.abi.Unpack(method, res)
	if err != nil {
		return nil, fmt.Errorf("cannot decode %s(...) result: %w", method, err)
	}
	return values, nil
}

func (c *Contract) ParseLog(log *types.Log) (string, map[string]interface{}, error) {
	return c.abi.ParseLog(log)
}
