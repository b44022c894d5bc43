package contract

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/question-oracle/contract/oracleabi"
	"github.com/omni/question-oracle/ethclient"
)

type OracleContract struct {
	*Contract
}

func NewOracleContract(client ethclient.Client, addr common.Address) *OracleContract {
	return &OracleContract{NewContract(client, addr, oracleabi.OracleABI)}
}

// OracleAddress returns the only account allowed to call provideAnswer.
func (c *OracleContract) OracleAddress(ctx context.Context) (common.Address, error) {
	res, err := c.Call(ctx, oracleabi.OracleAddressMethod)
	if err != nil {
		return common.Address{}, fmt.Errorf("cannot obtain oracle address: %w", err)
	}
	if len(res) != 1 {
		return common.Address{}, fmt.Errorf("unexpected %s() result size %d", oracleabi.OracleAddressMethod, len(res))
	}
	addr, ok := res[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected %s() result type %T", oracleabi.OracleAddressMethod, res[0])
	}
	return addr, nil
}

func (c *OracleContract) UserResponse(ctx context.Context, user common.Address) (string, error) {
	res, err := c.Call(ctx, oracleabi.UserResponsesMethod, user)
	if err != nil {
		return "", fmt.Errorf("cannot obtain user response: %w", err)
	}
	if len(res) != 1 {
		return "", fmt.Errorf("unexpected %s() result size %d", oracleabi.UserResponsesMethod, len(res))
	}
	answer, ok := res[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected %s() result type %T", oracleabi.UserResponsesMethod, res[0])
	}
	return answer, nil
}

func (c *OracleContract) ProvideAnswerCalldata(user common.Address, answer string) ([]byte, error) {
	return c.Pack(oracleabi.ProvideAnswerMethod, user, answer)
}
