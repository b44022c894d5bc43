package oracleabi_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omni/question-oracle/contract/oracleabi"
)

func TestEventSignatures(t *testing.T) {
	t.Parallel()

	require.NotZero(t, oracleabi.NewQuestionEventSignature)
	require.Equal(t, oracleabi.NewQuestion, oracleabi.OracleABI.Events[oracleabi.NewQuestionEventName].String())
	require.Equal(t, oracleabi.NewQuestionEventSignature, oracleabi.OracleABI.Events[oracleabi.NewQuestionEventName].ID)
	require.Contains(t, oracleabi.OracleABI.Methods, oracleabi.ProvideAnswerMethod)
	require.Contains(t, oracleabi.OracleABI.Methods, oracleabi.OracleAddressMethod)
}
