package oracleabi

//nolint:golint
import (
	_ "embed"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/omni/question-oracle/contract/abi"
)

//go:embed oracle.json
var oracleJSONABI string

const (
	NewQuestion = "event NewQuestion(address indexed user, string question)"

	ProvideAnswerMethod  = "provideAnswer"
	OracleAddressMethod  = "oracleAddress"
	UserResponsesMethod  = "userResponses"
	NewQuestionEventName = "NewQuestion"
)

var (
	OracleABI = abi.MustReadABI(oracleJSONABI)

	NewQuestionEventSignature = crypto.Keccak256Hash([]byte("NewQuestion(address,string)"))
)
