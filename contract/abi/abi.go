package abi

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var ErrInvalidEvent = errors.New("invalid event")

type ABI struct {
	abi.ABI
}

func MustReadABI(rawJSON string) ABI {
	res, err := abi.JSON(strings.NewReader(rawJSON))
	if err != nil {
		panic(err)
	}
	return ABI{res}
}

func (a *ABI) FindMatchingEventABI(topics []common.Hash) *abi.Event {
	for _, e := range a.Events {
		if e.ID == topics[0] {
			indexed := Indexed(e.Inputs)
			if len(indexed) == len(topics)-1 {
				event := e
				return &event
			}
		}
	}
	return nil
}

// ParseLog returns the event signature and decoded arguments of the log.
// Logs of events missing in the ABI are skipped with empty results.
func (a *ABI) ParseLog(log *types.Log) (string, map[string]interface{}, error) {
	if len(log.Topics) == 0 {
		return "", nil, fmt.Errorf("cannot process event without topics: %w", ErrInvalidEvent)
	}
	event := a.FindMatchingEventABI(log.Topics)
	if event == nil {
		return "", nil, nil
	}

	res, err := DecodeEventLog(event, log.Topics, log.Data)
	if err != nil {
		return "", nil, fmt.Errorf("can't decode event log: %w", err)
	}
	return event.String(), res, nil
}

func Indexed(args abi.Arguments) abi.Arguments {
	var indexed abi.Arguments
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func DecodeEventLog(event *abi.Event, topics []common.Hash, data []byte) (map[string]interface{}, error) {
	indexed := Indexed(event.Inputs)
	values := make(map[string]interface{})
	if len(indexed) < len(event.Inputs) {
		if err := event.Inputs.UnpackIntoMap(values, data); err != nil {
			return nil, fmt.Errorf("can't unpack data: %w", err)
		}
	}
	if err := abi.ParseTopicsIntoMap(values, indexed, topics[1:]); err != nil {
		return nil, fmt.Errorf("can't unpack topics: %w", err)
	}
	return values, nil
}
