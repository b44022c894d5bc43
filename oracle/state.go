package oracle

import (
	"time"
)

type State int32

const (
	StateIdle State = iota
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CycleResult describes a finished cycle.
type CycleResult struct {
	// From is the checkpoint the cycle started with.
	From uint64
	// Latest is the confirmed chain head, 0 when it could not be fetched.
	Latest uint64
	// Checkpoint is the value persisted at the end of the cycle.
	Checkpoint uint64
	Fetched    int
	Processed  int
	// Skipped counts questions left out by ProcessRange as already answered.
	Skipped int
}

// Status is a snapshot of the loop exposed to the status API.
type Status struct {
	State       State     `json:"state"`
	Checkpoint  uint64    `json:"checkpoint"`
	LatestBlock uint64    `json:"latestBlock"`
	Cycles      uint64    `json:"cycles"`
	Answered    uint64    `json:"answered"`
	LastCycleAt time.Time `json:"lastCycleAt"`
	LastError   string    `json:"lastError,omitempty"`
}
