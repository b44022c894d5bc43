package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/omni/question-oracle/logging"
)

var (
	// ErrStorage is returned when the checkpoint can't be read or written.
	ErrStorage = errors.New("checkpoint storage error")
	// ErrCorrupted is returned when a persisted checkpoint is not a non-negative integer.
	ErrCorrupted = fmt.Errorf("corrupted checkpoint: %w", ErrStorage)
)

// Store persists the highest block that was fully processed.
type Store interface {
	// Load returns 0 when no checkpoint was saved before.
	Load(ctx context.Context) (uint64, error)
	// Save atomically replaces the checkpoint, a crash leaves either the old or the new value.
	Save(ctx context.Context, height uint64) error
}

// LoadOrReset loads the checkpoint and applies the reset policy for corrupted
// values: the corruption is logged, the checkpoint is explicitly reset to 0
// and scanning restarts from the first block.
func LoadOrReset(ctx context.Context, store Store, logger logging.Logger) (uint64, error) {
	height, err := store.Load(ctx)
	if err == nil {
		return height, nil
	}
	if !errors.Is(err, ErrCorrupted) {
		return 0, err
	}
	logger.WithError(err).Error("invalid checkpoint detected, resetting it to 0")
	if err = store.Save(ctx, 0); err != nil {
		return 0, fmt.Errorf("can't reset corrupted checkpoint: %w", err)
	}
	return 0, nil
}

// Monotonic wraps a store and skips saves that would not advance the last known value.
type Monotonic struct {
	Store
	last   uint64
	loaded bool
}

func NewMonotonic(store Store) *Monotonic {
	return &Monotonic{Store: store}
}

func (m *Monotonic) Load(ctx context.Context) (uint64, error) {
	height, err := m.Store.Load(ctx)
	if err != nil {
		return 0, err
	}
	m.last, m.loaded = height, true
	return height, nil
}

func (m *Monotonic) Save(ctx context.Context, height uint64) error {
	if m.loaded && height <= m.last {
		return nil
	}
	if err := m.Store.Save(ctx, height); err != nil {
		return err
	}
	m.last, m.loaded = height, true
	return nil
}
