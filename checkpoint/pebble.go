package checkpoint

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"
)

var lastProcessedBlockKey = []byte("last_processed_block")

// PebbleStore keeps the checkpoint under a single key of an embedded pebble database.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(storeDir string) (*PebbleStore, error) {
	db, err := pebble.Open(filepath.Join(storeDir, "checkpoint-store"), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble db: %v: %w", err, ErrStorage)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Load(_ context.Context) (uint64, error) {
	value, closer, err := s.db.Get(lastProcessedBlockKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("getting last processed block: %v: %w", err, ErrStorage)
	}
	defer closer.Close()

	if len(value) != 8 {
		return 0, fmt.Errorf("last processed block value has %d bytes: %w", len(value), ErrCorrupted)
	}
	return binary.BigEndian.Uint64(value), nil
}

func (s *PebbleStore) Save(_ context.Context, height uint64) error {
	value := binary.BigEndian.AppendUint64(nil, height)
	if err := s.db.Set(lastProcessedBlockKey, value, pebble.Sync); err != nil {
		return fmt.Errorf("setting last processed block: %v: %w", err, ErrStorage)
	}
	return nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}
