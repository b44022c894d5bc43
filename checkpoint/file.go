package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"
)

// FileStore keeps the checkpoint as decimal ASCII text in a single file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(_ context.Context) (uint64, error) {
	blob, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("can't read checkpoint file %s: %v: %w", s.path, err, ErrStorage)
	}
	raw := strings.TrimSpace(string(blob))
	height, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("checkpoint file %s contains %q: %w", s.path, raw, ErrCorrupted)
	}
	return height, nil
}

// Save replaces the checkpoint file with a fully written and synced temporary
// file from the same directory.
func (s *FileStore) Save(_ context.Context, height uint64) error {
	if err := renameio.WriteFile(s.path, []byte(strconv.FormatUint(height, 10)), 0o644); err != nil {
		return fmt.Errorf("can't write checkpoint file %s: %v: %w", s.path, err, ErrStorage)
	}
	return nil
}
