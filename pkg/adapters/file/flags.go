package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aretw0/twin3/pkg/domain"
)

// FlagStore implements ports.FlagStore as a single JSON object on disk.
// It is safe for concurrent use within one process.
type FlagStore struct {
	path string
	mu   sync.Mutex
}

// NewFlagStore stores flags in dir/flags.json.
func NewFlagStore(dir string) *FlagStore {
	if dir == "" {
		dir = ".twin3"
	}
	return &FlagStore{path: filepath.Join(dir, "flags.json")}
}

func (f *FlagStore) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	flags, err := f.read()
	if err != nil {
		return "", err
	}
	v, ok := flags[key]
	if !ok {
		return "", domain.ErrFlagNotFound
	}
	return v, nil
}

func (f *FlagStore) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	flags, err := f.read()
	if err != nil {
		return err
	}
	flags[key] = value

	data, err := json.MarshalIndent(flags, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal flags: %w", err)
	}
	return writeAtomic(filepath.Dir(f.path), f.path, data)
}

func (f *FlagStore) read() (map[string]string, error) {
	flags := map[string]string{}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return flags, nil
		}
		return nil, fmt.Errorf("failed to read flags: %w", err)
	}
	if err := json.Unmarshal(data, &flags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flags: %w", err)
	}
	return flags, nil
}
