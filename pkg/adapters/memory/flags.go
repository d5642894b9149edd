package memory

import (
	"context"
	"sync"

	"github.com/aretw0/twin3/pkg/domain"
)

// FlagStore implements ports.FlagStore over a map.
type FlagStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewFlagStore creates an empty flag store.
func NewFlagStore() *FlagStore {
	return &FlagStore{data: make(map[string]string)}
}

func (f *FlagStore) Get(ctx context.Context, key string) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.data[key]
	if !ok {
		return "", domain.ErrFlagNotFound
	}
	return v, nil
}

func (f *FlagStore) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}
