package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/twin3/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// FlagStore implements ports.FlagStore as plain Redis strings.
// Flags do not expire: they outlive any single conversation.
type FlagStore struct {
	client *backend.Client
	prefix string
}

// NewFlagStore creates a flag store writing under prefix + "flag:".
func NewFlagStore(client *backend.Client, prefix string) *FlagStore {
	return &FlagStore{client: client, prefix: prefix}
}

func (f *FlagStore) key(k string) string {
	return f.prefix + "flag:" + k
}

func (f *FlagStore) Get(ctx context.Context, key string) (string, error) {
	val, err := f.client.Get(ctx, f.key(key)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return "", domain.ErrFlagNotFound
		}
		return "", fmt.Errorf("failed to get flag: %w", err)
	}
	return val, nil
}

func (f *FlagStore) Set(ctx context.Context, key, value string) error {
	if err := f.client.Set(ctx, f.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set flag: %w", err)
	}
	return nil
}
