package state

import "context"

// Store is the durable key/value surface backing the idle-balance series.
// Values are replaced wholesale; concurrent writers are last-writer-wins.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}
