package domain

import "context"

// Store is the collection-oriented record contract every persistence backend implements.
// Get returns ErrNotFound for a missing id; unreachable backends return ErrBackendUnavailable.
type Store interface {
	List(ctx context.Context, collection string) ([]Record, error)
	Get(ctx context.Context, collection, id string) (Record, error)
	Put(ctx context.Context, collection string, rec Record) error
	Delete(ctx context.Context, collection, id string) (bool, error)
	Ping(ctx context.Context) error
}

// LocalStorage is the durable local cache port (preferences, cached session, token)
type LocalStorage interface {
	Read(key string) ([]byte, bool, error)
	Write(key string, value []byte) error
	Remove(key string) error
	Clear() error
}
