package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/onoacademic/campusid/internal/domain"
	"github.com/onoacademic/campusid/pkg/cache"
)

// MemoryStore is a process-local domain.Store.
// Records are held in their JSON form so reads have the same shape as the remote backends.
type MemoryStore struct {
	docs *cache.Cache[[]byte]
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: cache.New[[]byte]()}
}

func memoryKey(collection, id string) string {
	return collection + ":" + id
}

// List returns every record of collection ordered by id
func (s *MemoryStore) List(_ context.Context, collection string) ([]domain.Record, error) {
	keys := s.docs.Keys(collection + ":")
	slices.Sort(keys)
	out := make([]domain.Record, 0, len(keys))
	for _, key := range keys {
		data, ok := s.docs.Get(key)
		if !ok {
			continue
		}
		rec, err := decodeDocument(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", strings.TrimPrefix(key, collection+":"), err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Get returns the record or domain.ErrNotFound
func (s *MemoryStore) Get(_ context.Context, collection, id string) (domain.Record, error) {
	data, ok := s.docs.Get(memoryKey(collection, id))
	if !ok {
		return nil, domain.ErrNotFound
	}
	return decodeDocument(data)
}

// Put inserts or replaces the record under its id
func (s *MemoryStore) Put(_ context.Context, collection string, rec domain.Record) error {
	id := rec.ID()
	if id == "" {
		return ErrMissingID
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	s.docs.Set(memoryKey(collection, id), data, 0)
	return nil
}

// Delete removes the record and reports whether it existed
func (s *MemoryStore) Delete(_ context.Context, collection, id string) (bool, error) {
	return s.docs.Delete(memoryKey(collection, id)), nil
}

// Ping always succeeds
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func decodeDocument(data []byte) (domain.Record, error) {
	var rec domain.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}
