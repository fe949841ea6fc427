package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/onoacademic/campusid/internal/domain"
	redisinfra "github.com/onoacademic/campusid/internal/infrastructure/redis"
)

// RedisStore is the ephemeral key-value backend.
// Each record is a JSON string at <prefix>:<collection>:<id>; a set at
// <prefix>:<collection>:_ids indexes the ids of a collection.
type RedisStore struct {
	client *redisinfra.Client
	prefix string
}

// NewRedisStore creates a store over an established client
func NewRedisStore(client *redisinfra.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "campusid"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) docKey(collection, id string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, collection, id)
}

func (s *RedisStore) indexKey(collection string) string {
	return fmt.Sprintf("%s:%s:_ids", s.prefix, collection)
}

// List returns every indexed record of collection ordered by id
func (s *RedisStore) List(ctx context.Context, collection string) ([]domain.Record, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey(collection))
	if err != nil {
		return nil, unavailable("list "+collection, err)
	}
	slices.Sort(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.docKey(collection, id)
	}
	values, err := s.client.MGet(ctx, keys...)
	if err != nil {
		return nil, unavailable("list "+collection, err)
	}

	out := make([]domain.Record, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// indexed id whose document is gone
			continue
		}
		rec, err := decodeDocument([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s/%s: %w", collection, ids[i], err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Get returns the record or domain.ErrNotFound
func (s *RedisStore) Get(ctx context.Context, collection, id string) (domain.Record, error) {
	raw, err := s.client.Get(ctx, s.docKey(collection, id))
	if err != nil {
		if errors.Is(err, redisinfra.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, unavailable("get "+collection, err)
	}
	rec, err := decodeDocument([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s/%s: %w", collection, id, err)
	}
	return rec, nil
}

// Put writes the document and indexes its id
func (s *RedisStore) Put(ctx context.Context, collection string, rec domain.Record) error {
	id := rec.ID()
	if id == "" {
		return ErrMissingID
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := s.client.Set(ctx, s.docKey(collection, id), data, 0); err != nil {
		return unavailable("put "+collection, err)
	}
	if err := s.client.SAdd(ctx, s.indexKey(collection), id); err != nil {
		return unavailable("index "+collection, err)
	}
	return nil
}

// Delete removes the document and its index entry
func (s *RedisStore) Delete(ctx context.Context, collection, id string) (bool, error) {
	n, err := s.client.Delete(ctx, s.docKey(collection, id))
	if err != nil {
		return false, unavailable("delete "+collection, err)
	}
	if err := s.client.SRem(ctx, s.indexKey(collection), id); err != nil {
		return false, unavailable("unindex "+collection, err)
	}
	return n > 0, nil
}

// Ping checks the redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx); err != nil {
		return unavailable("ping redis", err)
	}
	return nil
}
