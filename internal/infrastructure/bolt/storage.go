// Package bolt is the durable local cache: one bbolt file holding the cached
// session, the session token, local user copies and the permanent theme.
package bolt

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

const defaultBucket = "local"

// Storage implements domain.LocalStorage on top of a single bbolt bucket
type Storage struct {
	db     *bbolt.DB
	bucket []byte
}

// Open opens (or creates) the cache file at path
func Open(path string) (*Storage, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open local cache %s: %w", path, err)
	}
	s := &Storage{db: db, bucket: []byte(defaultBucket)}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create local cache bucket: %w", err)
	}
	return s, nil
}

// Close releases the file lock
func (s *Storage) Close() error {
	return s.db.Close()
}

// Read returns a copy of the value stored under key
func (s *Storage) Read(key string) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(key))
		if v != nil {
			out = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

// Write stores value under key
func (s *Storage) Write(key string, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), value)
	})
}

// Remove deletes key; a missing key is not an error
func (s *Storage) Remove(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
}

// Clear drops every key
func (s *Storage) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(s.bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(s.bucket)
		return err
	})
}

// Keys lists every stored key in byte order
func (s *Storage) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

// Reader is the read half of domain.LocalStorage
type Reader interface {
	Read(key string) ([]byte, bool, error)
}

// Writer is the write half of domain.LocalStorage
type Writer interface {
	Write(key string, value []byte) error
}

// Save stores value as JSON under key
func Save[T any](w Writer, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return w.Write(key, data)
}

// Load decodes the JSON value under key; ok is false when the key is absent
func Load[T any](r Reader, key string) (T, bool, error) {
	var out T
	data, ok, err := r.Read(key)
	if err != nil || !ok {
		return out, false, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return out, true, nil
}
