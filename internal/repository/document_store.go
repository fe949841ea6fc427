package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/onoacademic/campusid/internal/domain"
)

// DocumentStore is the remote document backend: one JSONB row per record
// in the documents table, keyed by (collection, id).
type DocumentStore struct {
	db *sql.DB
}

// NewDocumentStore creates a store over an open postgres pool
func NewDocumentStore(db *sql.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

const (
	listDocumentsQuery  = `SELECT body FROM documents WHERE collection = $1 ORDER BY created_at, id`
	getDocumentQuery    = `SELECT body FROM documents WHERE collection = $1 AND id = $2`
	deleteDocumentQuery = `DELETE FROM documents WHERE collection = $1 AND id = $2`
	upsertDocumentQuery = `
		INSERT INTO documents (collection, id, body, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (collection, id) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()
	`
)

// List returns every record of collection in insertion order
func (s *DocumentStore) List(ctx context.Context, collection string) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx, listDocumentsQuery, collection)
	if err != nil {
		return nil, classify("list "+collection, err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		rec, err := decodeDocument(body)
		if err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list "+collection, err)
	}
	return out, nil
}

// Get returns the record or domain.ErrNotFound
func (s *DocumentStore) Get(ctx context.Context, collection, id string) (domain.Record, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, getDocumentQuery, collection, id).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, classify("get "+collection, err)
	}
	rec, err := decodeDocument(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s/%s: %w", collection, id, err)
	}
	return rec, nil
}

// Put upserts the record; updated_at is refreshed on conflict
func (s *DocumentStore) Put(ctx context.Context, collection string, rec domain.Record) error {
	id := rec.ID()
	if id == "" {
		return ErrMissingID
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, upsertDocumentQuery, collection, id, string(data)); err != nil {
		return classify("put "+collection, err)
	}
	return nil
}

// Delete removes the row and reports whether it existed
func (s *DocumentStore) Delete(ctx context.Context, collection, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, deleteDocumentQuery, collection, id)
	if err != nil {
		return false, classify("delete "+collection, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// Ping checks the database connection
func (s *DocumentStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping postgres", err)
	}
	return nil
}

// classify keeps server-side SQL errors as plain failures; anything else means
// the database could not be reached.
func classify(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%s: %s: %w", op, pqErr.Code.Name(), err)
	}
	return unavailable(op, err)
}
