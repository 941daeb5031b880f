// Package blobstore keeps datasets too large to pass around as a single
// in-memory value. Blobs are addressed by key and can be read back either
// whole or as a chunked stream whose memory use is bounded by the chunk size.
package blobstore

import (
	"context"
	"database/sql"
	"io"
	"time"

	"github.com/teranos/logtap/am"
	"github.com/teranos/logtap/db"
	"github.com/teranos/logtap/errors"
)

// Entry describes a stored dataset without its content
type Entry struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists datasets in the SQLite datasets table
type Store struct {
	db        *sql.DB
	chunkSize int
}

// NewStore creates a blob store over an already-migrated database.
// chunkSize <= 0 uses am.DefaultStreamChunkSize.
func NewStore(conn *sql.DB, chunkSize int) *Store {
	if chunkSize <= 0 {
		chunkSize = am.DefaultStreamChunkSize
	}
	return &Store{db: conn, chunkSize: chunkSize}
}

// Put stores value under key, replacing any previous dataset
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return errors.NewInvalidRequestError("dataset key cannot be empty")
	}

	query := `
		INSERT INTO datasets (key, data, size, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			size = excluded.size,
			updated_at = excluded.updated_at
	`

	// Never bind a nil slice: the driver would store NULL instead of an empty blob
	if value == nil {
		value = []byte{}
	}

	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, query, key, value, len(value), now, now); err != nil {
		return db.Wrapf(err, "failed to save dataset %s", key)
	}
	return nil
}

// PutStream drains r and stores it under key. Returns the number of bytes stored.
func (s *Store) PutStream(ctx context.Context, key string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read dataset %s", key)
	}
	if err := s.Put(ctx, key, data); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

// Get returns the whole dataset stored under key
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM datasets WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errors.NewNotFoundError("dataset %s", key)
	}
	if err != nil {
		return "", db.Wrapf(err, "failed to get dataset %s", key)
	}
	return string(data), nil
}

// Size returns the byte length of the dataset stored under key
func (s *Store) Size(ctx context.Context, key string) (int64, error) {
	var size int64
	err := s.db.QueryRowContext(ctx, `SELECT size FROM datasets WHERE key = ?`, key).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errors.NewNotFoundError("dataset %s", key)
	}
	if err != nil {
		return 0, db.Wrapf(err, "failed to stat dataset %s", key)
	}
	return size, nil
}

// Has reports whether a dataset is stored under key
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	_, err := s.Size(ctx, key)
	if errors.IsNotFoundError(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetStream opens a fresh chunked reader over the dataset stored under key.
// Each call returns an independent stream starting at offset zero, so a
// consumer that exhausts one stream can simply ask for another.
func (s *Store) GetStream(ctx context.Context, key string) (io.ReadCloser, error) {
	size, err := s.Size(ctx, key)
	if err != nil {
		return nil, err
	}
	return &chunkReader{
		ctx:       ctx,
		db:        s.db,
		key:       key,
		size:      size,
		chunkSize: s.chunkSize,
	}, nil
}

// Delete removes the dataset stored under key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE key = ?`, key); err != nil {
		return db.Wrapf(err, "failed to delete dataset %s", key)
	}
	return nil
}

// List returns every stored dataset ordered by most recently updated
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, size, updated_at FROM datasets ORDER BY updated_at DESC, key`)
	if err != nil {
		return nil, db.Wrapf(err, "failed to list datasets")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Size, &e.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan dataset entry")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate datasets")
	}
	return entries, nil
}
