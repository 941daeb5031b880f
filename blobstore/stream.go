package blobstore

import (
	"context"
	"database/sql"
	"io"

	"github.com/teranos/logtap/db"
	"github.com/teranos/logtap/errors"
)

// chunkReader reads a stored blob chunkSize bytes at a time with substr().
// The size is captured when the stream opens; a dataset replaced or deleted
// mid-stream surfaces as a read error rather than silently mixed content.
type chunkReader struct {
	ctx       context.Context
	db        *sql.DB
	key       string
	size      int64
	offset    int64
	chunkSize int
	buf       []byte
	closed    bool
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, errors.New("read from closed dataset stream")
	}
	if len(p) == 0 {
		return 0, nil
	}

	if len(r.buf) == 0 {
		if r.offset >= r.size {
			return 0, io.EOF
		}
		if err := r.fill(); err != nil {
			return 0, err
		}
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// fill loads the next chunk. substr() is 1-indexed and counts bytes for BLOB values.
func (r *chunkReader) fill() error {
	var chunk []byte
	err := r.db.QueryRowContext(r.ctx,
		`SELECT substr(data, ?, ?) FROM datasets WHERE key = ? AND size = ?`,
		r.offset+1, r.chunkSize, r.key, r.size,
	).Scan(&chunk)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.NewNotFoundError("dataset %s changed while streaming at offset %d", r.key, r.offset)
	}
	if err != nil {
		return db.Wrapf(err, "failed to read dataset %s at offset %d", r.key, r.offset)
	}
	if len(chunk) == 0 {
		return errors.Wrapf(io.ErrUnexpectedEOF, "dataset %s ended at offset %d of %d", r.key, r.offset, r.size)
	}

	r.offset += int64(len(chunk))
	r.buf = chunk
	return nil
}

func (r *chunkReader) Close() error {
	r.closed = true
	r.buf = nil
	return nil
}
