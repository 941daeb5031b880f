package fanout

import (
	"bytes"
	"io"

	"github.com/teranos/logtap/errors"
)

// Buffered reads src once into memory and returns n independent cursors over
// the same immutable bytes. src is closed after reading if it is an io.Closer.
func Buffered(src io.Reader, n int) ([]io.ReadCloser, error) {
	data, err := io.ReadAll(src)
	if c, ok := src.(io.Closer); ok {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to buffer dataset stream")
	}

	copies := make([]io.ReadCloser, n)
	for i := range copies {
		copies[i] = io.NopCloser(bytes.NewReader(data))
	}
	return copies, nil
}
