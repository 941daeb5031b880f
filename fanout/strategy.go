package fanout

import (
	"io"

	"github.com/teranos/logtap/am"
	"github.com/teranos/logtap/errors"
)

// Func produces n copies of a stream
type Func func(src io.Reader, n int) ([]io.ReadCloser, error)

// ForStrategy returns the fan-out named by the scanner.fanout setting.
// An empty name selects the incremental tee.
func ForStrategy(name string) (Func, error) {
	switch name {
	case "", am.FanoutTee:
		return func(src io.Reader, n int) ([]io.ReadCloser, error) {
			return Tee(src, n), nil
		}, nil
	case am.FanoutBuffer:
		return Buffered, nil
	default:
		return nil, errors.NewInvalidRequestError("unknown fanout strategy %q (want %q or %q)",
			name, am.FanoutTee, am.FanoutBuffer)
	}
}
