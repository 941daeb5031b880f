// Package fanout turns one dataset stream into several independent copies,
// one per query in a batch.
//
// Tee builds the copies incrementally: the source is split in two, the
// remainder is split again, and so on. Each split buffers only the bytes its
// slower branch has not consumed yet, so a copy can be read to the end
// without any other copy being touched.
package fanout

import (
	"io"
	"sync"

	"github.com/teranos/logtap/errors"
)

// ErrClosed is returned when reading a copy after Close
var ErrClosed = errors.New("fanout: read from closed copy")

// readChunk is the minimum number of bytes pulled from a source per read
const readChunk = 32 * 1024

// Tee returns n readers that each yield exactly the bytes of src.
// Readers may be consumed in any order, concurrently, or not at all.
// Once every copy is closed, src is closed if it implements io.Closer.
func Tee(src io.Reader, n int) []io.ReadCloser {
	if n <= 0 {
		return nil
	}

	copies := make([]io.ReadCloser, 0, n)
	rest := io.ReadCloser(&passthrough{src: src})
	for i := 0; i < n-1; i++ {
		first, second := split(rest)
		copies = append(copies, first)
		rest = second
	}
	return append(copies, rest)
}

// node is one two-way split of a source
type node struct {
	mu     sync.Mutex
	src    io.ReadCloser
	bufs   [2][]byte
	closed [2]bool
	err    error // sticky source error, io.EOF included
}

type branch struct {
	n    *node
	side int
}

func split(src io.ReadCloser) (io.ReadCloser, io.ReadCloser) {
	n := &node{src: src}
	return &branch{n: n, side: 0}, &branch{n: n, side: 1}
}

// Read serves buffered bytes first and otherwise pulls a fresh chunk from the
// source, queueing it for the sibling branch as well. Locks are only ever
// taken from a node towards its source, so chained nodes cannot deadlock.
func (b *branch) Read(p []byte) (int, error) {
	n := b.n
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed[b.side] {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	for len(n.bufs[b.side]) == 0 {
		if n.err != nil {
			return 0, n.err
		}
		n.pull(len(p))
	}

	c := copy(p, n.bufs[b.side])
	n.bufs[b.side] = n.bufs[b.side][c:]
	if len(n.bufs[b.side]) == 0 {
		n.bufs[b.side] = nil
	}
	return c, nil
}

// pull reads once from the source. Caller holds mu.
func (n *node) pull(want int) {
	if want < readChunk {
		want = readChunk
	}
	chunk := make([]byte, want)
	got, err := n.src.Read(chunk)
	if got > 0 {
		for side := range n.bufs {
			if !n.closed[side] {
				n.bufs[side] = append(n.bufs[side], chunk[:got]...)
			}
		}
	}
	if err != nil {
		n.err = err
	}
}

// Close releases this branch's buffer. The source is closed with the last branch.
func (b *branch) Close() error {
	n := b.n
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed[b.side] {
		return nil
	}
	n.closed[b.side] = true
	n.bufs[b.side] = nil

	if n.closed[0] && n.closed[1] {
		return n.src.Close()
	}
	return nil
}

// passthrough adapts the original source to io.ReadCloser
type passthrough struct {
	src  io.Reader
	once sync.Once
}

func (p *passthrough) Read(b []byte) (int, error) {
	return p.src.Read(b)
}

func (p *passthrough) Close() error {
	var err error
	p.once.Do(func() {
		if c, ok := p.src.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}
