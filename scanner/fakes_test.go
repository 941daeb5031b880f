package scanner

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/teranos/logtap/engine"
	"github.com/teranos/logtap/errors"
	"github.com/teranos/logtap/scanner/protocol"
)

// fakeEngine answers queries without a real backend:
//
//	"fail:<msg>"  fails with msg
//	"echo"        returns the rule's input
//	anything else returns the query text itself as output
type fakeEngine struct {
	mu     sync.Mutex
	calls  [][]engine.QuerySpec
	inputs [][]string
	closed bool

	// hook runs before the default behaviour; a non-nil results or error short-circuits it
	hook func(ctx context.Context, call int, specs []engine.QuerySpec) ([]engine.BatchItemResult, error)
}

func (f *fakeEngine) RunBatch(ctx context.Context, specs []engine.QuerySpec) ([]engine.BatchItemResult, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, specs)
	hook := f.hook
	f.mu.Unlock()

	inputs := make([]string, len(specs))
	for i, spec := range specs {
		if spec.Input == nil {
			continue
		}
		data, err := io.ReadAll(spec.Input)
		if err != nil {
			return nil, err
		}
		inputs[i] = string(data)
	}
	f.mu.Lock()
	f.inputs = append(f.inputs, inputs)
	f.mu.Unlock()

	if hook != nil {
		results, err := hook(ctx, call, specs)
		if results != nil || err != nil {
			return results, err
		}
	}

	results := make([]engine.BatchItemResult, len(specs))
	for i, spec := range specs {
		switch {
		case strings.HasPrefix(spec.Query, "fail:"):
			results[i] = engine.BatchItemResult{Index: spec.Index, Error: strings.TrimPrefix(spec.Query, "fail:")}
		case spec.Query == "echo":
			results[i] = engine.BatchItemResult{Index: spec.Index, Success: true, HasData: inputs[i] != "", Data: inputs[i]}
		default:
			results[i] = engine.BatchItemResult{Index: spec.Index, Success: true, HasData: spec.Query != "", Data: spec.Query}
		}
	}
	return results, nil
}

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeEngine) batchSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sizes := make([]int, len(f.calls))
	for i, c := range f.calls {
		sizes[i] = len(c)
	}
	return sizes
}

// fakeStore serves datasets from a map and can fail chosen GetStream calls
type fakeStore struct {
	mu     sync.Mutex
	data   map[string]string
	opens  int
	failOn map[int]error
}

func (s *fakeStore) GetStream(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := s.opens
	s.opens++
	if err, ok := s.failOn[call]; ok {
		return nil, err
	}
	v, ok := s.data[key]
	if !ok {
		return nil, errors.NewNotFoundError("dataset %s", key)
	}
	return io.NopCloser(strings.NewReader(v)), nil
}

func rulesOf(queries ...string) []Rule {
	rules := make([]Rule, len(queries))
	for i, q := range queries {
		rules[i] = Rule{Name: fmt.Sprintf("rule-%d", i), Query: q}
	}
	return rules
}

func repeatRules(n int, query func(i int) string) []Rule {
	rules := make([]Rule, n)
	for i := range rules {
		rules[i] = Rule{Name: fmt.Sprintf("rule-%d", i), Query: query(i)}
	}
	return rules
}

func runSession(t *testing.T, req Request, deps Deps) []protocol.Event {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = zaptest.NewLogger(t).Sugar()
	}
	var events []protocol.Event
	NewSession(req, deps).Run(context.Background(), func(ev protocol.Event) {
		events = append(events, ev)
	})
	return events
}

func ofType[T protocol.Event](events []protocol.Event) []T {
	var out []T
	for _, ev := range events {
		if e, ok := ev.(T); ok {
			out = append(out, e)
		}
	}
	return out
}

// withoutDetails drops free-text progress_detail events
func withoutDetails(events []protocol.Event) []protocol.Event {
	var out []protocol.Event
	for _, ev := range events {
		if _, ok := ev.(protocol.ProgressDetail); !ok {
			out = append(out, ev)
		}
	}
	return out
}

func countTerminal(events []protocol.Event) int {
	n := 0
	for _, ev := range events {
		if protocol.IsTerminal(ev) {
			n++
		}
	}
	return n
}
