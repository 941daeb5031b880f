// Package engine adapts query backends to the batched request/response
// contract the scanner depends on.
//
// A backend is either a WebAssembly module run in-process through wazero
// (any path ending in .wasm) or an external command invoked once per query.
// Either way the caller sees one RunBatch call returning exactly one result
// per spec, tagged with the spec's index.
package engine

import (
	"context"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/logtap/am"
	"github.com/teranos/logtap/errors"
	"github.com/teranos/logtap/logger"
)

// OutputFormatLine is the output format requested for every scan query
const OutputFormatLine = "line"

// QuerySpec is one query to run against one view of the dataset
type QuerySpec struct {
	Index        int
	Query        string
	Input        io.Reader
	InputFormat  string
	OutputFormat string
}

// BatchItemResult is the backend's answer for one QuerySpec
type BatchItemResult struct {
	Index   int    `json:"index"`
	Success bool   `json:"success"`
	HasData bool   `json:"hasData"`
	Data    string `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Engine runs batches of queries. An Engine is owned by a single scan
// session and is never called concurrently.
type Engine interface {
	// RunBatch executes every spec and returns one result per spec in
	// request order. An error means the whole batch failed.
	RunBatch(ctx context.Context, specs []QuerySpec) ([]BatchItemResult, error)
	Close() error
}

// Options tune a backend at instantiation time
type Options struct {
	// Parallelism bounds concurrent queries inside one batch (command backend)
	Parallelism int
	// VersionConstraint is checked against a wasm module's engine_version export
	VersionConstraint string
	Logger            *zap.SugaredLogger
}

// OptionsFromConfig derives engine options from the scanner configuration
func OptionsFromConfig(cfg am.ScannerConfig) Options {
	return Options{
		Parallelism:       cfg.EngineParallelism,
		VersionConstraint: cfg.EngineVersionConstraint,
	}
}

func (o Options) withDefaults() Options {
	if o.Parallelism <= 0 {
		o.Parallelism = am.DefaultEngineParallelism
	}
	if o.Logger == nil {
		o.Logger = logger.ComponentLogger("engine")
	}
	return o
}

// Instantiate loads the backend named by enginePath
func Instantiate(ctx context.Context, enginePath string, opts Options) (Engine, error) {
	enginePath = strings.TrimSpace(enginePath)
	if enginePath == "" {
		return nil, errors.NewInvalidRequestError("engine path is empty")
	}
	opts = opts.withDefaults()

	if IsWasmPath(enginePath) {
		return NewWasmEngine(ctx, enginePath, opts)
	}
	return NewCommandEngine(enginePath, opts)
}

// IsWasmPath reports whether enginePath names a WebAssembly module
func IsWasmPath(enginePath string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(enginePath)), ".wasm")
}

// orderResults checks a backend answered every spec exactly once and sorts
// the answers into request order
func orderResults(specs []QuerySpec, results []BatchItemResult) ([]BatchItemResult, error) {
	if len(results) != len(specs) {
		return nil, errors.Newf("engine returned %d results for %d queries", len(results), len(specs))
	}

	position := make(map[int]int, len(specs))
	for i, spec := range specs {
		position[spec.Index] = i
	}

	seen := make(map[int]bool, len(results))
	for _, r := range results {
		if _, ok := position[r.Index]; !ok {
			return nil, errors.Newf("engine returned result for unknown index %d", r.Index)
		}
		if seen[r.Index] {
			return nil, errors.Newf("engine returned index %d twice", r.Index)
		}
		seen[r.Index] = true
	}

	sort.SliceStable(results, func(a, b int) bool {
		return position[results[a].Index] < position[results[b].Index]
	})
	return results, nil
}

// closeInputs releases any spec inputs that are closers
func closeInputs(specs []QuerySpec) {
	for _, spec := range specs {
		if c, ok := spec.Input.(io.Closer); ok {
			_ = c.Close()
		}
	}
}
