package engine

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/logtap/errors"
)

// WasmEngine runs queries inside a WebAssembly module loaded from disk.
// The module receives the whole batch as one JSON document through run_batch
// and answers with a JSON array of results.
type WasmEngine struct {
	runtime wazero.Runtime
	mod     api.Module
	version string
	logger  *zap.SugaredLogger

	mu sync.Mutex
}

// wasmQuery is the wire shape of one query handed to run_batch
type wasmQuery struct {
	Index        int    `json:"index"`
	Query        string `json:"query"`
	Input        string `json:"input"`
	InputFormat  string `json:"inputFormat"`
	OutputFormat string `json:"outputFormat"`
}

type wasmBatchRequest struct {
	Queries []wasmQuery `json:"queries"`
}

// NewWasmEngine compiles and instantiates the module at path
func NewWasmEngine(ctx context.Context, path string, opts Options) (*WasmEngine, error) {
	opts = opts.withDefaults()

	wasmBytes, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.NewNotFoundError("engine module %s", path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read engine module %s", path)
	}

	// Host teardown must be able to interrupt a running query
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		r.Close(ctx)
		return nil, errors.Wrap(err, "wasm wasi instantiate")
	}

	compiled, err := r.CompileModule(ctx, wasmBytes)
	if err != nil {
		r.Close(ctx)
		return nil, errors.Wrapf(err, "wasm compile %s", path)
	}

	mod, err := r.InstantiateModule(ctx, compiled,
		wazero.NewModuleConfig().
			WithName("query-engine").
			WithStartFunctions("_initialize"))
	if err != nil {
		r.Close(ctx)
		return nil, errors.Wrapf(err, "wasm instantiate %s", path)
	}

	for _, name := range []string{exportAlloc, exportFree, exportRunBatch} {
		if mod.ExportedFunction(name) == nil {
			r.Close(ctx)
			return nil, errors.WithHintf(
				errors.Newf("wasm module %s does not export %q", path, name),
				"query modules must export %s, %s and %s", exportAlloc, exportFree, exportRunBatch)
		}
	}

	e := &WasmEngine{runtime: r, mod: mod, logger: opts.Logger}

	if err := e.checkVersion(ctx, opts.VersionConstraint); err != nil {
		r.Close(ctx)
		return nil, err
	}

	e.logger.Infow("Wasm query engine loaded",
		"path", path,
		"size", len(wasmBytes),
		"engine_version", e.version,
	)
	return e, nil
}

// checkVersion reads the optional engine_version export and validates it
func (e *WasmEngine) checkVersion(ctx context.Context, constraint string) error {
	if e.mod.ExportedFunction(exportVersion) == nil {
		e.logger.Debugw("Wasm module has no version export, skipping compatibility check")
		return nil
	}

	raw, err := callNoArgsFn(ctx, e.mod, exportVersion)
	if err != nil {
		return errors.Wrap(err, "failed to read engine version")
	}
	e.version = strings.TrimSpace(string(raw))

	if strings.TrimSpace(constraint) == "" {
		return nil
	}

	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return errors.Wrapf(err, "invalid engine version constraint %q", constraint)
	}
	v, err := semver.NewVersion(e.version)
	if err != nil {
		return errors.Wrapf(err, "engine reported unparseable version %q", e.version)
	}
	if !c.Check(v) {
		return errors.WithHintf(
			errors.Newf("engine version %s does not satisfy %s", v, constraint),
			"set scanner.engine_version_constraint to accept this engine")
	}
	return nil
}

// Version returns the module's self-reported version, empty if it has none
func (e *WasmEngine) Version() string {
	return e.version
}

// RunBatch drains every input, then hands the batch to run_batch in one call
func (e *WasmEngine) RunBatch(ctx context.Context, specs []QuerySpec) ([]BatchItemResult, error) {
	defer closeInputs(specs)

	inputs, err := drainInputs(ctx, specs)
	if err != nil {
		return nil, err
	}

	req := wasmBatchRequest{Queries: make([]wasmQuery, len(specs))}
	for i, spec := range specs {
		req.Queries[i] = wasmQuery{
			Index:        spec.Index,
			Query:        spec.Query,
			Input:        inputs[i],
			InputFormat:  spec.InputFormat,
			OutputFormat: spec.OutputFormat,
		}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode batch request")
	}

	e.mu.Lock()
	out, err := callBytesFn(ctx, e.mod, exportRunBatch, payload)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var results []BatchItemResult
	if err := json.Unmarshal(out, &results); err != nil {
		return nil, errors.Wrap(err, "failed to decode batch response")
	}
	return orderResults(specs, results)
}

// Close releases all wasm resources
func (e *WasmEngine) Close() error {
	return e.runtime.Close(context.Background())
}

// drainInputs reads every spec's input concurrently
func drainInputs(ctx context.Context, specs []QuerySpec) ([]string, error) {
	inputs := make([]string, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		if spec.Input == nil {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := io.ReadAll(spec.Input)
			if err != nil {
				return errors.Wrapf(err, "failed to read input for query %d", spec.Index)
			}
			inputs[i] = string(data)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return inputs, nil
}
