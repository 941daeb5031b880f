package engine

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/teranos/logtap/errors"
)

// Exports every query module must provide
const (
	exportAlloc    = "wasm_alloc"
	exportFree     = "wasm_free"
	exportRunBatch = "run_batch"
	exportVersion  = "engine_version" // optional
)

// Strings cross the module boundary as (ptr, len) pairs in linear memory.
// Return values are packed as (ptr << 32) | len in a u64 and owned by the
// caller, who frees them with wasm_free.

// callBytesFn writes input into module memory, calls fnName(ptr, len) and
// returns a copy of the result bytes.
func callBytesFn(ctx context.Context, mod api.Module, fnName string, input []byte) ([]byte, error) {
	allocFn := mod.ExportedFunction(exportAlloc)
	freeFn := mod.ExportedFunction(exportFree)
	targetFn := mod.ExportedFunction(fnName)

	if allocFn == nil || freeFn == nil || targetFn == nil {
		return nil, errors.Newf("wasm: missing export %q", fnName)
	}

	inputSize := uint64(len(input))

	var inputPtr uint64
	if inputSize > 0 {
		results, err := allocFn.Call(ctx, inputSize)
		if err != nil {
			return nil, errors.Wrapf(err, "wasm alloc for %s (size=%d)", fnName, inputSize)
		}
		inputPtr = results[0]
		if inputPtr == 0 {
			return nil, errors.Newf("wasm alloc returned null for %s (size=%d)", fnName, inputSize)
		}

		if !mod.Memory().Write(uint32(inputPtr), input) {
			if _, freeErr := freeFn.Call(ctx, inputPtr, inputSize); freeErr != nil {
				return nil, errors.Wrapf(freeErr, "wasm %s memory write out of range at ptr=%d size=%d (also failed to free)", fnName, inputPtr, inputSize)
			}
			return nil, errors.Newf("wasm %s memory write out of range at ptr=%d size=%d", fnName, inputPtr, inputSize)
		}
	}

	results, err := targetFn.Call(ctx, inputPtr, inputSize)
	if err != nil {
		if inputSize > 0 {
			if _, freeErr := freeFn.Call(ctx, inputPtr, inputSize); freeErr != nil {
				return nil, errors.Wrapf(err, "wasm call %s failed (also failed to free input at ptr=%d size=%d: %v)", fnName, inputPtr, inputSize, freeErr)
			}
		}
		return nil, errors.Wrapf(err, "wasm call %s", fnName)
	}

	if inputSize > 0 {
		if _, err := freeFn.Call(ctx, inputPtr, inputSize); err != nil {
			return nil, errors.Wrapf(err, "wasm %s memory leak: failed to free input buffer at ptr=%d size=%d", fnName, inputPtr, inputSize)
		}
	}

	return readPacked(ctx, mod, freeFn, fnName, results[0])
}

// callNoArgsFn calls a no-input function that returns a packed string
func callNoArgsFn(ctx context.Context, mod api.Module, fnName string) ([]byte, error) {
	freeFn := mod.ExportedFunction(exportFree)
	targetFn := mod.ExportedFunction(fnName)

	if freeFn == nil || targetFn == nil {
		return nil, errors.Newf("wasm: missing export %q", fnName)
	}

	results, err := targetFn.Call(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "wasm call %s", fnName)
	}
	return readPacked(ctx, mod, freeFn, fnName, results[0])
}

// readPacked copies a (ptr << 32) | len result out of module memory and frees it
func readPacked(ctx context.Context, mod api.Module, freeFn api.Function, fnName string, packed uint64) ([]byte, error) {
	resultPtr := uint32(packed >> 32)
	resultLen := uint32(packed & 0xFFFFFFFF)

	if resultPtr == 0 || resultLen == 0 {
		return nil, errors.Newf("wasm %s returned null result (ptr=%d, len=%d)", fnName, resultPtr, resultLen)
	}

	resultBytes, ok := mod.Memory().Read(resultPtr, resultLen)
	if !ok {
		return nil, errors.Newf("wasm %s memory read out of range at ptr=%d len=%d", fnName, resultPtr, resultLen)
	}

	// Read returns a view; memory is invalid after free
	output := make([]byte, len(resultBytes))
	copy(output, resultBytes)

	if _, err := freeFn.Call(ctx, uint64(resultPtr), uint64(resultLen)); err != nil {
		return nil, errors.Wrapf(err, "wasm %s memory leak: failed to free result buffer at ptr=%d size=%d", fnName, resultPtr, resultLen)
	}
	return output, nil
}
