package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/logtap/am"
	"github.com/teranos/logtap/errors"
)

// emptyModule is the smallest valid wasm binary: magic plus version, no sections
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func writeModule(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, am.DefaultFilePermissions))
	return path
}

func TestIsWasmPath(t *testing.T) {
	assert.True(t, IsWasmPath("superdb.wasm"))
	assert.True(t, IsWasmPath(" /opt/engines/Query.WASM "))
	assert.False(t, IsWasmPath("zq -z {query}"))
	assert.False(t, IsWasmPath("engine.wasm.bak"))
}

func TestInstantiateEmptyPath(t *testing.T) {
	_, err := Instantiate(context.Background(), "  ", Options{})
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestInstantiateMissingModule(t *testing.T) {
	_, err := Instantiate(context.Background(), filepath.Join(t.TempDir(), "missing.wasm"), Options{})
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestInstantiateCorruptModule(t *testing.T) {
	path := writeModule(t, "corrupt.wasm", []byte("definitely not wasm"))

	_, err := Instantiate(context.Background(), path, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wasm compile")
}

func TestInstantiateModuleWithoutExports(t *testing.T) {
	path := writeModule(t, "empty.wasm", emptyModule)

	_, err := Instantiate(context.Background(), path, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `does not export "wasm_alloc"`)
	assert.NotEmpty(t, errors.GetAllHints(err))
}

func TestInstantiateCommand(t *testing.T) {
	requireShell(t)

	e, err := Instantiate(context.Background(), "cat", Options{})
	require.NoError(t, err)
	defer e.Close()

	_, ok := e.(*CommandEngine)
	assert.True(t, ok)

	results, err := e.RunBatch(context.Background(), []QuerySpec{lineSpec(0, "", "hello\n")})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", results[0].Data)
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(am.ScannerConfig{EngineParallelism: 8, EngineVersionConstraint: ">= 1.0"})
	assert.Equal(t, 8, opts.Parallelism)
	assert.Equal(t, ">= 1.0", opts.VersionConstraint)

	defaults := Options{}.withDefaults()
	assert.Equal(t, am.DefaultEngineParallelism, defaults.Parallelism)
	assert.NotNil(t, defaults.Logger)
}

func TestOrderResults(t *testing.T) {
	specs := []QuerySpec{{Index: 10}, {Index: 11}, {Index: 12}}

	ordered, err := orderResults(specs, []BatchItemResult{{Index: 12}, {Index: 10}, {Index: 11}})
	require.NoError(t, err)
	assert.Equal(t, []int{10, 11, 12}, []int{ordered[0].Index, ordered[1].Index, ordered[2].Index})

	_, err = orderResults(specs, []BatchItemResult{{Index: 10}})
	assert.Contains(t, err.Error(), "1 results for 3 queries")

	_, err = orderResults(specs, []BatchItemResult{{Index: 10}, {Index: 10}, {Index: 11}})
	assert.Contains(t, err.Error(), "twice")

	_, err = orderResults(specs, []BatchItemResult{{Index: 10}, {Index: 11}, {Index: 99}})
	assert.Contains(t, err.Error(), "unknown index 99")
}

type closeTracker struct {
	*strings.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestDrainInputsClosesAfterBatch(t *testing.T) {
	requireShell(t)
	e := newTestCommandEngine(t, "cat", 2)

	in := &closeTracker{Reader: strings.NewReader("abc")}
	results, err := e.RunBatch(context.Background(), []QuerySpec{{Index: 0, Input: in}})
	require.NoError(t, err)
	assert.Equal(t, "abc", results[0].Data)
	assert.True(t, in.closed)
}

func TestDrainInputs(t *testing.T) {
	inputs, err := drainInputs(context.Background(), []QuerySpec{
		{Index: 0, Input: strings.NewReader("one")},
		{Index: 1},
		{Index: 2, Input: strings.NewReader("three")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "", "three"}, inputs)
}
