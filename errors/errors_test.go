package errors

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinels(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		notFound    bool
		invalid     bool
		unavailable bool
	}{
		{name: "missing dataset", err: NewNotFoundError("dataset %q", "nginx"), notFound: true},
		{name: "bad command", err: NewInvalidRequestError("unknown message type %q", "ping"), invalid: true},
		{name: "engine not loaded", err: NewServiceUnavailableError("query engine not loaded"), unavailable: true},
		{name: "wrapped twice", err: Wrap(Wrap(NewNotFoundError("rule file x.yaml"), "load"), "scan"), notFound: true},
		{name: "plain", err: New("disk I/O error")},
		{name: "nil", err: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.notFound, IsNotFoundError(tt.err))
			assert.Equal(t, tt.invalid, IsInvalidRequestError(tt.err))
			assert.Equal(t, tt.unavailable, IsServiceUnavailableError(tt.err))
		})
	}
}

func TestSentinelMessages(t *testing.T) {
	assert.EqualError(t, NewNotFoundError("dataset %q", "nginx"), `dataset "nginx": not found`)
	assert.EqualError(t, Wrapf(NewInvalidRequestError("no rules to run"), "scan %s", "auth.log"),
		"scan auth.log: no rules to run: invalid request")
}

func TestHintsSurviveWrapping(t *testing.T) {
	err := WithHint(NewNotFoundError("query engine superdb.wasm"), "Check scanner.engine_path in am.toml")
	err = WithHintf(Wrap(err, "init"), "Or pass --engine %s", "path/to/engine.wasm")
	err = Wrap(err, "scan")

	assert.ElementsMatch(t, []string{
		"Check scanner.engine_path in am.toml",
		"Or pass --engine path/to/engine.wasm",
	}, GetAllHints(err))
	assert.True(t, IsNotFoundError(err))
	assert.EqualError(t, err, "scan: init: query engine superdb.wasm: not found")
}

func TestDetails(t *testing.T) {
	err := WithDetailf(New("batch failed"), "rules %d-%d", 1, 50)
	assert.Equal(t, []string{"rules 1-50"}, GetAllDetails(err))
}

func TestSecondaryErrorKeepsPrimaryIdentity(t *testing.T) {
	cause := New("sql: database is closed")
	err := WithSecondaryError(NewServiceUnavailableError("failed to save dataset nginx"), cause)

	assert.True(t, IsServiceUnavailableError(err))
	assert.EqualError(t, err, "failed to save dataset nginx: service unavailable", "the secondary error is context only")
}

func TestStandardSentinelsMatch(t *testing.T) {
	err := Wrapf(io.ErrUnexpectedEOF, "dataset %s ended at offset %d", "nginx", 64)
	assert.True(t, Is(err, io.ErrUnexpectedEOF))
	assert.True(t, IsAny(err, ErrNotFound, io.ErrUnexpectedEOF))
	assert.Equal(t, io.ErrUnexpectedEOF, UnwrapAll(err))
}

type engineError struct {
	code int
}

func (e *engineError) Error() string { return fmt.Sprintf("engine exited with code %d", e.code) }

func TestAsFindsTypedCause(t *testing.T) {
	err := Wrap(&engineError{code: 2}, "run batch")

	var target *engineError
	require.True(t, As(err, &target))
	assert.Equal(t, 2, target.code)
}

func TestStackIsReportable(t *testing.T) {
	err := Wrap(New("nil map"), "session")

	assert.NotNil(t, GetStack(err))
	assert.Contains(t, fmt.Sprintf("%+v", err), "errors_test.go")
}

func TestAssertionFailure(t *testing.T) {
	err := AssertionFailedf("scan worker stopped before the scan ended")
	assert.Contains(t, err.Error(), "scan worker stopped before the scan ended")
}

func TestNilIsPreserved(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
	assert.Nil(t, WithStack(nil))
	assert.Nil(t, WithHint(nil, "hint"))
	assert.Nil(t, WithDetail(nil, "detail"))
	assert.Nil(t, WithMessage(nil, "message"))
}

func ExampleWithHint() {
	err := WithHint(New("query engine failed to load"), "Check scanner.engine_path in am.toml")
	fmt.Println(err)
	fmt.Println(GetAllHints(err)[0])
	// Output:
	// query engine failed to load
	// Check scanner.engine_path in am.toml
}
