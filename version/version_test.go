package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetDefaults(t *testing.T) {
	info := Get()
	assert.Equal(t, "dev", info.Version)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.Equal(t, "logtap dev (commit dev, built unknown)", info.String())
}

func TestShortCommit(t *testing.T) {
	info := Info{Version: "v0.3.0", CommitHash: "4f2c9e1d8a7b", BuildTime: "2026-10-01T00:00:00Z"}
	assert.Equal(t, "4f2c9e1", info.Short())
	assert.Equal(t, "logtap v0.3.0 (commit 4f2c9e1, built 2026-10-01T00:00:00Z)", info.String())
}
