package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/logtap/am"
	"github.com/teranos/logtap/errors"
)

func writeRules(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), am.DefaultFilePermissions))
	return path
}

func TestValidateRuleFiles(t *testing.T) {
	dir := t.TempDir()
	good := writeRules(t, dir, "web_attacks.yaml", "rules:\n  - name: SQL injection\n    query: union select\n  - name: No query\n")
	empty := writeRules(t, dir, "empty.yaml", "rules: []\n")
	broken := writeRules(t, dir, "broken.yaml", "title: nothing here\n")

	var out bytes.Buffer
	require.NoError(t, validateRuleFiles([]string{good}, &out))
	assert.Contains(t, out.String(), "1 rule(s)")
	assert.Contains(t, out.String(), "skipped 1 rule(s)")

	out.Reset()
	err := validateRuleFiles([]string{good, empty, broken}, &out)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))
	assert.Contains(t, err.Error(), "2 of 3 rule file(s) invalid")
	assert.Contains(t, out.String(), "no usable rules")
}

func TestListRuleFiles(t *testing.T) {
	dir := t.TempDir()

	var out bytes.Buffer
	require.NoError(t, listRuleFiles(dir, &out))
	assert.Contains(t, out.String(), "No rule files in")

	writeRules(t, dir, "ssh_auth.yaml", "rules:\n  - name: Failed password\n    query: Failed password\n")
	writeRules(t, dir, "broken.yml", "rules: [\n")

	out.Reset()
	require.NoError(t, listRuleFiles(dir, &out))
	assert.Contains(t, out.String(), "ssh_auth.yaml")
	assert.Contains(t, out.String(), "invalid")

	out.Reset()
	require.NoError(t, listRuleFiles(filepath.Join(dir, "missing"), &out))
	assert.Contains(t, out.String(), "No rules directory at")
}

func TestFetchRuleFileFromPath(t *testing.T) {
	src := writeRules(t, t.TempDir(), "ssh_auth.yaml", "rules:\n  - name: Failed password\n    query: Failed password\n")
	dst := filepath.Join(t.TempDir(), "rules")

	var out bytes.Buffer
	require.NoError(t, fetchRuleFile(context.Background(), src, dst, &out))
	assert.Contains(t, out.String(), "(1 rule(s))")
	assert.FileExists(t, filepath.Join(dst, "ssh_auth.yaml"))
}
