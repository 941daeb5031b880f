package ruleset

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/logtap/am"
	"github.com/teranos/logtap/errors"
	"github.com/teranos/logtap/scanner/protocol"
)

const sshRules = `rules:
  - name: Failed SSH logins
    query: grep("Failed password")
  - name: Root login
    query: grep("session opened for user root")
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), am.DefaultFilePermissions))
	return path
}

func TestParse(t *testing.T) {
	set, err := Parse([]byte(sshRules))
	require.NoError(t, err)
	assert.Equal(t, []protocol.Rule{
		{Name: "Failed SSH logins", Query: `grep("Failed password")`},
		{Name: "Root login", Query: `grep("session opened for user root")`},
	}, set.Rules)
	assert.Zero(t, set.Dropped)
}

func TestParseDropsIncompleteEntries(t *testing.T) {
	set, err := Parse([]byte(`rules:
  - name: ok
    query: q
  - name: no query
  - query: no name
  - name: "  "
    query: blank name
`))
	require.NoError(t, err)
	assert.Equal(t, []protocol.Rule{{Name: "ok", Query: "q"}}, set.Rules)
	assert.Equal(t, 3, set.Dropped)
}

func TestParseEmptyList(t *testing.T) {
	set, err := Parse([]byte("rules: []\n"))
	require.NoError(t, err)
	assert.Empty(t, set.Rules)
}

func TestParseRejectsMissingRulesList(t *testing.T) {
	for name, doc := range map[string]string{
		"empty":        "",
		"other key":    "queries:\n  - a\n",
		"scalar rules": "rules: everything\n",
		"not yaml":     "rules: [unclosed\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNoRulesList)
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "ssh.yaml", sshRules)

	set, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, set.Rules, 2)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.True(t, errors.IsNotFoundError(err))

	bad := writeFile(t, dir, "bad.yaml", "nope: 1\n")
	_, err = LoadFile(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.yaml")
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ssh Brute Force", DisplayName("ssh_brute-force.yaml"))
	assert.Equal(t, "Web Attacks", DisplayName("rules/web_attacks.yml"))
	assert.Equal(t, "Élan", DisplayName("élan.yaml"))
}

func TestDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "web_attacks.yaml", sshRules)
	writeFile(t, dir, "auth.yml", sshRules)
	writeFile(t, dir, "README.md", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), am.DefaultDirPermissions))

	entries, err := Dir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, Entry{File: "auth.yml", Name: "Auth", Path: filepath.Join(dir, "auth.yml")}, entries[0])
	assert.Equal(t, "Web Attacks", entries[1].Name)

	_, err = Dir(filepath.Join(dir, "absent"))
	assert.True(t, errors.IsNotFoundError(err))
}

func TestLookup(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "auth.yaml", sshRules)

	path, err := Lookup(dir, "auth.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "auth.yaml"), path)

	_, err = Lookup(dir, "../etc/passwd.yaml")
	assert.True(t, errors.IsInvalidRequestError(err))

	_, err = Lookup(dir, "auth.txt")
	assert.True(t, errors.IsInvalidRequestError(err))

	_, err = Lookup(dir, "other.yaml")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestFetchLocalFile(t *testing.T) {
	srcDir := t.TempDir()
	src := writeFile(t, srcDir, "ssh.yaml", sshRules)
	dstDir := filepath.Join(t.TempDir(), "rules")

	path, set, err := Fetch(context.Background(), src, dstDir, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dstDir, "ssh.yaml"), path)
	assert.Len(t, set.Rules, 2)

	entries, err := Dir(dstDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFetchRejectsInvalidRuleFile(t *testing.T) {
	srcDir := t.TempDir()
	src := writeFile(t, srcDir, "broken.yaml", "just: text\n")
	dstDir := t.TempDir()

	_, _, err := Fetch(context.Background(), src, dstDir, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoRulesList)

	entries, err := Dir(dstDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "invalid downloads are not kept")
}

func TestTargetName(t *testing.T) {
	name, err := targetName("https://example.com/rules/web.yaml?ref=main")
	require.NoError(t, err)
	assert.Equal(t, "web.yaml", name)

	name, err = targetName("git::https://example.com/repo//rules/auth")
	require.NoError(t, err)
	assert.Equal(t, "auth.yaml", name)

	_, err = targetName("https://example.com/")
	assert.True(t, errors.IsInvalidRequestError(err))
}

type change struct {
	path    string
	set     Set
	removed bool
	err     error
}

// waitForChange returns the first change matching match, skipping others
func waitForChange(t *testing.T, changes <-chan change, match func(change) bool) change {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if match(c) {
				return c
			}
		case <-deadline:
			t.Fatal("watcher did not report the expected change")
			return change{}
		}
	}
}

func TestWatcherReloadsChangedFiles(t *testing.T) {
	dir := t.TempDir()
	changes := make(chan change, 64)

	w, err := NewWatcher(dir, 50*time.Millisecond, func(path string, set Set, removed bool, err error) {
		changes <- change{path, set, removed, err}
	})
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	writeFile(t, dir, "notes.txt", "ignored")
	path := writeFile(t, dir, "auth.yaml", sshRules)

	c := waitForChange(t, changes, func(c change) bool { return c.err == nil && len(c.set.Rules) == 2 })
	assert.Equal(t, path, c.path)
	assert.False(t, c.removed)

	writeFile(t, dir, "auth.yaml", "broken: true\n")
	c = waitForChange(t, changes, func(c change) bool { return c.err != nil })
	assert.ErrorIs(t, c.err, ErrNoRulesList)

	require.NoError(t, os.Remove(path))
	c = waitForChange(t, changes, func(c change) bool { return c.removed })
	assert.NoError(t, c.err)
	assert.Equal(t, path, c.path)
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), 0, func(string, Set, bool, error) {})
	require.NoError(t, err)
	w.Start()
	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}

func TestNewWatcherMissingDir(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "absent"), 0, func(string, Set, bool, error) {})
	assert.Error(t, err)
}
