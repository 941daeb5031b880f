package ruleset

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/teranos/logtap/errors"
)

// Entry is one predefined rule file
type Entry struct {
	File string `json:"file"`
	Name string `json:"name"`
	Path string `json:"-"`
}

// Dir lists the rule files directly inside dir, sorted by file name
func Dir(dir string) ([]Entry, error) {
	items, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, errors.NewNotFoundError("rules directory %s", dir)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list rules directory %s", dir)
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		if item.IsDir() || !IsRuleFile(item.Name()) {
			continue
		}
		entries = append(entries, Entry{
			File: item.Name(),
			Name: DisplayName(item.Name()),
			Path: filepath.Join(dir, item.Name()),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].File < entries[j].File })
	return entries, nil
}

// Lookup resolves a rule file name inside dir. Names may not escape dir.
func Lookup(dir, file string) (string, error) {
	if file == "" || filepath.Base(file) != file || !IsRuleFile(file) {
		return "", errors.NewInvalidRequestError("invalid rule file name %q", file)
	}
	path := filepath.Join(dir, file)
	if _, err := os.Stat(path); err != nil {
		return "", errors.NewNotFoundError("rule file %s", file)
	}
	return path, nil
}
