// Package ruleset loads scanner rules from YAML rule files.
//
// A rule file holds a single top-level "rules" list:
//
//	rules:
//	  - name: Failed SSH logins
//	    query: grep("Failed password")
//	  - name: HTTP 5xx
//	    query: status >= 500
//
// Entries missing a name or a query are dropped rather than rejected.
package ruleset

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/teranos/logtap/errors"
	"github.com/teranos/logtap/scanner/protocol"
)

// ErrNoRulesList is returned for documents without a top-level rules list
var ErrNoRulesList = errors.New("YAML structure incorrect. Expected a 'rules' array with 'name' and 'query' for each rule")

// Set is the parsed content of one rule file
type Set struct {
	Rules []protocol.Rule
	// Dropped counts entries skipped for a missing name or query
	Dropped int
}

type document struct {
	Rules *[]entry `yaml:"rules"`
}

type entry struct {
	Name  string `yaml:"name"`
	Query string `yaml:"query"`
}

// Parse reads a rule file's content
func Parse(data []byte) (Set, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Set{}, errors.Wrap(errors.WithSecondaryError(ErrNoRulesList, err), "invalid rule file")
	}
	if doc.Rules == nil {
		return Set{}, ErrNoRulesList
	}

	set := Set{Rules: make([]protocol.Rule, 0, len(*doc.Rules))}
	for _, e := range *doc.Rules {
		if strings.TrimSpace(e.Name) == "" || strings.TrimSpace(e.Query) == "" {
			set.Dropped++
			continue
		}
		set.Rules = append(set.Rules, protocol.Rule{Name: e.Name, Query: e.Query})
	}
	return set, nil
}

// LoadFile parses the rule file at path
func LoadFile(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Set{}, errors.NewNotFoundError("rule file %s", path)
	}
	if err != nil {
		return Set{}, errors.Wrapf(err, "failed to read rule file %s", path)
	}

	set, err := Parse(data)
	if err != nil {
		return Set{}, errors.Wrapf(err, "rule file %s", filepath.Base(path))
	}
	return set, nil
}

// IsRuleFile reports whether path has a YAML extension
func IsRuleFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// DisplayName turns a rule file name into a title, e.g.
// "ssh_brute-force.yaml" becomes "Ssh Brute Force"
func DisplayName(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	words := strings.FieldsFunc(base, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
