package server

import (
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/logtap/am"
	"github.com/teranos/logtap/errors"
	"github.com/teranos/logtap/logger"
	"github.com/teranos/logtap/ruleset"
	"github.com/teranos/logtap/scanner/protocol"
)

// ruleFileInfo is one entry of the predefined rule listing
type ruleFileInfo struct {
	File  string `json:"file"`
	Name  string `json:"name"`
	Rules int    `json:"rules"`
	Error string `json:"error,omitempty"`
}

// ruleFileResponse is a predefined rule file with its parsed rules
type ruleFileResponse struct {
	File    string          `json:"file"`
	Name    string          `json:"name"`
	Rules   []protocol.Rule `json:"rules"`
	Dropped int             `json:"dropped"`
}

type cachedSet struct {
	set ruleset.Set
	err error
}

// ruleCatalog serves the predefined rule files of rules.dir. While watching,
// parsed files are cached and refreshed by the watcher.
type ruleCatalog struct {
	dir    string
	watch  bool
	logger *zap.SugaredLogger

	mu      sync.RWMutex
	watcher *ruleset.Watcher
	cache   map[string]cachedSet
}

func newRuleCatalog(cfg am.RulesConfig, log *zap.SugaredLogger) (*ruleCatalog, error) {
	dir := cfg.Dir
	if dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to resolve rules directory %s", dir)
		}
		dir = abs
	}
	return &ruleCatalog{
		dir:    dir,
		watch:  cfg.Watch,
		logger: log,
		cache:  make(map[string]cachedSet),
	}, nil
}

// startWatching begins watching rules.dir when rules.watch is set
func (c *ruleCatalog) startWatching() error {
	if !c.watch || c.dir == "" {
		return nil
	}
	if _, err := os.Stat(c.dir); err != nil {
		return errors.Wrapf(err, "rules directory %s", c.dir)
	}

	w, err := ruleset.NewWatcher(c.dir, 0, c.onChange)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.watcher = w
	c.cache = make(map[string]cachedSet)
	c.mu.Unlock()

	w.Start()
	c.logger.Infow("Watching rule files", logger.FieldPath, c.dir)
	return nil
}

func (c *ruleCatalog) stopWatching() error {
	c.mu.Lock()
	w := c.watcher
	c.watcher = nil
	c.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Stop()
}

func (c *ruleCatalog) onChange(path string, set ruleset.Set, removed bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if removed {
		delete(c.cache, path)
		return
	}
	c.cache[path] = cachedSet{set: set, err: err}
}

// load returns the parsed rule file at path, from the cache while watching
func (c *ruleCatalog) load(path string) (ruleset.Set, error) {
	c.mu.RLock()
	watching := c.watcher != nil
	cached, ok := c.cache[path]
	c.mu.RUnlock()
	if ok {
		return cached.set, cached.err
	}

	set, err := ruleset.LoadFile(path)
	if watching {
		c.mu.Lock()
		c.cache[path] = cachedSet{set: set, err: err}
		c.mu.Unlock()
	}
	return set, err
}

func (c *ruleCatalog) list() ([]ruleFileInfo, error) {
	if c.dir == "" {
		return []ruleFileInfo{}, nil
	}
	entries, err := ruleset.Dir(c.dir)
	if errors.IsNotFoundError(err) {
		return []ruleFileInfo{}, nil
	}
	if err != nil {
		return nil, err
	}

	infos := make([]ruleFileInfo, 0, len(entries))
	for _, e := range entries {
		info := ruleFileInfo{File: e.File, Name: e.Name}
		set, err := c.load(e.Path)
		if err != nil {
			info.Error = err.Error()
		} else {
			info.Rules = len(set.Rules)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// HandleListRules lists the predefined rule files
func (s *Server) HandleListRules(w http.ResponseWriter, r *http.Request) {
	infos, err := s.rules.list()
	if err != nil {
		s.writeErrorFor(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// HandleGetRules returns the rules of one predefined rule file
func (s *Server) HandleGetRules(w http.ResponseWriter, r *http.Request) {
	if s.rules.dir == "" {
		writeError(w, http.StatusNotFound, "No rules directory configured")
		return
	}
	file := r.PathValue("file")
	path, err := ruleset.Lookup(s.rules.dir, file)
	if err != nil {
		s.writeErrorFor(w, r, err)
		return
	}
	set, err := s.rules.load(path)
	if err != nil {
		if !errors.IsNotFoundError(err) {
			err = errors.NewInvalidRequestError("%s", err.Error())
		}
		s.writeErrorFor(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ruleFileResponse{
		File:    file,
		Name:    ruleset.DisplayName(file),
		Rules:   set.Rules,
		Dropped: set.Dropped,
	})
}
