package ruleset

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teranos/logtap/errors"
	"github.com/teranos/logtap/logger"
)

// DefaultDebounce collapses the burst of events an editor save produces
const DefaultDebounce = 300 * time.Millisecond

// ChangeFunc receives a rule file's new content, or the error parsing it.
// removed is true when the file was deleted or renamed away.
type ChangeFunc func(path string, set Set, removed bool, err error)

// Watcher reloads rule files in a directory when they change
type Watcher struct {
	dir      string
	watcher  *fsnotify.Watcher
	onChange ChangeFunc
	debounce time.Duration
	logger   *zap.SugaredLogger

	mu     sync.Mutex
	timers map[string]*time.Timer
	done   chan struct{}
	once   sync.Once
}

// NewWatcher watches dir. debounce <= 0 uses DefaultDebounce.
func NewWatcher(dir string, debounce time.Duration, onChange ChangeFunc) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, errors.Wrapf(err, "failed to watch rules directory %s", dir)
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		dir:      dir,
		watcher:  fw,
		onChange: onChange,
		debounce: debounce,
		logger:   logger.ComponentLogger("ruleset.watcher"),
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching in the background
func (w *Watcher) Start() {
	go w.watchLoop()
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !IsRuleFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debugw("Rule file changed", "file", event.Name, "op", event.Op.String())
			w.schedule(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("Rules watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

// schedule debounces changes per file
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.done:
		return
	default:
	}

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.reload(path)
	})
}

func (w *Watcher) reload(path string) {
	set, err := LoadFile(path)
	if errors.IsNotFoundError(err) {
		w.logger.Infow("Rule file removed", "file", filepath.Base(path))
		w.onChange(path, Set{}, true, nil)
		return
	}
	if err != nil {
		w.logger.Warnw("Rule file reload failed", "file", filepath.Base(path), "error", err)
		w.onChange(path, Set{}, false, err)
		return
	}
	w.logger.Infow("Rule file reloaded", "file", filepath.Base(path), "rules", len(set.Rules))
	w.onChange(path, set, false, nil)
}

// Stop ends watching and cancels pending reloads
func (w *Watcher) Stop() error {
	var err error
	w.once.Do(func() {
		w.mu.Lock()
		close(w.done)
		for _, t := range w.timers {
			t.Stop()
		}
		w.timers = map[string]*time.Timer{}
		w.mu.Unlock()
		err = w.watcher.Close()
	})
	return err
}
