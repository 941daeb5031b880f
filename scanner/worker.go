package scanner

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/logtap/engine"
	"github.com/teranos/logtap/errors"
	"github.com/teranos/logtap/logger"
	"github.com/teranos/logtap/scanner/protocol"
)

// ErrCrashed is returned by Worker.Run after a critical_error was reported
var ErrCrashed = errors.New("scanner worker crashed")

// ErrScanRunning is reported as an error event for a start that arrives
// before the running scan ended
var ErrScanRunning = errors.New("scan already running")

// EngineFactory loads the query engine named by enginePath
type EngineFactory func(ctx context.Context, enginePath string) (engine.Engine, error)

// DefaultEngineFactory instantiates engines with engine.Instantiate
func DefaultEngineFactory(opts engine.Options) EngineFactory {
	return func(ctx context.Context, enginePath string) (engine.Engine, error) {
		return engine.Instantiate(ctx, enginePath, opts)
	}
}

// WorkerOptions configure a Worker
type WorkerOptions struct {
	// EnginePath is used when init or start does not name an engine
	EnginePath string
	Factory    EngineFactory
	Store      BlobSource
	Config     Config
	Logger     *zap.SugaredLogger
}

// Worker serves one host channel: it reads commands, runs at most one scan
// at a time and publishes events. The host never touches session state; all
// interaction goes through the two channels passed to Run.
type Worker struct {
	id     string
	opts   WorkerOptions
	logger *zap.SugaredLogger

	out     chan<- protocol.Event
	sendMu  sync.Mutex
	dead    bool
	crashed chan struct{}

	mu         sync.Mutex
	eng        engine.Engine
	enginePath string
	session    *Session
	running    sync.WaitGroup
}

// NewWorker creates a worker; call Run to serve a channel
func NewWorker(opts WorkerOptions) *Worker {
	if opts.Factory == nil {
		opts.Factory = DefaultEngineFactory(engine.Options{Logger: opts.Logger})
	}
	if opts.Logger == nil {
		opts.Logger = logger.ComponentLogger("scanner.worker")
	}
	opts.Config = opts.Config.withDefaults()

	id := uuid.NewString()
	return &Worker{
		id:      id,
		opts:    opts,
		logger:  opts.Logger.With(logger.FieldClientID, id),
		crashed: make(chan struct{}),
	}
}

// Run serves commands from in until in is closed or ctx is done. Closing
// in or cancelling ctx tears down a running scan without a terminal event.
// Run returns ErrCrashed if a fault was reported as critical_error.
func (w *Worker) Run(ctx context.Context, in <-chan protocol.Command, out chan<- protocol.Event) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		w.running.Wait()
		w.closeEngine()
	}()
	w.out = out

	w.logger.Debugw("Worker started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.crashed:
			return ErrCrashed
		case cmd, ok := <-in:
			if !ok {
				w.logger.Debugw("Command channel closed, worker stopping")
				return nil
			}
			w.handle(ctx, cmd)
		}
	}
}

func (w *Worker) handle(ctx context.Context, cmd protocol.Command) {
	defer func() {
		if r := recover(); r != nil {
			w.crash(ctx, r)
		}
	}()

	switch c := cmd.(type) {
	case protocol.Init:
		w.handleInit(ctx, c)
	case protocol.Start:
		w.handleStart(ctx, c)
	case protocol.Cancel:
		w.handleCancel()
	default:
		w.logger.Warnw("Ignoring unknown command", "command", fmt.Sprintf("%T", cmd))
	}
}

func (w *Worker) handleInit(ctx context.Context, c protocol.Init) {
	if err := w.ensureEngine(ctx, c.EnginePath); err != nil {
		w.emit(ctx, protocol.InitError{Message: "Worker failed to load engine: " + err.Error()})
		return
	}
	w.emit(ctx, protocol.InitDone{})
}

func (w *Worker) handleStart(ctx context.Context, c protocol.Start) {
	w.mu.Lock()
	busy := w.session != nil
	eng := w.eng
	w.mu.Unlock()

	if busy {
		w.logger.Warnw("Scan already running, ignoring start")
		w.emit(ctx, protocol.Error{RuleName: protocol.SetupRuleName, Message: ErrScanRunning.Error()})
		return
	}

	// A start without a prior init loads the engine on demand
	if eng == nil {
		if err := w.ensureEngine(ctx, c.EnginePath); err != nil {
			w.emit(ctx, protocol.InitError{Message: "Worker failed to load engine: " + err.Error()})
			return
		}
		w.emit(ctx, protocol.InitDone{})
	}

	w.mu.Lock()
	s := NewSession(Request{
		Rules:       c.Rules,
		InputFormat: c.InputFormat,
		Dataset:     DatasetFromStart(c),
	}, Deps{
		Engine: w.eng,
		Store:  w.opts.Store,
		Config: w.opts.Config,
		Logger: w.logger,
	})
	w.session = s
	w.running.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.running.Done()
		defer func() {
			if r := recover(); r != nil {
				w.crash(ctx, r)
			}
			w.release(s)
		}()
		s.Run(logger.WithSessionID(ctx, s.ID()), func(ev protocol.Event) {
			if protocol.IsTerminal(ev) {
				w.emitTerminal(ctx, s, ev)
				return
			}
			w.emit(ctx, ev)
		})
	}()
}

// release forgets s if it is still the current session
func (w *Worker) release(s *Session) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.session == s {
		w.session = nil
	}
}

// handleCancel flags the running session; without one it does nothing
func (w *Worker) handleCancel() {
	w.mu.Lock()
	s := w.session
	w.mu.Unlock()

	if s == nil {
		w.logger.Debugw("Cancel with no active scan, ignoring")
		return
	}
	s.Cancel()
}

// ensureEngine loads the engine for enginePath unless it is already loaded
func (w *Worker) ensureEngine(ctx context.Context, enginePath string) error {
	if enginePath == "" {
		enginePath = w.opts.EnginePath
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.eng != nil {
		if enginePath == w.enginePath {
			return nil
		}
		if w.session != nil {
			return errors.Newf("cannot switch engine to %s while a scan is running", enginePath)
		}
		if err := w.eng.Close(); err != nil {
			w.logger.Warnw("Failed to close previous engine", logger.FieldError, err)
		}
		w.eng = nil
	}

	eng, err := w.opts.Factory(ctx, enginePath)
	if err != nil {
		w.logger.Errorw("Engine failed to load", logger.FieldEngine, enginePath, logger.FieldError, err)
		return err
	}
	if eng == nil {
		return errors.AssertionFailedf("engine factory returned nil for %s", enginePath)
	}
	w.eng = eng
	w.enginePath = enginePath
	w.logger.Infow("Engine loaded", logger.FieldEngine, enginePath)
	return nil
}

func (w *Worker) closeEngine() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.eng == nil {
		return
	}
	if err := w.eng.Close(); err != nil {
		w.logger.Warnw("Failed to close engine", logger.FieldError, err)
	}
	w.eng = nil
}

// emit publishes ev unless the worker has crashed or the host went away
func (w *Worker) emit(ctx context.Context, ev protocol.Event) {
	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	w.sendLocked(ctx, ev)
}

// emitTerminal ends s and publishes its terminal event in one step. The
// worker is idle before the host can see the event, so a start sent in
// reply is accepted, and the next session's events queue behind it.
func (w *Worker) emitTerminal(ctx context.Context, s *Session, ev protocol.Event) {
	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	w.release(s)
	w.sendLocked(ctx, ev)
}

func (w *Worker) sendLocked(ctx context.Context, ev protocol.Event) {
	if w.dead {
		return
	}
	select {
	case w.out <- ev:
	case <-ctx.Done():
	}
}

// crash reports r as the channel's last event
func (w *Worker) crash(ctx context.Context, r any) {
	err := errors.Newf("panic: %v", r)

	w.sendMu.Lock()
	defer w.sendMu.Unlock()
	if w.dead {
		return
	}
	w.dead = true

	w.logger.Errorw("Scanner worker crashed", logger.FieldError, err)
	select {
	case w.out <- protocol.CriticalError{Message: fmt.Sprintf("Unhandled worker error: %v", r), Stack: fmt.Sprintf("%+v", err)}:
	case <-ctx.Done():
	}
	close(w.crashed)
}
