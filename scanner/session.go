// Package scanner runs batches of named queries against one dataset and
// reports the outcome as an ordered stream of protocol events.
//
// A Session runs exactly one scan. Rules are partitioned into batches; each
// batch is submitted to the query engine in a single call, its results are
// classified into hits and errors, and progress is reported at every batch
// boundary. Cancellation is cooperative and observed between batches only.
package scanner

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/logtap/engine"
	"github.com/teranos/logtap/logger"
	"github.com/teranos/logtap/scanner/protocol"
)

// Emitter receives a session's events in order
type Emitter func(protocol.Event)

// Request describes one scan
type Request struct {
	Rules       []Rule
	InputFormat string
	Dataset     DatasetRef
}

// Deps are the collaborators a session runs against
type Deps struct {
	Engine engine.Engine
	Store  BlobSource // required for stored datasets only
	Config Config
	Logger *zap.SugaredLogger
}

// Stats summarises a finished session
type Stats struct {
	RulesProcessed int
	TotalRules     int
	TotalHits      int
	AnyErrors      bool
}

// Session is the state of one scan. Cancel may be called from any
// goroutine; everything else belongs to the goroutine running Run.
type Session struct {
	id      string
	req     Request
	deps    Deps
	logger  *zap.SugaredLogger
	started atomic.Bool

	cancelled atomic.Bool

	rulesProcessed int
	totalHits      int
	anyErrors      bool
}

// NewSession prepares a scan; nothing runs until Run
func NewSession(req Request, deps Deps) *Session {
	deps.Config = deps.Config.withDefaults()
	if deps.Logger == nil {
		deps.Logger = logger.ComponentLogger("scanner")
	}
	id := uuid.NewString()
	return &Session{
		id:     id,
		req:    req,
		deps:   deps,
		logger: deps.Logger.With(logger.FieldSessionID, id),
	}
}

// ID identifies the session in logs
func (s *Session) ID() string {
	return s.id
}

// Cancel asks the session to stop before its next batch. It has no
// synchronous effect and is safe on a nil session.
func (s *Session) Cancel() {
	if s == nil {
		return
	}
	s.cancelled.Store(true)
}

// Stats is only meaningful once Run has returned
func (s *Session) Stats() Stats {
	return Stats{
		RulesProcessed: s.rulesProcessed,
		TotalRules:     len(s.req.Rules),
		TotalHits:      s.totalHits,
		AnyErrors:      s.anyErrors,
	}
}

// Run executes the scan, emitting events in protocol order. It ends after
// exactly one terminal event (complete or cancelled), or silently when ctx
// is cancelled by the host. A session runs at most once.
func (s *Session) Run(ctx context.Context, emit Emitter) {
	if !s.started.CompareAndSwap(false, true) {
		s.logger.Warnw("Session already ran, ignoring second run")
		return
	}

	if msg := s.setupProblem(); msg != "" {
		s.failSetup(emit, msg)
		return
	}

	cfg := s.deps.Config
	size := cfg.ConcurrencyLimit(s.req.Dataset)
	batches := partition(s.req.Rules, size)
	total := len(s.req.Rules)
	started := time.Now()

	s.logger.Infow("Scan started",
		logger.FieldTotalCount, total,
		logger.FieldBatchSize, size,
		logger.FieldDatasetKind, s.req.Dataset.Kind().String(),
		logger.FieldInputFormat, s.req.InputFormat,
	)

	base := 0
	for i, batch := range batches {
		if ctx.Err() != nil {
			s.logger.Infow("Scan torn down by host", logger.FieldBatch, i+1)
			return
		}
		if s.cancelled.Load() {
			s.logger.Infow("Scan cancelled",
				logger.FieldBatch, i+1,
				"rules_processed", s.rulesProcessed,
			)
			emit(protocol.Cancelled{})
			return
		}

		var results protocol.BatchResults
		inputs, err := s.resolveInputs(ctx, emit, len(batch))
		switch {
		case err != nil && ctx.Err() != nil:
			return
		case err != nil && i == 0:
			s.failSetup(emit, fmt.Sprintf("Failed to load data: %v", err))
			return
		case err != nil:
			s.logger.Warnw("Data stream failed for batch", logger.FieldBatch, i+1, logger.FieldError, err)
			results = failBatch(batch, "Data stream failed: "+err.Error())
		default:
			emit(protocol.ProgressDetail{Message: fmt.Sprintf("Scanning batch %d/%d", i+1, len(batches))})
			var ok bool
			results, ok = s.runBatch(ctx, batch, base, inputs)
			if !ok {
				return
			}
		}

		if len(results.Hits) > 0 || len(results.Errors) > 0 {
			emit(results)
		}
		s.totalHits += len(results.Hits)
		if len(results.Errors) > 0 {
			s.anyErrors = true
		}

		s.rulesProcessed += len(batch)
		base += len(batch)
		emit(protocol.Progress{Processed: s.rulesProcessed, Total: total})

		// Let a pending cancel land before the next boundary check
		runtime.Gosched()
	}

	s.logger.Infow("Scan complete",
		logger.FieldHits, s.totalHits,
		"errors_occurred", s.anyErrors,
		logger.FieldDurationMS, time.Since(started).Milliseconds(),
	)
	emit(protocol.Complete{HitsFound: s.totalHits, ErrorsOccurred: s.anyErrors})
}

// runBatch submits one batch and classifies the answer. ok is false when the
// host tore the session down mid-batch.
func (s *Session) runBatch(ctx context.Context, batch []Rule, base int, inputs []io.Reader) (protocol.BatchResults, bool) {
	specs := make([]engine.QuerySpec, len(batch))
	for i, rule := range batch {
		specs[i] = engine.QuerySpec{
			Index:        base + i,
			Query:        rule.Query,
			Input:        inputs[i],
			InputFormat:  s.req.InputFormat,
			OutputFormat: engine.OutputFormatLine,
		}
	}

	results, err := s.deps.Engine.RunBatch(ctx, specs)
	if ctx.Err() != nil {
		return protocol.BatchResults{}, false
	}
	if err != nil {
		s.logger.Warnw("Batch failed", logger.FieldBatchSize, len(batch), logger.FieldError, err)
		return failBatch(batch, "Batch failed: "+err.Error()), true
	}
	return classifyBatch(batch, base, results, s.deps.Config.PreviewLimit), true
}

// resolveInputs builds one reader per rule. In-memory data is shared as-is;
// a stored dataset is fetched fresh and fanned out.
func (s *Session) resolveInputs(ctx context.Context, emit Emitter, n int) ([]io.Reader, error) {
	inputs := make([]io.Reader, n)

	if s.req.Dataset.Kind() == DatasetInMemory {
		value := s.req.Dataset.Value()
		for i := range inputs {
			inputs[i] = strings.NewReader(value)
		}
		return inputs, nil
	}

	emit(protocol.ProgressDetail{Message: "Loading data"})
	stream, err := s.deps.Store.GetStream(ctx, s.req.Dataset.Key())
	if err != nil {
		return nil, err
	}
	copies, err := s.deps.Config.Fanout(stream, n)
	if err != nil {
		stream.Close()
		return nil, err
	}
	for i, c := range copies {
		inputs[i] = c
	}
	return inputs, nil
}

// setupProblem returns the message for a scan that cannot start
func (s *Session) setupProblem() string {
	switch {
	case len(s.req.Rules) == 0:
		return "No rules provided."
	case s.deps.Engine == nil:
		return "Query engine not initialized."
	case s.req.Dataset.Kind() == DatasetNone:
		return "No data provided to scan."
	case s.req.Dataset.Kind() == DatasetInMemory && s.req.Dataset.Value() == "":
		return "No data provided to scan."
	case s.req.Dataset.Kind() == DatasetStored && s.req.Dataset.Key() == "":
		return "No dataset key provided."
	case s.req.Dataset.Kind() == DatasetStored && s.deps.Store == nil:
		return "Dataset storage is not available."
	}
	return ""
}

func (s *Session) failSetup(emit Emitter, msg string) {
	s.anyErrors = true
	s.logger.Warnw("Scan setup failed", logger.FieldError, msg)
	emit(protocol.Error{RuleName: protocol.SetupRuleName, Message: msg})
	emit(protocol.Complete{HitsFound: 0, ErrorsOccurred: true})
}
