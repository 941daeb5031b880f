// Package server hosts scan workers behind a WebSocket endpoint and exposes
// dataset storage and predefined rule files over HTTP.
//
// Every WebSocket connection is one host channel: it gets its own
// scanner.Worker, commands arrive as JSON text frames and events leave the
// same way. Closing the connection tears the worker down.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/logtap/am"
	"github.com/teranos/logtap/blobstore"
	"github.com/teranos/logtap/engine"
	"github.com/teranos/logtap/errors"
	"github.com/teranos/logtap/logger"
	"github.com/teranos/logtap/scanner"
)

// ShutdownTimeout bounds how long Stop waits for connections to drain
const ShutdownTimeout = 5 * time.Second

// Options configure a Server
type Options struct {
	Config *am.Config
	Store  *blobstore.Store
	// Factory overrides how workers load their query engine
	Factory scanner.EngineFactory
	Logger  *zap.SugaredLogger
}

// Server is the LogTap scan host
type Server struct {
	cfg     *am.Config
	store   *blobstore.Store
	scanCfg scanner.Config
	factory scanner.EngineFactory
	logger  *zap.SugaredLogger

	rules   *ruleCatalog
	uploads *rate.Limiter
	mux     *http.ServeMux

	httpServer *http.Server

	mu      sync.Mutex
	clients map[*Client]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a server. The store must be backed by a migrated database.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.NewInvalidRequestError("server config is required")
	}
	if opts.Store == nil {
		return nil, errors.NewInvalidRequestError("dataset store is required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.ComponentLogger("server")
	}

	scanCfg, err := scanner.ConfigFromAm(opts.Config.Scanner)
	if err != nil {
		return nil, err
	}
	if opts.Factory == nil {
		engOpts := engine.OptionsFromConfig(opts.Config.Scanner)
		engOpts.Logger = opts.Logger.Named("engine")
		opts.Factory = scanner.DefaultEngineFactory(engOpts)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     opts.Config,
		store:   opts.Store,
		scanCfg: scanCfg,
		factory: opts.Factory,
		logger:  opts.Logger,
		uploads: uploadLimiter(opts.Config.Server.UploadsPerMinute),
		clients: make(map[*Client]bool),
		ctx:     ctx,
		cancel:  cancel,
	}

	s.rules, err = newRuleCatalog(opts.Config.Rules, s.logger.Named("rules"))
	if err != nil {
		cancel()
		return nil, err
	}

	s.setupHTTPRoutes()
	return s, nil
}

// uploadLimiter allows perMinute uploads per minute with a burst of the same size.
// perMinute <= 0 disables throttling.
func uploadLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ClientCount returns the number of open scan connections
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) register(c *Client) {
	s.mu.Lock()
	s.clients[c] = true
	count := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Scan client connected", logger.FieldClientID, c.id, "clients", count)
}

func (s *Server) unregister(c *Client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, c)
	count := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Scan client disconnected", logger.FieldClientID, c.id, "clients", count)
}
