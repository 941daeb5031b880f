package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/teranos/logtap/errors"
	"github.com/teranos/logtap/logger"
	"github.com/teranos/logtap/scanner"
	"github.com/teranos/logtap/scanner/protocol"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. A start command may carry
	// the whole in-memory dataset.
	maxMessageSize = 64 << 20

	// Events buffered between the worker and the write pump
	sendBufferSize = 256
)

// Client is one WebSocket connection and the worker serving it
type Client struct {
	server *Server
	conn   *websocket.Conn
	id     string
	logger *zap.SugaredLogger

	in  chan protocol.Command
	out chan protocol.Event

	ctx        context.Context
	cancel     context.CancelFunc
	workerDone chan struct{}
	workerErr  error
}

// HandleScanSocket upgrades the request and serves one scan channel on it
func (s *Server) HandleScanSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("WebSocket upgrade failed", logger.FieldError, err)
		return
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(logger.WithClientID(s.ctx, id))
	c := &Client{
		server:     s,
		conn:       conn,
		id:         id,
		logger:     s.logger.With(logger.FieldClientID, id),
		in:         make(chan protocol.Command),
		out:        make(chan protocol.Event, sendBufferSize),
		ctx:        ctx,
		cancel:     cancel,
		workerDone: make(chan struct{}),
	}
	s.register(c)

	worker := scanner.NewWorker(scanner.WorkerOptions{
		EnginePath: s.cfg.Scanner.EnginePath,
		Factory:    s.factory,
		Store:      s.store,
		Config:     s.scanCfg,
		Logger:     c.logger.Named("worker"),
	})

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		c.runWorker(worker)
	}()
	go func() {
		defer s.wg.Done()
		c.writePump()
	}()
	go func() {
		defer s.wg.Done()
		c.readPump()
	}()
}

func (c *Client) runWorker(w *scanner.Worker) {
	defer close(c.workerDone)
	c.workerErr = w.Run(c.ctx, c.in, c.out)
	if c.workerErr != nil {
		c.logger.Errorw("Scan worker stopped", logger.FieldError, c.workerErr)
	}
}

// readPump decodes commands from the connection and hands them to the worker.
// Returning cancels the worker, which in turn ends the write pump.
func (c *Client) readPump() {
	defer c.cancel()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		cmd, err := protocol.DecodeCommand(message)
		if err != nil {
			c.logger.Warnw("Dropping malformed command", logger.FieldError, err)
			continue
		}
		c.logger.Debugw("Command received", "type", cmd.CommandType())

		select {
		case c.in <- cmd:
		case <-c.workerDone:
			return
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) handleReadError(err error) {
	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseNormalClosure,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived) {
		c.logger.Warnw("WebSocket read error", logger.FieldError, err)
		return
	}
	c.logger.Debugw("WebSocket closed", logger.FieldError, err)
}

// writePump sends worker events to the connection and keeps it alive with
// pings. Once the worker has exited, buffered events are flushed and the
// connection is closed.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.cancel()
		c.conn.Close()
		c.server.unregister(c)
	}()

	for {
		select {
		case ev := <-c.out:
			if err := c.writeEvent(ev); err != nil {
				c.logger.Debugw("Event write failed", logger.FieldError, err)
				return
			}

		case <-c.workerDone:
			c.flush()
			c.writeClose()
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeEvent(ev protocol.Event) error {
	data, err := protocol.EncodeEvent(ev)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// flush writes events the worker emitted before exiting
func (c *Client) flush() {
	for {
		select {
		case ev := <-c.out:
			if err := c.writeEvent(ev); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) writeClose() {
	code, reason := websocket.CloseNormalClosure, ""
	if errors.Is(c.workerErr, scanner.ErrCrashed) {
		code, reason = websocket.CloseInternalServerErr, "worker crashed"
	} else if c.server.ctx.Err() != nil {
		code, reason = websocket.CloseGoingAway, "server shutting down"
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
}
