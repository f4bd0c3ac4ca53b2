package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/cryptoview/market-data/internal/config"
	"github.com/cryptoview/market-data/internal/gateway"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DemandTable is the gateway surface the server drives on behalf of clients.
type DemandTable interface {
	Attach(s gateway.Session, dataID string)
	Detach(s gateway.Session, dataID string)
	DetachAll(s gateway.Session)
}

// Server is the websocket front end.
type Server interface {
	// Start begins accepting connections.
	Start(ctx context.Context) error

	// Stop shuts the listener down and closes every session.
	Stop(ctx context.Context) error

	// Stats returns current session statistics.
	Stats() Stats
}

// Stats provides statistics about the server.
type Stats struct {
	Sessions int
}

type server struct {
	cfg    config.GatewayConfig
	table  DemandTable
	logger *slog.Logger

	engine  *gin.Engine
	httpSrv *http.Server

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*session
}

// New creates a websocket server in front of the given demand table.
func New(cfg config.GatewayConfig, table DemandTable, logger *slog.Logger) Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	s := &server{
		cfg:    cfg,
		table:  table,
		logger: logger,
		engine: gin.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sessions: make(map[string]*session),
	}
	s.engine.Use(gin.Recovery())
	s.setupRoutes()
	return s
}

func (s *server) setupRoutes() {
	s.engine.GET(s.cfg.WSPath, s.handleWebSocket)
	s.engine.GET("/api/v1/health", s.handleHealth)
}

// Start launches the HTTP listener. Listener failures after startup are
// logged, not returned.
func (s *server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.engine,
	}

	go func() {
		err := s.httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("websocket server stopped", "error", err)
		}
	}()

	s.logger.Info("websocket server listening",
		"addr", s.cfg.ListenAddr,
		"path", s.cfg.WSPath)
	return nil
}

// Stop shuts down the listener and closes all sessions.
func (s *server) Stop(ctx context.Context) error {
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}

	s.mu.Lock()
	open := make([]*session, 0, len(s.sessions))
	for _, c := range s.sessions {
		open = append(open, c)
	}
	s.mu.Unlock()

	for _, c := range open {
		c.close()
	}

	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Stats returns current session statistics.
func (s *server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Sessions: len(s.sessions)}
}

func (s *server) handleHealth(c *gin.Context) {
	s.mu.Lock()
	sessions := len(s.sessions)
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": sessions,
	})
}

func (s *server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sess := newSession(s, conn)

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger.Info("session opened", "session", sess.id, "remote", conn.RemoteAddr())

	go sess.writePump()
	go sess.readPump()
}

// unregister drops the session from the table and the session map. Safe to
// call more than once.
func (s *server) unregister(sess *session) {
	s.table.DetachAll(sess)

	s.mu.Lock()
	_, known := s.sessions[sess.id]
	delete(s.sessions, sess.id)
	s.mu.Unlock()

	if known {
		s.logger.Info("session closed", "session", sess.id)
	}
}
