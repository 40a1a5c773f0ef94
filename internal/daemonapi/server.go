// Package daemonapi exposes the sheet engine's single-writer gateway
// over HTTP: every mutation from every process in the system funnels
// through POST /exec_batch, which runs on the daemon's one writable
// connection per category database.
package daemonapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sheetengine/sheetengine/internal/logging"
	"github.com/sheetengine/sheetengine/internal/sheetdb"
	"github.com/sheetengine/sheetengine/pkg/config"
)

// Server hosts the exec_batch gateway for every known category
// database. Each category gets exactly one writer *Connection,
// opened lazily on first use and reused for the process lifetime.
type Server struct {
	router  *gin.Engine
	cfg     *config.Config
	log     *logging.Logger
	httpSrv *http.Server

	mu      sync.Mutex
	writers map[string]*sheetdb.Connection
}

// NewServer builds the gin router and registers /exec_batch and
// /health, grounded on the REST API server's CORS/middleware setup.
func NewServer(cfg *config.Config) *Server {
	log := logging.GetLogger("daemonapi")
	log.Info("initializing daemon HTTP gateway")

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	if cfg.RestAPI.CORS {
		corsConfig := cors.Config{
			AllowMethods:  []string{"GET", "POST"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders: []string{"Content-Length"},
			MaxAge:        12 * time.Hour,
		}
		if len(cfg.RestAPI.AllowOrigins) > 0 {
			corsConfig.AllowOrigins = cfg.RestAPI.AllowOrigins
		} else {
			corsConfig.AllowOrigins = []string{
				"http://localhost:*",
				"http://127.0.0.1:*",
			}
			corsConfig.AllowWildcard = true
		}
		router.Use(cors.New(corsConfig))
	}

	s := &Server{
		router:  router,
		cfg:     cfg,
		log:     log,
		writers: make(map[string]*sheetdb.Connection),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.POST("/exec_batch", s.execBatchHandler)
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// execBatchRequest is the wire shape of one exec_batch call: a target
// category database name plus the ordered statements to run against
// its single writer connection. RequestID is a client-supplied
// correlation id; the gateway mints one when absent so every call can
// be traced through the logs even from callers that don't set it.
type execBatchRequest struct {
	DBName     string          `json:"db_name"`
	RequestID  string          `json:"request_id,omitempty"`
	Statements []execStatement `json:"statements"`
}

type execStatement struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
}

type execBatchResponse struct {
	RequestID    string `json:"request_id"`
	RowsAffected int64  `json:"rows_affected"`
	Error        string `json:"error,omitempty"`
}

func (s *Server) execBatchHandler(c *gin.Context) {
	var req execBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, execBatchResponse{Error: err.Error()})
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
	if req.DBName == "" {
		c.JSON(http.StatusBadRequest, execBatchResponse{RequestID: req.RequestID, Error: "db_name is required"})
		return
	}

	stmts := make([]sheetdb.Statement, len(req.Statements))
	for i, st := range req.Statements {
		stmts[i] = sheetdb.Statement{SQL: st.SQL, Params: st.Params}
	}

	n, err := s.execBatch(req.DBName, stmts)
	if err != nil {
		s.log.Error("exec_batch failed", "request_id", req.RequestID, "db_name", req.DBName, "error", err)
		c.JSON(http.StatusInternalServerError, execBatchResponse{RequestID: req.RequestID, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, execBatchResponse{RequestID: req.RequestID, RowsAffected: n})
}

// execBatch runs statements in array order on the named category's
// writer connection, opening it on first use. More than one statement
// is wrapped in an implicit transaction.
func (s *Server) execBatch(dbName string, stmts []sheetdb.Statement) (int64, error) {
	conn, err := s.writerFor(dbName)
	if err != nil {
		return 0, err
	}
	return sheetdb.NewLocalExecBatcher(conn).ExecBatch(dbName, stmts)
}

func (s *Server) writerFor(dbName string) (*sheetdb.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn, ok := s.writers[dbName]; ok {
		return conn, nil
	}
	path := s.cfg.DatabasePath(dbName)
	conn, err := sheetdb.WriterConn(path)
	if err != nil {
		return nil, err
	}
	s.writers[dbName] = conn
	s.log.Debug("opened writer connection", "db_name", dbName, "path", path)
	return conn, nil
}

// StartWithContext starts the HTTP server and blocks until ctx is
// cancelled or the server fails, shutting down gracefully within
// shutdownTimeout.
func (s *Server) StartWithContext(ctx context.Context, shutdownTimeout time.Duration) error {
	port := s.cfg.RestAPI.Port
	if s.cfg.RestAPI.AutoPort {
		availablePort, err := findAvailablePort(port)
		if err != nil {
			return fmt.Errorf("failed to find available port: %w", err)
		}
		port = availablePort
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.RestAPI.Host, port)

	s.httpSrv = &http.Server{Addr: addr, Handler: s.router}

	errChan := make(chan error, 1)
	go func() {
		s.log.Info("starting daemon HTTP gateway", "address", addr)
		if err := s.httpSrv.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// Stop gracefully shuts down the HTTP listener and closes every open
// writer connection.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, conn := range s.writers {
		if err := conn.Close(); err != nil {
			s.log.Warn("error closing writer connection", "db_name", name, "error", err)
		}
	}
	return nil
}

// Router exposes the underlying gin engine for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func findAvailablePort(startPort int) (int, error) {
	for port := startPort; port < startPort+100; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			ln.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port found in range %d-%d", startPort, startPort+100)
}
