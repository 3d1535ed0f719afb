package monitor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server exposes /metrics, /status and /ws for one run.
type Server struct {
	metrics *Metrics
	hub     *Hub
	log     *zap.Logger
	router  *gin.Engine

	srv *http.Server
	ln  net.Listener
}

func NewServer(m *Metrics, hub *Hub, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		metrics: m,
		hub:     hub,
		log:     log,
		router:  gin.New(),
	}
	s.router.Use(gin.Recovery(), s.accessLog)

	metricsHandler := promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})
	s.router.GET("/metrics", gin.WrapH(metricsHandler))
	s.router.GET("/status", s.handleStatus)
	s.router.GET("/ws", s.handleWebSocket)
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debug("http request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("elapsed", time.Since(start)),
	)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Status())
}

func (s *Server) handleWebSocket(c *gin.Context) {
	st := s.metrics.Status()
	s.hub.Serve(c.Writer, c.Request, Event{Type: "status", Status: &st})
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("monitor server", zap.Error(err))
		}
	}()
	s.log.Info("monitor listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr is the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
