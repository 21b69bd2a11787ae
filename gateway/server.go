// Package gateway exposes the broker over HTTP and WebSocket. Browsers and
// scripts speak JSON; jobs travel to the workers in the service codec.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mrjvadi/go-lbbroker/broker"
	"github.com/mrjvadi/go-lbbroker/client"
	"github.com/mrjvadi/go-lbbroker/codec"
	"github.com/mrjvadi/go-lbbroker/config"
)

type Server struct {
	cfg      config.HTTPConfig
	requests client.Requester
	codec    codec.Codec
	timeout  time.Duration
	stats    func() broker.Stats
	logger   *zap.Logger

	engine   *gin.Engine
	upgrader websocket.Upgrader
}

func New(cfg config.HTTPConfig, r client.Requester, options ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		cfg:      cfg,
		requests: r,
		codec:    codec.JSON(),
		timeout:  time.Duration(cfg.RequestTimeoutMS) * time.Millisecond,
		logger:   zap.NewNop(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range options {
		opt(s)
	}

	e := gin.New()
	e.Use(gin.Recovery(), requestLogger(s.logger))
	e.GET("/", s.query)
	e.POST("/annotate", s.annotate)
	e.GET("/health", s.health)
	e.GET("/ws", s.serveWS)
	s.engine = e
	return s
}

// Handler returns the routes, for embedding or httptest.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on cfg.Listen until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("http gateway listening", zap.String("addr", s.cfg.Listen))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// GET /?lang=&text=
func (s *Server) query(c *gin.Context) {
	lang, ok := c.GetQuery("lang")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing argument lang"})
		return
	}
	text, ok := c.GetQuery("text")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing argument text"})
		return
	}
	s.forward(c, map[string]any{"lang": lang, "text": text})
}

// POST /annotate with a JSON job mapping.
func (s *Server) annotate(c *gin.Context) {
	var job map[string]any
	if err := c.ShouldBindJSON(&job); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if job == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job must be a JSON object"})
		return
	}
	s.forward(c, job)
}

func (s *Server) forward(c *gin.Context, job map[string]any) {
	out, err := client.Annotate(c.Request.Context(), s.requests, s.codec, job, s.timeout)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if s.stats != nil {
		st := s.stats()
		body["idle_workers"] = st.Ready
		body["dispatched"] = st.Dispatched
		body["replied"] = st.Replied
		body["dropped"] = st.Dropped
	}
	c.JSON(http.StatusOK, body)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, client.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	}
	return http.StatusBadGateway
}

func requestLogger(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.String("client", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
