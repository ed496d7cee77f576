// Package server exposes the oracle over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ggloracle/internal/batch"
	"ggloracle/internal/contract"
	"ggloracle/internal/ledger"
	"ggloracle/internal/logging"
	"ggloracle/internal/oracle"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Options configures a Server.
type Options struct {
	// WantLower is used when a request does not say.
	WantLower bool
	// Concurrency bounds the workers of one /api/batch request.
	Concurrency int
	// MaxBodyBytes caps request bodies; zero disables the cap.
	MaxBodyBytes int64
	// Ledger, when set, memoizes and records every verdict.
	Ledger *ledger.Ledger
}

// Server is the HTTP surface of the oracle.
type Server struct {
	oracle  *oracle.Oracle
	opts    Options
	metrics *Metrics
	runID   string
	engine  *gin.Engine
}

// VerifyRequest is the body of POST /api/verify.
type VerifyRequest struct {
	Text      string `json:"text"`
	WantLower *bool  `json:"want_lower,omitempty"`
}

// BatchRequest is the body of POST /api/batch.
type BatchRequest struct {
	Items     []batch.Item `json:"items"`
	WantLower *bool        `json:"want_lower,omitempty"`
}

// BatchResponse is returned by POST /api/batch.
type BatchResponse struct {
	RunID    string          `json:"run_id"`
	Outcomes []batch.Outcome `json:"outcomes"`
	Summary  batch.Summary   `json:"summary"`
}

// New builds a server around an oracle.
func New(o *oracle.Oracle, opts Options) *Server {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	s := &Server{
		oracle:  o,
		opts:    opts,
		metrics: NewMetrics(),
		runID:   "http-" + uuid.New().String(),
	}
	s.metrics.SetABI(o.ABI().Hash)
	s.engine = s.routes()
	return s
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics { return s.metrics }

// OnABIChange updates the served-ABI gauge. Wire it to a reloader.
func (s *Server) OnABIChange(abi *contract.ABI) {
	s.metrics.SetABI(abi.Hash)
	logging.Server("now serving abi %s", abi.Hash)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog(), s.limitBody())

	r.GET("/healthz", s.healthHandler)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := r.Group("/api")
	api.GET("/abi", s.abiHandler)
	api.POST("/verify", s.verifyHandler)
	api.POST("/batch", s.batchHandler)
	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Get(logging.CategoryServer).With("method", c.Request.Method, "path", c.Request.URL.Path).
			StructuredLog("debug", "request", map[string]interface{}{
				"status":      c.Writer.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
	}
}

func (s *Server) limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.MaxBodyBytes > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxBodyBytes)
		}
		c.Next()
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "abi_hash": s.oracle.ABI().Hash})
}

func (s *Server) abiHandler(c *gin.Context) {
	abi := s.oracle.ABI()
	c.JSON(http.StatusOK, gin.H{
		"abi_hash":  abi.Hash,
		"tokenizer": abi.TokenizerDoc(),
		"grammar":   abi.GrammarDoc(),
	})
}

func (s *Server) verifyHandler(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item := batch.Item{ID: "verify", Text: req.Text, WantLower: req.WantLower}
	outs, err := s.runner().Run(c.Request.Context(), []batch.Item{item})
	if err != nil {
		s.internalError(c, err)
		return
	}
	s.metrics.Observe(outs[0].Result, outs[0].Cached)
	c.JSON(http.StatusOK, outs[0].Result)
}

func (s *Server) batchHandler(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for i := range req.Items {
		if req.Items[i].ID == "" {
			req.Items[i].ID = uuid.New().String()
		}
		if req.Items[i].WantLower == nil {
			req.Items[i].WantLower = req.WantLower
		}
	}

	runner := s.runner()
	runner.RunID = uuid.New().String()
	outs, err := runner.Run(c.Request.Context(), req.Items)
	if err != nil {
		s.internalError(c, err)
		return
	}
	for _, o := range outs {
		s.metrics.Observe(o.Result, o.Cached)
	}
	c.JSON(http.StatusOK, BatchResponse{RunID: runner.RunID, Outcomes: outs, Summary: batch.Summarize(outs)})
}

func (s *Server) runner() *batch.Runner {
	r := batch.NewRunner(s.oracle, s.opts.Concurrency)
	r.RunID = s.runID
	r.WantLower = s.opts.WantLower
	r.Ledger = s.opts.Ledger
	return r
}

func (s *Server) internalError(c *gin.Context, err error) {
	if errors.Is(err, context.Canceled) {
		c.Status(499)
		return
	}
	logging.Get(logging.CategoryServer).Error("request failed: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Server("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logging.Server("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
