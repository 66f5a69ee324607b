// Package server exposes a watcher's state and stored leak results over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mabhi256/refwatch/internal/analysis"
	"github.com/mabhi256/refwatch/internal/demo"
	"github.com/mabhi256/refwatch/internal/watcher"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const (
	defaultListLimit = 50
	maxDemoBatch     = 1000
	shutdownTimeout  = 5 * time.Second
)

type Config struct {
	Watcher  *watcher.RefWatcher
	Store    *analysis.Store
	Gatherer prometheus.Gatherer
	// Workload enables the /demo endpoints when set.
	Workload *demo.Workload
	Logger   *slog.Logger
}

type Server struct {
	watcher  *watcher.RefWatcher
	store    *analysis.Store
	gatherer prometheus.Gatherer
	workload *demo.Workload
	logger   *slog.Logger
}

func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	gatherer := config.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		watcher:  config.Watcher,
		store:    config.Store,
		gatherer: gatherer,
		workload: config.Workload,
		logger:   logger,
	}
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware("refwatch"), s.requestLogger())

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	router.GET("/retained", s.handleRetained)
	router.POST("/clear", s.handleClear)
	router.GET("/leaks", s.handleListLeaks)
	router.GET("/leaks/:key", s.handleGetLeak)

	if s.workload != nil {
		d := router.Group("/demo")
		d.POST("/leak", s.handleDemo(s.workload.Leak))
		d.POST("/release", s.handleDemo(s.workload.Release))
		d.POST("/reset", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"released": s.workload.Reset()})
		})
	}
	return router
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"took", time.Since(start))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	builder := s.watcher.HeapDumpBuilder()
	c.JSON(http.StatusOK, gin.H{
		"empty":         s.watcher.IsEmpty(),
		"retained":      s.watcher.RetainedCount(),
		"disabled":      s.watcher.IsDisabled(),
		"excluded_refs": builder.ExcludedRefs,
		"metadata":      builder.Metadata,
	})
}

func (s *Server) handleRetained(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"keys": s.watcher.RetainedKeys()})
}

func (s *Server) handleClear(c *gin.Context) {
	cleared := s.watcher.RetainedCount()
	s.watcher.ClearWatchedReferences()
	s.logger.Info("watched references cleared", "count", cleared)
	c.JSON(http.StatusOK, gin.H{"cleared": cleared})
}

func (s *Server) handleListLeaks(c *gin.Context) {
	limit := defaultListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	results, err := s.store.List(limit)
	if err != nil {
		s.logger.Error("failed to list leaks", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if results == nil {
		results = []analysis.Result{}
	}
	c.JSON(http.StatusOK, gin.H{"leaks": results})
}

func (s *Server) handleGetLeak(c *gin.Context) {
	result, err := s.store.Get(c.Param("key"))
	if errors.Is(err, analysis.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "leak not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleDemo(run func(int) ([]string, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := strconv.Atoi(c.DefaultQuery("n", "1"))
		if err != nil || n < 1 || n > maxDemoBatch {
			c.JSON(http.StatusBadRequest, gin.H{"error": "n must be between 1 and 1000"})
			return
		}
		keys, err := run(n)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"keys": keys})
	}
}
