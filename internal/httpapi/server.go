// Package httpapi exposes runs, stored results and metrics over HTTP.
package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/agent-boss/internal/memory"
	"github.com/danielpatrickdp/agent-boss/internal/report"
	"github.com/danielpatrickdp/agent-boss/internal/task"
)

// Runner executes one goal to completion.
type Runner interface {
	Run(ctx context.Context, goal string) task.OrchestrationResult
}

// Store is the read side of run memory. *memory.Store satisfies it.
type Store interface {
	GetRun(id string) (memory.Run, error)
	ListRuns(limit int) ([]memory.Run, error)
	Result(runID string) (task.OrchestrationResult, error)
	Decisions(runID string) ([]memory.DecisionRecord, error)
	Scores(runID string) ([]memory.ScoreRecord, error)
	ExecutorStats() ([]memory.ExecutorStat, error)
}

var _ Store = (*memory.Store)(nil)

// Config holds HTTP server configuration.
type Config struct {
	Addr       string
	RunTimeout time.Duration // bounds one POST /api/v1/runs; zero means no limit
}

// Server provides HTTP endpoints for agent-boss.
type Server struct {
	echo     *echo.Echo
	runner   Runner
	store    Store
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	config   Config
}

// NewServer creates a new HTTP server. A nil gatherer serves the default registry.
func NewServer(runner Runner, store Store, gatherer prometheus.Gatherer, logger *zap.Logger, cfg Config) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:     e,
		runner:   runner,
		store:    store,
		gatherer: gatherer,
		logger:   logger,
		config:   cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/runs", s.handleCreateRun)
	v1.GET("/runs", s.handleListRuns)
	v1.GET("/runs/:id", s.handleGetRun)
	v1.GET("/runs/:id/report", s.handleReport)
	v1.GET("/stats", s.handleStats)
}

// Echo returns the underlying router.
func (s *Server) Echo() *echo.Echo { return s.echo }

// #region bodies

// RunRequest is the request body for POST /api/v1/runs.
type RunRequest struct {
	Goal string `json:"goal"`
}

// RunsResponse is the response body for GET /api/v1/runs.
type RunsResponse struct {
	Runs []memory.Run `json:"runs"`
}

// RunDetail is the response body for GET /api/v1/runs/:id. Result is absent
// while the run is in progress.
type RunDetail struct {
	Run       memory.Run                `json:"run"`
	Result    *task.OrchestrationResult `json:"result,omitempty"`
	Decisions []memory.DecisionRecord   `json:"decisions"`
	Scores    []memory.ScoreRecord      `json:"scores"`
}

// StatsResponse is the response body for GET /api/v1/stats.
type StatsResponse struct {
	Executors []memory.ExecutorStat `json:"executors"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// #endregion bodies

// #region handlers

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleCreateRun runs the goal synchronously. A failed run is still a
// created run: the body carries failed=true and the error insight.
func (s *Server) handleCreateRun(c echo.Context) error {
	var req RunRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid run request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	goal := strings.TrimSpace(req.Goal)
	if goal == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "goal field is required")
	}

	ctx := c.Request().Context()
	if s.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RunTimeout)
		defer cancel()
	}

	res := s.runner.Run(ctx, goal)
	s.logger.Info("run finished",
		zap.String("run_id", res.RunID),
		zap.Bool("failed", res.Failed),
		zap.Float64("overall_confidence", res.OverallConfidence),
	)
	c.Response().Header().Set(echo.HeaderLocation, "/api/v1/runs/"+res.RunID)
	return c.JSON(http.StatusCreated, res)
}

func (s *Server) handleListRuns(c echo.Context) error {
	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer in 1..500")
		}
		limit = n
	}
	runs, err := s.store.ListRuns(limit)
	if err != nil {
		return s.internal("list runs", err)
	}
	if runs == nil {
		runs = []memory.Run{}
	}
	return c.JSON(http.StatusOK, RunsResponse{Runs: runs})
}

func (s *Server) handleGetRun(c echo.Context) error {
	id := c.Param("id")
	run, err := s.store.GetRun(id)
	if err != nil {
		return s.lookupError(id, err)
	}
	detail := RunDetail{Run: run, Decisions: []memory.DecisionRecord{}, Scores: []memory.ScoreRecord{}}

	res, err := s.store.Result(id)
	switch {
	case err == nil:
		detail.Result = &res
	case !errors.Is(err, sql.ErrNoRows):
		return s.internal("read result", err)
	}
	if d, err := s.store.Decisions(id); err != nil {
		return s.internal("read decisions", err)
	} else if d != nil {
		detail.Decisions = d
	}
	if sc, err := s.store.Scores(id); err != nil {
		return s.internal("read scores", err)
	} else if sc != nil {
		detail.Scores = sc
	}
	return c.JSON(http.StatusOK, detail)
}

func (s *Server) handleReport(c echo.Context) error {
	id := c.Param("id")
	f, err := report.ParseFormat(c.QueryParam("format"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := s.store.Result(id)
	if err != nil {
		return s.lookupError(id, err)
	}
	var buf bytes.Buffer
	if err := report.Render(&buf, res, f); err != nil {
		return s.internal("render report", err)
	}
	return c.Blob(http.StatusOK, contentType(f), buf.Bytes())
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.store.ExecutorStats()
	if err != nil {
		return s.internal("executor stats", err)
	}
	return c.JSON(http.StatusOK, StatsResponse{Executors: stats})
}

// #endregion handlers

// #region helpers

func (s *Server) lookupError(id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("run %s not found", id))
	}
	return s.internal("lookup run", err)
}

func (s *Server) internal(what string, err error) error {
	s.logger.Error(what+" failed", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, what+" failed")
}

func contentType(f report.Format) string {
	switch f {
	case report.FormatYAML:
		return "application/yaml"
	case report.FormatMarkdown:
		return "text/markdown; charset=utf-8"
	}
	return echo.MIMEApplicationJSON
}

// #endregion helpers

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.config.Addr))
	return s.echo.Start(s.config.Addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
