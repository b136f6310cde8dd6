// Package server exposes the resolution pipeline over HTTP.
package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agenthands/amalgam/internal/core"
	"github.com/agenthands/amalgam/internal/core/merge"
	"github.com/agenthands/amalgam/internal/core/model"
	"github.com/agenthands/amalgam/internal/core/scheduler"
	"github.com/agenthands/amalgam/internal/driver"
)

const (
	defaultReviewPageSize    = 50
	defaultClusterPageSize   = 20
	defaultExecutionPageSize = 20
	defaultConfidenceFloor   = 0.5
	defaultConfidenceLimit   = 50
)

type Server struct {
	resolver *core.Resolver
	sched    *scheduler.Scheduler
	log      *zap.Logger
}

func New(resolver *core.Resolver, sched *scheduler.Scheduler, log *zap.Logger) *Server {
	return &Server{resolver: resolver, sched: sched, log: log.Named("http")}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(s.log), gin.Recovery())

	r.GET("/health", s.Health)

	r.POST("/entities", s.SaveEntity)
	r.GET("/entities/low-confidence", s.LowConfidence)
	r.GET("/entities/:uuid", s.GetEntity)

	r.POST("/resolution/run", s.RunResolution)
	r.POST("/resolution/schedule", s.ScheduleResolution)
	r.DELETE("/resolution/schedule", s.CancelSchedule)
	r.GET("/resolution/status", s.ResolutionStatus)
	r.GET("/resolution/review", s.ListReviewFlags)
	r.GET("/resolution/review/clusters", s.ReviewClusters)
	r.POST("/resolution/review/:uuid", s.ResolveReview)

	r.GET("/executions", s.Executions)
	r.GET("/executions/stats", s.ExecutionStats)

	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

func (s *Server) Health(c *gin.Context) {
	if !s.resolver.Connected(c.Request.Context()) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "store": "unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SaveEntity ingests one entity and debounces an incremental pass so
// bursts of writes resolve together.
func (s *Server) SaveEntity(c *gin.Context) {
	var in model.EntityInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	rec, err := s.resolver.SaveEntity(c.Request.Context(), in)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrUnknownKind) || errors.Is(err, model.ErrMissingDisplayName):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, driver.ErrUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "graph store unavailable"})
		default:
			s.log.Error("failed to save entity", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save entity"})
		}
		return
	}

	fireAt := s.sched.Schedule(model.RunIncremental)
	c.JSON(http.StatusCreated, gin.H{"entity": rec, "resolution_at": fireAt})
}

func (s *Server) GetEntity(c *gin.Context) {
	rec, err := s.resolver.GetEntity(c.Request.Context(), c.Param("uuid"))
	if err != nil {
		var conflict *merge.ConflictError
		switch {
		case errors.Is(err, core.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "entity not found"})
		case errors.As(err, &conflict):
			c.JSON(http.StatusConflict, gin.H{"error": conflict.Error()})
		default:
			s.log.Error("failed to fetch entity", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch entity"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"entity": rec})
}

func (s *Server) LowConfidence(c *gin.Context) {
	threshold, err := floatQuery(c, "threshold", defaultConfidenceFloor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid threshold"})
		return
	}
	limit, err := intQuery(c, "limit", defaultConfidenceLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	entities, err := s.resolver.LowConfidence(c.Request.Context(), c.Query("group_id"), threshold, limit)
	if err != nil {
		s.log.Error("failed to list low-confidence entities", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list entities"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entities": entities, "count": len(entities)})
}

type runRequest struct {
	Kind string `json:"kind"`
}

// RunResolution triggers a synchronous pass. A pass already in flight
// answers 409 rather than queueing behind it.
func (s *Server) RunResolution(c *gin.Context) {
	kind, ok := s.bindRunKind(c)
	if !ok {
		return
	}

	stats, err := s.sched.RunNow(c.Request.Context(), kind)
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrAlreadyRunning):
			c.JSON(http.StatusConflict, gin.H{"error": "a resolution pass is already running"})
		case errors.Is(err, driver.ErrUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "graph store unavailable"})
		default:
			s.log.Error("resolution pass failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "resolution pass failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"kind": kind, "stats": stats})
}

func (s *Server) ScheduleResolution(c *gin.Context) {
	kind, ok := s.bindRunKind(c)
	if !ok {
		return
	}

	fireAt := s.sched.Schedule(kind)
	if fireAt.IsZero() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler is shutting down"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"kind": kind, "scheduled_at": fireAt})
}

func (s *Server) CancelSchedule(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"canceled": s.sched.CancelPending()})
}

func (s *Server) ResolutionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.sched.Status())
}

func (s *Server) ListReviewFlags(c *gin.Context) {
	limit, err := intQuery(c, "limit", defaultReviewPageSize)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	offset, err := intQuery(c, "offset", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}

	flags, err := s.resolver.FlaggedPairs(c.Request.Context(), c.Query("group_id"), limit, offset)
	if err != nil {
		s.log.Error("failed to list review flags", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list review flags"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"flags": flags, "count": len(flags)})
}

// ReviewClusters serves the clustered view of the queue: entities
// grouped by the flags tangling them together.
func (s *Server) ReviewClusters(c *gin.Context) {
	limit, err := intQuery(c, "limit", defaultClusterPageSize)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	clusters, err := s.resolver.ReviewClusters(c.Request.Context(), c.Query("group_id"), limit)
	if err != nil {
		s.log.Error("failed to cluster review flags", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cluster review flags"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"clusters": clusters, "count": len(clusters)})
}

type reviewRequest struct {
	Approve *bool `json:"approve"`
}

func (s *Server) ResolveReview(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Approve == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must carry an approve decision"})
		return
	}

	res, err := s.resolver.ResolveReview(c.Request.Context(), c.Param("uuid"), *req.Approve)
	if err != nil {
		var conflict *merge.ConflictError
		switch {
		case errors.Is(err, core.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "review flag not found"})
		case errors.As(err, &conflict):
			c.JSON(http.StatusConflict, gin.H{"error": conflict.Error()})
		default:
			s.log.Error("failed to resolve review flag", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve review flag"})
		}
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) Executions(c *gin.Context) {
	var kind model.RunKind
	if raw := c.Query("kind"); raw != "" {
		parsed, err := model.ParseRunKind(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid kind"})
			return
		}
		kind = parsed
	}
	limit, err := intQuery(c, "limit", defaultExecutionPageSize)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	execs := s.sched.Executions(kind, model.RunStatus(c.Query("status")), limit)
	c.JSON(http.StatusOK, gin.H{"executions": execs, "count": len(execs)})
}

func (s *Server) ExecutionStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.sched.Stats())
}

// bindRunKind reads the optional {"kind": ...} body; an absent body
// means incremental. Responds and reports false on a bad kind.
func (s *Server) bindRunKind(c *gin.Context) (model.RunKind, bool) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return "", false
	}
	if req.Kind == "" {
		return model.RunIncremental, true
	}
	kind, err := model.ParseRunKind(req.Kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be incremental or full"})
		return "", false
	}
	return kind, true
}

func intQuery(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func floatQuery(c *gin.Context, key string, def float64) (float64, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseFloat(raw, 64)
}
