package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/dentaflow/verify-engine/internal/config"
	"github.com/dentaflow/verify-engine/internal/db"
	"github.com/dentaflow/verify-engine/internal/engine"
	enats "github.com/dentaflow/verify-engine/internal/nats"
)

type Server struct {
	echo   *echo.Echo
	engine *engine.Engine
	js     jetstream.JetStream
	config *config.Config
}

func NewServer(eng *engine.Engine, js jetstream.JetStream, cfg *config.Config) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:   e,
		engine: eng,
		js:     js,
		config: cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.WebPort)
	slog.Info("Web server starting", "port", s.config.WebPort)

	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("Web server error", "error", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(shutdownCtx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api")

	read := api.Group("", requirePermission(PermRead))
	read.GET("/queue", s.handleGetQueue)
	read.GET("/history", s.handleGetHistory)
	read.GET("/search", s.handleSearch)
	read.GET("/audit", s.handleGetAudit)
	read.GET("/stats", s.handleStats)

	read.POST("/verify/insurance", s.handleVerifyInsurance)
	read.POST("/verify/identity", s.handleVerifyIdentity)
	read.POST("/verify/document", s.handleVerifyDocument)
	read.POST("/queue", s.handleAddToQueue)

	manage := api.Group("", requirePermission(PermManage))
	manage.POST("/batch-verify", s.handleBatchVerify)
	manage.PATCH("/verifications/:id/status", s.handleUpdateStatus)
	manage.POST("/cache/flush", s.handleFlushCache)

	// Health stays open for probes.
	api.GET("/health", s.handleHealth)
}

// engineHTTPError converts the engine's categorized errors to HTTP shape.
func engineHTTPError(err error) error {
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		status := http.StatusUnprocessableEntity
		switch engErr.Code {
		case engine.CodeValidation:
			status = http.StatusBadRequest
		case engine.CodeNotFound:
			status = http.StatusNotFound
		}
		return echo.NewHTTPError(status, map[string]any{
			"error":   engErr.Message,
			"code":    engErr.Code,
			"details": engErr.Details,
		})
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return echo.NewHTTPError(http.StatusRequestTimeout, "request cancelled")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

type insuranceRequest struct {
	SubjectID    string `json:"subjectId"`
	SubjectName  string `json:"subjectName,omitempty"`
	Provider     string `json:"provider"`
	PolicyNumber string `json:"policyNumber"`
}

func (s *Server) handleVerifyInsurance(c echo.Context) error {
	var req insuranceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	res, err := s.engine.SubmitVerification(c.Request().Context(), db.TypeInsurance, req.SubjectID, db.Payload{
		Provider:     req.Provider,
		PolicyNumber: req.PolicyNumber,
		SubjectName:  req.SubjectName,
	})
	if err != nil {
		return engineHTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

type identityRequest struct {
	SubjectID      string `json:"subjectId"`
	SubjectName    string `json:"subjectName,omitempty"`
	DocumentType   string `json:"documentType"`
	DocumentNumber string `json:"documentNumber,omitempty"`
	DateOfBirth    string `json:"dateOfBirth,omitempty"`
}

func (s *Server) handleVerifyIdentity(c echo.Context) error {
	var req identityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	res, err := s.engine.SubmitVerification(c.Request().Context(), db.TypeIdentity, req.SubjectID, db.Payload{
		DocumentType:   req.DocumentType,
		DocumentNumber: req.DocumentNumber,
		DateOfBirth:    req.DateOfBirth,
		SubjectName:    req.SubjectName,
	})
	if err != nil {
		return engineHTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

type documentRequest struct {
	DocumentID string `json:"documentId"`
	Type       string `json:"type"`
	Content    string `json:"content,omitempty"`
}

func (s *Server) handleVerifyDocument(c echo.Context) error {
	var req documentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	res, err := s.engine.SubmitVerification(c.Request().Context(), db.TypeDocument, req.DocumentID, db.Payload{
		DocumentType: req.Type,
		Content:      req.Content,
	})
	if err != nil {
		return engineHTTPError(err)
	}
	return c.JSON(http.StatusOK, res)
}

type enqueueRequest struct {
	Type        string     `json:"type"`
	SubjectID   string     `json:"subjectId"`
	Priority    string     `json:"priority,omitempty"`
	RequestedBy string     `json:"requestedBy,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	Payload     db.Payload `json:"payload"`
}

func (s *Server) handleAddToQueue(c echo.Context) error {
	var req enqueueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	created, err := s.engine.AddToQueue(c.Request().Context(),
		db.VerificationType(req.Type), req.SubjectID, req.Payload,
		req.Priority, req.RequestedBy, req.Notes)
	if err != nil {
		return engineHTTPError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *Server) handleGetQueue(c echo.Context) error {
	requests, err := s.engine.ListQueue(c.Request().Context())
	if err != nil {
		return engineHTTPError(err)
	}
	return c.JSON(http.StatusOK, requests)
}

func (s *Server) handleGetHistory(c echo.Context) error {
	// limit defaults to 100 and must be a positive integer when given.
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}

	results, err := s.engine.ListHistory(c.Request().Context(), limit)
	if err != nil {
		return engineHTTPError(err)
	}
	return c.JSON(http.StatusOK, results)
}

type batchRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleBatchVerify(c echo.Context) error {
	var req batchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.IDs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "ids must not be empty")
	}

	result, err := s.engine.BatchVerify(c.Request().Context(), req.IDs, nil)
	if err != nil {
		return engineHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

type statusUpdateRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

func (s *Server) handleUpdateStatus(c echo.Context) error {
	var req statusUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	updated, err := s.engine.UpdateStatus(c.Request().Context(), c.Param("id"), req.Status, req.Notes)
	if err != nil {
		return engineHTTPError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (s *Server) handleSearch(c echo.Context) error {
	filters := engine.SearchFilters{
		Type:      db.VerificationType(c.QueryParam("type")),
		Status:    c.QueryParam("status"),
		Priority:  c.QueryParam("priority"),
		RiskLevel: c.QueryParam("riskLevel"),
	}

	if raw := c.QueryParam("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from date")
		}
		filters.From = t
	}
	if raw := c.QueryParam("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to date")
		}
		filters.To = t
	}

	hits, err := s.engine.Search(c.Request().Context(), c.QueryParam("term"), filters)
	if err != nil {
		return engineHTTPError(err)
	}
	return c.JSON(http.StatusOK, hits)
}

func (s *Server) handleGetAudit(c echo.Context) error {
	if s.js == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "audit view not available")
	}
	ctx := c.Request().Context()

	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	levelFilter := c.QueryParam("level")
	eventFilter := c.QueryParam("event")

	view, err := s.js.KeyValue(ctx, enats.AuditViewBucket)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "audit view unreachable")
	}

	events := []db.AuditEvent{}
	keys, err := view.Keys(ctx)
	if err == nil {
		for _, key := range keys {
			entry, err := view.Get(ctx, key)
			if err != nil {
				continue
			}
			var event db.AuditEvent
			if err := json.Unmarshal(entry.Value(), &event); err != nil {
				continue
			}
			if levelFilter != "" && event.Level != levelFilter {
				continue
			}
			if eventFilter != "" && event.Event != eventFilter {
				continue
			}
			events = append(events, event)
		}
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	if len(events) > limit {
		events = events[:limit]
	}

	return c.JSON(http.StatusOK, events)
}

func (s *Server) handleFlushCache(c echo.Context) error {
	s.engine.FlushCache()
	return c.JSON(http.StatusOK, map[string]string{"status": "flushed"})
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.engine.Stats(c.Request().Context())
	if err != nil {
		return engineHTTPError(err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()
	components := make(map[string]string)
	overallStatus := "healthy"

	if s.js != nil {
		if _, err := s.js.AccountInfo(ctx); err != nil {
			components["nats"] = "unhealthy: " + err.Error()
			overallStatus = "degraded"
		} else {
			components["nats"] = "healthy"
		}

		for _, bucket := range []string{enats.QueueBucket, enats.HistoryBucket, enats.AuditViewBucket} {
			kv, err := s.js.KeyValue(ctx, bucket)
			if err != nil {
				components[bucket] = "unhealthy"
				overallStatus = "degraded"
				continue
			}
			status, _ := kv.Status(ctx)
			if status != nil {
				components[bucket] = fmt.Sprintf("healthy (values: %d)", status.Values())
			} else {
				components[bucket] = "healthy"
			}
		}

		stream, err := s.js.Stream(ctx, enats.AuditStream)
		if err != nil {
			components["audit_stream"] = "unhealthy: stream not found"
			overallStatus = "degraded"
		} else {
			info, _ := stream.Info(ctx)
			if info != nil {
				components["audit_stream"] = fmt.Sprintf("healthy (events: %d)", info.State.Msgs)
			} else {
				components["audit_stream"] = "healthy"
			}
		}
	} else {
		components["nats"] = "not configured"
	}

	health := map[string]any{
		"status":     overallStatus,
		"timestamp":  time.Now(),
		"components": components,
		"version":    "1.0.0",
	}

	statusCode := http.StatusOK
	if overallStatus == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	return c.JSON(statusCode, health)
}
