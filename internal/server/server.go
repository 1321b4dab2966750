// Package server exposes the pipeline trigger over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/order-intake/constants"
	"github.com/joseph-ayodele/order-intake/internal/async"
	"github.com/joseph-ayodele/order-intake/internal/common"
	"github.com/joseph-ayodele/order-intake/internal/entity"
	"github.com/joseph-ayodele/order-intake/internal/export"
)

// Runner runs the categories a selector names.
type Runner interface {
	RunSelection(ctx context.Context, selector string) ([]entity.BatchReport, error)
}

// Enqueuer queues a selection for a background run.
type Enqueuer interface {
	Enqueue(ctx context.Context, selector string) (async.Job, error)
}

// HealthFunc reports whether the stores a run needs are reachable.
type HealthFunc func(ctx context.Context) error

type Server struct {
	runner   Runner
	health   HealthFunc
	exporter *export.Service
	queue    Enqueuer
	logger   *slog.Logger

	mu   sync.Mutex
	last []entity.BatchReport
}

type Option func(*Server)

// WithQueue enables ?async=true on the trigger.
func WithQueue(q Enqueuer) Option { return func(s *Server) { s.queue = q } }

func New(runner Runner, health HealthFunc, exporter *export.Service, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if exporter == nil {
		exporter = export.NewService(logger)
	}
	s := &Server{runner: runner, health: health, exporter: exporter, logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Remember keeps reports as the latest run. It matches async.ResultFunc so
// background runs feed /reports/last.xlsx too.
func (s *Server) Remember(_ async.Job, reports []entity.BatchReport, _ error) {
	if len(reports) == 0 {
		return
	}
	s.mu.Lock()
	s.last = reports
	s.mu.Unlock()
}

// Handler returns the gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.POST("/process_orders", s.processOrders)
	r.GET("/healthz", s.healthz)
	r.GET("/reports/last.xlsx", s.lastReport)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Request = c.Request.WithContext(common.WithRequestID(c.Request.Context(), reqID))
		c.Header("X-Request-ID", reqID)
		c.Next()
		s.logger.Info("server.request",
			"request_id", reqID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}

func (s *Server) processOrders(c *gin.Context) {
	selector := c.DefaultQuery("order_type", "all")
	if c.Query("async") == "true" && s.queue != nil {
		s.enqueue(c, selector)
		return
	}
	reports, err := s.runner.RunSelection(c.Request.Context(), selector)
	s.Remember(async.Job{}, reports, err)
	if err != nil {
		status := common.HTTPStatus(err)
		detail := err.Error()
		var appErr *common.AppError
		switch {
		case status == http.StatusBadRequest && errors.As(err, &appErr):
			detail = appErr.Message
		case status == http.StatusInternalServerError:
			detail = "Exception: " + detail
		}
		s.logger.Error("server.process_orders.failed", "selector", selector, "status", status, "error", err)
		c.JSON(status, gin.H{"detail": detail})
		return
	}

	results := make([]string, 0, len(reports))
	for _, r := range reports {
		results = append(results, r.Summary())
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) enqueue(c *gin.Context, selector string) {
	if _, err := constants.ParseSelector(selector); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	job, err := s.queue.Enqueue(c.Request.Context(), selector)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "order_type": selector})
}

func (s *Server) healthz(c *gin.Context) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// lastReport serves the reports of the most recent run as a workbook.
func (s *Server) lastReport(c *gin.Context) {
	s.mu.Lock()
	reports := s.last
	s.mu.Unlock()
	if len(reports) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"detail": "no run has completed yet"})
		return
	}
	data, err := s.exporter.ReportsXLSX(reports)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Exception: " + err.Error()})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="order-intake-report.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
