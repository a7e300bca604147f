package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"inbox-tollbooth-go/internal/metrics"
	"inbox-tollbooth-go/internal/models"
	"inbox-tollbooth-go/internal/scheduler"
	"inbox-tollbooth-go/internal/store"
	"inbox-tollbooth-go/internal/toll"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	db            *gorm.DB
	store         *store.Store
	engine        *toll.Engine
	scheduler     *scheduler.Scheduler
	metrics       *metrics.Metrics
	webhookSecret string
}

// NewHandlers creates new HTTP handlers
func NewHandlers(db *gorm.DB, st *store.Store, engine *toll.Engine, sched *scheduler.Scheduler, m *metrics.Metrics, webhookSecret string) *Handlers {
	return &Handlers{
		db:            db,
		store:         st,
		engine:        engine,
		scheduler:     sched,
		metrics:       m,
		webhookSecret: webhookSecret,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	// Health check
	router.GET("/healthz", h.HealthCheck)

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Stripe completion webhook
	router.POST("/webhook/stripe", h.StripeWebhook)

	// API routes
	api := router.Group("/api/v1")
	{
		// Toll records
		api.GET("/records", h.GetRecords)
		api.GET("/records/:id", h.GetRecord)

		// Scheduler control
		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.POST("/scheduler/run-once", h.RunOnce)
		api.GET("/scheduler/status", h.GetSchedulerStatus)
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := models.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "ok",
		Metrics:   make(map[string]string),
	}

	// Check database connection
	if err := h.db.Raw("SELECT 1").Error; err != nil {
		response.Status = "error"
		response.Database = "error"
		logrus.Errorf("Database health check failed: %v", err)
	}

	// Check scheduler status
	if h.scheduler.IsRunning() {
		response.Metrics["scheduler"] = "running"
		response.Metrics["next_run"] = h.scheduler.GetNextRun().Format(time.RFC3339)
		response.Metrics["last_run"] = h.scheduler.GetLastRun().Format(time.RFC3339)
	} else {
		response.Metrics["scheduler"] = "stopped"
	}

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

// GetRecords returns toll records with pagination
func (h *Handlers) GetRecords(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}

	offset := (page - 1) * limit

	records, total, err := h.store.ListRecords(offset, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch records",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	responses := make([]models.TollRecordResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, recordResponse(record))
	}

	c.JSON(http.StatusOK, gin.H{
		"records": responses,
		"total":   total,
		"page":    page,
		"limit":   limit,
	})
}

// GetRecord returns a specific toll record
func (h *Handlers) GetRecord(c *gin.Context) {
	record, err := h.store.FindByID(c.Param("id"))
	if err != nil {
		if err == store.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error:   "not_found",
				Message: "Record not found",
				Code:    http.StatusNotFound,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch record",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, recordResponse(*record))
}

// StartScheduler starts the poll scheduler
func (h *Handlers) StartScheduler(c *gin.Context) {
	if err := h.scheduler.Start(); err != nil {
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "scheduler_error",
			Message: err.Error(),
			Code:    http.StatusConflict,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

// StopScheduler stops the poll scheduler
func (h *Handlers) StopScheduler(c *gin.Context) {
	if err := h.scheduler.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "scheduler_error",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// RunOnce triggers a single poll run
func (h *Handlers) RunOnce(c *gin.Context) {
	go h.scheduler.RunOnce()
	c.JSON(http.StatusAccepted, gin.H{"status": "triggered"})
}

// GetSchedulerStatus returns the scheduler status
func (h *Handlers) GetSchedulerStatus(c *gin.Context) {
	status := gin.H{
		"running": h.scheduler.IsRunning(),
	}
	if h.scheduler.IsRunning() {
		status["next_run"] = h.scheduler.GetNextRun().Format(time.RFC3339)
	}
	if lastRun := h.scheduler.GetLastRun(); !lastRun.IsZero() {
		status["last_run"] = lastRun.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, status)
}

func recordResponse(record models.TollRecord) models.TollRecordResponse {
	return models.TollRecordResponse{
		ID:               record.ID,
		GmailMessageID:   record.GmailMessageID,
		SenderEmail:      record.SenderEmail,
		TollPaid:         record.TollPaid,
		StripeCustomerID: record.StripeCustomerID,
		CreatedAt:        record.CreatedAt,
	}
}
