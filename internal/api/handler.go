package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"distribution-service/internal/models"
	"distribution-service/internal/service"
	"distribution-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger is a dependency the readiness probe checks
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles the engine the handlers call into
type Services struct {
	Catalog  *service.CatalogService
	Ledger   *service.LedgerService
	Requests *service.RequestService
	Orders   *service.OrderService
	Imports  *service.ImportService
	Rewards  *service.RewardService
	Balances *service.BalanceCache
}

// Handler contains HTTP handlers
type Handler struct {
	svc    Services
	checks map[string]Pinger
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler. checks are probed by /ready.
func NewHandler(svc Services, checks map[string]Pinger) *Handler {
	return &Handler{
		svc:    svc,
		checks: checks,
		logger: util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/accounts", h.createAccount)
		v1.GET("/accounts", h.listAccounts)
		v1.GET("/accounts/:id", h.getAccount)
		v1.DELETE("/accounts/:id", h.deleteAccount)
		v1.GET("/accounts/:id/balances", h.listBalances)
		v1.GET("/accounts/:id/balances/cached", h.cachedBalances)
		v1.GET("/accounts/:id/rewards", h.rewardProgress)

		v1.POST("/products", h.createProduct)
		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.PUT("/products/:id", h.updateProduct)
		v1.GET("/products/:id/balances", h.listProductBalances)

		v1.POST("/reward-targets", h.createRewardTarget)

		v1.POST("/stock/receipts", h.receiveStock)
		v1.POST("/transfers", h.transfer)

		v1.POST("/requests", h.createRequest)
		v1.GET("/requests", h.listRequests)
		v1.GET("/requests/:id", h.getRequest)
		v1.POST("/requests/:id/approve", h.approveRequest)
		v1.POST("/requests/:id/reject", h.rejectRequest)
		v1.POST("/requests/:id/cancel", h.cancelRequest)

		v1.POST("/orders", h.createOrder)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/orders/tracking/:tracking", h.getOrderByTracking)
		v1.POST("/orders/:id/book", h.bookShipment)
		v1.POST("/orders/:id/ship", h.markShipped)
		v1.POST("/orders/:id/return", h.markReturned)
		v1.POST("/orders/:id/collect-cod", h.collectCOD)
		v1.POST("/orders/:id/revert", h.revertOrder)
		v1.POST("/orders/:id/restock", h.restockReturn)
		v1.POST("/orders/bulk", h.bulkOrders)
		v1.POST("/orders/waybill", h.waybill)

		v1.POST("/imports/:seller", h.importBatch)
		v1.POST("/imports/:seller/sync", h.syncFromPOS)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready only when every dependency answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// writeError maps engine errors onto HTTP statuses
func (h *Handler) writeError(c *gin.Context, err error) {
	var shortage *models.InsufficientStockError
	switch {
	case errors.As(err, &shortage):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":     "insufficient stock",
			"details":   err.Error(),
			"account":   shortage.AccountID,
			"product":   shortage.ProductID,
			"available": shortage.Available,
			"requested": shortage.Requested,
		})
		return
	case errors.Is(err, models.ErrInsufficientStock):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient stock", "details": err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrNotRequester):
		status = http.StatusForbidden
	case models.IsConflict(err):
		status = http.StatusConflict
	case models.IsClientError(err):
		status = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, models.ErrExternalServiceUnavailable):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}

func queryInt(c *gin.Context, name string) (*int, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
