package api

import (
	"errors"
	"net/http"
	"time"

	"distribution-service/internal/models"
	"distribution-service/internal/service"
	"distribution-service/internal/store"

	"github.com/gin-gonic/gin"
)

func (h *Handler) createRequest(c *gin.Context) {
	var req service.CreateRequestInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	created, err := h.svc.Requests.CreateRequest(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) listRequests(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		badRequest(c, err)
		return
	}
	filter := store.RequestFilter{
		AccountID: c.Query("account_id"),
		Status:    models.RequestStatus(c.Query("status")),
	}
	if limit != nil {
		filter.Limit = *limit
	}

	requests, err := h.svc.Requests.ListRequests(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

func (h *Handler) getRequest(c *gin.Context) {
	req, err := h.svc.Requests.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

type decisionRequest struct {
	DecidedBy    string `json:"decided_by"`
	Reason       string `json:"reason"`
	ActorAccount string `json:"actor_account"`
}

func bindDecision(c *gin.Context) (*decisionRequest, bool) {
	var req decisionRequest
	if c.Request.ContentLength == 0 {
		return &req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return nil, false
	}
	return &req, true
}

func (h *Handler) approveRequest(c *gin.Context) {
	body, ok := bindDecision(c)
	if !ok {
		return
	}

	req, err := h.svc.Requests.Approve(c.Request.Context(), c.Param("id"), body.DecidedBy)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *Handler) rejectRequest(c *gin.Context) {
	body, ok := bindDecision(c)
	if !ok {
		return
	}

	req, err := h.svc.Requests.Reject(c.Request.Context(), c.Param("id"), body.DecidedBy, body.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *Handler) cancelRequest(c *gin.Context) {
	body, ok := bindDecision(c)
	if !ok {
		return
	}

	req, err := h.svc.Requests.Cancel(c.Request.Context(), c.Param("id"), body.ActorAccount)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.svc.Orders.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) listOrders(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		badRequest(c, err)
		return
	}
	filter := store.OrderFilter{
		SellerAccount:  c.Query("seller_account"),
		DeliveryStatus: models.DeliveryStatus(c.Query("status")),
	}
	if limit != nil {
		filter.Limit = *limit
	}

	orders, err := h.svc.Orders.ListOrders(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.svc.Orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) getOrderByTracking(c *gin.Context) {
	order, err := h.svc.Orders.GetOrderByTracking(c.Request.Context(), c.Param("tracking"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) bookShipment(c *gin.Context) {
	order, err := h.svc.Orders.BookShipment(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type orderEventRequest struct {
	TrackingNumber string    `json:"tracking_number"`
	At             time.Time `json:"at"`
}

func bindOrderEvent(c *gin.Context) (*orderEventRequest, bool) {
	var req orderEventRequest
	if c.Request.ContentLength == 0 {
		return &req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return nil, false
	}
	return &req, true
}

func (h *Handler) markShipped(c *gin.Context) {
	body, ok := bindOrderEvent(c)
	if !ok {
		return
	}

	order, err := h.svc.Orders.MarkShipped(c.Request.Context(), c.Param("id"), body.TrackingNumber)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) markReturned(c *gin.Context) {
	body, ok := bindOrderEvent(c)
	if !ok {
		return
	}

	order, err := h.svc.Orders.MarkReturned(c.Request.Context(), c.Param("id"), body.At)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) collectCOD(c *gin.Context) {
	body, ok := bindOrderEvent(c)
	if !ok {
		return
	}

	order, err := h.svc.Orders.CollectCOD(c.Request.Context(), c.Param("id"), body.At)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) revertOrder(c *gin.Context) {
	order, err := h.svc.Orders.RevertToPending(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) restockReturn(c *gin.Context) {
	order, err := h.svc.Orders.RestockReturn(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type bulkRequest struct {
	Op              service.BulkOp `json:"op" binding:"required"`
	IDs             []string       `json:"ids"`
	TrackingNumbers []string       `json:"tracking_numbers"`
	At              time.Time      `json:"at"`
}

// bulkOrders answers 200 when every member succeeded and 207 with the
// per-member result otherwise
func (h *Handler) bulkOrders(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if len(req.IDs) > 0 && len(req.TrackingNumbers) > 0 {
		badRequest(c, errors.New("select orders by ids or by tracking_numbers, not both"))
		return
	}

	var (
		result *models.BatchResult
		err    error
	)
	if len(req.TrackingNumbers) > 0 {
		result, err = h.svc.Orders.BulkByTracking(c.Request.Context(), req.Op, req.TrackingNumbers, req.At)
	} else {
		result, err = h.svc.Orders.BulkByIDs(c.Request.Context(), req.Op, req.IDs, req.At)
	}

	var partial *models.PartialBatchError
	switch {
	case errors.As(err, &partial):
		c.JSON(http.StatusMultiStatus, partial.Result)
	case err != nil:
		h.writeError(c, err)
	default:
		c.JSON(http.StatusOK, result)
	}
}

type waybillRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

func (h *Handler) waybill(c *gin.Context) {
	var req waybillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	doc, err := h.svc.Orders.Waybill(c.Request.Context(), req.IDs)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/pdf", doc)
}

type importRequest struct {
	Transactions []models.ExternalTransaction `json:"transactions" binding:"required"`
}

func (h *Handler) importBatch(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	summary, err := h.svc.Imports.ImportBatch(c.Request.Context(), c.Param("seller"), req.Transactions)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

type syncRequest struct {
	Date string `json:"date"`
}

func (h *Handler) syncFromPOS(c *gin.Context) {
	var req syncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	date := time.Now().UTC().Truncate(24 * time.Hour)
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			badRequest(c, err)
			return
		}
		date = parsed
	}

	summary, err := h.svc.Imports.SyncFromPOS(c.Request.Context(), c.Param("seller"), date)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
