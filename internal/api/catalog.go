package api

import (
	"net/http"
	"time"

	"distribution-service/internal/models"
	"distribution-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) createAccount(c *gin.Context) {
	var req service.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	account, err := h.svc.Catalog.CreateAccount(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, account)
}

func (h *Handler) listAccounts(c *gin.Context) {
	accounts, err := h.svc.Catalog.ListAccounts(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

func (h *Handler) getAccount(c *gin.Context) {
	account, err := h.svc.Catalog.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *Handler) deleteAccount(c *gin.Context) {
	if err := h.svc.Catalog.DeleteAccount(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listBalances(c *gin.Context) {
	balances, err := h.svc.Ledger.ListBalances(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balances": balances})
}

func (h *Handler) cachedBalances(c *gin.Context) {
	balances, err := h.svc.Balances.AccountBalances(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account_id": c.Param("id"), "balances": balances})
}

func (h *Handler) rewardProgress(c *gin.Context) {
	year := time.Now().UTC().Year()
	if y, err := queryInt(c, "year"); err != nil {
		badRequest(c, err)
		return
	} else if y != nil {
		year = *y
	}
	month, err := queryInt(c, "month")
	if err != nil {
		badRequest(c, err)
		return
	}

	progress, err := h.svc.Rewards.Progress(c.Request.Context(), c.Param("id"), year, month)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": progress})
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	product, err := h.svc.Catalog.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.svc.Catalog.ListProducts(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.svc.Catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	var req service.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	product, err := h.svc.Catalog.UpdateProduct(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) listProductBalances(c *gin.Context) {
	balances, err := h.svc.Ledger.ListProductBalances(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balances": balances})
}

func (h *Handler) createRewardTarget(c *gin.Context) {
	var target models.RewardTarget
	if err := c.ShouldBindJSON(&target); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.svc.Catalog.CreateRewardTarget(c.Request.Context(), &target); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, target)
}

type receiveStockRequest struct {
	AccountID string `json:"account_id" binding:"required"`
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int64  `json:"quantity"`
	Reference string `json:"reference"`
}

func (h *Handler) receiveStock(c *gin.Context) {
	var req receiveStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.svc.Ledger.ReceiveStock(c.Request.Context(), req.AccountID, req.ProductID, req.Quantity, req.Reference)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *Handler) transfer(c *gin.Context) {
	var cmd service.TransferCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.svc.Ledger.Transfer(c.Request.Context(), cmd)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
