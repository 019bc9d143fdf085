package api

import (
	"net/http"

	"bookstore/internal/models"
	"bookstore/internal/service"

	"github.com/gin-gonic/gin"
)

const idempotencyHeader = "Idempotency-Key"

// placeOrder handles checkout. A replayed idempotency key answers 200 with the earlier order.
func (h *Handler) placeOrder(c *gin.Context) {
	var req service.PlaceOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.IdempotencyKey = c.GetHeader(idempotencyHeader)

	result, err := h.Orders.PlaceOrder(c.Request.Context(), identityFrom(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		c.Header("Idempotent-Replayed", "true")
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"data": result.Order})
}

// getOrder handles get order requests
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := paramID(c, "id", "order")
	if !ok {
		return
	}

	order, err := h.Orders.GetOrder(c.Request.Context(), identityFrom(c), orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}

// listOrders returns the caller's orders, or every order for administrators
func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.Orders.ListOrders(c.Request.Context(), identityFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": orders})
}

func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := paramID(c, "id", "order")
	if !ok {
		return
	}

	order, err := h.Orders.CancelOrder(c.Request.Context(), identityFrom(c), orderID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, ok := paramID(c, "id", "order")
	if !ok {
		return
	}

	var req service.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	status, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid order status"})
		return
	}

	order, err := h.Orders.UpdateStatus(c.Request.Context(), identityFrom(c), orderID, status)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}
