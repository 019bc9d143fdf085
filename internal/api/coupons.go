package api

import (
	"net/http"

	"bookstore/internal/service"

	"github.com/gin-gonic/gin"
)

// validateCoupon quotes the discount a coupon would give without redeeming it
func (h *Handler) validateCoupon(c *gin.Context) {
	var req service.ValidateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	quote, err := h.Coupons.Validate(c.Request.Context(), req.Code, req.OrderTotal)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": quote})
}

func (h *Handler) listCoupons(c *gin.Context) {
	coupons, err := h.Coupons.ListCoupons(c.Request.Context(), identityFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": coupons})
}

func (h *Handler) createCoupon(c *gin.Context) {
	var req service.CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	coupon, err := h.Coupons.CreateCoupon(c.Request.Context(), identityFrom(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": coupon})
}
