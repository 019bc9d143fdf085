package api

import (
	"net/http"
	"strconv"
	"strings"

	"bookstore/internal/models"
	"bookstore/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) listBooks(c *gin.Context) {
	filter := models.BookFilter{Search: strings.TrimSpace(c.Query("search"))}
	if raw := c.Query("category_id"); raw != "" {
		categoryID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || categoryID <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid category ID"})
			return
		}
		filter.CategoryID = categoryID
	}

	books, err := h.Catalog.ListBooks(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": books})
}

func (h *Handler) getBook(c *gin.Context) {
	bookID, ok := paramID(c, "id", "book")
	if !ok {
		return
	}

	book, err := h.Catalog.GetBook(c.Request.Context(), bookID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": book})
}

func (h *Handler) createBook(c *gin.Context) {
	var req service.CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	book, err := h.Catalog.CreateBook(c.Request.Context(), identityFrom(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": book})
}

func (h *Handler) updateBook(c *gin.Context) {
	bookID, ok := paramID(c, "id", "book")
	if !ok {
		return
	}

	var req service.UpdateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	book, err := h.Catalog.UpdateBook(c.Request.Context(), identityFrom(c), bookID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": book})
}

func (h *Handler) deleteBook(c *gin.Context) {
	bookID, ok := paramID(c, "id", "book")
	if !ok {
		return
	}

	if err := h.Catalog.DeleteBook(c.Request.Context(), identityFrom(c), bookID); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) listReviews(c *gin.Context) {
	bookID, ok := paramID(c, "id", "book")
	if !ok {
		return
	}

	reviews, err := h.Reviews.ListReviews(c.Request.Context(), bookID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": reviews})
}

// createReview posts a review; only buyers of the book are eligible
func (h *Handler) createReview(c *gin.Context) {
	bookID, ok := paramID(c, "id", "book")
	if !ok {
		return
	}

	var req service.CreateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	review, err := h.Reviews.CreateReview(c.Request.Context(), identityFrom(c), bookID, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": review})
}

func (h *Handler) deleteReview(c *gin.Context) {
	reviewID, ok := paramID(c, "id", "review")
	if !ok {
		return
	}

	if err := h.Reviews.DeleteReview(c.Request.Context(), identityFrom(c), reviewID); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
