package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) listWishlist(c *gin.Context) {
	items, err := h.Wishlist.List(c.Request.Context(), identityFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (h *Handler) addToWishlist(c *gin.Context) {
	bookID, ok := paramID(c, "bookId", "book")
	if !ok {
		return
	}

	item, err := h.Wishlist.Add(c.Request.Context(), identityFrom(c), bookID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (h *Handler) removeFromWishlist(c *gin.Context) {
	bookID, ok := paramID(c, "bookId", "book")
	if !ok {
		return
	}

	if err := h.Wishlist.Remove(c.Request.Context(), identityFrom(c), bookID); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
