package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xuyicheng33/IPC-QUERY/model"
)

// respondErr maps service outcomes onto HTTP statuses: invalid input 400,
// unknown targets 404, ambiguous or occupied targets 409 with the candidate
// list, full queues 429, exhausted render capacity 503. Anything else is an
// internal error with the detail kept out of the response body.
func respondErr(c *gin.Context, err error) {
	var ce *model.ConflictError
	switch {
	case model.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &ce):
		c.JSON(http.StatusConflict, gin.H{"error": ce.Msg, "candidates": ce.Candidates})
	case errors.Is(err, model.ErrQueueFull):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrBusy):
		c.Header("Retry-After", "2")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
