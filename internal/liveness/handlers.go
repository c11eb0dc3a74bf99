package liveness

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/durinhq/durin/internal/validation"
)

// Handler provides HTTP endpoints for liveness checks.
type Handler struct {
	checker *Checker
	store   Store
}

// NewHandler creates a new liveness handler.
func NewHandler(checker *Checker, store Store) *Handler {
	return &Handler{checker: checker, store: store}
}

// RegisterRoutes sets up liveness routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/liveness/checks", h.CreateCheck)
	r.GET("/liveness/checks/:userId", h.ListChecks)
	r.GET("/liveness/devices/:fingerprint", h.GetDeviceStats)
}

// CheckRequest is the body for POST /v1/liveness/checks
type CheckRequest struct {
	UserID            string `json:"userId" binding:"required"`
	UserName          string `json:"userName"`
	ImageData         string `json:"imageData" binding:"required"`
	DeviceFingerprint string `json:"deviceFingerprint" binding:"required"`
}

// CreateCheck handles POST /v1/liveness/checks
func (h *Handler) CreateCheck(c *gin.Context) {
	var req CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "userId, imageData, and deviceFingerprint are required",
		})
		return
	}
	if !validation.IsValidAccountID(req.UserID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_user_id",
			"message": "User id contains invalid characters",
		})
		return
	}
	if len(req.ImageData) < 100 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_image",
			"message": "Image data too small to be a valid base64 image",
		})
		return
	}

	result, err := h.checker.Verify(c.Request.Context(), Check{
		UserID:            req.UserID,
		UserName:          validation.SanitizeString(req.UserName, 200),
		ImageData:         req.ImageData,
		DeviceFingerprint: req.DeviceFingerprint,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, result)
}

// ListChecks handles GET /v1/liveness/checks/:userId
func (h *Handler) ListChecks(c *gin.Context) {
	userID := c.Param("userId")
	if !validation.IsValidAccountID(userID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_user_id",
			"message": "User id contains invalid characters",
		})
		return
	}

	checks, err := h.store.ListByUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	if checks == nil {
		checks = []CheckResult{}
	}

	c.JSON(http.StatusOK, gin.H{
		"userId": userID,
		"checks": checks,
		"count":  len(checks),
	})
}

// GetDeviceStats handles GET /v1/liveness/devices/:fingerprint
func (h *Handler) GetDeviceStats(c *gin.Context) {
	stats, err := h.checker.DeviceStats(c.Request.Context(), c.Param("fingerprint"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No such device",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}
