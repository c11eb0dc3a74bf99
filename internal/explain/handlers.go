package explain

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/durinhq/durin/internal/analysis"
	"github.com/durinhq/durin/internal/validation"
)

// Handler provides HTTP endpoints for explanations.
type Handler struct {
	service *Service
}

// NewHandler creates a new explain handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up explanation routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/analyses/:id/accounts/:accountId/explain", h.ExplainAccount)
	r.POST("/compliance/chat", h.ComplianceChat)
}

// ExplainAccount handles POST /v1/analyses/:id/accounts/:accountId/explain
func (h *Handler) ExplainAccount(c *gin.Context) {
	exp, err := h.service.ExplainAccount(c.Request.Context(), c.Param("id"), c.Param("accountId"))
	if err != nil {
		if errors.Is(err, analysis.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No such analysis or account",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"explanation": exp})
}

// ComplianceChatRequest is the body for POST /v1/compliance/chat
type ComplianceChatRequest struct {
	Country  string    `json:"country" binding:"required"`
	Question string    `json:"question" binding:"required"`
	History  []Message `json:"history"`
}

// ComplianceChat handles POST /v1/compliance/chat
func (h *Handler) ComplianceChat(c *gin.Context) {
	var req ComplianceChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "country and question are required",
		})
		return
	}
	req.Country = validation.SanitizeString(req.Country, 100)
	req.Question = validation.SanitizeString(req.Question, validation.MaxStringLength)

	answer, err := h.service.ComplianceChat(c.Request.Context(), req.Country, req.Question, req.History)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, answer)
}
