package analysis

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/durinhq/durin/internal/engine"
	"github.com/durinhq/durin/internal/ingest"
)

// Handler provides HTTP endpoints for analysis operations.
type Handler struct {
	service *Service
}

// NewHandler creates a new analysis handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up analysis routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/analyses", h.RunAnalysis)
	r.GET("/analyses", h.ListAnalyses)
	r.GET("/analyses/latest", h.GetLatest)
	r.GET("/analyses/:id", h.GetAnalysis)
	r.DELETE("/analyses/:id", h.DeleteAnalysis)
	r.GET("/analyses/:id/accounts/:accountId", h.GetAccountContext)
}

// RunAnalysis handles POST /v1/analyses
//
// Expects a multipart form with a "transactions" CSV file and an optional
// "accounts" CSV file with KYC records.
func (h *Handler) RunAnalysis(c *gin.Context) {
	txFile, err := c.FormFile("transactions")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_file",
			"message": "A transactions CSV file is required",
		})
		return
	}

	transactions, err := parseUpload(txFile, ingest.ParseTransactions)
	if err != nil {
		respondParseError(c, "transactions", err)
		return
	}

	var accounts []engine.Account
	if acctFile, err := c.FormFile("accounts"); err == nil {
		accounts, err = parseUpload(acctFile, ingest.ParseAccounts)
		if err != nil {
			respondParseError(c, "accounts", err)
			return
		}
	}

	rec, err := h.service.Run(c.Request.Context(), accounts, transactions)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidRecord) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_records",
				"message": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"analysis": rec})
}

// ListAnalyses handles GET /v1/analyses
func (h *Handler) ListAnalyses(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := h.service.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	summaries := make([]Summary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, rec.Summarize())
	}

	c.JSON(http.StatusOK, gin.H{
		"analyses": summaries,
		"count":    len(summaries),
	})
}

// GetLatest handles GET /v1/analyses/latest
func (h *Handler) GetLatest(c *gin.Context) {
	rec, err := h.service.Latest(c.Request.Context())
	if err != nil {
		if errors.Is(err, ErrNoAnalyses) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "no_analyses",
				"message": "No analyses have been run yet",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"analysis": rec})
}

// GetAnalysis handles GET /v1/analyses/:id
func (h *Handler) GetAnalysis(c *gin.Context) {
	rec, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No analysis found with this id",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"analysis": rec})
}

// DeleteAnalysis handles DELETE /v1/analyses/:id
func (h *Handler) DeleteAnalysis(c *gin.Context) {
	err := h.service.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No analysis found with this id",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "analysis deleted"})
}

// GetAccountContext handles GET /v1/analyses/:id/accounts/:accountId
func (h *Handler) GetAccountContext(c *gin.Context) {
	acct, err := h.service.AccountContext(c.Request.Context(), c.Param("id"), c.Param("accountId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
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

	c.JSON(http.StatusOK, acct)
}

func parseUpload[T any](fh *multipart.FileHeader, parse func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return parse(f)
}

func respondParseError(c *gin.Context, file string, err error) {
	status := http.StatusBadRequest
	code := "invalid_csv"
	if errors.Is(err, ingest.ErrMissingColumn) {
		code = "missing_column"
	} else if errors.Is(err, engine.ErrInvalidRecord) {
		code = "invalid_records"
	}
	c.JSON(status, gin.H{
		"error":   code,
		"file":    file,
		"message": err.Error(),
	})
}
