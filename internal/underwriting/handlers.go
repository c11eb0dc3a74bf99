package underwriting

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/durinhq/durin/internal/validation"
)

// Handler provides HTTP endpoints for the underwriting flow.
type Handler struct {
	service *Service
}

// NewHandler creates a new underwriting handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up underwriting routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/underwriting/applicants", h.SubmitApplicant)
	r.POST("/underwriting/transactions", h.UploadTransactions)
	r.POST("/underwriting/analyze", h.Analyze)
	r.GET("/underwriting/decisions/:userId", h.GetDecision)
	r.GET("/underwriting/status/:userId", h.GetStatus)
	r.DELETE("/underwriting/users/:userId", h.DeleteUser)
}

// ApplicantRequest is the body for POST /v1/underwriting/applicants
type ApplicantRequest struct {
	UserID           string           `json:"userId" binding:"required"`
	FullName         string           `json:"fullName" binding:"required,min=2"`
	Address          string           `json:"address" binding:"required,min=10"`
	Country          string           `json:"country" binding:"required"`
	EmploymentStatus EmploymentStatus `json:"employmentStatus" binding:"required"`
	MonthlyIncome    float64          `json:"monthlyIncome" binding:"required,gt=0"`
	TenureMonths     int              `json:"tenureMonths" binding:"gte=0"`
	EmailHash        string           `json:"emailHash"`
	PhoneHash        string           `json:"phoneHash"`
}

// SubmitApplicant handles POST /v1/underwriting/applicants
func (h *Handler) SubmitApplicant(c *gin.Context) {
	var req ApplicantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}
	if verrs := validation.Validate(
		validation.ValidAccount("userId", req.UserID),
		validation.OneOf("employmentStatus", string(req.EmploymentStatus),
			string(EmploymentFullTime), string(EmploymentPartTime),
			string(EmploymentSelfEmployed), string(EmploymentUnemployed),
			string(EmploymentRetired)),
	); len(verrs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": verrs.Error(),
		})
		return
	}

	applicant := &Applicant{
		UserID:           req.UserID,
		FullName:         validation.SanitizeString(req.FullName, 256),
		Address:          validation.SanitizeString(req.Address, 1000),
		Country:          validation.SanitizeString(req.Country, 64),
		EmploymentStatus: req.EmploymentStatus,
		MonthlyIncome:    req.MonthlyIncome,
		TenureMonths:     req.TenureMonths,
		EmailHash:        req.EmailHash,
		PhoneHash:        req.PhoneHash,
	}
	if err := h.service.SaveApplicant(c.Request.Context(), applicant); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"userId":  applicant.UserID,
		"message": "Personal data stored",
	})
}

// TransactionUploadRequest is the JSON body for POST /v1/underwriting/transactions
type TransactionUploadRequest struct {
	UserID       string            `json:"userId" binding:"required"`
	Transactions []BankTransaction `json:"transactions" binding:"required"`
}

// UploadTransactions handles POST /v1/underwriting/transactions. The body is
// either JSON or a multipart form with a user_id field and a CSV file named
// "transactions".
func (h *Handler) UploadTransactions(c *gin.Context) {
	var userID string
	var txns []BankTransaction

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		userID = c.PostForm("user_id")
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "user_id form field is required",
			})
			return
		}
		fh, err := c.FormFile("transactions")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "missing_file",
				"message": "transactions file is required",
			})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_file",
				"message": err.Error(),
			})
			return
		}
		defer func() { _ = f.Close() }()

		txns, err = ParseBankTransactions(f)
		if err != nil {
			h.respondParseError(c, err)
			return
		}
	} else {
		var req TransactionUploadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "userId and transactions are required",
			})
			return
		}
		for _, t := range req.Transactions {
			if t.Amount == 0 {
				c.JSON(http.StatusBadRequest, gin.H{
					"error":   "invalid_records",
					"message": "transaction amount cannot be zero",
				})
				return
			}
		}
		userID = req.UserID
		txns = req.Transactions
	}

	if !validation.IsValidAccountID(userID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_user_id",
			"message": "User id contains invalid characters",
		})
		return
	}

	if err := h.service.SaveTransactions(c.Request.Context(), userID, txns); err != nil {
		if errors.Is(err, ErrNoTransactions) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "transaction list is empty",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"userId":           userID,
		"transactionCount": len(txns),
		"message":          "Transactions stored",
	})
}

// AnalyzeRequest is the body for POST /v1/underwriting/analyze
type AnalyzeRequest struct {
	UserID       string `json:"userId" binding:"required"`
	Jurisdiction string `json:"jurisdiction"`
}

// Analyze handles POST /v1/underwriting/analyze
func (h *Handler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "userId is required",
		})
		return
	}
	if req.Jurisdiction == "" {
		req.Jurisdiction = "US"
	}

	decision, err := h.service.Analyze(c.Request.Context(), req.UserID, req.Jurisdiction)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoApplicant):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "no_applicant",
				"message": err.Error(),
			})
		case errors.Is(err, ErrNoTransactions), errors.Is(err, ErrNoLivenessCheck):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "incomplete_application",
				"message": err.Error(),
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"decision": decision})
}

// GetDecision handles GET /v1/underwriting/decisions/:userId
func (h *Handler) GetDecision(c *gin.Context) {
	decision, err := h.service.Decision(c.Request.Context(), c.Param("userId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No decision found for user",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"decision": decision})
}

// GetStatus handles GET /v1/underwriting/status/:userId
func (h *Handler) GetStatus(c *gin.Context) {
	status, err := h.service.Status(c.Request.Context(), c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, status)
}

// DeleteUser handles DELETE /v1/underwriting/users/:userId
func (h *Handler) DeleteUser(c *gin.Context) {
	removed, err := h.service.DeleteUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": "No such user",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (h *Handler) respondParseError(c *gin.Context, err error) {
	code := "invalid_csv"
	switch {
	case errors.Is(err, ErrMissingColumn):
		code = "missing_column"
	case errors.Is(err, ErrInvalidRecord):
		code = "invalid_records"
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   code,
		"message": err.Error(),
	})
}
