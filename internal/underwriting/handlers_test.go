package underwriting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/durinhq/durin/internal/liveness"
)

func testRouter(t *testing.T) (*gin.Engine, *liveness.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	lstore := liveness.NewMemoryStore()
	svc := NewService(NewMemoryStore(), lstore, nil)

	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/v1"))
	return r, lstore
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func applicantBody() map[string]any {
	return map[string]any{
		"userId":           "alice",
		"fullName":         "Alice Example",
		"address":          "1 Main Street, Springfield",
		"country":          "US",
		"employmentStatus": "full_time",
		"monthlyIncome":    4000,
		"tenureMonths":     36,
	}
}

func transactionsBody() map[string]any {
	return map[string]any{
		"userId":       "alice",
		"transactions": healthyHistory(),
	}
}

func TestSubmitApplicantEndpoint(t *testing.T) {
	r, _ := testRouter(t)

	w := doJSON(t, r, http.MethodPost, "/v1/underwriting/applicants", applicantBody())
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestSubmitApplicantEndpointValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing name", func(m map[string]any) { delete(m, "fullName") }},
		{"short address", func(m map[string]any) { m["address"] = "here" }},
		{"zero income", func(m map[string]any) { m["monthlyIncome"] = 0 }},
		{"bad employment", func(m map[string]any) { m["employmentStatus"] = "astronaut" }},
		{"bad user id", func(m map[string]any) { m["userId"] = "../../etc/passwd" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, _ := testRouter(t)
			body := applicantBody()
			tc.mutate(body)
			w := doJSON(t, r, http.MethodPost, "/v1/underwriting/applicants", body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestUploadTransactionsJSON(t *testing.T) {
	r, _ := testRouter(t)

	w := doJSON(t, r, http.MethodPost, "/v1/underwriting/transactions", transactionsBody())
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"transactionCount":12`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestUploadTransactionsCSV(t *testing.T) {
	r, _ := testRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("user_id", "alice"); err != nil {
		t.Fatalf("writing form field: %v", err)
	}
	fw, err := mw.CreateFormFile("transactions", "statement.csv")
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	fmt.Fprint(fw, statementCSV)
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/underwriting/transactions", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"transactionCount":3`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestUploadTransactionsCSVMissingColumn(t *testing.T) {
	r, _ := testRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("user_id", "alice")
	fw, _ := mw.CreateFormFile("transactions", "statement.csv")
	fmt.Fprint(fw, "txn_id,amount\nt1,100\n")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/underwriting/transactions", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "missing_column") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestUploadTransactionsZeroAmount(t *testing.T) {
	r, _ := testRouter(t)

	body := map[string]any{
		"userId": "alice",
		"transactions": []map[string]any{
			{"txnId": "t1", "accountId": "a", "timestamp": "2024-01-15T00:00:00Z", "amount": 0, "transactionType": "expense"},
		},
	}
	w := doJSON(t, r, http.MethodPost, "/v1/underwriting/transactions", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestAnalyzeEndpointFlow(t *testing.T) {
	r, lstore := testRouter(t)

	// Preconditions are reported before all three inputs exist.
	w := doJSON(t, r, http.MethodPost, "/v1/underwriting/analyze", map[string]any{"userId": "alice"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("analyze without applicant: status = %d", w.Code)
	}

	if w := doJSON(t, r, http.MethodPost, "/v1/underwriting/applicants", applicantBody()); w.Code != http.StatusCreated {
		t.Fatalf("applicant: status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/v1/underwriting/analyze", map[string]any{"userId": "alice"})
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "incomplete_application") {
		t.Fatalf("analyze without transactions: status = %d, body = %s", w.Code, w.Body.String())
	}

	if w := doJSON(t, r, http.MethodPost, "/v1/underwriting/transactions", transactionsBody()); w.Code != http.StatusCreated {
		t.Fatalf("transactions: status = %d, body = %s", w.Code, w.Body.String())
	}
	err := lstore.Create(context.Background(), &liveness.CheckResult{
		UserID: "alice", Pass: true, Score: 0.9, SanctionsPass: true, DeviceRisk: 0.1,
	})
	if err != nil {
		t.Fatalf("seeding liveness check: %v", err)
	}

	w = doJSON(t, r, http.MethodPost, "/v1/underwriting/analyze", map[string]any{"userId": "alice"})
	if w.Code != http.StatusOK {
		t.Fatalf("analyze: status = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"approved":true`) {
		t.Errorf("body = %s", w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/underwriting/decisions/alice", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"jurisdiction":"US"`) {
		t.Errorf("decision: status = %d, body = %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/underwriting/status/alice", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"decisionMade":true`) {
		t.Errorf("status: code = %d, body = %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodDelete, "/v1/underwriting/users/alice", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("delete: status = %d, body = %s", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodDelete, "/v1/underwriting/users/alice", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d", w.Code)
	}
}

func TestGetDecisionNotFound(t *testing.T) {
	r, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/underwriting/decisions/nobody", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
	}
}
