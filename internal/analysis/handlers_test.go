package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

const transactionsCSV = `txn_id,from,to,amount,timestamp
t1,m1,m2,900,2024-05-01T12:00:00Z
t2,m1,m3,950,2024-05-01T12:30:00Z
t3,m1,m2,980,2024-05-01T13:00:00Z
t4,clean,m2,4000,2024-05-01T14:00:00Z`

const accountsCSV = `user_id,device_id,ip
m1,shared-dev,172.16.0.9
m2,shared-dev,172.16.0.9
m3,shared-dev,172.16.0.9
clean,own-dev,192.168.1.50`

func testRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := NewService(NewMemoryStore(), nil)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/v1"))
	return r, svc
}

func uploadRequest(t *testing.T, files map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for field, content := range files {
		part, err := w.CreateFormFile(field, field+".csv")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest("POST", "/v1/analyses", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestRunAnalysisEndpoint(t *testing.T) {
	r, _ := testRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, map[string]string{
		"transactions": transactionsCSV,
		"accounts":     accountsCSV,
	}))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Analysis Record `json:"analysis"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if resp.Analysis.Status != StatusCompleted {
		t.Errorf("status = %s", resp.Analysis.Status)
	}
	if resp.Analysis.Result == nil || resp.Analysis.Result.Summary.HighRiskCount == 0 {
		t.Error("expected high-risk accounts in the fraud ring scenario")
	}
}

func TestRunAnalysisMissingTransactionsFile(t *testing.T) {
	r, _ := testRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, map[string]string{"accounts": accountsCSV}))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRunAnalysisMalformedCSV(t *testing.T) {
	r, _ := testRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, map[string]string{
		"transactions": "from,to,amount,timestamp\nm1,m2,not-a-number,2024-05-01",
	}))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 (body %s)", w.Code, w.Body.String())
	}
}

func TestGetAnalysisEndpoints(t *testing.T) {
	r, svc := testRouter(t)

	// No analyses yet.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/analyses/latest", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("latest on empty store = %d, want 404", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, uploadRequest(t, map[string]string{
		"transactions": transactionsCSV,
		"accounts":     accountsCSV,
	}))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload failed: %d", w.Code)
	}

	rec, err := svc.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}

	// By id.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/analyses/"+rec.ID, nil))
	if w.Code != http.StatusOK {
		t.Errorf("get by id = %d", w.Code)
	}

	// Unknown id.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/analyses/an_000000000000000000000000", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown id = %d, want 404", w.Code)
	}

	// Listing.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/analyses", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var listResp struct {
		Analyses []Summary `json:"analyses"`
		Count    int       `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("bad list response: %v", err)
	}
	if listResp.Count != 1 || listResp.Analyses[0].ID != rec.ID {
		t.Errorf("unexpected listing: %+v", listResp)
	}
	if listResp.Analyses[0].HighRiskCount == 0 {
		t.Error("summary should carry high-risk count")
	}

	// Account context.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/analyses/"+rec.ID+"/accounts/m1", nil))
	if w.Code != http.StatusOK {
		t.Errorf("account context = %d", w.Code)
	}

	// Delete.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("DELETE", "/v1/analyses/"+rec.ID, nil))
	if w.Code != http.StatusOK {
		t.Errorf("delete = %d", w.Code)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/analyses/"+rec.ID, nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}
