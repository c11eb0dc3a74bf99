package liveness

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestProviderDeepfakeConfidence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/detect" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Error("missing auth header")
		}
		var req detectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Image == "" {
			t.Error("missing image payload")
		}
		_ = json.NewEncoder(w).Encode(detectResponse{Score: 0.12, Status: "ANALYZED"})
	}))
	defer server.Close()

	client := NewProviderClient(server.URL, "test-key")
	score, err := client.DeepfakeConfidence(context.Background(), []byte("image-bytes"))
	if err != nil {
		t.Fatalf("DeepfakeConfidence failed: %v", err)
	}
	if score != 0.12 {
		t.Errorf("score = %f, want 0.12", score)
	}
}

func TestProviderRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(detectResponse{Score: 0.8})
	}))
	defer server.Close()

	client := NewProviderClient(server.URL, "k")
	score, err := client.DeepfakeConfidence(context.Background(), []byte("image"))
	if err != nil {
		t.Fatalf("DeepfakeConfidence failed after retries: %v", err)
	}
	if score != 0.8 {
		t.Errorf("score = %f, want 0.8", score)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestProviderClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewProviderClient(server.URL, "bad-key")
	if _, err := client.DeepfakeConfidence(context.Background(), []byte("image")); err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1 (4xx must not be retried)", got)
	}
}

func TestVerifyWithProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(detectResponse{Score: 0.05})
	}))
	defer server.Close()

	checker := NewChecker(NewMemoryStore(), NewProviderClient(server.URL, "k"), nil)
	result, err := checker.Verify(context.Background(), Check{
		UserID:            "alice",
		ImageData:         encode(passingImage(t)),
		DeviceFingerprint: "device-alice",
	})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	// score = 1 - 2*0.05
	if result.Score != 0.9 {
		t.Errorf("score = %f, want 0.9", result.Score)
	}
	if !result.Pass {
		t.Errorf("expected pass, got flags %v", result.Flags)
	}
}

func TestVerifyWithProviderDeepfake(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(detectResponse{Score: 0.85})
	}))
	defer server.Close()

	checker := NewChecker(NewMemoryStore(), NewProviderClient(server.URL, "k"), nil)
	result, err := checker.Verify(context.Background(), Check{
		UserID:            "imposter",
		ImageData:         encode(passingImage(t)),
		DeviceFingerprint: "device-x",
	})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Pass {
		t.Error("deepfake should not pass")
	}
	if result.Score != 0 {
		t.Errorf("score = %f, want 0", result.Score)
	}
	if !hasFlag(result.Flags, FlagDeepfake) {
		t.Errorf("flags = %v, want %s", result.Flags, FlagDeepfake)
	}
}

func TestSanctionsScreenMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req matchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if got := req.Queries["q1"].Properties["name"]; len(got) != 1 || got[0] != "Bad Actor" {
			t.Errorf("unexpected query: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"responses": map[string]interface{}{
				"q1": map[string]interface{}{
					"results": []map[string]interface{}{
						{"caption": "Bad Actor", "score": 0.95},
						{"caption": "Bad Actor Jr", "score": 0.4},
					},
				},
			},
		})
	}))
	defer server.Close()

	client := NewSanctionsClient(server.URL, "")
	match, err := client.Screen(context.Background(), "Bad Actor")
	if err != nil {
		t.Fatalf("Screen failed: %v", err)
	}
	if match == nil {
		t.Fatal("expected a match")
	}
	if match.Caption != "Bad Actor" || match.Count != 1 {
		t.Errorf("match = %+v", match)
	}
}

func TestSanctionsScreenClear(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"responses": map[string]interface{}{"q1": map[string]interface{}{"results": []interface{}{}}},
		})
	}))
	defer server.Close()

	client := NewSanctionsClient(server.URL, "")
	match, err := client.Screen(context.Background(), "Honest Person")
	if err != nil {
		t.Fatalf("Screen failed: %v", err)
	}
	if match != nil {
		t.Errorf("expected no match, got %+v", match)
	}
}

func TestVerifySanctionsOutageDefaultsToPass(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	checker := NewChecker(NewMemoryStore(), nil, NewSanctionsClient(server.URL, "k"))
	result, err := checker.Verify(context.Background(), Check{
		UserID:            "frank",
		ImageData:         encode(passingImage(t)),
		DeviceFingerprint: "device-frank",
	})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.SanctionsPass {
		t.Error("screening outage must not block the check")
	}
}
