package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/stumble/internal/discovery"
	"github.com/hitoshi/stumble/internal/middleware"
	"github.com/hitoshi/stumble/internal/model"
)

// mockDiscoveryService はテスト用の発見サービスモック。
type mockDiscoveryService struct {
	nextResult     *discovery.DiscoveryResult
	nextErr        error
	lastUserID     string
	lastSeenIDs    []string
	lastWildness   *int
	similarResults []discovery.SimilarContent
	similarErr     error
	lastContentID  string
	lastLimit      int
	lastMinSim     float64
}

func (m *mockDiscoveryService) Next(_ context.Context, userID string, sessionSeenIDs []string, wildnessOverride *int) (*discovery.DiscoveryResult, error) {
	m.lastUserID = userID
	m.lastSeenIDs = sessionSeenIDs
	m.lastWildness = wildnessOverride
	if m.nextErr != nil {
		return nil, m.nextErr
	}
	return m.nextResult, nil
}

func (m *mockDiscoveryService) Similar(_ context.Context, contentID string, limit int, minSimilarity float64) ([]discovery.SimilarContent, error) {
	m.lastContentID = contentID
	m.lastLimit = limit
	m.lastMinSim = minSimilarity
	if m.similarErr != nil {
		return nil, m.similarErr
	}
	return m.similarResults, nil
}

func identifiedRequest(method, target string, body string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(middleware.ContextWithUserID(req.Context(), "user-1"))
}

func TestDiscoveryHandler_Next(t *testing.T) {
	service := &mockDiscoveryService{
		nextResult: &discovery.DiscoveryResult{
			Content:   model.Content{ID: "c-1", URL: "https://example.com/a", Title: "記事", Topics: []string{"tech"}},
			Rationale: "あなたの興味に近いコンテンツです",
			Explored:  false,
		},
	}
	handler := NewDiscoveryHandler(service)

	req := identifiedRequest(http.MethodGet, "/api/discover/next?wildness=200&seen=a,b,,c", "")
	rec := httptest.NewRecorder()
	handler.Next(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp discoveryResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Content.ID != "c-1" {
		t.Errorf("content ID = %q, want c-1", resp.Content.ID)
	}
	if resp.Rationale == "" {
		t.Error("rationale is empty")
	}

	if service.lastUserID != "user-1" {
		t.Errorf("user ID = %q, want user-1", service.lastUserID)
	}
	// 範囲外のwildnessはクランプして渡す
	if service.lastWildness == nil || *service.lastWildness != 100 {
		t.Errorf("wildness = %v, want 100", service.lastWildness)
	}
	if len(service.lastSeenIDs) != 3 {
		t.Errorf("seen IDs = %v, want 3 entries", service.lastSeenIDs)
	}
}

func TestDiscoveryHandler_Next_NoWildnessParam(t *testing.T) {
	service := &mockDiscoveryService{
		nextResult: &discovery.DiscoveryResult{Content: model.Content{ID: "c-1"}},
	}
	handler := NewDiscoveryHandler(service)

	req := identifiedRequest(http.MethodGet, "/api/discover/next", "")
	rec := httptest.NewRecorder()
	handler.Next(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if service.lastWildness != nil {
		t.Errorf("wildness = %v, want nil (未指定)", *service.lastWildness)
	}
}

func TestDiscoveryHandler_Next_InvalidWildness(t *testing.T) {
	handler := NewDiscoveryHandler(&mockDiscoveryService{})

	req := identifiedRequest(http.MethodGet, "/api/discover/next?wildness=abc", "")
	rec := httptest.NewRecorder()
	handler.Next(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDiscoveryHandler_Next_MissingUserID(t *testing.T) {
	handler := NewDiscoveryHandler(&mockDiscoveryService{})

	req := httptest.NewRequest(http.MethodGet, "/api/discover/next", nil)
	rec := httptest.NewRecorder()
	handler.Next(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestDiscoveryHandler_Next_PoolExhausted(t *testing.T) {
	service := &mockDiscoveryService{nextErr: model.NewPoolExhaustedError()}
	handler := NewDiscoveryHandler(service)

	req := identifiedRequest(http.MethodGet, "/api/discover/next", "")
	rec := httptest.NewRecorder()
	handler.Next(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}

	var resp apiErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Code != model.ErrCodePoolExhausted {
		t.Errorf("code = %q, want POOL_EXHAUSTED", resp.Code)
	}
	if resp.Action == "" {
		t.Error("action is empty")
	}
}

func TestParseSessionSeenIDs(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"空", "", 0},
		{"単一", "a", 1},
		{"複数", "a,b,c", 3},
		{"空要素を除外", "a,,b, ,c", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseSessionSeenIDs(tt.raw); len(got) != tt.want {
				t.Errorf("parseSessionSeenIDs(%q) count = %d, want %d", tt.raw, len(got), tt.want)
			}
		})
	}
}

func TestParseSessionSeenIDs_Capped(t *testing.T) {
	parts := make([]string, maxSessionSeenIDs+50)
	for i := range parts {
		parts[i] = "id"
	}
	got := parseSessionSeenIDs(strings.Join(parts, ","))
	if len(got) != maxSessionSeenIDs {
		t.Errorf("count = %d, want capped at %d", len(got), maxSessionSeenIDs)
	}
}

func TestDiscoveryHandler_Similar(t *testing.T) {
	service := &mockDiscoveryService{
		similarResults: []discovery.SimilarContent{
			{Content: model.Content{ID: "c-2"}, Similarity: 0.8},
			{Content: model.Content{ID: "c-3"}, Similarity: 0.5},
		},
	}
	handler := NewDiscoveryHandler(service)

	r := chi.NewRouter()
	r.Get("/api/discover/similar/{id}", handler.Similar)

	req := identifiedRequest(http.MethodGet, "/api/discover/similar/c-1?limit=10&min_similarity=0.3", "")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp similarResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("results count = %d, want 2", len(resp.Results))
	}
	if resp.Results[0].Similarity != 0.8 {
		t.Errorf("similarity = %v, want 0.8", resp.Results[0].Similarity)
	}

	if service.lastContentID != "c-1" {
		t.Errorf("content ID = %q, want c-1", service.lastContentID)
	}
	if service.lastLimit != 10 {
		t.Errorf("limit = %d, want 10", service.lastLimit)
	}
	if service.lastMinSim != 0.3 {
		t.Errorf("min similarity = %v, want 0.3", service.lastMinSim)
	}
}

func TestDiscoveryHandler_Similar_InvalidParams(t *testing.T) {
	handler := NewDiscoveryHandler(&mockDiscoveryService{})
	r := chi.NewRouter()
	r.Get("/api/discover/similar/{id}", handler.Similar)

	for _, target := range []string{
		"/api/discover/similar/c-1?limit=0",
		"/api/discover/similar/c-1?limit=abc",
		"/api/discover/similar/c-1?min_similarity=1.5",
		"/api/discover/similar/c-1?min_similarity=-0.1",
	} {
		req := identifiedRequest(http.MethodGet, target, "")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestToContentResponse_NilTopics(t *testing.T) {
	resp := toContentResponse(&model.Content{ID: "c-1"})
	if resp.Topics == nil {
		t.Error("Topics = nil, want empty slice")
	}
	if resp.PublishedAt != nil {
		t.Errorf("PublishedAt = %v, want nil", *resp.PublishedAt)
	}
}

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{model.ErrCodePoolExhausted, http.StatusNotFound},
		{model.ErrCodeContentNotFound, http.StatusNotFound},
		{model.ErrCodeInvalidRequest, http.StatusBadRequest},
		{model.ErrCodeInvalidAction, http.StatusBadRequest},
		{model.ErrCodeInvalidWindow, http.StatusBadRequest},
		{model.ErrCodeInvalidURL, http.StatusBadRequest},
		{model.ErrCodeSSRFBlocked, http.StatusForbidden},
		{model.ErrCodeDuplicateURL, http.StatusConflict},
		{model.ErrCodeUnauthorized, http.StatusUnauthorized},
		{"UNKNOWN", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got := mapAPIErrorToHTTPStatus(&model.APIError{Code: tt.code})
		if got != tt.want {
			t.Errorf("mapAPIErrorToHTTPStatus(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}
