package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/stumble/internal/ingest"
	"github.com/hitoshi/stumble/internal/model"
)

// SourceServiceInterface はソースハンドラーが必要とするサービスインターフェース。
type SourceServiceInterface interface {
	// Register は新規取り込みソースを登録する。
	Register(ctx context.Context, input ingest.RegisterInput) (*model.Source, error)
}

// SourceHandler は取り込みソース登録のHTTPハンドラー。
type SourceHandler struct {
	service SourceServiceInterface
}

// NewSourceHandler はSourceHandlerを生成する。
func NewSourceHandler(service SourceServiceInterface) *SourceHandler {
	return &SourceHandler{service: service}
}

// registerSourceRequest はソース登録リクエストのボディ。
type registerSourceRequest struct {
	FeedURL       string   `json:"feed_url"`
	SiteURL       string   `json:"site_url"`
	Title         string   `json:"title"`
	DefaultTopics []string `json:"default_topics"`
}

// sourceResponse はソース情報のAPIレスポンス。
type sourceResponse struct {
	ID            string   `json:"id"`
	FeedURL       string   `json:"feed_url"`
	SiteURL       string   `json:"site_url"`
	Title         string   `json:"title"`
	DefaultTopics []string `json:"default_topics"`
	FetchStatus   string   `json:"fetch_status"`
}

// Register はソース登録を処理する。
// POST /api/sources
func (h *SourceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	if req.FeedURL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("フィードURLが空です"))
		return
	}

	source, err := h.service.Register(r.Context(), ingest.RegisterInput{
		FeedURL:       req.FeedURL,
		SiteURL:       req.SiteURL,
		Title:         req.Title,
		DefaultTopics: req.DefaultTopics,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	topics := source.DefaultTopics
	if topics == nil {
		topics = []string{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sourceResponse{
		ID:            source.ID,
		FeedURL:       source.FeedURL,
		SiteURL:       source.SiteURL,
		Title:         source.Title,
		DefaultTopics: topics,
		FetchStatus:   string(source.FetchStatus),
	})
}
