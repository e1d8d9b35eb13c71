package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/stumble/internal/content"
	"github.com/hitoshi/stumble/internal/model"
)

// ContentServiceInterface はコンテンツハンドラーが必要とするサービスインターフェース。
type ContentServiceInterface interface {
	// Submit は新規コンテンツを投稿する。
	Submit(ctx context.Context, input content.SubmitInput) (*model.Content, error)
	// Get は指定IDのコンテンツを取得する。
	Get(ctx context.Context, contentID string) (*model.Content, error)
}

// ContentHandler はコンテンツ投稿・取得のHTTPハンドラー。
type ContentHandler struct {
	service ContentServiceInterface
}

// NewContentHandler はContentHandlerを生成する。
func NewContentHandler(service ContentServiceInterface) *ContentHandler {
	return &ContentHandler{service: service}
}

// submitContentRequest はコンテンツ投稿リクエストのボディ。
type submitContentRequest struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Topics      []string `json:"topics"`
	PublishedAt *string  `json:"published_at"`
	ImageURL    string   `json:"image_url"`
}

// Submit はコンテンツ投稿を処理する。
// POST /api/contents
func (h *ContentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	if req.URL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidURLError("URLが空です"))
		return
	}

	var publishedAt *time.Time
	if req.PublishedAt != nil && *req.PublishedAt != "" {
		t, err := time.Parse(time.RFC3339, *req.PublishedAt)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest,
				model.NewInvalidRequestError("published_atはRFC3339形式で指定してください"))
			return
		}
		publishedAt = &t
	}

	created, err := h.service.Submit(r.Context(), content.SubmitInput{
		URL:         req.URL,
		Title:       req.Title,
		Description: req.Description,
		Topics:      req.Topics,
		PublishedAt: publishedAt,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toContentResponse(created))
}

// Get はコンテンツ詳細を取得する。
// GET /api/contents/:id
func (h *ContentHandler) Get(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "id")

	found, err := h.service.Get(r.Context(), contentID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toContentResponse(found))
}
