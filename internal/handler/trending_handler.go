package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/stumble/internal/model"
)

// TrendingServiceInterface はトレンドハンドラーが必要とするサービスインターフェース。
type TrendingServiceInterface interface {
	// List は指定窓のトレンド上位をスコア降順で返す。
	List(ctx context.Context, window string, limit int) ([]model.TrendingEntryWithContent, error)
}

// TrendingHandler はトレンド一覧のHTTPハンドラー。
type TrendingHandler struct {
	service TrendingServiceInterface
}

// NewTrendingHandler はTrendingHandlerを生成する。
func NewTrendingHandler(service TrendingServiceInterface) *TrendingHandler {
	return &TrendingHandler{service: service}
}

// trendingEntryResponse はトレンド一覧の1件。
type trendingEntryResponse struct {
	Content contentResponse `json:"content"`
	Score   float64         `json:"score"`
}

// trendingResponse はトレンド一覧APIのレスポンス。
type trendingResponse struct {
	Window     string                  `json:"window"`
	ComputedAt *string                 `json:"computed_at"`
	Entries    []trendingEntryResponse `json:"entries"`
}

// List はトレンド一覧を返す。
// GET /api/trending?window=&limit=
func (h *TrendingHandler) List(w http.ResponseWriter, r *http.Request) {
	window := r.URL.Query().Get("window")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeAPIErrorResponse(w, http.StatusBadRequest,
				model.NewInvalidRequestError("limitは正の整数で指定してください"))
			return
		}
		limit = v
	}

	entries, err := h.service.List(r.Context(), window, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := trendingResponse{
		Window:  window,
		Entries: make([]trendingEntryResponse, 0, len(entries)),
	}
	if resp.Window == "" {
		resp.Window = string(model.TrendingWindowDay)
	}
	for i := range entries {
		resp.Entries = append(resp.Entries, trendingEntryResponse{
			Content: toContentResponse(&entries[i].Content),
			Score:   entries[i].Score,
		})
	}
	if len(entries) > 0 {
		s := entries[0].ComputedAt.Format(time.RFC3339)
		resp.ComputedAt = &s
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
