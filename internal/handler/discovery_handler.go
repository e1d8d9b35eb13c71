// Package handler はHTTP APIのハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/stumble/internal/discovery"
	"github.com/hitoshi/stumble/internal/middleware"
	"github.com/hitoshi/stumble/internal/model"
)

// maxSessionSeenIDs はseenパラメータで受け付けるID数の上限。
// これを超える分は切り捨てる（完全な除外履歴はサーバー側で保持している）。
const maxSessionSeenIDs = 200

// DiscoveryServiceInterface は発見ハンドラーが必要とするサービスインターフェース。
type DiscoveryServiceInterface interface {
	// Next は次の1件を選んで返す。
	Next(ctx context.Context, userID string, sessionSeenIDs []string, wildnessOverride *int) (*discovery.DiscoveryResult, error)
	// Similar は指定コンテンツに類似するコンテンツを返す。
	Similar(ctx context.Context, contentID string, limit int, minSimilarity float64) ([]discovery.SimilarContent, error)
}

// DiscoveryHandler は発見APIのHTTPハンドラー。
type DiscoveryHandler struct {
	service DiscoveryServiceInterface
}

// NewDiscoveryHandler はDiscoveryHandlerを生成する。
func NewDiscoveryHandler(service DiscoveryServiceInterface) *DiscoveryHandler {
	return &DiscoveryHandler{service: service}
}

// contentResponse はコンテンツ情報のAPIレスポンス。
type contentResponse struct {
	ID          string   `json:"id"`
	URL         string   `json:"url"`
	Domain      string   `json:"domain"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Topics      []string `json:"topics"`
	PublishedAt *string  `json:"published_at"`
	ViewCount   int      `json:"view_count"`
	LikeCount   int      `json:"like_count"`
	SaveCount   int      `json:"save_count"`
	ImageURL    string   `json:"image_url,omitempty"`
	FaviconURL  string   `json:"favicon_url,omitempty"`
}

// discoveryResponse は発見APIのレスポンス。
type discoveryResponse struct {
	Content   contentResponse `json:"content"`
	Rationale string          `json:"rationale"`
	Explored  bool            `json:"explored"`
}

// similarContentResponse は類似検索結果の1件。
type similarContentResponse struct {
	Content    contentResponse `json:"content"`
	Similarity float64         `json:"similarity"`
}

// similarResponse は類似検索APIのレスポンス。
type similarResponse struct {
	Results []similarContentResponse `json:"results"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// Next は次の発見候補1件を返す。
// GET /api/discover/next?wildness=&seen=
func (h *DiscoveryHandler) Next(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var wildnessOverride *int
	if raw := r.URL.Query().Get("wildness"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest,
				model.NewInvalidRequestError("wildnessは整数で指定してください"))
			return
		}
		// 範囲外は拒否せずクランプする
		v = model.ClampWildness(v)
		wildnessOverride = &v
	}

	seenIDs := parseSessionSeenIDs(r.URL.Query().Get("seen"))

	result, err := h.service.Next(r.Context(), userID, seenIDs, wildnessOverride)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(discoveryResponse{
		Content:   toContentResponse(&result.Content),
		Rationale: result.Rationale,
		Explored:  result.Explored,
	})
}

// Similar は指定コンテンツの類似コンテンツ一覧を返す。
// GET /api/discover/similar/:id?limit=&min_similarity=
func (h *DiscoveryHandler) Similar(w http.ResponseWriter, r *http.Request) {
	contentID := chi.URLParam(r, "id")

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

	minSimilarity := 0.0
	if raw := r.URL.Query().Get("min_similarity"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			writeAPIErrorResponse(w, http.StatusBadRequest,
				model.NewInvalidRequestError("min_similarityは[0,1]の数値で指定してください"))
			return
		}
		minSimilarity = v
	}

	results, err := h.service.Similar(r.Context(), contentID, limit, minSimilarity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := similarResponse{Results: make([]similarContentResponse, 0, len(results))}
	for i := range results {
		resp.Results = append(resp.Results, similarContentResponse{
			Content:    toContentResponse(&results[i].Content),
			Similarity: results[i].Similarity,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// parseSessionSeenIDs はカンマ区切りのID列を解析する。
func parseSessionSeenIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		id := strings.TrimSpace(p)
		if id == "" {
			continue
		}
		ids = append(ids, id)
		if len(ids) >= maxSessionSeenIDs {
			break
		}
	}
	return ids
}

// --- ヘルパー関数 ---

// toContentResponse はmodel.ContentからAPIレスポンスに変換する。
func toContentResponse(c *model.Content) contentResponse {
	var publishedAt *string
	if c.PublishedAt != nil {
		s := c.PublishedAt.Format(time.RFC3339)
		publishedAt = &s
	}
	topics := c.Topics
	if topics == nil {
		topics = []string{}
	}
	return contentResponse{
		ID:          c.ID,
		URL:         c.URL,
		Domain:      c.Domain,
		Title:       c.Title,
		Description: c.Description,
		Topics:      topics,
		PublishedAt: publishedAt,
		ViewCount:   c.ViewCount,
		LikeCount:   c.LikeCount,
		SaveCount:   c.SaveCount,
		ImageURL:    c.ImageURL,
		FaviconURL:  c.FaviconURL,
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodePoolExhausted:
		return http.StatusNotFound
	case model.ErrCodeContentNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidRequest, model.ErrCodeInvalidAction, model.ErrCodeInvalidWindow, model.ErrCodeInvalidURL:
		return http.StatusBadRequest
	case model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	case model.ErrCodeDuplicateURL:
		return http.StatusConflict
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
