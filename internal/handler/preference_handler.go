package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/stumble/internal/middleware"
	"github.com/hitoshi/stumble/internal/model"
	"github.com/hitoshi/stumble/internal/preference"
)

// PreferenceServiceInterface は設定ハンドラーが必要とするサービスインターフェース。
type PreferenceServiceInterface interface {
	// Get は指定ユーザーの設定を取得する。未登録の場合はデフォルト設定を返す。
	Get(ctx context.Context, userID string) (*model.Preference, error)
	// Update はユーザー設定を冪等に更新する。
	Update(ctx context.Context, userID string, input preference.UpdateInput) (*model.Preference, error)
}

// PreferenceHandler はユーザー設定のHTTPハンドラー。
type PreferenceHandler struct {
	service PreferenceServiceInterface
}

// NewPreferenceHandler はPreferenceHandlerを生成する。
func NewPreferenceHandler(service PreferenceServiceInterface) *PreferenceHandler {
	return &PreferenceHandler{service: service}
}

// updatePreferenceRequest は設定更新リクエストのボディ。
// nilのフィールドは更新対象外（部分更新）。
type updatePreferenceRequest struct {
	Topics         []string `json:"topics"`
	Wildness       *int     `json:"wildness"`
	BlockedDomains []string `json:"blocked_domains"`
}

// preferenceResponse はユーザー設定のAPIレスポンス。
type preferenceResponse struct {
	Topics         []string `json:"topics"`
	Wildness       int      `json:"wildness"`
	BlockedDomains []string `json:"blocked_domains"`
}

// Get はユーザー設定を取得する。
// GET /api/preferences
func (h *PreferenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	pref, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toPreferenceResponse(pref))
}

// Update はユーザー設定を更新する。
// PUT /api/preferences
func (h *PreferenceHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req updatePreferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	pref, err := h.service.Update(r.Context(), userID, preference.UpdateInput{
		Topics:         req.Topics,
		Wildness:       req.Wildness,
		BlockedDomains: req.BlockedDomains,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toPreferenceResponse(pref))
}

// toPreferenceResponse はmodel.PreferenceからAPIレスポンスに変換する。
func toPreferenceResponse(pref *model.Preference) preferenceResponse {
	topics := pref.Topics
	if topics == nil {
		topics = []string{}
	}
	blocked := pref.BlockedDomains
	if blocked == nil {
		blocked = []string{}
	}
	return preferenceResponse{
		Topics:         topics,
		Wildness:       pref.Wildness,
		BlockedDomains: blocked,
	}
}
