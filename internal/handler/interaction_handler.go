package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/stumble/internal/interaction"
	"github.com/hitoshi/stumble/internal/middleware"
	"github.com/hitoshi/stumble/internal/model"
)

// InteractionServiceInterface はインタラクションハンドラーが必要とするサービスインターフェース。
type InteractionServiceInterface interface {
	// Record はインタラクションを記録する。
	Record(ctx context.Context, input interaction.RecordInput) (*model.Interaction, error)
}

// InteractionHandler はインタラクション記録のHTTPハンドラー。
type InteractionHandler struct {
	service InteractionServiceInterface
}

// NewInteractionHandler はInteractionHandlerを生成する。
func NewInteractionHandler(service InteractionServiceInterface) *InteractionHandler {
	return &InteractionHandler{service: service}
}

// recordInteractionRequest はインタラクション記録リクエストのボディ。
type recordInteractionRequest struct {
	ContentID       string `json:"content_id"`
	Action          string `json:"action"`
	DurationSeconds *int   `json:"duration_seconds"`
}

// interactionResponse はインタラクション記録のAPIレスポンス。
type interactionResponse struct {
	ID        string `json:"id"`
	ContentID string `json:"content_id"`
	Action    string `json:"action"`
	CreatedAt string `json:"created_at"`
}

// Record はインタラクション記録を処理する。
// POST /api/interactions
func (h *InteractionHandler) Record(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req recordInteractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("リクエストボディの解析に失敗しました"))
		return
	}

	record, err := h.service.Record(r.Context(), interaction.RecordInput{
		UserID:          userID,
		ContentID:       req.ContentID,
		Action:          model.InteractionAction(req.Action),
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(interactionResponse{
		ID:        record.ID,
		ContentID: record.ContentID,
		Action:    string(record.Action),
		CreatedAt: record.CreatedAt.Format(time.RFC3339),
	})
}
