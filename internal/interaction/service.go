// Package interaction はインタラクション記録のドメインロジックを提供する。
package interaction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/stumble/internal/metrics"
	"github.com/hitoshi/stumble/internal/model"
	"github.com/hitoshi/stumble/internal/repository"
)

// maxDurationSeconds は記録を受け付けるエンゲージメント時間の上限（秒）。
// これを超える値は計測異常とみなして拒否する。
const maxDurationSeconds = 86400

// InteractionService はインタラクション記録のサービス層。
// 記録は追記専用で、人気カウンタへの反映を同時に行う。
type InteractionService struct {
	interactionRepo repository.InteractionRepository
	contentRepo     repository.ContentRepository
	logger          *slog.Logger
	collector       metrics.MetricsCollector
}

// NewInteractionService はInteractionServiceの新しいインスタンスを生成する。
func NewInteractionService(
	interactionRepo repository.InteractionRepository,
	contentRepo repository.ContentRepository,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *InteractionService {
	return &InteractionService{
		interactionRepo: interactionRepo,
		contentRepo:     contentRepo,
		logger:          logger,
		collector:       collector,
	}
}

// RecordInput はインタラクション記録の入力。
type RecordInput struct {
	UserID          string
	ContentID       string
	Action          model.InteractionAction
	DurationSeconds *int
}

// Record はインタラクションを記録する。
// フロー: 検証 → コンテンツ存在確認 → 追記 → 人気カウンタ反映
// カウンタ反映の失敗は記録自体を失敗させない（集計値は近似で許容される）。
func (s *InteractionService) Record(ctx context.Context, input RecordInput) (*model.Interaction, error) {
	if !model.ValidActions[input.Action] {
		return nil, model.NewInvalidActionError(string(input.Action))
	}
	if input.ContentID == "" {
		return nil, model.NewInvalidRequestError("content_idが空です")
	}
	if input.DurationSeconds != nil {
		if *input.DurationSeconds < 0 || *input.DurationSeconds > maxDurationSeconds {
			return nil, model.NewInvalidRequestError("duration_secondsが有効範囲外です")
		}
	}

	content, err := s.contentRepo.FindByID(ctx, input.ContentID)
	if err != nil {
		return nil, fmt.Errorf("コンテンツの取得に失敗しました: %w", err)
	}
	if content == nil {
		return nil, model.NewContentNotFoundError(input.ContentID)
	}

	record := &model.Interaction{
		ID:              uuid.New().String(),
		UserID:          input.UserID,
		ContentID:       input.ContentID,
		Action:          input.Action,
		DurationSeconds: input.DurationSeconds,
		CreatedAt:       time.Now(),
	}
	if err := s.interactionRepo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("インタラクションの記録に失敗しました: %w", err)
	}

	if err := s.contentRepo.ApplyInteraction(ctx, input.ContentID, input.Action); err != nil {
		s.logger.Warn("人気カウンタの反映に失敗しました",
			"content_id", input.ContentID,
			"action", input.Action,
			"error", err)
	}

	s.collector.RecordInteraction(string(input.Action))

	return record, nil
}
