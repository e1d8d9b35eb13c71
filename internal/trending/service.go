// Package trending はトレンド一覧の読み取りロジックを提供する。
// スコアの計算はバックグラウンドジョブ（worker/trending）の責務であり、
// このサービスはキャッシュ済みスナップショットを返すだけ。
package trending

import (
	"context"
	"fmt"

	"github.com/hitoshi/stumble/internal/model"
	"github.com/hitoshi/stumble/internal/repository"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// TrendingService はトレンド一覧のサービス層。
type TrendingService struct {
	trendingRepo repository.TrendingRepository
}

// NewTrendingService はTrendingServiceの新しいインスタンスを生成する。
func NewTrendingService(trendingRepo repository.TrendingRepository) *TrendingService {
	return &TrendingService{trendingRepo: trendingRepo}
}

// List は指定窓のトレンド上位をスコア降順で返す。
// 窓が未指定の場合はdayを使用する。不正な窓指定はエラー。
func (s *TrendingService) List(ctx context.Context, window string, limit int) ([]model.TrendingEntryWithContent, error) {
	w := model.TrendingWindowDay
	if window != "" {
		w = model.TrendingWindow(window)
		if !model.ValidTrendingWindows[w] {
			return nil, model.NewInvalidWindowError(window)
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	entries, err := s.trendingRepo.ListByWindow(ctx, w, limit)
	if err != nil {
		return nil, fmt.Errorf("トレンド一覧の取得に失敗しました: %w", err)
	}
	return entries, nil
}
