// Package discovery は発見エンジンのドメインロジックを提供する。
// 候補プールの構築、6シグナルのスコアリング、wildnessに応じた選択を担う。
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/stumble/internal/model"
	"github.com/hitoshi/stumble/internal/repository"
)

// PoolParams は候補プール構築の調整パラメータ。
type PoolParams struct {
	// BaseSize は基本プールサイズ。
	BaseSize int
	// MaxSize はプールサイズの上限。クエリコストを抑えるためのハードキャップ。
	MaxSize int
	// Floor はこれを下回ると枯渇警告を出す閾値。
	Floor int
	// GrowthPerExcess は超過除外1件あたりのプール拡大係数。
	GrowthPerExcess float64
	// ExclusionFilterMax はストアに渡すセッション除外IDリストの上限。
	// 永続履歴の除外はストア側の結合で無制限に行われるため、
	// この上限が効くのはセッション内提示分だけに対する劣化パス。
	ExclusionFilterMax int
	// RotationWindow はソート戦略ローテーションの周期。
	RotationWindow time.Duration
}

// ComputePoolSize は除外数に応じたプールサイズを計算する。
// 除外数が基本サイズの半分を超えたら、超過分に比例して線形に拡大し、
// 上限でキャップする。除外数に対して単調非減少。
func ComputePoolSize(p PoolParams, exclusionCount int) int {
	size := p.BaseSize
	threshold := p.BaseSize / 2
	if exclusionCount > threshold {
		excess := exclusionCount - threshold
		size = p.BaseSize + int(float64(excess)*p.GrowthPerExcess)
	}
	if size > p.MaxSize {
		size = p.MaxSize
	}
	return size
}

// CurrentSortStrategy は現在時刻からソート戦略を決定する。
// 壁時計時刻の純粋関数であり、共有状態を持たない。
// 同一ローテーション窓の中では常に同じ戦略を返す。
func CurrentSortStrategy(now time.Time, window time.Duration) model.SortStrategy {
	if window <= 0 {
		window = 15 * time.Minute
	}
	index := (now.UnixNano() / int64(window)) % int64(len(model.SortStrategies))
	return model.SortStrategies[index]
}

// PoolStats はプール構築の結果統計。枯渇判定とログ・メトリクスに使用する。
type PoolStats struct {
	ExclusionCount int
	RequestedSize  int
	ActualSize     int
	Sort           model.SortStrategy
	Exhausted      bool
}

// PoolManager は候補プールの構築を担う。
// 除外セットは無制限に成長するユーザーの全接触履歴であり、
// どれほど大きくても除外フィルタを黙って外してはならない。
type PoolManager struct {
	contentRepo     repository.ContentRepository
	interactionRepo repository.InteractionRepository
	params          PoolParams
	now             func() time.Time
}

// NewPoolManager はPoolManagerの新しいインスタンスを生成する。
func NewPoolManager(
	contentRepo repository.ContentRepository,
	interactionRepo repository.InteractionRepository,
	params PoolParams,
) *PoolManager {
	return &PoolManager{
		contentRepo:     contentRepo,
		interactionRepo: interactionRepo,
		params:          params,
		now:             time.Now,
	}
}

// BuildPool はユーザーの除外セットと設定に基づき候補プールを構築する。
// 永続化済みの接触履歴はストア側の結合で件数によらず除外される。
// sessionSeenIDs は今回セッションで既に提示したID。永続化前のため
// ストア側の除外には乗っておらず、除外IDリストとして明示的に渡す。
func (m *PoolManager) BuildPool(ctx context.Context, userID string, pref *model.Preference, sessionSeenIDs []string) ([]model.Content, PoolStats, error) {
	stats := PoolStats{}

	// 全接触履歴の件数。プールサイズ計算に使用する。
	exclusionCount, err := m.interactionRepo.CountExcludedByUser(ctx, userID)
	if err != nil {
		return nil, stats, fmt.Errorf("除外件数の取得に失敗しました: %w", err)
	}
	stats.ExclusionCount = exclusionCount + len(sessionSeenIDs)
	stats.RequestedSize = ComputePoolSize(m.params, stats.ExclusionCount)
	stats.Sort = CurrentSortStrategy(m.now(), m.params.RotationWindow)

	pool, err := m.contentRepo.QueryCandidates(ctx, model.CandidateQuery{
		UserID:          userID,
		ExcludeIDs:      sessionExclusionFilter(sessionSeenIDs, m.params.ExclusionFilterMax),
		BlockedDomains:  pref.BlockedDomains,
		PreferredTopics: pref.Topics,
		PoolSize:        stats.RequestedSize,
		Sort:            stats.Sort,
	})
	if err != nil {
		return nil, stats, fmt.Errorf("候補プールの取得に失敗しました: %w", err)
	}

	stats.ActualSize = len(pool)

	// 枯渇判定: 除外が多いのにプールが床値を下回ったら警告。
	// エラーにはせず、残っているプールをそのまま返す。
	if len(pool) < m.params.Floor && stats.ExclusionCount > m.params.BaseSize/2 {
		stats.Exhausted = true
		slog.Warn("候補プールが枯渇気味です",
			"userID", userID,
			"poolSize", len(pool),
			"exclusionCount", stats.ExclusionCount,
			"floor", m.params.Floor,
		)
	}

	return pool, stats, nil
}

// sessionExclusionFilter はストアに渡すセッション除外IDリストを構築する。
// 重複を除き、提示順（古い順）を保ったまま上限で打ち切る。
// ハンドラ側のセッションIDキャップは上限よりはるかに小さいため、
// 通常運用でここが効くことはない。
func sessionExclusionFilter(sessionSeenIDs []string, max int) []string {
	seen := make(map[string]bool, len(sessionSeenIDs))
	excludeIDs := make([]string, 0, len(sessionSeenIDs))
	for _, id := range sessionSeenIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		excludeIDs = append(excludeIDs, id)
	}
	if max > 0 && len(excludeIDs) > max {
		excludeIDs = excludeIDs[:max]
	}
	return excludeIDs
}
