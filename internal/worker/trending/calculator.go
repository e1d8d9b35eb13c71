// Package trending はトレンドスコアのバックグラウンド計算ジョブを提供する。
// 固定間隔で全時間窓のトレンドスコアを再計算し、窓ごとの上位Nを
// キャッシュテーブルへアトミックに置き換える。
package trending

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/hitoshi/stumble/internal/metrics"
	"github.com/hitoshi/stumble/internal/model"
	"github.com/hitoshi/stumble/internal/repository"
)

// Params はトレンド計算の調整パラメータ。
type Params struct {
	// TopN は窓ごとに永続化するエントリ数の上限。
	TopN int
	// HourHalfLife は1時間窓の減衰半減期。
	HourHalfLife time.Duration
	// DayHalfLife は24時間窓の減衰半減期。
	DayHalfLife time.Duration
	// WeekHalfLife は7日窓の減衰半減期。
	WeekHalfLife time.Duration
}

// Calculator はトレンドスコアの計算ジョブ。
// シングルトンとして1プロセスのみで動かすこと。キャッシュテーブルへの
// 書き込みはこのジョブだけが行い、配信パスは読み取り専用。
type Calculator struct {
	interactionRepo repository.InteractionRepository
	trendingRepo    repository.TrendingRepository
	params          Params
	logger          *slog.Logger
	collector       metrics.MetricsCollector
	now             func() time.Time
}

// NewCalculator はCalculatorの新しいインスタンスを生成する。
func NewCalculator(
	interactionRepo repository.InteractionRepository,
	trendingRepo repository.TrendingRepository,
	params Params,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *Calculator {
	return &Calculator{
		interactionRepo: interactionRepo,
		trendingRepo:    trendingRepo,
		params:          params,
		logger:          logger,
		collector:       collector,
		now:             time.Now,
	}
}

// Start は固定間隔のティッカーで計算ジョブを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
// 1サイクルの失敗は記録して次のティックで再試行する。
// 失敗しても既存のキャッシュは置き換えられず、配信パスは
// 次の成功まで古いスナップショットを提供し続ける。
func (c *Calculator) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.logger.Info("トレンド計算ジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Int("top_n", c.params.TopN),
	)

	// 起動直後に1回実行
	if err := c.RunOnce(ctx); err != nil {
		c.logger.Error("トレンド計算サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("トレンド計算ジョブを停止しました")
			return
		case <-ticker.C:
			if err := c.RunOnce(ctx); err != nil {
				c.logger.Error("トレンド計算サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は全時間窓のトレンドスコアを1回再計算する。
// 窓ごとに計算が完全に成功した場合のみスナップショットを置き換える。
// いずれかの窓で失敗しても他の窓の置き換えは継続し、最初のエラーを返す。
func (c *Calculator) RunOnce(ctx context.Context) error {
	start := c.now()
	var firstErr error

	for _, window := range model.TrendingWindows {
		if err := c.computeWindow(ctx, window); err != nil {
			c.logger.Error("時間窓のトレンド計算に失敗しました",
				slog.String("window", string(window)),
				slog.String("error", err.Error()),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	success := firstErr == nil
	c.collector.RecordTrendingRun(success)
	if success {
		c.logger.Info("トレンド計算サイクルが完了しました",
			slog.Float64("duration_ms", float64(c.now().Sub(start).Milliseconds())),
		)
	}
	return firstErr
}

// computeWindow は1つの時間窓のスコアを計算し、上位Nで置き換える。
func (c *Calculator) computeWindow(ctx context.Context, window model.TrendingWindow) error {
	now := c.now()
	since := now.Add(-window.Duration())

	stats, err := c.interactionRepo.ListWindowStats(ctx, since)
	if err != nil {
		return err
	}

	halfLife := c.halfLifeFor(window)
	entries := make([]model.TrendingEntry, 0, len(stats))
	for _, stat := range stats {
		score := trendingScore(stat, now, halfLife)
		if score <= 0 {
			// view数ゼロや減衰しきったものは上位Nに載せない
			continue
		}
		entries = append(entries, model.TrendingEntry{
			ContentID:  stat.ContentID,
			Window:     window,
			Score:      score,
			ComputedAt: now,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].ContentID < entries[j].ContentID
	})
	if len(entries) > c.params.TopN {
		entries = entries[:c.params.TopN]
	}

	// 計算が完全に終わってからの置き換えのみ。途中失敗で既存キャッシュは壊れない
	if err := c.trendingRepo.ReplaceWindow(ctx, window, entries); err != nil {
		return err
	}

	c.logger.Info("時間窓のトレンドを更新しました",
		slog.String("window", string(window)),
		slog.Int("entry_count", len(entries)),
	)
	return nil
}

// halfLifeFor は時間窓ごとの減衰半減期を返す。
func (c *Calculator) halfLifeFor(window model.TrendingWindow) time.Duration {
	switch window {
	case model.TrendingWindowHour:
		return c.params.HourHalfLife
	case model.TrendingWindowWeek:
		return c.params.WeekHalfLife
	default:
		return c.params.DayHalfLife
	}
}

// trendingScore は速度ベースのトレンドスコアを計算する。
// (インタラクション数 / view数) × 時間減衰 × view正規化。
// view数ゼロは定義されたゼロスコアに解決され、エラーにはならない。
// view正規化は飽和型で、高トラフィックな定番が永続的に支配しないようにする。
func trendingScore(stat model.WindowInteractionStat, now time.Time, halfLife time.Duration) float64 {
	if stat.ViewCount <= 0 {
		return 0
	}

	velocity := float64(stat.InteractionCount) / float64(stat.ViewCount)

	age := now.Sub(stat.LatestAt)
	if age < 0 {
		age = 0
	}
	decay := math.Pow(0.5, age.Hours()/halfLife.Hours())

	views := float64(stat.ViewCount)
	const viewSaturation = 500.0
	normalization := views / (views + viewSaturation)

	score := velocity * decay * normalization
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0
	}
	return score
}
