// Package cleanup はトレンドキャッシュの陳腐化エントリ削除ジョブを提供する。
// トレンドキャッシュは完全に導出可能なデータであり、置き換えられずに残った
// 古いスナップショットを保持期間を基準に整理する。
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/stumble/internal/repository"
)

// CleanupJob は保持期間を超過したトレンドエントリの削除ジョブ。
// 冪等であり、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	trendingRepo repository.TrendingRepository
	logger       *slog.Logger
	// Retention はエントリを保持する期間。
	Retention time.Duration
}

// NewCleanupJob は新しいCleanupJobを生成する。
// retentionが0以下の場合はデフォルトの7日を使用する。
func NewCleanupJob(trendingRepo repository.TrendingRepository, logger *slog.Logger, retention time.Duration) *CleanupJob {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &CleanupJob{
		trendingRepo: trendingRepo,
		logger:       logger,
		Retention:    retention,
	}
}

// Run は計算時刻が保持期間を超過したトレンドエントリを削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := start.Add(-j.Retention)

	deleted, err := j.trendingRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error("トレンドエントリのクリーンアップに失敗しました",
			slog.String("error", err.Error()),
		)
		return err
	}

	j.logger.Info("トレンドエントリのクリーンアップが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は日次間隔でクリーンアップを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("クリーンアップジョブを開始しました",
		slog.Duration("interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("クリーンアップサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
