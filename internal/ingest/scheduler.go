package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/stumble/internal/model"
	"github.com/hitoshi/stumble/internal/repository"
)

// SourceImporterService はソース取り込みの実行インターフェース。
type SourceImporterService interface {
	// Import は指定ソースをフェッチし、結果に応じてソース状態を更新する。
	Import(ctx context.Context, source *model.Source) error
}

// Scheduler はソース取り込みのスケジューリングと並列制御を行う。
// 固定間隔のティッカーでフェッチ対象ソースを取得し、
// semaphoreパターンで最大並列数を制御しながら取り込みを実行する。
type Scheduler struct {
	sourceRepo     repository.SourceRepository
	importer       SourceImporterService
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値5を使用する。
func NewScheduler(
	sourceRepo repository.SourceRepository,
	importer SourceImporterService,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	return &Scheduler{
		sourceRepo:     sourceRepo,
		importer:       importer,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は固定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("取り込みスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("取り込みサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("取り込みスケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("取り込みサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce はフェッチ対象ソースを1回取得し、並列で取り込みを実行する。
// semaphoreパターンで最大並列数を制御する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	// フェッチ対象ソースを取得（FOR UPDATE SKIP LOCKED）
	sources, err := s.sourceRepo.ListDueForFetch(ctx)
	if err != nil {
		return err
	}

	if len(sources) == 0 {
		s.logger.Info("フェッチ対象のソースはありません")
		return nil
	}

	s.logger.Info("取り込みサイクルを開始します",
		slog.Int("source_count", len(sources)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, source := range sources {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(src *model.Source) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if err := s.importer.Import(ctx, src); err != nil {
				s.logger.Error("ソースの取り込みに失敗しました",
					slog.String("source_id", src.ID),
					slog.String("feed_url", src.FeedURL),
					slog.String("error", err.Error()),
				)
			}
		}(source)
	}

	wg.Wait()

	s.logger.Info("取り込みサイクルが完了しました",
		slog.Int("source_count", len(sources)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
