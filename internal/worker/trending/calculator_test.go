package trending

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/stumble/internal/model"
)

func testParams() Params {
	return Params{
		TopN:         100,
		HourHalfLife: 30 * time.Minute,
		DayHalfLife:  6 * time.Hour,
		WeekHalfLife: 48 * time.Hour,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Calculator テスト用モック ---

type mockInteractionRepo struct {
	stats []model.WindowInteractionStat
	err   error
}

func (m *mockInteractionRepo) Create(_ context.Context, _ *model.Interaction) error { return nil }

func (m *mockInteractionRepo) CountExcludedByUser(_ context.Context, _ string) (int, error) {
	return 0, nil
}

func (m *mockInteractionRepo) ListRecentWithContent(_ context.Context, _ string, _ int) ([]model.InteractionWithContent, error) {
	return nil, nil
}

func (m *mockInteractionRepo) BatchGetEngagementStats(_ context.Context, _ []string) (map[string]model.EngagementStat, error) {
	return nil, nil
}

func (m *mockInteractionRepo) ListWindowStats(_ context.Context, _ time.Time) ([]model.WindowInteractionStat, error) {
	return m.stats, m.err
}

type mockTrendingRepo struct {
	replaced     map[model.TrendingWindow][]model.TrendingEntry
	replaceCalls int
	replaceErr   error
}

func newMockTrendingRepo() *mockTrendingRepo {
	return &mockTrendingRepo{replaced: make(map[model.TrendingWindow][]model.TrendingEntry)}
}

func (m *mockTrendingRepo) ReplaceWindow(_ context.Context, window model.TrendingWindow, entries []model.TrendingEntry) error {
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.replaceCalls++
	m.replaced[window] = entries
	return nil
}

func (m *mockTrendingRepo) ListByWindow(_ context.Context, _ model.TrendingWindow, _ int) ([]model.TrendingEntryWithContent, error) {
	return nil, nil
}

func (m *mockTrendingRepo) BatchGetScores(_ context.Context, _ model.TrendingWindow, _ []string) (map[string]float64, error) {
	return nil, nil
}

func (m *mockTrendingRepo) DeleteOlderThan(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type trendingMockCollector struct {
	runs      int
	successes int
}

func (m *trendingMockCollector) RecordDiscovery(_ bool) {}

func (m *trendingMockCollector) RecordDiscoveryLatency(_ time.Duration) {}

func (m *trendingMockCollector) RecordPoolSize(_ int) {}

func (m *trendingMockCollector) RecordPoolExhaustion() {}

func (m *trendingMockCollector) RecordEmptyPool() {}

func (m *trendingMockCollector) RecordInteraction(_ string) {}

func (m *trendingMockCollector) RecordTrendingRun(success bool) {
	m.runs++
	if success {
		m.successes++
	}
}

func (m *trendingMockCollector) RecordIngestedContents(_ int) {}

func (m *trendingMockCollector) RecordIngestFailure() {}

func TestTrendingScore_ZeroViews(t *testing.T) {
	// view数ゼロは定義されたゼロスコア。エラーにもNaNにもならない。
	stat := model.WindowInteractionStat{
		ContentID:        "c-1",
		InteractionCount: 10,
		ViewCount:        0,
		LatestAt:         time.Now(),
	}
	if got := trendingScore(stat, time.Now(), 6*time.Hour); got != 0 {
		t.Errorf("trendingScore with zero views = %v, want 0", got)
	}
}

func TestTrendingScore_DecaysWithAge(t *testing.T) {
	now := time.Now()
	halfLife := 6 * time.Hour

	recent := model.WindowInteractionStat{ContentID: "c", InteractionCount: 50, ViewCount: 100, LatestAt: now}
	stale := model.WindowInteractionStat{ContentID: "c", InteractionCount: 50, ViewCount: 100, LatestAt: now.Add(-12 * time.Hour)}

	recentScore := trendingScore(recent, now, halfLife)
	staleScore := trendingScore(stale, now, halfLife)
	if staleScore >= recentScore {
		t.Errorf("stale score %v should be below recent score %v", staleScore, recentScore)
	}
	// 2半減期でおよそ1/4
	ratio := staleScore / recentScore
	if ratio < 0.2 || ratio > 0.3 {
		t.Errorf("decay ratio after 2 half-lives = %v, want ~0.25", ratio)
	}
}

func TestTrendingScore_ViewSaturation(t *testing.T) {
	// 高トラフィックな定番が速度の高い新顔を永続的に支配しないこと
	now := time.Now()
	halfLife := 6 * time.Hour

	// 速度10%の小規模コンテンツと速度1%の大規模コンテンツ
	rising := model.WindowInteractionStat{ContentID: "rising", InteractionCount: 100, ViewCount: 1000, LatestAt: now}
	evergreen := model.WindowInteractionStat{ContentID: "evergreen", InteractionCount: 1000, ViewCount: 100000, LatestAt: now}

	if trendingScore(rising, now, halfLife) <= trendingScore(evergreen, now, halfLife) {
		t.Error("high-velocity content should outscore high-traffic low-velocity content")
	}
}

func TestRunOnce_ReplacesAllWindows(t *testing.T) {
	now := time.Now()
	interactionRepo := &mockInteractionRepo{
		stats: []model.WindowInteractionStat{
			{ContentID: "c-1", InteractionCount: 10, ViewCount: 100, LatestAt: now},
			{ContentID: "c-2", InteractionCount: 5, ViewCount: 100, LatestAt: now},
			{ContentID: "c-zero", InteractionCount: 3, ViewCount: 0, LatestAt: now},
		},
	}
	trendingRepo := newMockTrendingRepo()
	collector := &trendingMockCollector{}
	c := NewCalculator(interactionRepo, trendingRepo, testParams(), testLogger(), collector)

	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}

	if trendingRepo.replaceCalls != len(model.TrendingWindows) {
		t.Errorf("ReplaceWindow calls = %d, want %d", trendingRepo.replaceCalls, len(model.TrendingWindows))
	}
	for _, window := range model.TrendingWindows {
		entries := trendingRepo.replaced[window]
		if len(entries) != 2 {
			t.Errorf("window %s has %d entries, want 2 (zero-view omitted)", window, len(entries))
		}
		// スコア降順
		for i := 1; i < len(entries); i++ {
			if entries[i].Score > entries[i-1].Score {
				t.Errorf("window %s entries not sorted by score desc", window)
			}
		}
	}
	if collector.successes != 1 {
		t.Errorf("successful runs recorded = %d, want 1", collector.successes)
	}
}

func TestRunOnce_TopNApplied(t *testing.T) {
	now := time.Now()
	var stats []model.WindowInteractionStat
	for i := 0; i < 150; i++ {
		stats = append(stats, model.WindowInteractionStat{
			ContentID:        fmt.Sprintf("c-%03d", i),
			InteractionCount: i + 1,
			ViewCount:        100,
			LatestAt:         now,
		})
	}
	interactionRepo := &mockInteractionRepo{stats: stats}
	trendingRepo := newMockTrendingRepo()

	params := testParams()
	params.TopN = 100
	c := NewCalculator(interactionRepo, trendingRepo, params, testLogger(), &trendingMockCollector{})

	if err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}

	for _, window := range model.TrendingWindows {
		if got := len(trendingRepo.replaced[window]); got != 100 {
			t.Errorf("window %s has %d entries, want 100 (top-N)", window, got)
		}
	}
}

func TestRunOnce_FailureDoesNotReplace(t *testing.T) {
	// 計算失敗時は既存スナップショットを置き換えない
	interactionRepo := &mockInteractionRepo{err: errors.New("接続エラー")}
	trendingRepo := newMockTrendingRepo()
	collector := &trendingMockCollector{}
	c := NewCalculator(interactionRepo, trendingRepo, testParams(), testLogger(), collector)

	if err := c.RunOnce(context.Background()); err == nil {
		t.Fatal("RunOnce should return error when stats fetch fails")
	}

	if trendingRepo.replaceCalls != 0 {
		t.Errorf("ReplaceWindow calls = %d, want 0", trendingRepo.replaceCalls)
	}
	if collector.runs != 1 || collector.successes != 0 {
		t.Errorf("runs=%d successes=%d, want 1 run with 0 successes", collector.runs, collector.successes)
	}
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	interactionRepo := &mockInteractionRepo{}
	trendingRepo := newMockTrendingRepo()
	c := NewCalculator(interactionRepo, trendingRepo, testParams(), testLogger(), &trendingMockCollector{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx, time.Hour)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not stop after context cancellation")
	}

	// 起動直後の1回は実行されている
	if trendingRepo.replaceCalls == 0 {
		t.Error("initial run should have replaced windows")
	}
}
