package discovery

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hitoshi/stumble/internal/model"
)

func testPoolParams() PoolParams {
	return PoolParams{
		BaseSize:           500,
		MaxSize:            1500,
		Floor:              100,
		GrowthPerExcess:    0.5,
		ExclusionFilterMax: 1000,
		RotationWindow:     15 * time.Minute,
	}
}

func TestComputePoolSize_BelowThreshold(t *testing.T) {
	p := testPoolParams()

	// 除外数が基本サイズの半分以下なら基本サイズのまま
	for _, count := range []int{0, 100, 250} {
		if got := ComputePoolSize(p, count); got != 500 {
			t.Errorf("ComputePoolSize(%d) = %d, want 500", count, got)
		}
	}
}

func TestComputePoolSize_GrowsLinearly(t *testing.T) {
	p := testPoolParams()

	tests := []struct {
		exclusions int
		want       int
	}{
		{251, 500}, // 超過1件 × 0.5 は切り捨てで+0
		{252, 501}, // 超過2件 × 0.5 = +1
		{450, 600}, // 超過200件 × 0.5 = +100
		{1250, 1000},
	}
	for _, tt := range tests {
		if got := ComputePoolSize(p, tt.exclusions); got != tt.want {
			t.Errorf("ComputePoolSize(%d) = %d, want %d", tt.exclusions, got, tt.want)
		}
	}
}

func TestComputePoolSize_CappedAtMax(t *testing.T) {
	p := testPoolParams()

	if got := ComputePoolSize(p, 100000); got != 1500 {
		t.Errorf("ComputePoolSize(100000) = %d, want 1500", got)
	}
}

func TestComputePoolSize_Monotonic(t *testing.T) {
	p := testPoolParams()

	prev := 0
	for count := 0; count <= 10000; count += 50 {
		got := ComputePoolSize(p, count)
		if got < prev {
			t.Fatalf("ComputePoolSize is not monotonic: f(%d) = %d < %d", count, got, prev)
		}
		prev = got
	}
}

func TestCurrentSortStrategy_StableWithinWindow(t *testing.T) {
	window := 15 * time.Minute
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := CurrentSortStrategy(base, window)
	// 同一窓内では常に同じ戦略
	for _, offset := range []time.Duration{time.Second, time.Minute, 14 * time.Minute} {
		if got := CurrentSortStrategy(base.Add(offset), window); got != first {
			t.Errorf("CurrentSortStrategy at +%v = %q, want %q", offset, got, first)
		}
	}
}

func TestCurrentSortStrategy_RotatesAcrossWindows(t *testing.T) {
	window := 15 * time.Minute
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// 4窓で全戦略を一巡する
	seen := make(map[model.SortStrategy]bool)
	for i := 0; i < len(model.SortStrategies); i++ {
		seen[CurrentSortStrategy(base.Add(time.Duration(i)*window), window)] = true
	}
	if len(seen) != len(model.SortStrategies) {
		t.Errorf("rotation covered %d strategies, want %d", len(seen), len(model.SortStrategies))
	}
}

// --- PoolManager テスト用モック ---

type mockPoolContentRepo struct {
	lastQuery  model.CandidateQuery
	candidates []model.Content
}

func (m *mockPoolContentRepo) FindByID(_ context.Context, _ string) (*model.Content, error) {
	return nil, nil
}

func (m *mockPoolContentRepo) FindByURL(_ context.Context, _ string) (*model.Content, error) {
	return nil, nil
}

func (m *mockPoolContentRepo) QueryCandidates(_ context.Context, q model.CandidateQuery) ([]model.Content, error) {
	m.lastQuery = q
	return m.candidates, nil
}

func (m *mockPoolContentRepo) ListByTopicOverlap(_ context.Context, _ []string, _ string, _ int) ([]model.Content, error) {
	return nil, nil
}

func (m *mockPoolContentRepo) Create(_ context.Context, _ *model.Content) error { return nil }

func (m *mockPoolContentRepo) ApplyInteraction(_ context.Context, _ string, _ model.InteractionAction) error {
	return nil
}

type mockPoolInteractionRepo struct {
	excludedCount int
}

func (m *mockPoolInteractionRepo) Create(_ context.Context, _ *model.Interaction) error { return nil }

func (m *mockPoolInteractionRepo) CountExcludedByUser(_ context.Context, _ string) (int, error) {
	return m.excludedCount, nil
}

func (m *mockPoolInteractionRepo) ListRecentWithContent(_ context.Context, _ string, _ int) ([]model.InteractionWithContent, error) {
	return nil, nil
}

func (m *mockPoolInteractionRepo) BatchGetEngagementStats(_ context.Context, _ []string) (map[string]model.EngagementStat, error) {
	return nil, nil
}

func (m *mockPoolInteractionRepo) ListWindowStats(_ context.Context, _ time.Time) ([]model.WindowInteractionStat, error) {
	return nil, nil
}

func makeExcludedIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("content-%05d", i)
	}
	return ids
}

func TestBuildPool_HistoryNeverResurfaces(t *testing.T) {
	// 接触履歴がセッション除外リストの上限を大きく超えても、
	// 接触済みのコンテンツが候補プールに再浮上しないこと。
	// 永続履歴の除外はIDリストではなくストア側の結合で行われる。
	historyIDs := makeExcludedIDs(5000)
	seen := make(map[string]bool, len(historyIDs))
	for _, id := range historyIDs {
		seen[id] = true
	}

	catalog := make([]model.Content, 0, len(historyIDs)+100)
	for _, id := range historyIDs {
		catalog = append(catalog, model.Content{ID: id, IsActive: true})
	}
	for i := 0; i < 100; i++ {
		catalog = append(catalog, model.Content{ID: fmt.Sprintf("fresh-%03d", i), IsActive: true})
	}
	contentRepo := newFilteringContentRepo(catalog)
	contentRepo.history = map[string]map[string]bool{"user-1": seen}
	interactionRepo := &mockPoolInteractionRepo{excludedCount: len(historyIDs)}
	m := NewPoolManager(contentRepo, interactionRepo, testPoolParams())

	pool, stats, err := m.BuildPool(context.Background(), "user-1", model.DefaultPreference("user-1"), nil)
	if err != nil {
		t.Fatalf("BuildPool returned error: %v", err)
	}

	for _, c := range pool {
		if seen[c.ID] {
			t.Fatalf("接触済みコンテンツ %q が候補プールに再浮上した", c.ID)
		}
	}
	// 接触済み5000件がすべて除外され、未接触分だけが候補になる
	if len(pool) != 100 {
		t.Errorf("pool size = %d, want 100", len(pool))
	}
	if stats.ExclusionCount != 5000 {
		t.Errorf("stats.ExclusionCount = %d, want 5000", stats.ExclusionCount)
	}
}

func TestBuildPool_SessionOverflowWithLargeHistory(t *testing.T) {
	// ハンドラ上限を超える量のセッションIDと大量の永続履歴が重なっても、
	// どちらの接触分も候補に再浮上しないこと。
	historyIDs := makeExcludedIDs(5000)
	seen := make(map[string]bool, len(historyIDs))
	for _, id := range historyIDs {
		seen[id] = true
	}
	sessionIDs := make([]string, 250)
	for i := range sessionIDs {
		sessionIDs[i] = fmt.Sprintf("session-%03d", i)
	}

	catalog := make([]model.Content, 0, len(historyIDs)+len(sessionIDs)+50)
	for _, id := range historyIDs {
		catalog = append(catalog, model.Content{ID: id, IsActive: true})
	}
	for _, id := range sessionIDs {
		catalog = append(catalog, model.Content{ID: id, IsActive: true})
	}
	for i := 0; i < 50; i++ {
		catalog = append(catalog, model.Content{ID: fmt.Sprintf("fresh-%03d", i), IsActive: true})
	}
	contentRepo := newFilteringContentRepo(catalog)
	contentRepo.history = map[string]map[string]bool{"user-1": seen}
	interactionRepo := &mockPoolInteractionRepo{excludedCount: len(historyIDs)}
	m := NewPoolManager(contentRepo, interactionRepo, testPoolParams())

	pool, _, err := m.BuildPool(context.Background(), "user-1", model.DefaultPreference("user-1"), sessionIDs)
	if err != nil {
		t.Fatalf("BuildPool returned error: %v", err)
	}

	sessionSet := make(map[string]bool, len(sessionIDs))
	for _, id := range sessionIDs {
		sessionSet[id] = true
	}
	for _, c := range pool {
		if seen[c.ID] {
			t.Fatalf("接触済みコンテンツ %q が候補プールに再浮上した", c.ID)
		}
		if sessionSet[c.ID] {
			t.Fatalf("セッション内提示済みコンテンツ %q が候補プールに再浮上した", c.ID)
		}
	}
	if len(pool) != 50 {
		t.Errorf("pool size = %d, want 50", len(pool))
	}
}

func TestBuildPool_QueryCarriesUserScope(t *testing.T) {
	contentRepo := &mockPoolContentRepo{}
	interactionRepo := &mockPoolInteractionRepo{excludedCount: 10}
	m := NewPoolManager(contentRepo, interactionRepo, testPoolParams())

	sessionIDs := []string{"session-a", "session-b", "session-a", "session-c"}
	_, _, err := m.BuildPool(context.Background(), "user-1", model.DefaultPreference("user-1"), sessionIDs)
	if err != nil {
		t.Fatalf("BuildPool returned error: %v", err)
	}

	q := contentRepo.lastQuery
	// ストア側の履歴除外はユーザーIDで行われるため、必ず引き渡されること
	if q.UserID != "user-1" {
		t.Errorf("query.UserID = %q, want user-1", q.UserID)
	}
	want := []string{"session-a", "session-b", "session-c"}
	if len(q.ExcludeIDs) != len(want) {
		t.Fatalf("ExcludeIDs = %v, want %v", q.ExcludeIDs, want)
	}
	for i := range want {
		if q.ExcludeIDs[i] != want[i] {
			t.Errorf("ExcludeIDs[%d] = %q, want %q", i, q.ExcludeIDs[i], want[i])
		}
	}
}

func TestSessionExclusionFilter_CapsAndDedupes(t *testing.T) {
	ids := []string{"a", "b", "a", "c", "d"}

	got := sessionExclusionFilter(ids, 1000)
	if len(got) != 4 {
		t.Errorf("dedupe: len = %d, want 4", len(got))
	}

	// 上限適用時は提示順の先頭を残す
	got = sessionExclusionFilter(ids, 2)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("capped filter = %v, want [a b]", got)
	}

	if got := sessionExclusionFilter(nil, 1000); len(got) != 0 {
		t.Errorf("nil input: len = %d, want 0", len(got))
	}
}

func TestBuildPool_PoolSizeScenario(t *testing.T) {
	// wildness 50・除外250件のユーザー: 基本500の閾値ちょうどで
	// プールサイズは[500,625]の範囲に収まること。
	contentRepo := &mockPoolContentRepo{}
	interactionRepo := &mockPoolInteractionRepo{excludedCount: 250}
	m := NewPoolManager(contentRepo, interactionRepo, testPoolParams())

	_, stats, err := m.BuildPool(context.Background(), "user-1", model.DefaultPreference("user-1"), nil)
	if err != nil {
		t.Fatalf("BuildPool returned error: %v", err)
	}

	if stats.RequestedSize < 500 || stats.RequestedSize > 625 {
		t.Errorf("RequestedSize = %d, want in [500,625]", stats.RequestedSize)
	}
}

func TestBuildPool_ExhaustionFlag(t *testing.T) {
	// 除外が多いのにプールが床値を下回ったら枯渇フラグが立つこと
	contentRepo := &mockPoolContentRepo{
		candidates: []model.Content{{ID: "c-1"}, {ID: "c-2"}},
	}
	interactionRepo := &mockPoolInteractionRepo{excludedCount: 3000}
	m := NewPoolManager(contentRepo, interactionRepo, testPoolParams())

	pool, stats, err := m.BuildPool(context.Background(), "user-1", model.DefaultPreference("user-1"), nil)
	if err != nil {
		t.Fatalf("BuildPool returned error: %v", err)
	}

	if !stats.Exhausted {
		t.Error("stats.Exhausted = false, want true")
	}
	// 枯渇してもエラーにはせず残りのプールを返す
	if len(pool) != 2 {
		t.Errorf("pool size = %d, want 2", len(pool))
	}
}

func TestBuildPool_BlockedDomainsPassedThrough(t *testing.T) {
	contentRepo := &mockPoolContentRepo{}
	interactionRepo := &mockPoolInteractionRepo{}
	m := NewPoolManager(contentRepo, interactionRepo, testPoolParams())

	pref := &model.Preference{
		UserID:         "user-1",
		Wildness:       50,
		BlockedDomains: []string{"blocked.example.com"},
	}
	_, _, err := m.BuildPool(context.Background(), "user-1", pref, nil)
	if err != nil {
		t.Fatalf("BuildPool returned error: %v", err)
	}

	got := contentRepo.lastQuery.BlockedDomains
	if len(got) != 1 || got[0] != "blocked.example.com" {
		t.Errorf("BlockedDomains = %v, want [blocked.example.com]", got)
	}
}
