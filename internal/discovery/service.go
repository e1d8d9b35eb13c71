package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/stumble/internal/metrics"
	"github.com/hitoshi/stumble/internal/model"
	"github.com/hitoshi/stumble/internal/repository"
)

// similarFetchMultiplier は類似検索でlimitの何倍の候補を取得するか。
// ブレンドスコアでの並べ替え後に上位limit件へ絞るための余裕。
const similarFetchMultiplier = 4

// DiscoveryResult は発見リクエスト1回の結果。
type DiscoveryResult struct {
	Content model.Content
	// Rationale は選ばれた理由の短い説明文。UIの透明性のためのもので、
	// スコアリング自体には使用されない。
	Rationale string
	// Explored はε探索による選択だったか。
	Explored bool
	// Score は選択された候補の最終スコア。
	Score float64
}

// SimilarContent は類似検索の結果1件。
type SimilarContent struct {
	Content    model.Content
	Similarity float64
}

// DiscoveryService は発見エンジンのサービス層。
// プール構築 → バッチ取得 → スコアリング → 選択のフローを統括する。
// リクエスト間に共有可変状態を持たず、並行リクエストは互いに独立する。
type DiscoveryService struct {
	contentRepo     repository.ContentRepository
	interactionRepo repository.InteractionRepository
	prefRepo        repository.PreferenceRepository
	reputationRepo  repository.ReputationRepository
	trendingRepo    repository.TrendingRepository
	pool            *PoolManager
	selector        *Selector
	scoring         ScoringParams
	historyWindow   int
	collector       metrics.MetricsCollector
	now             func() time.Time
}

// NewDiscoveryService はDiscoveryServiceの新しいインスタンスを生成する。
func NewDiscoveryService(
	contentRepo repository.ContentRepository,
	interactionRepo repository.InteractionRepository,
	prefRepo repository.PreferenceRepository,
	reputationRepo repository.ReputationRepository,
	trendingRepo repository.TrendingRepository,
	pool *PoolManager,
	selector *Selector,
	scoring ScoringParams,
	historyWindow int,
	collector metrics.MetricsCollector,
) *DiscoveryService {
	return &DiscoveryService{
		contentRepo:     contentRepo,
		interactionRepo: interactionRepo,
		prefRepo:        prefRepo,
		reputationRepo:  reputationRepo,
		trendingRepo:    trendingRepo,
		pool:            pool,
		selector:        selector,
		scoring:         scoring,
		historyWindow:   historyWindow,
		collector:       collector,
		now:             time.Now,
	}
}

// Next は次に提示する1件を選択して返す。
// sessionSeenIDs は今回セッションで既に提示したID（永続化前の除外分）。
// wildnessOverride が非nilならユーザー設定より優先される（範囲外はクランプ）。
//
// 正しさの中心はここにある: 除外セットに含まれるコンテンツは
// どのような経路でも返してはならない。
func (s *DiscoveryService) Next(ctx context.Context, userID string, sessionSeenIDs []string, wildnessOverride *int) (*DiscoveryResult, error) {
	start := s.now()

	pref, err := s.prefRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザー設定の取得に失敗しました: %w", err)
	}
	if pref == nil {
		// 未登録は新規ユーザーの期待される状態
		pref = model.DefaultPreference(userID)
	}

	wildness := pref.Wildness
	if wildnessOverride != nil {
		wildness = *wildnessOverride
	}
	wildness = model.ClampWildness(wildness)

	// プール構築と履歴取得は互いに依存しないため並行に実行する
	var (
		wg      sync.WaitGroup
		pool    []model.Content
		stats   PoolStats
		poolErr error
		profile TasteProfile
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		pool, stats, poolErr = s.pool.BuildPool(ctx, userID, pref, sessionSeenIDs)
	}()
	go func() {
		defer wg.Done()
		interactions, err := s.interactionRepo.ListRecentWithContent(ctx, userID, s.historyWindow)
		if err != nil {
			// 履歴欠損は中立プロファイルへ劣化させ、リクエストは落とさない
			slog.Warn("インタラクション履歴の取得に失敗しました", "userID", userID, "error", err)
			interactions = nil
		}
		profile = BuildTasteProfile(interactions)
	}()
	wg.Wait()

	if poolErr != nil {
		return nil, poolErr
	}

	s.collector.RecordPoolSize(len(pool))
	if stats.Exhausted {
		s.collector.RecordPoolExhaustion()
	}

	if len(pool) == 0 {
		// 真の枯渇。呼び出し側はトピックやwildnessを広げるよう促すことが期待される
		s.collector.RecordEmptyPool()
		slog.Warn("候補プールが空です",
			"userID", userID,
			"exclusionCount", stats.ExclusionCount,
			"sort", string(stats.Sort),
		)
		return nil, model.NewPoolExhaustedError()
	}

	sctx := s.buildScoringContext(ctx, pool, profile, pref)

	candidates := make([]ScoredCandidate, len(pool))
	for i := range pool {
		candidates[i] = ScoredCandidate{
			Content: pool[i],
			Score:   Score(&pool[i], sctx, s.scoring),
		}
	}
	SortByScore(candidates)

	chosen, selection, ok := s.selector.Select(candidates, wildness, profile.SeenDomains)
	if !ok {
		s.collector.RecordEmptyPool()
		return nil, model.NewPoolExhaustedError()
	}

	s.collector.RecordDiscovery(selection.Explored)
	s.collector.RecordDiscoveryLatency(s.now().Sub(start))

	return &DiscoveryResult{
		Content:   chosen.Content,
		Rationale: s.buildRationale(&chosen.Content, sctx, pref, selection),
		Explored:  selection.Explored,
		Score:     chosen.Score,
	}, nil
}

// buildScoringContext はスコアリングに必要なデータをバッチ取得して結合する。
// ドメイン評価・エンゲージメント統計・トレンドスコアは互いに依存しないため
// 並行に取得する。いずれの失敗も欠損データとして中立デフォルトに劣化させ、
// リクエスト全体は失敗させない。
func (s *DiscoveryService) buildScoringContext(ctx context.Context, pool []model.Content, profile TasteProfile, pref *model.Preference) *ScoringContext {
	domainSet := make(map[string]bool)
	contentIDs := make([]string, 0, len(pool))
	for i := range pool {
		domainSet[pool[i].Domain] = true
		contentIDs = append(contentIDs, pool[i].ID)
	}
	domains := make([]string, 0, len(domainSet))
	for d := range domainSet {
		domains = append(domains, d)
	}

	sctx := &ScoringContext{
		Profile:         profile,
		PreferredTopics: pref.Topics,
		Now:             s.now(),
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		reps, err := s.reputationRepo.BatchGetByDomains(ctx, domains)
		if err != nil {
			slog.Warn("ドメイン評価の取得に失敗しました（中立で続行）", "error", err)
			reps = map[string]model.DomainReputation{}
		}
		sctx.Reputations = reps
	}()
	go func() {
		defer wg.Done()
		stats, err := s.interactionRepo.BatchGetEngagementStats(ctx, contentIDs)
		if err != nil {
			slog.Warn("エンゲージメント統計の取得に失敗しました（中立で続行）", "error", err)
			stats = map[string]model.EngagementStat{}
		}
		sctx.Engagement = stats
	}()
	go func() {
		defer wg.Done()
		scores, err := s.trendingRepo.BatchGetScores(ctx, model.TrendingWindowDay, contentIDs)
		if err != nil {
			slog.Warn("トレンドスコアの取得に失敗しました（非トレンド扱いで続行）", "error", err)
			scores = map[string]float64{}
		}
		sctx.TrendingScores = scores
	}()
	wg.Wait()

	return sctx
}

// buildRationale は選ばれた理由の短い説明文を組み立てる。
// スコアリングには使用されない表示専用の文字列。
func (s *DiscoveryService) buildRationale(c *model.Content, sctx *ScoringContext, pref *model.Preference, selection SelectionResult) string {
	if selection.Explored {
		return "普段の傾向から少し離れた発見です"
	}

	var reasons []string

	preferred := make(map[string]bool, len(pref.Topics))
	for _, t := range pref.Topics {
		preferred[t] = true
	}
	for _, t := range c.Topics {
		if preferred[t] {
			reasons = append(reasons, fmt.Sprintf("興味のあるトピック「%s」に合致", t))
			break
		}
	}
	if len(reasons) == 0 {
		for _, t := range c.Topics {
			if sctx.Profile.LikedTopics[t] > 0 {
				reasons = append(reasons, fmt.Sprintf("最近の反応からトピック「%s」が近い", t))
				break
			}
		}
	}

	if sctx.TrendingScores[c.ID] > 0 {
		reasons = append(reasons, "いま話題")
	}

	reference := c.CreatedAt
	if c.PublishedAt != nil {
		reference = *c.PublishedAt
	}
	if sctx.Now.Sub(reference) < 48*time.Hour {
		reasons = append(reasons, "公開されたばかり")
	}

	if len(reasons) == 0 {
		return "新しい出会いとしての一件です"
	}
	return strings.Join(reasons, "・")
}

// Similar は基準コンテンツとトピック集合が近いものを返す。
// Jaccard類似度を品質・鮮度・同一ドメインボーナスとブレンドした
// 順位付けを行う。minSimilarityはJaccard値に対する下限。
func (s *DiscoveryService) Similar(ctx context.Context, contentID string, limit int, minSimilarity float64) ([]SimilarContent, error) {
	if limit <= 0 {
		limit = 10
	}

	reference, err := s.contentRepo.FindByID(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("コンテンツの取得に失敗しました: %w", err)
	}
	if reference == nil {
		return nil, model.NewContentNotFoundError(contentID)
	}

	candidates, err := s.contentRepo.ListByTopicOverlap(ctx, reference.Topics, reference.ID, limit*similarFetchMultiplier)
	if err != nil {
		return nil, fmt.Errorf("類似候補の取得に失敗しました: %w", err)
	}

	now := s.now()
	var results []SimilarContent
	for i := range candidates {
		jaccard := JaccardSimilarity(reference.Topics, candidates[i].Topics)
		if jaccard < minSimilarity {
			continue
		}

		sameDomain := 0.0
		if candidates[i].Domain == reference.Domain {
			sameDomain = 1.0
		}
		blended := 0.6*jaccard +
			0.2*clamp01(candidates[i].QualityScore) +
			0.1*freshnessScore(&candidates[i], now, s.scoring.FreshnessHalfLifeDays) +
			0.1*sameDomain

		results = append(results, SimilarContent{
			Content:    candidates[i],
			Similarity: sanitizeFloat(blended, 0),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Content.ID < results[j].Content.ID
	})
	if len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}
