package discovery

import (
	"math"
	"time"

	"github.com/hitoshi/stumble/internal/model"
)

// ScoringParams はスコアリングの調整パラメータ。
type ScoringParams struct {
	// FreshnessHalfLifeDays は鮮度減衰の半減期（日）。
	FreshnessHalfLifeDays float64
	// PriorCount はベーススコアのBayesianスムージングの擬似カウント。
	PriorCount float64
	// EngagementMinSamples はこれ未満のサンプル数で完全中立とする閾値。
	EngagementMinSamples int
	// EngagementFullSamples は信頼度が最大になるサンプル数。
	EngagementFullSamples int
	// EngagementReferenceSeconds は中立とみなす平均エンゲージメント秒数。
	EngagementReferenceSeconds float64
}

// ScoringContext はリクエスト1回分のスコアリング文脈。
// 事前にバッチ取得したデータをメモリ上で結合して保持し、
// 候補ごとのルックアップをN回のI/Oにしないためのもの。
// リクエストの寿命を超えて保持してはならない。
type ScoringContext struct {
	Profile         TasteProfile
	PreferredTopics []string
	Reputations     map[string]model.DomainReputation
	Engagement      map[string]model.EngagementStat
	TrendingScores  map[string]float64
	Now             time.Time
}

// Score は候補1件の最終スコアを計算する純粋関数。
// 6シグナルの積: base × quality × freshness × popularity × similarity に
// ドメイン評価とエンゲージメントの2つの倍率を掛ける。
// 副作用はなく、候補ごとに任意の順序・並列で呼び出してよい。
// 戻り値は常に有限かつ非負。
func Score(c *model.Content, sctx *ScoringContext, params ScoringParams) float64 {
	base := baseScore(c.LikeCount, c.ViewCount, params.PriorCount)
	quality := clamp01(sanitizeFloat(c.QualityScore, 0.5))
	freshness := freshnessScore(c, sctx.Now, params.FreshnessHalfLifeDays)
	popularity := popularityScore(c.ViewCount, c.LikeCount, c.SaveCount)
	similarity := topicSimilarity(c.Topics, sctx.Profile, sctx.PreferredTopics)

	reputation := reputationBoost(c.Domain, sctx.Reputations)
	engagement := engagementBoost(c.ID, sctx.Engagement, params)

	final := base * quality * freshness * popularity * similarity * reputation * engagement
	return sanitizeFloat(final, 0)
}

// baseScore はBayesianスムージング済みのlike率を返す。範囲は[0,1]。
// 擬似カウントにより、インタラクションゼロの新着は中立の0.5になり、
// 1件のlikeで跳ね上がることもない。
func baseScore(likeCount, viewCount int, priorCount float64) float64 {
	if priorCount <= 0 {
		priorCount = 1
	}
	likes := float64(likeCount)
	views := float64(viewCount)
	if likes > views {
		views = likes
	}
	return clamp01((likes + priorCount*0.5) / (views + priorCount))
}

// freshnessScore は経過時間に対する指数減衰を返す。範囲は(0,1]。
// 公開日時があればそれを、なければ登録日時を基準にする。
// ハードカットオフではなく半減期で緩やかに減衰する。
func freshnessScore(c *model.Content, now time.Time, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		halfLifeDays = 7
	}
	reference := c.CreatedAt
	if c.PublishedAt != nil {
		reference = *c.PublishedAt
	}
	ageDays := now.Sub(reference).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return sanitizeFloat(math.Pow(0.5, ageDays/halfLifeDays), 0.5)
}

// popularityScore は人気カウンタの飽和型正規化を返す。範囲は[0.5,1)。
// 下限を0.5とするのは、人気ゼロの新着が積の中でゼロに潰れないようにするため。
// 飽和関数によりバイラルな外れ値が支配的にならない。
func popularityScore(viewCount, likeCount, saveCount int) float64 {
	weighted := float64(viewCount) + 2*float64(likeCount) + 3*float64(saveCount)
	if weighted < 0 {
		weighted = 0
	}
	const saturation = 100.0
	return 0.5 + 0.5*(weighted/(weighted+saturation))
}

// reputationBoost はドメイン信頼スコアから倍率を導出する。範囲は[0.8,1.2]。
// trust 0.5（中立）で1.0、未知ドメインは中立デフォルト。
// ブラックリスト済みドメインは0を返し、積全体を落とす。
func reputationBoost(domain string, reputations map[string]model.DomainReputation) float64 {
	rep, ok := reputations[domain]
	if !ok {
		return 1.0
	}
	if rep.IsBlacklisted {
		return 0
	}
	trust := clamp01(sanitizeFloat(rep.TrustScore, model.NeutralTrustScore))
	return 0.8 + 0.4*trust
}

// engagementBoost は全ユーザー横断の平均エンゲージメント時間から倍率を導出する。
// 範囲は[0.8,1.2]で、基準秒数と同じ平均で1.0。
// サンプル数による信頼度ランプを適用し、MinSamples未満は完全中立、
// FullSamplesで全信頼に達する。単発の長い/短いセッションで
// ランクが振れるのを防ぐ。
func engagementBoost(contentID string, stats map[string]model.EngagementStat, params ScoringParams) float64 {
	stat, ok := stats[contentID]
	if !ok {
		return 1.0
	}
	confidence := engagementConfidence(stat.SampleCount, params.EngagementMinSamples, params.EngagementFullSamples)
	if confidence == 0 {
		return 1.0
	}

	avg := sanitizeFloat(stat.AvgDurationSeconds, 0)
	if avg < 0 {
		avg = 0
	}
	ref := params.EngagementReferenceSeconds
	if ref <= 0 {
		ref = 60
	}
	// normalizedは(0,1)でavg=refのとき0.5。rawは(0.8,1.2)で中立1.0。
	normalized := avg / (avg + ref)
	raw := 0.8 + 0.4*normalized

	return 1.0 + (raw-1.0)*confidence
}

// engagementConfidence はサンプル数から[0,1]の信頼度を返す。
func engagementConfidence(samples, minSamples, fullSamples int) float64 {
	if samples < minSamples {
		return 0
	}
	if fullSamples <= minSamples {
		return 1
	}
	if samples >= fullSamples {
		return 1
	}
	return float64(samples-minSamples) / float64(fullSamples-minSamples)
}

// clamp01 は値を[0,1]に収める。
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// sanitizeFloat はNaN・Infを既定値に置き換える。
// 欠損データ由来の非数が積を通じて伝播することを防ぐ。
func sanitizeFloat(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}
