package discovery

import (
	"math"

	"github.com/hitoshi/stumble/internal/model"
)

// 嗜好プロファイル構築時のアクション重み。
// saveはlikeより強い意思表示として2倍、skipはlikeの半分の負の重みで
// 単発のskipが多数のlikeを覆さないようにする。
const (
	weightSave = 2.0
	weightLike = 1.0
	weightSkip = 0.5
)

// TasteProfile はユーザーの直近インタラクションから導出した嗜好プロファイル。
// リクエストごとに構築されるエフェメラルなデータで、永続化されない。
type TasteProfile struct {
	// LikedTopics はlike/saveから得たトピックごとの正の重み。
	LikedTopics map[string]float64
	// DislikedTopics はskipから得たトピックごとの負方向の重み。
	DislikedTopics map[string]float64
	// LikedDomains はlike/saveから得たドメインごとの正の重み。
	LikedDomains map[string]float64
	// SeenDomains は接触したドメインごとの回数。
	// 高wildness時の「見ていないドメイン優遇」に使用する。
	SeenDomains map[string]int
	// SampleCount は分析対象になったインタラクション数。
	SampleCount int
}

// BuildTasteProfile は直近インタラクションを嗜好プロファイルに還元する。
// インタラクションゼロは新規ユーザーの期待される状態であり、
// その場合は空のプロファイル（全トピック中立）を返す。
func BuildTasteProfile(interactions []model.InteractionWithContent) TasteProfile {
	profile := TasteProfile{
		LikedTopics:    make(map[string]float64),
		DislikedTopics: make(map[string]float64),
		LikedDomains:   make(map[string]float64),
		SeenDomains:    make(map[string]int),
		SampleCount:    len(interactions),
	}

	for _, in := range interactions {
		if in.Domain != "" {
			profile.SeenDomains[in.Domain]++
		}

		switch in.Action {
		case model.ActionSave:
			for _, topic := range in.Topics {
				profile.LikedTopics[topic] += weightSave
			}
			if in.Domain != "" {
				profile.LikedDomains[in.Domain] += weightSave
			}
		case model.ActionLike:
			for _, topic := range in.Topics {
				profile.LikedTopics[topic] += weightLike
			}
			if in.Domain != "" {
				profile.LikedDomains[in.Domain] += weightLike
			}
		case model.ActionSkip:
			for _, topic := range in.Topics {
				profile.DislikedTopics[topic] += weightSkip
			}
		}
	}

	return profile
}

// topicSimilarity は候補トピックと嗜好の類似度を返す。範囲は[0,1]で0.5が中立。
// 履歴由来のトピック親和度と、明示設定トピックとの重なりを等分でブレンドする。
// 履歴ゼロのユーザーは親和度が中立0.5になり、明示トピックとの重なりだけで
// 差がつく（コールドスタートがトピックマッチ単体より不利にならない）。
func topicSimilarity(topics []string, profile TasteProfile, preferredTopics []string) float64 {
	affinity := historyAffinity(topics, profile)
	overlap := preferenceOverlap(topics, preferredTopics)
	return 0.5*affinity + 0.5*overlap
}

// historyAffinity は嗜好プロファイルからのトピック親和度を返す。
// 正味の重み（liked − disliked）をtanhで[0,1]に圧縮し、0.5を中心に置く。
func historyAffinity(topics []string, profile TasteProfile) float64 {
	if profile.SampleCount == 0 || len(topics) == 0 {
		return 0.5
	}

	var net float64
	for _, topic := range topics {
		net += profile.LikedTopics[topic]
		net -= profile.DislikedTopics[topic]
	}
	if net == 0 {
		return 0.5
	}

	// tanh(net/4): like数件で効き始め、大きな偏りで漸近的に飽和する
	return 0.5 + 0.5*math.Tanh(net/4)
}

// preferenceOverlap は明示設定トピックとの重なり度を返す。範囲は[0,1]で0.5が中立。
// 設定トピックが空のユーザーには中立を返す。
func preferenceOverlap(topics []string, preferredTopics []string) float64 {
	if len(preferredTopics) == 0 || len(topics) == 0 {
		return 0.5
	}

	preferred := make(map[string]bool, len(preferredTopics))
	for _, t := range preferredTopics {
		preferred[t] = true
	}
	matches := 0
	for _, t := range topics {
		if preferred[t] {
			matches++
		}
	}
	return 0.5 + 0.5*(float64(matches)/float64(len(topics)))
}

// JaccardSimilarity は2つのトピック集合のJaccard係数を返す。範囲は[0,1]。
// 「これに似たもの」検索の基礎指標に使用する。
func JaccardSimilarity(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(a))
	for _, t := range a {
		setA[t] = true
	}
	intersection := 0
	union := len(setA)
	seenB := make(map[string]bool, len(b))
	for _, t := range b {
		if seenB[t] {
			continue
		}
		seenB[t] = true
		if setA[t] {
			intersection++
		} else {
			union++
		}
	}
	return float64(intersection) / float64(union)
}
