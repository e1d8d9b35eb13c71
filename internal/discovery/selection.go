package discovery

import (
	"math/rand/v2"
	"sort"

	"github.com/hitoshi/stumble/internal/model"
)

// SelectionParams はwildnessバンドごとの選択パラメータ。
type SelectionParams struct {
	// EpsilonLow はwildness 0-20の探索確率。
	EpsilonLow float64
	// EpsilonMid はwildness 21-60の探索確率。
	EpsilonMid float64
	// EpsilonHighMax はwildness 100時点の探索確率。
	EpsilonHighMax float64
	// SliceLow は低wildnessの選択スライス幅。
	SliceLow int
	// SliceMid は中wildnessの選択スライス幅。
	SliceMid int
	// SliceHighMin は高wildnessの選択スライス幅の下限。
	// wildness 100で全候補リストまで広がる。
	SliceHighMin int
}

// ScoredCandidate はスコア付けされた候補1件。
type ScoredCandidate struct {
	Content model.Content
	Score   float64
}

// SelectionResult は選択の内訳。rationale生成とメトリクスに使用する。
type SelectionResult struct {
	// Explored はε探索（トップバンド外からのランダム選択）だったか。
	Explored bool
	// SliceSize は適用された選択スライス幅。
	SliceSize int
	// Epsilon は適用された探索確率。
	Epsilon float64
}

// Selector はwildnessに応じたε-greedy選択を行う。
// ステートレスで、リクエスト間に共有可変状態を持たない。
type Selector struct {
	params    SelectionParams
	randFloat func() float64
	randIntN  func(n int) int
}

// NewSelector はSelectorの新しいインスタンスを生成する。
func NewSelector(params SelectionParams) *Selector {
	return &Selector{
		params:    params,
		randFloat: rand.Float64,
		randIntN:  rand.IntN,
	}
}

// NewSelectorWithRand は乱数源を差し替えたSelectorを生成する。テスト用。
func NewSelectorWithRand(params SelectionParams, randFloat func() float64, randIntN func(n int) int) *Selector {
	return &Selector{
		params:    params,
		randFloat: randFloat,
		randIntN:  randIntN,
	}
}

// SortByScore は候補をスコア降順に並べ替える。Selectの前提条件を整える。
// 同点時はID順で安定させる。
func SortByScore(candidates []ScoredCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Content.ID < candidates[j].Content.ID
	})
}

// Select はスコア降順の候補リストから1件を選択する。
// wildnessは事前に[0,100]へクランプされている前提だが、念のためここでも行う。
//
// 選択ポリシー:
//   - 低wildness (0-20): 狭いトップスライスからの準グリーディ選択、探索確率は最小。
//   - 中wildness (21-60): 中程度のスライス + ε-greedy。εの確率で
//     スライス外も含む全リストから一様ランダムに選び、セレンディピティを保証する。
//   - 高wildness (61-100): スライスを下限から全リストまで線形に拡大し、
//     εも上限まで引き上げる。スライス内ではユーザーの接触が少ない
//     ドメインの候補を重み付けで優遇する。
//
// スコア0の候補は提示不可（ブラックリストドメイン等）の印であり、
// ε探索の経路も含めいかなる経路でも選択対象にしない。
// 候補が空、または提示可能な候補が残らない場合はok=falseを返す。
func (s *Selector) Select(candidates []ScoredCandidate, wildness int, seenDomains map[string]int) (ScoredCandidate, SelectionResult, bool) {
	// 降順ソート済みの前提なので、スコア0以下は末尾にまとまっている
	cut := sort.Search(len(candidates), func(i int) bool {
		return candidates[i].Score <= 0
	})
	candidates = candidates[:cut]
	if len(candidates) == 0 {
		return ScoredCandidate{}, SelectionResult{}, false
	}

	wildness = model.ClampWildness(wildness)
	sliceSize, epsilon := s.bandFor(wildness, len(candidates))
	result := SelectionResult{SliceSize: sliceSize, Epsilon: epsilon}

	// ε探索: トップバンドの外も含めた全リストから一様ランダム
	if s.randFloat() < epsilon {
		result.Explored = true
		return candidates[s.randIntN(len(candidates))], result, true
	}

	if wildness > 60 {
		// 高wildness: スライス内で未接触ドメインを優遇した重み付き選択
		return s.weightedPick(candidates[:sliceSize], seenDomains), result, true
	}

	return candidates[s.randIntN(sliceSize)], result, true
}

// bandFor はwildness値から選択スライス幅と探索確率を決定する。
// 境界値0と100は方向性のヒントではなく到達可能な極値として扱う。
func (s *Selector) bandFor(wildness, poolSize int) (sliceSize int, epsilon float64) {
	switch {
	case wildness <= 20:
		sliceSize = s.params.SliceLow
		epsilon = s.params.EpsilonLow
	case wildness <= 60:
		sliceSize = s.params.SliceMid
		epsilon = s.params.EpsilonMid
	default:
		// 61-100: 下限から全リストへ、ε下限からε上限へ線形に遷移
		frac := float64(wildness-60) / 40.0
		sliceSize = s.params.SliceHighMin + int(frac*float64(poolSize-s.params.SliceHighMin))
		epsilon = s.params.EpsilonMid + frac*(s.params.EpsilonHighMax-s.params.EpsilonMid)
	}

	if sliceSize > poolSize {
		sliceSize = poolSize
	}
	if sliceSize < 1 {
		sliceSize = 1
	}
	return sliceSize, epsilon
}

// weightedPick はスコアと未接触ドメイン優遇を組み合わせた重み付きランダム選択。
// 接触回数が少ないドメインほど大きな倍率がかかる。
func (s *Selector) weightedPick(slice []ScoredCandidate, seenDomains map[string]int) ScoredCandidate {
	weights := make([]float64, len(slice))
	var total float64
	for i, c := range slice {
		novelty := 1.0 + 1.0/float64(1+seenDomains[c.Content.Domain])
		w := c.Score * novelty
		if w <= 0 {
			w = 1e-9
		}
		weights[i] = w
		total += w
	}

	target := s.randFloat() * total
	for i, w := range weights {
		target -= w
		if target <= 0 {
			return slice[i]
		}
	}
	return slice[len(slice)-1]
}
