// Package model はドメインモデルを定義する。
package model

import "time"

// Content はクロール・投稿されたWebコンテンツを表す。
// 人気カウンタと品質スコア以外はクロール後イミュータブルとして扱う。
type Content struct {
	ID           string
	URL          string
	Domain       string
	Title        string
	Description  string   // サニタイズ済みプレーンテキスト
	Topics       []string // 最大5タグ
	QualityScore float64  // [0,1]
	PublishedAt  *time.Time
	ViewCount    int
	LikeCount    int
	SaveCount    int
	ImageURL     string
	FaviconURL   string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SortStrategy は候補プール取得時のソート戦略を表す。
// ローテーション関数によって時間帯ごとに切り替えられる。
type SortStrategy string

const (
	// SortByRecency は登録日時の新しい順。
	SortByRecency SortStrategy = "recency"
	// SortByQuality は品質スコアの高い順。
	SortByQuality SortStrategy = "quality"
	// SortByPopularity は人気カウンタ（view+like+save）の多い順。
	SortByPopularity SortStrategy = "popularity"
	// SortByFreshness は公開日時の新しい順。
	SortByFreshness SortStrategy = "freshness"
)

// SortStrategies はローテーション対象の全ソート戦略。
// 順序はローテーション関数のインデックスに対応するため変更しないこと。
var SortStrategies = []SortStrategy{
	SortByRecency,
	SortByQuality,
	SortByPopularity,
	SortByFreshness,
}

// CandidateQuery は候補プール取得クエリの条件を表す。
type CandidateQuery struct {
	// UserID は候補を取得するユーザー。ストアはこのユーザーが接触した
	// 全コンテンツを件数によらず除外しなければならない。
	UserID string
	// ExcludeIDs は追加で除外するコンテンツID。永続化前の
	// セッション内提示分が入る。呼び出し側でキャップ適用済み。
	ExcludeIDs []string
	// BlockedDomains はユーザーが明示的にブロックしたドメイン。
	BlockedDomains []string
	// PreferredTopics は優先トピック。プール入場のゲートではなく
	// ランキング用の参考情報としてのみ使用される（空なら全件対象）。
	PreferredTopics []string
	// PoolSize は取得する候補数。
	PoolSize int
	// Sort はソート戦略。
	Sort SortStrategy
}
