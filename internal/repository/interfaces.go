// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/stumble/internal/model"
)

// ContentRepository はコンテンツデータの永続化インターフェース。
// 発見エンジンからは読み取り専用で、書き込みは投稿・取り込み経路と
// 人気カウンタの反映のみ。
type ContentRepository interface {
	// FindByID は指定IDのコンテンツを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Content, error)

	// FindByURL はURLでコンテンツを検索する。見つからない場合はnilを返す。
	FindByURL(ctx context.Context, url string) (*model.Content, error)

	// QueryCandidates は候補プールを取得する。
	// 指定ユーザーの全接触履歴・除外ID・ブロックドメインはハードゲートとして
	// 適用される。履歴除外はストア側の結合で行い、履歴の件数に上限を設けない。
	// 優先トピックはプール入場のゲートにしない（ランキングの関心事）。
	QueryCandidates(ctx context.Context, q model.CandidateQuery) ([]model.Content, error)

	// ListByTopicOverlap は指定トピック集合と重なりのあるアクティブな
	// コンテンツを取得する。excludeIDは結果から除外する（類似検索の基準自身）。
	ListByTopicOverlap(ctx context.Context, topics []string, excludeID string, limit int) ([]model.Content, error)

	// Create は新規コンテンツを作成する。
	Create(ctx context.Context, content *model.Content) error

	// ApplyInteraction はアクションに応じて人気カウンタを加算する。
	// カウンタに対応しないアクション（share, skip）では何もしない。
	ApplyInteraction(ctx context.Context, contentID string, action model.InteractionAction) error
}

// InteractionRepository はインタラクションデータの永続化インターフェース。
// 追記専用であり、更新・削除のメソッドは提供しない。
type InteractionRepository interface {
	// Create はインタラクションを記録する。
	Create(ctx context.Context, interaction *model.Interaction) error

	// CountExcludedByUser はユーザーが一度でも接触したコンテンツの総数を返す。
	// プールサイズ計算に使用する。
	CountExcludedByUser(ctx context.Context, userID string) (int, error)

	// ListRecentWithContent はユーザーの直近インタラクションを
	// コンテンツのトピック・ドメイン付きで新しい順に返す。
	ListRecentWithContent(ctx context.Context, userID string, limit int) ([]model.InteractionWithContent, error)

	// BatchGetEngagementStats は指定コンテンツ群の全ユーザー横断
	// エンゲージメント統計をまとめて取得する。統計のないIDは結果に含まれない。
	BatchGetEngagementStats(ctx context.Context, contentIDs []string) (map[string]model.EngagementStat, error)

	// ListWindowStats は指定時刻以降のコンテンツごとの集計値を返す。
	// トレンド計算ジョブから使用される。
	ListWindowStats(ctx context.Context, since time.Time) ([]model.WindowInteractionStat, error)
}

// PreferenceRepository はユーザー設定の永続化インターフェース。
type PreferenceRepository interface {
	// FindByUserID は指定ユーザーの設定を取得する。未登録の場合はnilを返す。
	// 未登録は新規ユーザーの期待される状態でありエラーではない。
	FindByUserID(ctx context.Context, userID string) (*model.Preference, error)

	// Upsert は設定を冪等に作成・更新する。
	Upsert(ctx context.Context, pref *model.Preference) error
}

// ReputationRepository はドメイン信頼情報の読み取りインターフェース。
// 更新は外部のモデレーションプロセスが行う。
type ReputationRepository interface {
	// BatchGetByDomains は複数ドメインの信頼情報をまとめて取得する。
	// 未登録ドメインは結果に含まれない（呼び出し側で中立デフォルトを適用する）。
	BatchGetByDomains(ctx context.Context, domains []string) (map[string]model.DomainReputation, error)
}

// TrendingRepository はトレンドキャッシュの永続化インターフェース。
// 書き込みはバックグラウンドの計算ジョブのみが行う。
type TrendingRepository interface {
	// ReplaceWindow は指定窓のスナップショットを単一トランザクションで
	// 置き換える。計算が完全に成功した後にのみ呼び出すこと。
	ReplaceWindow(ctx context.Context, window model.TrendingWindow, entries []model.TrendingEntry) error

	// ListByWindow は指定窓の上位エントリをスコア降順でコンテンツ付きで返す。
	// 非アクティブ化されたコンテンツのエントリは結果から除かれる。
	ListByWindow(ctx context.Context, window model.TrendingWindow, limit int) ([]model.TrendingEntryWithContent, error)

	// BatchGetScores は指定窓・指定コンテンツ群のトレンドスコアをまとめて返す。
	// エントリのないIDは結果に含まれない（= トレンドしていない）。
	BatchGetScores(ctx context.Context, window model.TrendingWindow, contentIDs []string) (map[string]float64, error)

	// DeleteOlderThan は計算時刻がcutoffより古いエントリを削除する。
	// 置き換えられなかった窓の陳腐化スナップショットの整理に使用する。
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SourceRepository は取り込みソースの永続化インターフェース。
type SourceRepository interface {
	// FindByFeedURL はフィードURLでソースを検索する。見つからない場合はnilを返す。
	FindByFeedURL(ctx context.Context, feedURL string) (*model.Source, error)

	// Create はソースを作成する。
	Create(ctx context.Context, source *model.Source) error

	// ListDueForFetch はフェッチ対象のソースを取得する。
	// next_fetch_at <= now() かつ fetch_status = 'active' のソースを
	// FOR UPDATE SKIP LOCKEDで排他的に取得する。
	ListDueForFetch(ctx context.Context) ([]*model.Source, error)

	// UpdateFetchState はソースのフェッチ状態を更新する。
	// fetch_status、consecutive_errors、error_message、next_fetch_at、
	// etag、last_modified、titleを更新する。
	UpdateFetchState(ctx context.Context, source *model.Source) error
}
