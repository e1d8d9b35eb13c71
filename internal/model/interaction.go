package model

import "time"

// InteractionAction はユーザーのコンテンツに対するアクション種別を表す。
type InteractionAction string

const (
	// ActionLike はいいねアクション。
	ActionLike InteractionAction = "like"
	// ActionSkip はスキップアクション。スキップされたコンテンツは
	// そのユーザーに二度と返してはならない（最重要の正しさ不変条件）。
	ActionSkip InteractionAction = "skip"
	// ActionSave は保存アクション。いいねより強い嗜好シグナル。
	ActionSave InteractionAction = "save"
	// ActionShare は共有アクション。
	ActionShare InteractionAction = "share"
	// ActionView は閲覧アクション。
	ActionView InteractionAction = "view"
)

// ValidActions は有効なアクション種別のセット。
var ValidActions = map[InteractionAction]bool{
	ActionLike:  true,
	ActionSkip:  true,
	ActionSave:  true,
	ActionShare: true,
	ActionView:  true,
}

// Interaction はユーザーとコンテンツの1回のやり取りを表す。
// 追記専用であり、このエンジンから更新・削除されることはない。
type Interaction struct {
	ID              string
	UserID          string
	ContentID       string
	Action          InteractionAction
	DurationSeconds *int // エンゲージメント時間（秒）。未計測の場合はnil。
	CreatedAt       time.Time
}

// InteractionWithContent はインタラクションとコンテンツのトピック・ドメインを
// 結合したモデル。嗜好プロファイルの構築に使用される。
type InteractionWithContent struct {
	Interaction
	Topics []string
	Domain string
}

// EngagementStat はコンテンツごとの全ユーザー横断エンゲージメント統計を表す。
type EngagementStat struct {
	ContentID          string
	AvgDurationSeconds float64
	SampleCount        int
}

// WindowInteractionStat はトレンド計算用の時間窓内の集計値を表す。
type WindowInteractionStat struct {
	ContentID        string
	InteractionCount int // view以外のアクション数
	ViewCount        int
	LatestAt         time.Time // 窓内で最後にインタラクションがあった時刻
}
