package model

import "time"

// TrendingWindow はトレンド集計の時間窓を表す。
type TrendingWindow string

const (
	// TrendingWindowHour は直近1時間の窓。
	TrendingWindowHour TrendingWindow = "hour"
	// TrendingWindowDay は直近24時間の窓。
	TrendingWindowDay TrendingWindow = "day"
	// TrendingWindowWeek は直近7日間の窓。
	TrendingWindowWeek TrendingWindow = "week"
)

// TrendingWindows は全ての集計窓。計算ジョブはこの順に処理する。
var TrendingWindows = []TrendingWindow{
	TrendingWindowHour,
	TrendingWindowDay,
	TrendingWindowWeek,
}

// Duration は窓の長さを返す。
func (w TrendingWindow) Duration() time.Duration {
	switch w {
	case TrendingWindowHour:
		return time.Hour
	case TrendingWindowDay:
		return 24 * time.Hour
	case TrendingWindowWeek:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// ValidTrendingWindows は有効な窓指定のセット。
var ValidTrendingWindows = map[TrendingWindow]bool{
	TrendingWindowHour: true,
	TrendingWindowDay:  true,
	TrendingWindowWeek: true,
}

// TrendingEntry はトレンドキャッシュの1エントリを表す。
// 完全に導出可能なデータであり、バックグラウンドジョブのみが書き込む。
type TrendingEntry struct {
	ContentID  string
	Window     TrendingWindow
	Score      float64
	ComputedAt time.Time
}

// TrendingEntryWithContent はトレンドエントリとコンテンツ本体を結合したモデル。
// トレンド一覧APIの応答構築に使用される。
type TrendingEntryWithContent struct {
	TrendingEntry
	Content Content
}
