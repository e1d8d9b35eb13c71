package model

import "time"

// DefaultWildness は設定未登録ユーザーのwildness初期値。
const DefaultWildness = 50

// MaxPreferredTopics は登録できる優先トピック数の上限。
const MaxPreferredTopics = 20

// Preference はユーザーの発見設定を表す。
// プロフィール設定（外部コラボレータ）経由で更新され、エンジンからは読み取り専用。
type Preference struct {
	UserID         string
	Topics         []string // 優先トピック（順序が優先度を表す）
	Wildness       int      // [0,100] 探索と活用のバランス
	BlockedDomains []string
	UpdatedAt      time.Time
}

// DefaultPreference は設定未登録ユーザーに適用するデフォルト設定を返す。
// 新規ユーザーに設定が存在しないのは期待される状態でありエラーではない。
func DefaultPreference(userID string) *Preference {
	return &Preference{
		UserID:   userID,
		Wildness: DefaultWildness,
	}
}

// ClampWildness はwildness値を[0,100]に丸める。
// 範囲外の入力は拒否せずクランプする。
func ClampWildness(w int) int {
	if w < 0 {
		return 0
	}
	if w > 100 {
		return 100
	}
	return w
}
