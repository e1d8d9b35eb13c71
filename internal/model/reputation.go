package model

import "time"

// NeutralTrustScore は未知ドメインに適用する中立の信頼スコア。
const NeutralTrustScore = 0.5

// DomainReputation はドメインごとの信頼情報を表す。
// 外部のモデレーションプロセスによって更新され、エンジンからは読み取り専用。
type DomainReputation struct {
	Domain        string
	TrustScore    float64 // [0,1]。0.5が中立。
	ApprovedCount int
	RejectedCount int
	IsBlacklisted bool
	UpdatedAt     time.Time
}
