package model

import "time"

// Source はコンテンツ取り込み元のRSS/Atomフィードを表す。
type Source struct {
	ID                string
	FeedURL           string
	SiteURL           string
	Title             string
	DefaultTopics     []string // フィード側にカテゴリがない場合に適用するトピック
	ETag              string
	LastModified      string
	FetchStatus       FetchStatus
	ConsecutiveErrors int
	ErrorMessage      string
	NextFetchAt       time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// FetchStatus はソースのフェッチ状態を表す。
type FetchStatus string

const (
	// FetchStatusActive はアクティブなフェッチ状態。
	FetchStatusActive FetchStatus = "active"
	// FetchStatusStopped は停止されたフェッチ状態。
	FetchStatusStopped FetchStatus = "stopped"
	// FetchStatusError はエラーによるフェッチ停止状態。
	FetchStatusError FetchStatus = "error"
)
