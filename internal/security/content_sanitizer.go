package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はコンテンツのテキストフィールドの
// サニタイズ機能のインターフェースを定義する。
// 投稿APIとフィード取り込みの両経路で、保存前に適用される。
type ContentSanitizerService interface {
	// SanitizeText はHTMLを完全に除去したプレーンテキストを返す。
	// タイトル・説明文はカード表示にプレーンテキストとして埋め込まれるため、
	// タグは許可せず全て除去する。連続する空白は1つにまとめられる。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(raw string) string

	// SanitizeTopic はトピック名を正規化する。
	// HTMLを除去し、小文字化と前後空白の除去を行う。
	SanitizeTopic(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// タイトル・説明文・トピックはいずれもプレーンテキストとして扱うため、
// bluemondayのStrictPolicy（全タグ除去）を使用する。
// script, iframe, style, on*イベント属性は許可リストに含まれないため除去される。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText はHTMLを完全に除去したプレーンテキストを返す。
func (s *contentSanitizer) SanitizeText(raw string) string {
	cleaned := s.policy.Sanitize(raw)
	// タグ除去で生じた連続空白・改行を1つの空白にまとめる
	return strings.Join(strings.Fields(cleaned), " ")
}

// SanitizeTopic はトピック名を正規化する。
func (s *contentSanitizer) SanitizeTopic(raw string) string {
	return strings.ToLower(s.SanitizeText(raw))
}
