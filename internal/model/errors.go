package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, discovery, content, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodePoolExhausted   = "POOL_EXHAUSTED"
	ErrCodeContentNotFound = "CONTENT_NOT_FOUND"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeInvalidAction   = "INVALID_ACTION"
	ErrCodeInvalidWindow   = "INVALID_WINDOW"
	ErrCodeInvalidURL      = "INVALID_URL"
	ErrCodeSSRFBlocked     = "SSRF_BLOCKED"
	ErrCodeDuplicateURL    = "DUPLICATE_URL"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
)

// NewPoolExhaustedError は候補プールが完全に空の場合のエラーを生成する。
// フォールバック拡大後もプールが空の場合にのみ使用される真のエラー条件。
func NewPoolExhaustedError() *APIError {
	return &APIError{
		Code:     ErrCodePoolExhausted,
		Message:  "現在の設定で提供できるコンテンツがありません。",
		Category: "discovery",
		Action:   "興味トピックを追加するか、wildnessを上げて探索範囲を広げてください。",
	}
}

// NewContentNotFoundError はコンテンツ未検出エラーを生成する。
func NewContentNotFoundError(contentID string) *APIError {
	return &APIError{
		Code:     ErrCodeContentNotFound,
		Message:  fmt.Sprintf("指定されたコンテンツが見つかりません: %s", contentID),
		Category: "content",
		Action:   "コンテンツIDを確認してください。",
	}
}

// NewInvalidRequestError はリクエスト不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewInvalidActionError は無効なアクション種別エラーを生成する。
func NewInvalidActionError(action string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAction,
		Message:  fmt.Sprintf("無効なアクションです: %s", action),
		Category: "validation",
		Action:   "アクションには like、skip、save、share、view のいずれかを指定してください。",
	}
}

// NewInvalidWindowError は無効なトレンド窓指定エラーを生成する。
func NewInvalidWindowError(window string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidWindow,
		Message:  fmt.Sprintf("無効な時間窓です: %s", window),
		Category: "validation",
		Action:   "時間窓には hour、day、week のいずれかを指定してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewDuplicateURLError は登録済みURLの重複エラーを生成する。
func NewDuplicateURLError(url string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateURL,
		Message:  fmt.Sprintf("このURLは既に登録されています: %s", url),
		Category: "content",
		Action:   "別のURLを投稿してください。",
	}
}

// NewUnauthorizedError は認証情報欠落エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "ユーザーIDが指定されていません。",
		Category: "validation",
		Action:   "X-User-IDヘッダーを付与してリクエストしてください。",
	}
}
