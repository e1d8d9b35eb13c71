package ingest

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// faviconTimeout はfavicon解決のタイムアウト。
const faviconTimeout = 5 * time.Second

// faviconMaxHTMLSize はfavicon解決で読み込むHTMLの最大サイズ（1MB）。
const faviconMaxHTMLSize = 1 * 1024 * 1024

// FaviconResolverService はサイトのfavicon URL解決のインターフェース。
type FaviconResolverService interface {
	// ResolveFaviconURL はサイトURLからfaviconのURLを解決する。
	// サイトのHTMLから<link rel="icon">を探し、見つからなければ
	// /favicon.ico にフォールバックする。解決失敗時は空文字列を返す
	// （エラーは返さない）。
	ResolveFaviconURL(ctx context.Context, siteURL string) string
}

// FaviconResolver はFaviconResolverServiceの実装。
// コンテンツにはfaviconのバイト列ではなくURLのみを保持するため、
// 解決だけ行い画像本体は取得しない。
type FaviconResolver struct {
	ssrfGuard SSRFValidator
}

// NewFaviconResolver はFaviconResolverの新しいインスタンスを生成する。
func NewFaviconResolver(ssrfGuard SSRFValidator) *FaviconResolver {
	return &FaviconResolver{
		ssrfGuard: ssrfGuard,
	}
}

// ResolveFaviconURL はサイトURLからfaviconのURLを解決する。
func (r *FaviconResolver) ResolveFaviconURL(ctx context.Context, siteURL string) string {
	if siteURL == "" {
		return ""
	}
	if err := r.ssrfGuard.ValidateURL(siteURL); err != nil {
		slog.Warn("favicon解決: SSRFブロック", "url", siteURL, "error", err)
		return ""
	}

	base, err := url.Parse(siteURL)
	if err != nil {
		return ""
	}

	if href := r.findIconLink(ctx, siteURL); href != "" {
		if resolved, err := base.Parse(href); err == nil {
			return resolved.String()
		}
	}

	return defaultFaviconURL(base)
}

// findIconLink はサイトのHTMLから<link rel="icon">系のhrefを探す。
// 見つからない・取得に失敗した場合は空文字列を返す。
func (r *FaviconResolver) findIconLink(ctx context.Context, siteURL string) string {
	client := r.ssrfGuard.NewSafeClient(faviconTimeout, faviconMaxHTMLSize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, siteURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		slog.Warn("favicon解決: HTTPリクエスト失敗", "url", siteURL, "error", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, faviconMaxHTMLSize))
	if err != nil {
		return ""
	}

	return extractIconHref(body)
}

// extractIconHref はHTMLから最初のicon系linkタグのhrefを抽出する。
func extractIconHref(htmlBody []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(htmlBody))

	for {
		tokenType := tokenizer.Next()
		switch tokenType {
		case html.ErrorToken:
			return ""
		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			if token.Data != "link" {
				continue
			}

			var rel, href string
			for _, attr := range token.Attr {
				switch strings.ToLower(attr.Key) {
				case "rel":
					rel = strings.ToLower(attr.Val)
				case "href":
					href = attr.Val
				}
			}
			if href == "" {
				continue
			}
			// rel="icon" / "shortcut icon" / "apple-touch-icon" を受理する
			if strings.Contains(rel, "icon") {
				return href
			}
		case html.EndTagToken:
			token := tokenizer.Token()
			// headの終わりより先にiconは現れない
			if token.Data == "head" {
				return ""
			}
		}
	}
}

// defaultFaviconURL はサイトURLからデフォルトのfavicon URLを組み立てる。
func defaultFaviconURL(base *url.URL) string {
	u := *base
	u.Path = "/favicon.ico"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// compile-time interface check
var _ FaviconResolverService = (*FaviconResolver)(nil)
