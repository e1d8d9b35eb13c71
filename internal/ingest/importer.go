// Package ingest はRSS/AtomフィードからのコンテンツID取り込みを提供する。
// スケジューラ、インポーター、リトライ/バックオフ戦略を含む。
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/stumble/internal/metrics"
	"github.com/hitoshi/stumble/internal/model"
	"github.com/hitoshi/stumble/internal/repository"
)

// userAgent は取り込みHTTPリクエストのUser-Agent。
const userAgent = "Stumble/1.0 Content Discovery"

// maxTopicsPerContent はコンテンツ1件あたりのトピック数上限。
const maxTopicsPerContent = 5

// defaultQualityScore は取り込み直後のコンテンツに与える品質スコア。
// 後段の品質再評価プロセスが更新するまでの中立値。
const defaultQualityScore = 0.5

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceを抽象化してテスタビリティを向上させる。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Sanitizer はテキストサニタイズのインターフェース。
type Sanitizer interface {
	SanitizeText(raw string) string
	SanitizeTopic(raw string) string
}

// Importer は個別ソースのHTTPフェッチ・パース・コンテンツ保存を行う。
// ETag/Last-Modifiedを使用した条件付きGET、SSRF検証、
// gofeedによるパース、URL重複の排除を実行する。
type Importer struct {
	sourceRepo  repository.SourceRepository
	contentRepo repository.ContentRepository
	ssrfGuard   SSRFValidator
	sanitizer   Sanitizer
	favicons    FaviconResolverService
	logger      *slog.Logger
	collector   metrics.MetricsCollector
	interval    time.Duration
	timeout     time.Duration
	maxBodySize int64
}

// NewImporter はImporterの新しいインスタンスを生成する。
func NewImporter(
	sourceRepo repository.SourceRepository,
	contentRepo repository.ContentRepository,
	ssrfGuard SSRFValidator,
	sanitizer Sanitizer,
	favicons FaviconResolverService,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
	interval time.Duration,
	timeout time.Duration,
	maxBodySize int64,
) *Importer {
	return &Importer{
		sourceRepo:  sourceRepo,
		contentRepo: contentRepo,
		ssrfGuard:   ssrfGuard,
		sanitizer:   sanitizer,
		favicons:    favicons,
		logger:      logger,
		collector:   collector,
		interval:    interval,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// Import はソースをフェッチし、新規コンテンツを保存する。
// SourceImporterServiceインターフェースを実装する。
func (im *Importer) Import(ctx context.Context, source *model.Source) error {
	start := time.Now()

	// SSRF検証
	if err := im.ssrfGuard.ValidateURL(source.FeedURL); err != nil {
		im.logger.Error("SSRF検証に失敗しました",
			slog.String("source_id", source.ID),
			slog.String("feed_url", source.FeedURL),
			slog.String("error", err.Error()),
		)
		ApplyStopSource(source, fmt.Sprintf("SSRF検証失敗: %s", err.Error()))
		im.updateState(ctx, source)
		return fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	client := im.ssrfGuard.NewSafeClient(im.timeout, im.maxBodySize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.FeedURL, nil)
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	// 条件付きGET
	if source.ETag != "" {
		req.Header.Set("If-None-Match", source.ETag)
	}
	if source.LastModified != "" {
		req.Header.Set("If-Modified-Since", source.LastModified)
	}

	resp, err := client.Do(req)
	if err != nil {
		im.logger.Error("HTTPリクエストに失敗しました",
			slog.String("source_id", source.ID),
			slog.String("feed_url", source.FeedURL),
			slog.String("error", err.Error()),
		)
		im.collector.RecordIngestFailure()
		ApplyBackoff(source, fmt.Sprintf("HTTPリクエスト失敗: %s", err.Error()))
		im.updateState(ctx, source)
		return fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	switch ClassifyHTTPStatus(resp.StatusCode) {
	case FetchResultNotModified:
		im.logger.Info("ソースは未変更です（304）",
			slog.String("source_id", source.ID),
			slog.String("feed_url", source.FeedURL),
		)
		ApplySuccess(source, im.interval)
		return im.sourceRepo.UpdateFetchState(ctx, source)

	case FetchResultStop:
		reason := fmt.Sprintf("HTTPステータス %d によりフェッチを停止しました", resp.StatusCode)
		im.logger.Warn("ソースのフェッチを停止します",
			slog.String("source_id", source.ID),
			slog.String("feed_url", source.FeedURL),
			slog.Int("http_status", resp.StatusCode),
		)
		ApplyStopSource(source, reason)
		return im.sourceRepo.UpdateFetchState(ctx, source)

	case FetchResultBackoff, FetchResultUnknown:
		reason := fmt.Sprintf("HTTPステータス %d によりバックオフを適用しました", resp.StatusCode)
		im.logger.Warn("ソースのフェッチにバックオフを適用します",
			slog.String("source_id", source.ID),
			slog.String("feed_url", source.FeedURL),
			slog.Int("http_status", resp.StatusCode),
			slog.Int("consecutive_errors", source.ConsecutiveErrors+1),
		)
		im.collector.RecordIngestFailure()
		ApplyBackoff(source, reason)
		return im.sourceRepo.UpdateFetchState(ctx, source)

	case FetchResultOK:
		// 200: 以下で処理を続行
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, im.maxBodySize))
	if err != nil {
		im.collector.RecordIngestFailure()
		ApplyBackoff(source, fmt.Sprintf("レスポンス読み取り失敗: %s", err.Error()))
		im.updateState(ctx, source)
		return fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		source.ETag = etag
	}
	if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
		source.LastModified = lastMod
	}

	parser := gofeed.NewParser()
	parsedFeed, err := parser.ParseString(string(body))
	if err != nil {
		im.logger.Error("フィードのパースに失敗しました",
			slog.String("source_id", source.ID),
			slog.String("feed_url", source.FeedURL),
			slog.String("error", err.Error()),
		)
		im.collector.RecordIngestFailure()
		ApplyParseFailure(source, err.Error())
		im.updateState(ctx, source)
		return nil // パース失敗はフェッチエラーとしない（カウントして継続）
	}

	if parsedFeed.Title != "" {
		source.Title = im.sanitizer.SanitizeText(parsedFeed.Title)
	}
	if parsedFeed.Link != "" {
		source.SiteURL = parsedFeed.Link
	}

	faviconURL := im.favicons.ResolveFaviconURL(ctx, source.SiteURL)

	created := 0
	for _, item := range parsedFeed.Items {
		ok, err := im.importItem(ctx, source, item, faviconURL)
		if err != nil {
			im.logger.Warn("コンテンツの保存に失敗しました",
				slog.String("source_id", source.ID),
				slog.String("item_url", item.Link),
				slog.String("error", err.Error()),
			)
			continue
		}
		if ok {
			created++
		}
	}

	im.collector.RecordIngestedContents(created)
	ApplySuccess(source, im.interval)
	if err := im.sourceRepo.UpdateFetchState(ctx, source); err != nil {
		return err
	}

	im.logger.Info("ソースの取り込みが完了しました",
		slog.String("source_id", source.ID),
		slog.String("feed_url", source.FeedURL),
		slog.Int("items_total", len(parsedFeed.Items)),
		slog.Int("items_created", created),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// importItem はフィード記事1件をコンテンツとして保存する。
// 既存URLはスキップする（戻り値false）。保存できたらtrueを返す。
func (im *Importer) importItem(ctx context.Context, source *model.Source, item *gofeed.Item, faviconURL string) (bool, error) {
	if item.Link == "" {
		return false, nil
	}
	if err := im.ssrfGuard.ValidateURL(item.Link); err != nil {
		return false, nil
	}

	existing, err := im.contentRepo.FindByURL(ctx, item.Link)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	domain, err := DomainOf(item.Link)
	if err != nil {
		return false, nil
	}

	content := &model.Content{
		ID:           uuid.New().String(),
		URL:          item.Link,
		Domain:       domain,
		Title:        im.sanitizer.SanitizeText(item.Title),
		Description:  im.sanitizer.SanitizeText(item.Description),
		Topics:       im.buildTopics(item.Categories, source.DefaultTopics),
		QualityScore: defaultQualityScore,
		PublishedAt:  item.PublishedParsed,
		FaviconURL:   faviconURL,
		IsActive:     true,
	}
	if content.Title == "" {
		content.Title = content.URL
	}
	if item.Image != nil {
		content.ImageURL = item.Image.URL
	}

	if err := im.contentRepo.Create(ctx, content); err != nil {
		return false, err
	}
	return true, nil
}

// buildTopics はフィード記事のカテゴリからトピック集合を構築する。
// カテゴリがない場合はソースのデフォルトトピックを使用する。
// 正規化・重複排除のうえ上限数で切り詰める。
func (im *Importer) buildTopics(categories []string, defaults []string) []string {
	raw := categories
	if len(raw) == 0 {
		raw = defaults
	}

	seen := make(map[string]bool, len(raw))
	topics := make([]string, 0, maxTopicsPerContent)
	for _, c := range raw {
		topic := im.sanitizer.SanitizeTopic(c)
		if topic == "" || seen[topic] {
			continue
		}
		seen[topic] = true
		topics = append(topics, topic)
		if len(topics) >= maxTopicsPerContent {
			break
		}
	}
	return topics
}

// updateState はソース状態を更新し、失敗はログに留める。
// 主経路のエラーを上書きしないための補助。
func (im *Importer) updateState(ctx context.Context, source *model.Source) {
	if err := im.sourceRepo.UpdateFetchState(ctx, source); err != nil {
		im.logger.Error("ソース状態の更新に失敗しました",
			slog.String("source_id", source.ID),
			slog.String("error", err.Error()),
		)
	}
}

// DomainOf はURLからドメイン名を抽出する。小文字化しwww.接頭辞を除く。
func DomainOf(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("URLのパースに失敗しました: %w", err)
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return "", fmt.Errorf("ホストのないURLです: %s", rawURL)
	}
	return strings.TrimPrefix(host, "www."), nil
}
