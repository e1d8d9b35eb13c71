// Package content はコンテンツ投稿・取得のドメインロジックを提供する。
package content

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/stumble/internal/ingest"
	"github.com/hitoshi/stumble/internal/model"
	"github.com/hitoshi/stumble/internal/repository"
)

// maxTopicsPerContent はコンテンツ1件あたりのトピック数上限。
const maxTopicsPerContent = 5

// submittedQualityScore は手動投稿コンテンツの初期品質スコア。
// 後段の品質再評価プロセスが更新するまでの中立値。
const submittedQualityScore = 0.5

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
}

// Sanitizer はテキストサニタイズのインターフェース。
type Sanitizer interface {
	SanitizeText(raw string) string
	SanitizeTopic(raw string) string
}

// SubmitInput はコンテンツ投稿の入力。
type SubmitInput struct {
	URL         string
	Title       string
	Description string
	Topics      []string
	PublishedAt *time.Time
	ImageURL    string
}

// ContentService はコンテンツ投稿・取得のサービス層。
// URL検証 → サニタイズ → 重複チェック → 保存のフローを統括する。
type ContentService struct {
	contentRepo repository.ContentRepository
	ssrfGuard   SSRFValidator
	sanitizer   Sanitizer
}

// NewContentService はContentServiceの新しいインスタンスを生成する。
func NewContentService(
	contentRepo repository.ContentRepository,
	ssrfGuard SSRFValidator,
	sanitizer Sanitizer,
) *ContentService {
	return &ContentService{
		contentRepo: contentRepo,
		ssrfGuard:   ssrfGuard,
		sanitizer:   sanitizer,
	}
}

// Submit は新規コンテンツを投稿する。
// フロー: URL検証（SSRF含む） → 重複チェック → サニタイズ → 保存
func (s *ContentService) Submit(ctx context.Context, input SubmitInput) (*model.Content, error) {
	if input.URL == "" {
		return nil, model.NewInvalidURLError("URLが空です")
	}
	if err := s.ssrfGuard.ValidateURL(input.URL); err != nil {
		return nil, model.NewSSRFBlockedError()
	}

	domain, err := ingest.DomainOf(input.URL)
	if err != nil {
		return nil, model.NewInvalidURLError(err.Error())
	}

	existing, err := s.contentRepo.FindByURL(ctx, input.URL)
	if err != nil {
		return nil, fmt.Errorf("コンテンツの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateURLError(input.URL)
	}

	title := s.sanitizer.SanitizeText(input.Title)
	if title == "" {
		title = input.URL
	}

	content := &model.Content{
		ID:           uuid.New().String(),
		URL:          input.URL,
		Domain:       domain,
		Title:        title,
		Description:  s.sanitizer.SanitizeText(input.Description),
		Topics:       s.buildTopics(input.Topics),
		QualityScore: submittedQualityScore,
		PublishedAt:  input.PublishedAt,
		ImageURL:     input.ImageURL,
		IsActive:     true,
	}

	if err := s.contentRepo.Create(ctx, content); err != nil {
		return nil, fmt.Errorf("コンテンツの作成に失敗しました: %w", err)
	}

	return content, nil
}

// Get は指定IDのコンテンツを取得する。
func (s *ContentService) Get(ctx context.Context, contentID string) (*model.Content, error) {
	content, err := s.contentRepo.FindByID(ctx, contentID)
	if err != nil {
		return nil, fmt.Errorf("コンテンツの取得に失敗しました: %w", err)
	}
	if content == nil {
		return nil, model.NewContentNotFoundError(contentID)
	}
	return content, nil
}

// buildTopics はトピックを正規化・重複排除し、上限数で切り詰める。
func (s *ContentService) buildTopics(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	topics := make([]string, 0, maxTopicsPerContent)
	for _, r := range raw {
		topic := s.sanitizer.SanitizeTopic(r)
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
