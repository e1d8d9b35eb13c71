package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/stumble/internal/model"
	"github.com/hitoshi/stumble/internal/repository"
)

// maxDefaultTopics はソースに登録できるデフォルトトピック数の上限。
const maxDefaultTopics = 5

// Registrar は取り込みソースの登録を行う。
// フェッチ自体はスケジューラの責務であり、登録時は検証と保存のみを行う。
type Registrar struct {
	sourceRepo repository.SourceRepository
	ssrfGuard  SSRFValidator
	sanitizer  Sanitizer
}

// NewRegistrar はRegistrarの新しいインスタンスを生成する。
func NewRegistrar(sourceRepo repository.SourceRepository, ssrfGuard SSRFValidator, sanitizer Sanitizer) *Registrar {
	return &Registrar{
		sourceRepo: sourceRepo,
		ssrfGuard:  ssrfGuard,
		sanitizer:  sanitizer,
	}
}

// RegisterInput はソース登録の入力。
type RegisterInput struct {
	FeedURL       string
	SiteURL       string
	Title         string
	DefaultTopics []string
}

// Register は新規ソースを登録する。
// フロー: URL検証（SSRF含む） → 重複チェック → 保存
// 登録直後のソースは次のスケジューラサイクルでフェッチ対象になる。
func (r *Registrar) Register(ctx context.Context, input RegisterInput) (*model.Source, error) {
	if input.FeedURL == "" {
		return nil, model.NewInvalidURLError("フィードURLが空です")
	}
	if err := r.ssrfGuard.ValidateURL(input.FeedURL); err != nil {
		return nil, model.NewSSRFBlockedError()
	}

	existing, err := r.sourceRepo.FindByFeedURL(ctx, input.FeedURL)
	if err != nil {
		return nil, fmt.Errorf("ソースの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateURLError(input.FeedURL)
	}

	topics := make([]string, 0, maxDefaultTopics)
	seen := make(map[string]bool, len(input.DefaultTopics))
	for _, raw := range input.DefaultTopics {
		topic := r.sanitizer.SanitizeTopic(raw)
		if topic == "" || seen[topic] {
			continue
		}
		seen[topic] = true
		topics = append(topics, topic)
		if len(topics) >= maxDefaultTopics {
			break
		}
	}

	source := &model.Source{
		ID:            uuid.New().String(),
		FeedURL:       input.FeedURL,
		SiteURL:       input.SiteURL,
		Title:         r.sanitizer.SanitizeText(input.Title),
		DefaultTopics: topics,
		FetchStatus:   model.FetchStatusActive,
		NextFetchAt:   time.Now(),
	}

	if err := r.sourceRepo.Create(ctx, source); err != nil {
		return nil, fmt.Errorf("ソースの作成に失敗しました: %w", err)
	}

	return source, nil
}
