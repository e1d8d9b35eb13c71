// Package preference はユーザー発見設定のドメインロジックを提供する。
package preference

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/stumble/internal/model"
	"github.com/hitoshi/stumble/internal/repository"
)

// maxBlockedDomains はブロックドメインの登録上限。
const maxBlockedDomains = 100

// Sanitizer はトピック正規化のインターフェース。
type Sanitizer interface {
	SanitizeTopic(raw string) string
}

// PreferenceService はユーザー設定のサービス層。
type PreferenceService struct {
	preferenceRepo repository.PreferenceRepository
	sanitizer      Sanitizer
}

// NewPreferenceService はPreferenceServiceの新しいインスタンスを生成する。
func NewPreferenceService(preferenceRepo repository.PreferenceRepository, sanitizer Sanitizer) *PreferenceService {
	return &PreferenceService{
		preferenceRepo: preferenceRepo,
		sanitizer:      sanitizer,
	}
}

// Get は指定ユーザーの設定を取得する。
// 未登録の場合はデフォルト設定を返す（未登録は正常系）。
func (s *PreferenceService) Get(ctx context.Context, userID string) (*model.Preference, error) {
	pref, err := s.preferenceRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("設定の取得に失敗しました: %w", err)
	}
	if pref == nil {
		return model.DefaultPreference(userID), nil
	}
	return pref, nil
}

// UpdateInput は設定更新の入力。nilのフィールドは更新対象外。
type UpdateInput struct {
	Topics         []string
	Wildness       *int
	BlockedDomains []string
}

// Update はユーザー設定を冪等に更新する。
// 範囲外のwildnessは拒否せず[0,100]にクランプする。
func (s *PreferenceService) Update(ctx context.Context, userID string, input UpdateInput) (*model.Preference, error) {
	current, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if input.Topics != nil {
		topics := s.normalizeTopics(input.Topics)
		if len(topics) > model.MaxPreferredTopics {
			return nil, model.NewInvalidRequestError(
				fmt.Sprintf("優先トピックは最大%d件です", model.MaxPreferredTopics))
		}
		current.Topics = topics
	}
	if input.Wildness != nil {
		current.Wildness = model.ClampWildness(*input.Wildness)
	}
	if input.BlockedDomains != nil {
		domains := normalizeDomains(input.BlockedDomains)
		if len(domains) > maxBlockedDomains {
			return nil, model.NewInvalidRequestError(
				fmt.Sprintf("ブロックドメインは最大%d件です", maxBlockedDomains))
		}
		current.BlockedDomains = domains
	}
	current.UpdatedAt = time.Now()

	if err := s.preferenceRepo.Upsert(ctx, current); err != nil {
		return nil, fmt.Errorf("設定の保存に失敗しました: %w", err)
	}

	return current, nil
}

// normalizeTopics はトピックをサニタイズし、順序を保ったまま重複を除く。
// 順序は優先度を表すため保持する。
func (s *PreferenceService) normalizeTopics(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	topics := make([]string, 0, len(raw))
	for _, r := range raw {
		topic := s.sanitizer.SanitizeTopic(r)
		if topic == "" || seen[topic] {
			continue
		}
		seen[topic] = true
		topics = append(topics, topic)
	}
	return topics
}

func normalizeDomains(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	domains := make([]string, 0, len(raw))
	for _, r := range raw {
		d := strings.ToLower(strings.TrimSpace(r))
		d = strings.TrimPrefix(d, "www.")
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		domains = append(domains, d)
	}
	return domains
}
