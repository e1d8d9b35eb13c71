package interaction

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/stumble/internal/model"
)

type mockInteractionRepo struct {
	created   []*model.Interaction
	createErr error
}

func (m *mockInteractionRepo) Create(_ context.Context, interaction *model.Interaction) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, interaction)
	return nil
}

func (m *mockInteractionRepo) CountExcludedByUser(_ context.Context, _ string) (int, error) {
	return 0, nil
}

func (m *mockInteractionRepo) ListRecentWithContent(_ context.Context, _ string, _ int) ([]model.InteractionWithContent, error) {
	return nil, nil
}

func (m *mockInteractionRepo) BatchGetEngagementStats(_ context.Context, _ []string) (map[string]model.EngagementStat, error) {
	return nil, nil
}

func (m *mockInteractionRepo) ListWindowStats(_ context.Context, _ time.Time) ([]model.WindowInteractionStat, error) {
	return nil, nil
}

type mockContentRepo struct {
	byID        map[string]*model.Content
	applied     []model.InteractionAction
	applyErr    error
	appliedFail int
}

func newMockContentRepo() *mockContentRepo {
	return &mockContentRepo{byID: make(map[string]*model.Content)}
}

func (m *mockContentRepo) FindByID(_ context.Context, id string) (*model.Content, error) {
	return m.byID[id], nil
}

func (m *mockContentRepo) FindByURL(_ context.Context, _ string) (*model.Content, error) {
	return nil, nil
}

func (m *mockContentRepo) QueryCandidates(_ context.Context, _ model.CandidateQuery) ([]model.Content, error) {
	return nil, nil
}

func (m *mockContentRepo) ListByTopicOverlap(_ context.Context, _ []string, _ string, _ int) ([]model.Content, error) {
	return nil, nil
}

func (m *mockContentRepo) Create(_ context.Context, _ *model.Content) error {
	return nil
}

func (m *mockContentRepo) ApplyInteraction(_ context.Context, _ string, action model.InteractionAction) error {
	if m.applyErr != nil {
		m.appliedFail++
		return m.applyErr
	}
	m.applied = append(m.applied, action)
	return nil
}

type mockCollector struct {
	interactions map[string]int
}

func newMockCollector() *mockCollector {
	return &mockCollector{interactions: make(map[string]int)}
}

func (m *mockCollector) RecordDiscovery(_ bool) {}

func (m *mockCollector) RecordDiscoveryLatency(_ time.Duration) {}

func (m *mockCollector) RecordPoolSize(_ int) {}

func (m *mockCollector) RecordPoolExhaustion() {}

func (m *mockCollector) RecordEmptyPool() {}

func (m *mockCollector) RecordInteraction(action string) {
	m.interactions[action]++
}

func (m *mockCollector) RecordTrendingRun(_ bool) {}

func (m *mockCollector) RecordIngestedContents(_ int) {}

func (m *mockCollector) RecordIngestFailure() {}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(interactionRepo *mockInteractionRepo, contentRepo *mockContentRepo, collector *mockCollector) *InteractionService {
	return NewInteractionService(interactionRepo, contentRepo, testLogger(), collector)
}

func TestRecord(t *testing.T) {
	interactionRepo := &mockInteractionRepo{}
	contentRepo := newMockContentRepo()
	contentRepo.byID["c-1"] = &model.Content{ID: "c-1"}
	collector := newMockCollector()
	service := newTestService(interactionRepo, contentRepo, collector)

	duration := 120
	record, err := service.Record(context.Background(), RecordInput{
		UserID:          "user-1",
		ContentID:       "c-1",
		Action:          model.ActionLike,
		DurationSeconds: &duration,
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if record.ID == "" {
		t.Error("ID is empty")
	}
	if record.Action != model.ActionLike {
		t.Errorf("Action = %v, want like", record.Action)
	}
	if record.DurationSeconds == nil || *record.DurationSeconds != 120 {
		t.Errorf("DurationSeconds = %v, want 120", record.DurationSeconds)
	}
	if len(interactionRepo.created) != 1 {
		t.Errorf("created count = %d, want 1", len(interactionRepo.created))
	}
	// 人気カウンタの反映とメトリクス
	if len(contentRepo.applied) != 1 || contentRepo.applied[0] != model.ActionLike {
		t.Errorf("applied = %v, want [like]", contentRepo.applied)
	}
	if collector.interactions["like"] != 1 {
		t.Errorf("interaction metric = %d, want 1", collector.interactions["like"])
	}
}

func TestRecord_InvalidAction(t *testing.T) {
	service := newTestService(&mockInteractionRepo{}, newMockContentRepo(), newMockCollector())

	_, err := service.Record(context.Background(), RecordInput{
		UserID:    "user-1",
		ContentID: "c-1",
		Action:    "upvote",
	})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidAction {
		t.Errorf("error = %v, want INVALID_ACTION", err)
	}
}

func TestRecord_EmptyContentID(t *testing.T) {
	service := newTestService(&mockInteractionRepo{}, newMockContentRepo(), newMockCollector())

	_, err := service.Record(context.Background(), RecordInput{
		UserID: "user-1",
		Action: model.ActionView,
	})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidRequest {
		t.Errorf("error = %v, want INVALID_REQUEST", err)
	}
}

func TestRecord_DurationOutOfRange(t *testing.T) {
	contentRepo := newMockContentRepo()
	contentRepo.byID["c-1"] = &model.Content{ID: "c-1"}
	service := newTestService(&mockInteractionRepo{}, contentRepo, newMockCollector())

	for _, duration := range []int{-1, maxDurationSeconds + 1} {
		d := duration
		_, err := service.Record(context.Background(), RecordInput{
			UserID:          "user-1",
			ContentID:       "c-1",
			Action:          model.ActionView,
			DurationSeconds: &d,
		})
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidRequest {
			t.Errorf("duration %d: error = %v, want INVALID_REQUEST", duration, err)
		}
	}
}

func TestRecord_ContentNotFound(t *testing.T) {
	service := newTestService(&mockInteractionRepo{}, newMockContentRepo(), newMockCollector())

	_, err := service.Record(context.Background(), RecordInput{
		UserID:    "user-1",
		ContentID: "missing",
		Action:    model.ActionLike,
	})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeContentNotFound {
		t.Errorf("error = %v, want CONTENT_NOT_FOUND", err)
	}
}

func TestRecord_CounterFailureDoesNotFailRecord(t *testing.T) {
	interactionRepo := &mockInteractionRepo{}
	contentRepo := newMockContentRepo()
	contentRepo.byID["c-1"] = &model.Content{ID: "c-1"}
	contentRepo.applyErr = errors.New("デッドロック")
	service := newTestService(interactionRepo, contentRepo, newMockCollector())

	// カウンタ反映の失敗は記録自体を失敗させない
	_, err := service.Record(context.Background(), RecordInput{
		UserID:    "user-1",
		ContentID: "c-1",
		Action:    model.ActionSave,
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if len(interactionRepo.created) != 1 {
		t.Errorf("created count = %d, want 1", len(interactionRepo.created))
	}
}

func TestRecord_CreateFailure(t *testing.T) {
	interactionRepo := &mockInteractionRepo{createErr: errors.New("接続エラー")}
	contentRepo := newMockContentRepo()
	contentRepo.byID["c-1"] = &model.Content{ID: "c-1"}
	service := newTestService(interactionRepo, contentRepo, newMockCollector())

	if _, err := service.Record(context.Background(), RecordInput{
		UserID:    "user-1",
		ContentID: "c-1",
		Action:    model.ActionLike,
	}); err == nil {
		t.Error("Record() error = nil, want error")
	}
	if len(contentRepo.applied) != 0 {
		t.Errorf("applied = %v, want empty (記録失敗時はカウンタに触れない)", contentRepo.applied)
	}
}
