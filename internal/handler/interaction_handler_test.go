package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/stumble/internal/interaction"
	"github.com/hitoshi/stumble/internal/model"
)

// mockInteractionService はテスト用のインタラクションサービスモック。
type mockInteractionService struct {
	result    *model.Interaction
	err       error
	lastInput interaction.RecordInput
}

func (m *mockInteractionService) Record(_ context.Context, input interaction.RecordInput) (*model.Interaction, error) {
	m.lastInput = input
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func TestInteractionHandler_Record(t *testing.T) {
	service := &mockInteractionService{
		result: &model.Interaction{
			ID:        "i-1",
			ContentID: "c-1",
			Action:    model.ActionLike,
			CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
	}
	handler := NewInteractionHandler(service)

	body := `{"content_id":"c-1","action":"like","duration_seconds":45}`
	req := identifiedRequest(http.MethodPost, "/api/interactions", body)
	rec := httptest.NewRecorder()
	handler.Record(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	var resp interactionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.ID != "i-1" {
		t.Errorf("ID = %q, want i-1", resp.ID)
	}
	if resp.Action != "like" {
		t.Errorf("Action = %q, want like", resp.Action)
	}
	if resp.CreatedAt != "2025-06-01T12:00:00Z" {
		t.Errorf("CreatedAt = %q, want RFC3339", resp.CreatedAt)
	}

	if service.lastInput.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", service.lastInput.UserID)
	}
	if service.lastInput.DurationSeconds == nil || *service.lastInput.DurationSeconds != 45 {
		t.Errorf("DurationSeconds = %v, want 45", service.lastInput.DurationSeconds)
	}
}

func TestInteractionHandler_Record_MissingUserID(t *testing.T) {
	handler := NewInteractionHandler(&mockInteractionService{})

	req := httptest.NewRequest(http.MethodPost, "/api/interactions", nil)
	rec := httptest.NewRecorder()
	handler.Record(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestInteractionHandler_Record_InvalidBody(t *testing.T) {
	handler := NewInteractionHandler(&mockInteractionService{})

	req := identifiedRequest(http.MethodPost, "/api/interactions", "{bad")
	rec := httptest.NewRecorder()
	handler.Record(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestInteractionHandler_Record_InvalidAction(t *testing.T) {
	service := &mockInteractionService{err: model.NewInvalidActionError("upvote")}
	handler := NewInteractionHandler(service)

	req := identifiedRequest(http.MethodPost, "/api/interactions", `{"content_id":"c-1","action":"upvote"}`)
	rec := httptest.NewRecorder()
	handler.Record(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var resp apiErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if resp.Code != model.ErrCodeInvalidAction {
		t.Errorf("code = %q, want INVALID_ACTION", resp.Code)
	}
}

func TestInteractionHandler_Record_ContentNotFound(t *testing.T) {
	service := &mockInteractionService{err: model.NewContentNotFoundError("missing")}
	handler := NewInteractionHandler(service)

	req := identifiedRequest(http.MethodPost, "/api/interactions", `{"content_id":"missing","action":"view"}`)
	rec := httptest.NewRecorder()
	handler.Record(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
