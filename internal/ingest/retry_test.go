package ingest

import (
	"testing"
	"time"

	"github.com/hitoshi/stumble/internal/model"
)

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		statusCode int
		want       FetchResult
	}{
		{200, FetchResultOK},
		{304, FetchResultNotModified},
		{404, FetchResultStop},
		{410, FetchResultStop},
		{401, FetchResultStop},
		{403, FetchResultStop},
		{429, FetchResultBackoff},
		{500, FetchResultBackoff},
		{503, FetchResultBackoff},
		{302, FetchResultUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyHTTPStatus(tt.statusCode); got != tt.want {
			t.Errorf("ClassifyHTTPStatus(%d) = %v, want %v", tt.statusCode, got, tt.want)
		}
	}
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		errors int
		want   time.Duration
	}{
		{0, 30 * time.Minute},
		{1, time.Hour},
		{2, 2 * time.Hour},
		{3, 4 * time.Hour},
		{4, 8 * time.Hour},
		{5, 12 * time.Hour}, // 16時間ではなく上限の12時間
		{100, 12 * time.Hour},
	}
	for _, tt := range tests {
		if got := CalculateBackoff(tt.errors); got != tt.want {
			t.Errorf("CalculateBackoff(%d) = %v, want %v", tt.errors, got, tt.want)
		}
	}
}

func TestApplyStopSource(t *testing.T) {
	source := &model.Source{FetchStatus: model.FetchStatusActive}
	ApplyStopSource(source, "404 Not Found")

	if source.FetchStatus != model.FetchStatusStopped {
		t.Errorf("FetchStatus = %v, want stopped", source.FetchStatus)
	}
	if source.ErrorMessage != "404 Not Found" {
		t.Errorf("ErrorMessage = %q, want reason", source.ErrorMessage)
	}
}

func TestApplyBackoff(t *testing.T) {
	source := &model.Source{FetchStatus: model.FetchStatusActive}

	before := time.Now()
	ApplyBackoff(source, "一時的なエラー")

	if source.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", source.ConsecutiveErrors)
	}
	// 初回は30分後
	want := before.Add(30 * time.Minute)
	if source.NextFetchAt.Before(want.Add(-time.Minute)) || source.NextFetchAt.After(want.Add(time.Minute)) {
		t.Errorf("NextFetchAt = %v, want ~%v", source.NextFetchAt, want)
	}
	// バックオフではフェッチは停止しない
	if source.FetchStatus != model.FetchStatusActive {
		t.Errorf("FetchStatus = %v, want active", source.FetchStatus)
	}
}

func TestApplySuccess_ResetsErrorState(t *testing.T) {
	source := &model.Source{
		ConsecutiveErrors: 5,
		ErrorMessage:      "以前のエラー",
	}

	before := time.Now()
	ApplySuccess(source, time.Hour)

	if source.ConsecutiveErrors != 0 {
		t.Errorf("ConsecutiveErrors = %d, want 0", source.ConsecutiveErrors)
	}
	if source.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want empty", source.ErrorMessage)
	}
	want := before.Add(time.Hour)
	if source.NextFetchAt.Before(want.Add(-time.Minute)) || source.NextFetchAt.After(want.Add(time.Minute)) {
		t.Errorf("NextFetchAt = %v, want ~%v", source.NextFetchAt, want)
	}
}

func TestApplyParseFailure_StopsAtThreshold(t *testing.T) {
	source := &model.Source{FetchStatus: model.FetchStatusActive}

	for i := 0; i < 9; i++ {
		ApplyParseFailure(source, "不正なXML")
	}
	if source.FetchStatus != model.FetchStatusActive {
		t.Fatalf("FetchStatus after 9 failures = %v, want active", source.FetchStatus)
	}

	ApplyParseFailure(source, "不正なXML")
	if source.FetchStatus != model.FetchStatusStopped {
		t.Errorf("FetchStatus after 10 failures = %v, want stopped", source.FetchStatus)
	}
	if source.ConsecutiveErrors != 10 {
		t.Errorf("ConsecutiveErrors = %d, want 10", source.ConsecutiveErrors)
	}
}
