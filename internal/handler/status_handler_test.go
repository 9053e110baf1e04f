package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/metrics"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
)

// --- モック定義 ---

type mockProgressReader struct {
	latestPerTaskFn func(ctx context.Context) (map[model.TaskType]*model.FetchProgress, error)
}

func (m *mockProgressReader) LatestPerTask(ctx context.Context) (map[model.TaskType]*model.FetchProgress, error) {
	if m.latestPerTaskFn != nil {
		return m.latestPerTaskFn(ctx)
	}
	return map[model.TaskType]*model.FetchProgress{}, nil
}

type fixedCounter int

func (c fixedCounter) Count(context.Context) (int, error) { return int(c), nil }

type failingCounter struct{}

func (failingCounter) Count(context.Context) (int, error) {
	return 0, errors.New("接続エラー")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRouter(status *StatusHandler) http.Handler {
	return NewRouter(&RouterDeps{
		Logger:  testLogger(),
		Status:  status,
		Metrics: metrics.Handler(prometheus.NewRegistry()),
	})
}

// /statusがタスク進捗と件数を返すことを検証する。
func TestStatusHandler(t *testing.T) {
	updated := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	progress := &mockProgressReader{
		latestPerTaskFn: func(context.Context) (map[model.TaskType]*model.FetchProgress, error) {
			return map[model.TaskType]*model.FetchProgress{
				model.TaskVideos: {
					TaskType:  model.TaskVideos,
					TargetID:  "UC123",
					Status:    model.StatusCompleted,
					UpdatedAt: updated,
				},
				model.TaskComments: {
					TaskType:     model.TaskComments,
					TargetID:     "v9",
					Status:       model.StatusFailed,
					PageCursor:   "page5token",
					ErrorMessage: "APIエラー",
					UpdatedAt:    updated,
				},
			}, nil
		},
	}
	h := NewStatusHandler(progress, fixedCounter(120), fixedCounter(4500), fixedCounter(30), testLogger())

	w := httptest.NewRecorder()
	testRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Tasks map[string]struct {
			Status       string `json:"status"`
			TargetID     string `json:"target_id"`
			PageCursor   string `json:"page_cursor"`
			ErrorMessage string `json:"error_message"`
		} `json:"tasks"`
		Counts map[string]int `json:"counts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスのJSON解析に失敗: %v", err)
	}

	if resp.Tasks["videos"].Status != "completed" {
		t.Errorf("videos.status = %q, want completed", resp.Tasks["videos"].Status)
	}
	comments := resp.Tasks["comments"]
	if comments.Status != "failed" || comments.PageCursor != "page5token" || comments.ErrorMessage != "APIエラー" {
		t.Errorf("comments = %+v, want failed/page5token/APIエラー", comments)
	}
	if resp.Counts["videos"] != 120 || resp.Counts["comments"] != 4500 || resp.Counts["cache_entries"] != 30 {
		t.Errorf("counts = %v, want videos=120 comments=4500 cache_entries=30", resp.Counts)
	}
}

// 件数取得の失敗が500になることを検証する。
func TestStatusHandlerCountFailure(t *testing.T) {
	h := NewStatusHandler(&mockProgressReader{}, failingCounter{}, fixedCounter(0), fixedCounter(0), testLogger())

	w := httptest.NewRecorder()
	testRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// /healthが200を返すことを検証する。
func TestHealthEndpoint(t *testing.T) {
	h := NewStatusHandler(&mockProgressReader{}, fixedCounter(0), fixedCounter(0), fixedCounter(0), testLogger())

	w := httptest.NewRecorder()
	testRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスのJSON解析に失敗: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

// /metricsがPrometheus形式のレスポンスを返すことを検証する。
func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	collector.RecordVideosUpserted(3)

	h := NewStatusHandler(&mockProgressReader{}, fixedCounter(0), fixedCounter(0), fixedCounter(0), testLogger())
	router := NewRouter(&RouterDeps{
		Logger:  testLogger(),
		Status:  h,
		Metrics: metrics.Handler(reg),
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body := w.Body.String(); !strings.Contains(body, "collab_videos_upserted_total") {
		t.Errorf("メトリクス出力にcollab_videos_upserted_totalがない:\n%s", body)
	}
}
