// Package handler はserveモードのHTTPエンドポイントを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
)

// ProgressReader はタスク種別ごとの最新進捗の読み取りを抽象化する。
type ProgressReader interface {
	LatestPerTask(ctx context.Context) (map[model.TaskType]*model.FetchProgress, error)
}

// Counter はテーブルの件数取得を抽象化する。
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// StatusHandler はパイプラインの進捗と保存件数を返すハンドラー。
type StatusHandler struct {
	progress ProgressReader
	videos   Counter
	comments Counter
	cache    Counter
	logger   *slog.Logger
}

// NewStatusHandler はStatusHandlerを生成する。
func NewStatusHandler(progress ProgressReader, videos, comments, cache Counter, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		progress: progress,
		videos:   videos,
		comments: comments,
		cache:    cache,
		logger:   logger,
	}
}

// taskStatus はレスポンスに載せるタスク1種別分の進捗。
type taskStatus struct {
	Status       model.ProgressStatus `json:"status"`
	TargetID     string               `json:"target_id,omitempty"`
	PageCursor   string               `json:"page_cursor,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// statusResponse は/statusのレスポンスボディ。
type statusResponse struct {
	Tasks  map[string]taskStatus `json:"tasks"`
	Counts map[string]int        `json:"counts"`
}

// Status はGET /statusを処理する。
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	latest, err := h.progress.LatestPerTask(ctx)
	if err != nil {
		h.logger.Error("進捗の取得に失敗しました", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := statusResponse{
		Tasks:  make(map[string]taskStatus, len(latest)),
		Counts: make(map[string]int, 3),
	}
	for taskType, p := range latest {
		resp.Tasks[string(taskType)] = taskStatus{
			Status:       p.Status,
			TargetID:     p.TargetID,
			PageCursor:   p.PageCursor,
			ErrorMessage: p.ErrorMessage,
			UpdatedAt:    p.UpdatedAt,
		}
	}

	counts := map[string]Counter{
		"videos":        h.videos,
		"comments":      h.comments,
		"cache_entries": h.cache,
	}
	for name, counter := range counts {
		n, err := counter.Count(ctx)
		if err != nil {
			h.logger.Error("件数の取得に失敗しました", "table", name, "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		resp.Counts[name] = n
	}

	writeJSON(w, http.StatusOK, resp)
}

// Health はGET /healthを処理する。プロセス生存確認のみで依存先は見ない。
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
