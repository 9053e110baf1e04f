package fetch

import (
	"context"
	"errors"
	"testing"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/metrics"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/repository"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/youtube"
)

func newCommentFetcher(source CommentSource, comments repository.CommentRepository, videos repository.VideoRepository, progressRepo repository.ProgressRepository, maxComments int) *CommentFetcher {
	return NewCommentFetcher(source, comments, videos, newTestTracker(progressRepo), testLogger(), metrics.Nop{}, maxComments)
}

// 上限未満の動画が全ページ保存され、打ち切りフラグが立たないことを検証する。
func TestCommentFetcherUnderCap(t *testing.T) {
	source := &mockCommentSource{
		pages: map[string]*youtube.CommentPage{
			"v1/":   commentPage("v1", 80, "p2"),
			"v1/p2": commentPage("v1", 50, ""),
		},
	}
	commentRepo := &mockCommentRepo{}
	videoRepo := &mockVideoRepo{}
	progressRepo := &memProgressRepo{}
	f := newCommentFetcher(source, commentRepo, videoRepo, progressRepo, 200)

	summary, err := f.RunForVideos(context.Background(), []string{"v1"})
	if err != nil {
		t.Fatalf("RunForVideos() error = %v", err)
	}
	if summary.CommentsUpserted != 130 {
		t.Errorf("CommentsUpserted = %d, want 130", summary.CommentsUpserted)
	}
	if summary.CappedVideos != 0 {
		t.Errorf("CappedVideos = %d, want 0", summary.CappedVideos)
	}
	if capped, ok := videoRepo.cappedCalls["v1"]; !ok || capped {
		t.Errorf("cappedフラグ = %v (記録=%v), want false", capped, ok)
	}
	if p := progressRepo.latestRow(model.TaskComments, "v1"); p == nil || p.Status != model.StatusCompleted {
		t.Errorf("進捗状態 = %+v, want completed", p)
	}
}

// 上限到達かつ続きページが残っている場合に打ち切りフラグが立つことを検証する。
func TestCommentFetcherCapWithRemainingPages(t *testing.T) {
	source := &mockCommentSource{
		pages: map[string]*youtube.CommentPage{
			"v1/":   commentPage("v1", 100, "p2"),
			"v1/p2": commentPage("v1", 100, "p3"),
		},
	}
	commentRepo := &mockCommentRepo{}
	videoRepo := &mockVideoRepo{}
	f := newCommentFetcher(source, commentRepo, videoRepo, &memProgressRepo{}, 200)

	summary, err := f.RunForVideos(context.Background(), []string{"v1"})
	if err != nil {
		t.Fatalf("RunForVideos() error = %v", err)
	}
	if summary.CommentsUpserted != 200 {
		t.Errorf("CommentsUpserted = %d, want 200", summary.CommentsUpserted)
	}
	if summary.CappedVideos != 1 {
		t.Errorf("CappedVideos = %d, want 1", summary.CappedVideos)
	}
	if capped := videoRepo.cappedCalls["v1"]; !capped {
		t.Error("cappedフラグ = false, want true")
	}
}

// ちょうど上限で最終ページに達した場合は打ち切り扱いにならないことを検証する。
func TestCommentFetcherExactCapAtLastPage(t *testing.T) {
	source := &mockCommentSource{
		pages: map[string]*youtube.CommentPage{
			"v1/":   commentPage("v1", 100, "p2"),
			"v1/p2": commentPage("v1", 100, ""),
		},
	}
	videoRepo := &mockVideoRepo{}
	f := newCommentFetcher(source, &mockCommentRepo{}, videoRepo, &memProgressRepo{}, 200)

	summary, err := f.RunForVideos(context.Background(), []string{"v1"})
	if err != nil {
		t.Fatalf("RunForVideos() error = %v", err)
	}
	if summary.CappedVideos != 0 {
		t.Errorf("CappedVideos = %d, want 0", summary.CappedVideos)
	}
	if capped := videoRepo.cappedCalls["v1"]; capped {
		t.Error("cappedフラグ = true, want false")
	}
}

// コメント無効化の動画が0件で正常完了することを検証する。
func TestCommentFetcherCommentsDisabled(t *testing.T) {
	source := &mockCommentSource{
		errs: map[string]error{"v1/": youtube.ErrCommentsDisabled},
	}
	progressRepo := &memProgressRepo{}
	f := newCommentFetcher(source, &mockCommentRepo{}, &mockVideoRepo{}, progressRepo, 200)

	summary, err := f.RunForVideos(context.Background(), []string{"v1"})
	if err != nil {
		t.Fatalf("RunForVideos() error = %v", err)
	}
	if summary.DisabledVideos != 1 {
		t.Errorf("DisabledVideos = %d, want 1", summary.DisabledVideos)
	}
	if summary.FailedVideos != 0 {
		t.Errorf("FailedVideos = %d, want 0", summary.FailedVideos)
	}
	if p := progressRepo.latestRow(model.TaskComments, "v1"); p == nil || p.Status != model.StatusCompleted {
		t.Errorf("進捗状態 = %+v, want completed", p)
	}
}

// 1動画の失敗がバッチ全体を止めないことを検証する。
func TestCommentFetcherIsolatesVideoFailure(t *testing.T) {
	source := &mockCommentSource{
		pages: map[string]*youtube.CommentPage{
			"v-ok/": commentPage("v-ok", 10, ""),
		},
		errs: map[string]error{"v-fail/": errors.New("APIエラー")},
	}
	progressRepo := &memProgressRepo{}
	f := newCommentFetcher(source, &mockCommentRepo{}, &mockVideoRepo{}, progressRepo, 200)

	summary, err := f.RunForVideos(context.Background(), []string{"v-fail", "v-ok"})
	if err != nil {
		t.Fatalf("RunForVideos() error = %v", err)
	}
	if summary.FailedVideos != 1 {
		t.Errorf("FailedVideos = %d, want 1", summary.FailedVideos)
	}
	if summary.CommentsUpserted != 10 {
		t.Errorf("CommentsUpserted = %d, want 10", summary.CommentsUpserted)
	}
	if p := progressRepo.latestRow(model.TaskComments, "v-fail"); p == nil || p.Status != model.StatusFailed {
		t.Errorf("v-failの進捗状態 = %+v, want failed", p)
	}
	if p := progressRepo.latestRow(model.TaskComments, "v-ok"); p == nil || p.Status != model.StatusCompleted {
		t.Errorf("v-okの進捗状態 = %+v, want completed", p)
	}
}

// 再開時に保存済みコメント数を起点として上限判定することを検証する。
func TestCommentFetcherResumeCountsExistingComments(t *testing.T) {
	source := &mockCommentSource{
		pages: map[string]*youtube.CommentPage{
			"v1/": commentPage("v1", 100, "p2"),
		},
	}
	commentRepo := &mockCommentRepo{
		statsFn: func(context.Context, string) (*repository.CommentStats, error) {
			return &repository.CommentStats{Count: 150}, nil
		},
	}
	videoRepo := &mockVideoRepo{}
	f := newCommentFetcher(source, commentRepo, videoRepo, &memProgressRepo{}, 200)

	summary, err := f.RunForVideos(context.Background(), []string{"v1"})
	if err != nil {
		t.Fatalf("RunForVideos() error = %v", err)
	}
	// 保存済み150件 + 新規100件で上限200件を超過
	if summary.CappedVideos != 1 {
		t.Errorf("CappedVideos = %d, want 1", summary.CappedVideos)
	}
	if capped := videoRepo.cappedCalls["v1"]; !capped {
		t.Error("cappedフラグ = false, want true")
	}
}
