package fetch

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/progress"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/repository"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/youtube"
)

// --- モック定義 ---

// memProgressRepo は進捗行をメモリ上に保持するテスト用リポジトリ。
type memProgressRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   []*model.FetchProgress
}

func (r *memProgressRepo) FindLatest(_ context.Context, taskType model.TaskType, targetID string) (*model.FetchProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.rows) - 1; i >= 0; i-- {
		if r.rows[i].TaskType == taskType && r.rows[i].TargetID == targetID {
			cp := *r.rows[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memProgressRepo) Create(_ context.Context, p *model.FetchProgress) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.Status == model.StatusInProgress {
		for _, row := range r.rows {
			if row.TaskType == p.TaskType && row.TargetID == p.TargetID && row.Status == model.StatusInProgress {
				return 0, model.NewConcurrentFetchError(p.TaskType, p.TargetID)
			}
		}
	}
	r.nextID++
	cp := *p
	cp.ID = r.nextID
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = time.Now()
	r.rows = append(r.rows, &cp)
	return cp.ID, nil
}

func (r *memProgressRepo) Update(_ context.Context, p *model.FetchProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, row := range r.rows {
		if row.ID == p.ID {
			cp := *p
			cp.UpdatedAt = time.Now()
			r.rows[i] = &cp
			return nil
		}
	}
	return model.ErrStorageIntegrity
}

func (r *memProgressRepo) ListByStatus(_ context.Context, taskType model.TaskType, statuses []model.ProgressStatus) ([]*model.FetchProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.FetchProgress
	for _, row := range r.rows {
		if row.TaskType != taskType {
			continue
		}
		for _, s := range statuses {
			if row.Status == s {
				cp := *row
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

func (r *memProgressRepo) LatestPerTask(_ context.Context) (map[model.TaskType]*model.FetchProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[model.TaskType]*model.FetchProgress)
	for _, row := range r.rows {
		cp := *row
		out[row.TaskType] = &cp
	}
	return out, nil
}

func (r *memProgressRepo) DeleteCompletedBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

// latestRow は検証用に最新の進捗行を返す。
func (r *memProgressRepo) latestRow(taskType model.TaskType, targetID string) *model.FetchProgress {
	p, _ := r.FindLatest(context.Background(), taskType, targetID)
	return p
}

// mockVideoRepo は関数フィールドで挙動を差し替えられる動画リポジトリ。
type mockVideoRepo struct {
	upsertFn             func(ctx context.Context, video *model.Video) error
	latestPublishedAtFn  func(ctx context.Context) (time.Time, error)
	updateCommentsCapped func(ctx context.Context, videoID string, capped bool) error
	mu                   sync.Mutex
	upserted             []*model.Video
	cappedCalls          map[string]bool
}

func (m *mockVideoRepo) FindByID(context.Context, string) (*model.Video, error) { return nil, nil }

func (m *mockVideoRepo) Upsert(ctx context.Context, video *model.Video) error {
	if m.upsertFn != nil {
		if err := m.upsertFn(ctx, video); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserted = append(m.upserted, video)
	return nil
}

func (m *mockVideoRepo) UpdateClassification(context.Context, string, *model.ClassificationResult) error {
	return nil
}

func (m *mockVideoRepo) UpdateCommentsCapped(ctx context.Context, videoID string, capped bool) error {
	if m.updateCommentsCapped != nil {
		return m.updateCommentsCapped(ctx, videoID, capped)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cappedCalls == nil {
		m.cappedCalls = make(map[string]bool)
	}
	m.cappedCalls[videoID] = capped
	return nil
}

func (m *mockVideoRepo) ListUnclassified(context.Context) ([]*model.Video, error) { return nil, nil }
func (m *mockVideoRepo) ListAll(context.Context, int) ([]*model.Video, error)     { return nil, nil }
func (m *mockVideoRepo) ListCollabsInRange(context.Context, time.Time, time.Time) ([]*model.Video, error) {
	return nil, nil
}

func (m *mockVideoRepo) LatestPublishedAt(ctx context.Context) (time.Time, error) {
	if m.latestPublishedAtFn != nil {
		return m.latestPublishedAtFn(ctx)
	}
	return time.Time{}, nil
}

func (m *mockVideoRepo) Count(context.Context) (int, error) { return 0, nil }

// mockCommentRepo はコメントの一括保存を記録するリポジトリ。
type mockCommentRepo struct {
	statsFn  func(ctx context.Context, videoID string) (*repository.CommentStats, error)
	mu       sync.Mutex
	upserted []*model.Comment
}

func (m *mockCommentRepo) UpsertBatch(_ context.Context, comments []*model.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserted = append(m.upserted, comments...)
	return nil
}

func (m *mockCommentRepo) ListByVideoID(context.Context, string) ([]*model.Comment, error) {
	return nil, nil
}

func (m *mockCommentRepo) StatsByVideoID(ctx context.Context, videoID string) (*repository.CommentStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx, videoID)
	}
	return &repository.CommentStats{}, nil
}

func (m *mockCommentRepo) Count(context.Context) (int, error) { return 0, nil }

// mockVideoSource はページ列を順に返す動画取得元。
type mockVideoSource struct {
	channel      *youtube.Channel
	pages        map[string]*youtube.VideoPage
	videosByID   map[string]*model.Video
	mu           sync.Mutex
	listedTokens []string
}

func (s *mockVideoSource) ResolveChannel(context.Context, string) (*youtube.Channel, error) {
	return s.channel, nil
}

func (s *mockVideoSource) ListUploads(_ context.Context, _ string, pageToken string) (*youtube.VideoPage, error) {
	s.mu.Lock()
	s.listedTokens = append(s.listedTokens, pageToken)
	s.mu.Unlock()
	page, ok := s.pages[pageToken]
	if !ok {
		return &youtube.VideoPage{}, nil
	}
	return page, nil
}

func (s *mockVideoSource) FetchVideos(_ context.Context, videoIDs []string) ([]*model.Video, error) {
	out := make([]*model.Video, 0, len(videoIDs))
	for _, id := range videoIDs {
		if v, ok := s.videosByID[id]; ok {
			cp := *v
			out = append(out, &cp)
		} else {
			out = append(out, &model.Video{VideoID: id, Title: "video " + id, PublishedAt: time.Now()})
		}
	}
	return out, nil
}

// mockCommentSource は動画ID+トークンをキーにページを返すコメント取得元。
type mockCommentSource struct {
	pages map[string]*youtube.CommentPage
	errs  map[string]error
}

func (s *mockCommentSource) FetchCommentPage(_ context.Context, videoID, pageToken string) (*youtube.CommentPage, error) {
	key := videoID + "/" + pageToken
	if err, ok := s.errs[key]; ok {
		return nil, err
	}
	if page, ok := s.pages[key]; ok {
		return page, nil
	}
	return &youtube.CommentPage{}, nil
}

// mockProbe は固定の新着判定を返すプローブ。
type mockProbe struct {
	hasNew bool
	err    error
	calls  int
}

func (p *mockProbe) HasNewerThan(context.Context, string, time.Time) (bool, error) {
	p.calls++
	return p.hasNew, p.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTracker(repo repository.ProgressRepository) *progress.Tracker {
	return progress.NewTracker(repo, testLogger())
}

func commentPage(videoID string, n int, next string) *youtube.CommentPage {
	comments := make([]*model.Comment, n)
	for i := range comments {
		comments[i] = &model.Comment{CommentID: videoID + "-c", VideoID: videoID}
	}
	return &youtube.CommentPage{Comments: comments, NextPageToken: next}
}
