package fetch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/metrics"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/progress"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/repository"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/youtube"
)

// defaultMaxCommentsPerVideo は動画1件あたりのコメント取得上限。
// 上限で打ち切られた動画はCommentsCappedが立ち、集計時に
// comment_likes_partialとして扱われる。
const defaultMaxCommentsPerVideo = 200

// CommentSource はコメントスレッドの取得元を抽象化する。
type CommentSource interface {
	FetchCommentPage(ctx context.Context, videoID, pageToken string) (*youtube.CommentPage, error)
}

// CommentFetchSummary はコメントフェッチ1バッチ分の実行結果。
type CommentFetchSummary struct {
	Videos           int
	CommentsUpserted int
	CappedVideos     int
	DisabledVideos   int
	FailedVideos     int
}

// CommentFetcher は動画単位でコメントをフェッチして永続化する。
// 進捗は動画ごとに追跡され、失敗した動画は次回バッチで再開される。
type CommentFetcher struct {
	source      CommentSource
	comments    repository.CommentRepository
	videos      repository.VideoRepository
	tracker     *progress.Tracker
	logger      *slog.Logger
	collector   metrics.MetricsCollector
	maxComments int
}

// NewCommentFetcher はCommentFetcherを生成する。maxComments<=0は既定値を使う。
func NewCommentFetcher(source CommentSource, comments repository.CommentRepository, videos repository.VideoRepository, tracker *progress.Tracker, logger *slog.Logger, collector metrics.MetricsCollector, maxComments int) *CommentFetcher {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if maxComments <= 0 {
		maxComments = defaultMaxCommentsPerVideo
	}
	return &CommentFetcher{
		source:      source,
		comments:    comments,
		videos:      videos,
		tracker:     tracker,
		logger:      logger,
		collector:   collector,
		maxComments: maxComments,
	}
}

// RunForVideos は指定された動画群のコメントを順にフェッチする。
// 個別動画の失敗はバッチ全体を止めず、サマリに記録される。
func (f *CommentFetcher) RunForVideos(ctx context.Context, videoIDs []string) (*CommentFetchSummary, error) {
	summary := &CommentFetchSummary{}
	for _, videoID := range videoIDs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Videos++
		result, err := f.fetchVideo(ctx, videoID)
		if err != nil {
			summary.FailedVideos++
			f.collector.RecordFetchFailure(string(model.TaskComments))
			f.logger.Error("コメントフェッチに失敗しました", "video_id", videoID, "error", err)
			continue
		}
		summary.CommentsUpserted += result.upserted
		if result.capped {
			summary.CappedVideos++
		}
		if result.disabled {
			summary.DisabledVideos++
		}
	}
	f.logger.Info("コメントフェッチバッチが完了しました",
		"videos", summary.Videos,
		"comments", summary.CommentsUpserted,
		"capped", summary.CappedVideos,
		"disabled", summary.DisabledVideos,
		"failed", summary.FailedVideos)
	return summary, nil
}

type commentFetchResult struct {
	upserted int
	capped   bool
	disabled bool
}

func (f *CommentFetcher) fetchVideo(ctx context.Context, videoID string) (*commentFetchResult, error) {
	p, err := f.tracker.Begin(ctx, model.TaskComments, videoID)
	if err != nil {
		return nil, err
	}

	result, err := f.fetchCommentPages(ctx, p, videoID)
	if err != nil {
		if failErr := f.tracker.Fail(ctx, p, err); failErr != nil {
			f.logger.Error("進捗の失敗記録に失敗しました", "error", failErr)
		}
		return nil, err
	}
	if err := f.tracker.Complete(ctx, p); err != nil {
		return nil, err
	}
	return result, nil
}

func (f *CommentFetcher) fetchCommentPages(ctx context.Context, p *model.FetchProgress, videoID string) (*commentFetchResult, error) {
	result := &commentFetchResult{}

	// 再開時は保存済みコメント数を起点に上限判定する。
	stats, err := f.comments.StatsByVideoID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	total := stats.Count

	cursor := p.PageCursor
	for {
		page, err := f.source.FetchCommentPage(ctx, videoID, cursor)
		if errors.Is(err, youtube.ErrCommentsDisabled) {
			// コメント無効化は正常系。0件で完了扱いにする。
			result.disabled = true
			return result, nil
		}
		if err != nil {
			return nil, err
		}

		if err := f.comments.UpsertBatch(ctx, page.Comments); err != nil {
			return nil, err
		}
		result.upserted += len(page.Comments)
		total += len(page.Comments)
		f.collector.RecordFetchPage(string(model.TaskComments))
		f.collector.RecordCommentsUpserted(len(page.Comments))

		if err := f.tracker.Checkpoint(ctx, p, page.NextPageToken); err != nil {
			return nil, err
		}

		if total >= f.maxComments {
			result.capped = page.NextPageToken != ""
			break
		}
		if page.NextPageToken == "" {
			break
		}
		cursor = page.NextPageToken
	}

	if err := f.videos.UpdateCommentsCapped(ctx, videoID, result.capped); err != nil {
		return nil, err
	}
	return result, nil
}
