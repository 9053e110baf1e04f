// Package fetch はYouTubeデータの再開可能なフェッチ処理を実装する。
// 各ページの永続化後にカーソルをチェックポイントするため、
// 中断された実行は次回起動時に続きから再開できる。
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/metrics"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/progress"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/repository"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/youtube"
)

// VideoSource はチャンネル動画一覧の取得元を抽象化する。
type VideoSource interface {
	ResolveChannel(ctx context.Context, handle string) (*youtube.Channel, error)
	ListUploads(ctx context.Context, playlistID, pageToken string) (*youtube.VideoPage, error)
	FetchVideos(ctx context.Context, videoIDs []string) ([]*model.Video, error)
}

// UploadProbe はAPIクォータを消費せずに新着の有無を確認する。
type UploadProbe interface {
	HasNewerThan(ctx context.Context, channelID string, since time.Time) (bool, error)
}

// VideoFetchOptions は動画フェッチ実行の動作を制御する。
type VideoFetchOptions struct {
	// Full がtrueの場合、前回の完了状態をリセットして先頭から取得し直す。
	Full bool
	// Lookback が正の場合、この期間より古い動画に達した時点で打ち切る。
	Lookback time.Duration
}

// VideoFetchSummary は動画フェッチ1回分の実行結果。
type VideoFetchSummary struct {
	ChannelID      string
	ChannelTitle   string
	Pages          int
	VideosUpserted int
	// Skipped はRSSプローブが新着なしと判定してAPI呼び出しを省略したことを示す。
	Skipped bool
}

// VideoFetcher はチャンネルの動画一覧をページ単位でフェッチして永続化する。
type VideoFetcher struct {
	source    VideoSource
	probe     UploadProbe
	videos    repository.VideoRepository
	tracker   *progress.Tracker
	logger    *slog.Logger
	collector metrics.MetricsCollector
}

// NewVideoFetcher はVideoFetcherを生成する。probeはnil可（増分チェック無効）。
func NewVideoFetcher(source VideoSource, probe UploadProbe, videos repository.VideoRepository, tracker *progress.Tracker, logger *slog.Logger, collector metrics.MetricsCollector) *VideoFetcher {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &VideoFetcher{
		source:    source,
		probe:     probe,
		videos:    videos,
		tracker:   tracker,
		logger:    logger,
		collector: collector,
	}
}

// Run は指定ハンドルのチャンネル動画をフェッチする。
// 前回の実行が失敗していた場合は保存済みカーソルから再開する。
func (f *VideoFetcher) Run(ctx context.Context, handle string, opts VideoFetchOptions) (*VideoFetchSummary, error) {
	channel, err := f.source.ResolveChannel(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("チャンネルの解決に失敗しました: %w", err)
	}

	summary := &VideoFetchSummary{ChannelID: channel.ID, ChannelTitle: channel.Title}

	if opts.Full {
		if err := f.tracker.ResetCompleted(ctx, model.TaskVideos, channel.ID); err != nil {
			return nil, err
		}
	} else if skip, err := f.canSkip(ctx, channel.ID); err != nil {
		return nil, err
	} else if skip {
		f.logger.Info("新着なしのためフェッチをスキップします", "channel_id", channel.ID)
		summary.Skipped = true
		return summary, nil
	}

	p, err := f.tracker.Begin(ctx, model.TaskVideos, channel.ID)
	if err != nil {
		return nil, err
	}

	var cutoff time.Time
	if opts.Lookback > 0 {
		cutoff = time.Now().Add(-opts.Lookback)
	}

	if err := f.fetchPages(ctx, p, channel, cutoff, summary); err != nil {
		f.collector.RecordFetchFailure(string(model.TaskVideos))
		if failErr := f.tracker.Fail(ctx, p, err); failErr != nil {
			f.logger.Error("進捗の失敗記録に失敗しました", "error", failErr)
		}
		return nil, err
	}

	if err := f.tracker.Complete(ctx, p); err != nil {
		return nil, err
	}
	f.logger.Info("動画フェッチが完了しました",
		"channel_id", channel.ID,
		"pages", summary.Pages,
		"videos", summary.VideosUpserted)
	return summary, nil
}

// canSkip は前回の実行が完了しており、かつRSSフィードに保存済み最新動画より
// 新しいエントリがない場合にtrueを返す。失敗中の実行がある場合は再開を
// 優先するためスキップしない。
func (f *VideoFetcher) canSkip(ctx context.Context, channelID string) (bool, error) {
	if f.probe == nil {
		return false, nil
	}
	latest, err := f.tracker.Latest(ctx, model.TaskVideos, channelID)
	if err != nil {
		return false, err
	}
	if latest == nil || latest.Status != model.StatusCompleted {
		return false, nil
	}
	since, err := f.videos.LatestPublishedAt(ctx)
	if err != nil {
		return false, err
	}
	if since.IsZero() {
		return false, nil
	}
	hasNew, err := f.probe.HasNewerThan(ctx, channelID, since)
	if err != nil {
		// プローブ失敗は致命的ではない。通常のフェッチ経路にフォールバックする。
		f.logger.Warn("RSSプローブに失敗したため通常フェッチに進みます", "error", err)
		return false, nil
	}
	return !hasNew, nil
}

func (f *VideoFetcher) fetchPages(ctx context.Context, p *model.FetchProgress, channel *youtube.Channel, cutoff time.Time, summary *VideoFetchSummary) error {
	cursor := p.PageCursor
	for {
		page, err := f.source.ListUploads(ctx, channel.UploadsPlaylistID, cursor)
		if err != nil {
			return err
		}
		videos, err := f.source.FetchVideos(ctx, page.VideoIDs)
		if err != nil {
			return err
		}

		reachedCutoff := false
		upserted := 0
		for _, v := range videos {
			if !cutoff.IsZero() && v.PublishedAt.Before(cutoff) {
				reachedCutoff = true
				continue
			}
			v.ChannelID = channel.ID
			v.ChannelName = channel.Title
			if err := f.videos.Upsert(ctx, v); err != nil {
				return err
			}
			upserted++
		}

		summary.Pages++
		summary.VideosUpserted += upserted
		f.collector.RecordFetchPage(string(model.TaskVideos))
		f.collector.RecordVideosUpserted(upserted)

		// ページ全体の永続化後にのみカーソルを進める。途中で失敗した場合は
		// 同じページを再取得するが、アップサートなので重複は生じない。
		if err := f.tracker.Checkpoint(ctx, p, page.NextPageToken); err != nil {
			return err
		}

		// アップロード一覧は新しい順のため、カットオフに達したら以降は不要。
		if reachedCutoff || page.NextPageToken == "" {
			return nil
		}
		cursor = page.NextPageToken
	}
}
