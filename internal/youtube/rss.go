package youtube

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
)

// rssBaseURL はYouTubeチャンネルRSSフィードの既定ベースURL。
const rssBaseURL = "https://www.youtube.com/feeds/videos.xml"

// FeedEntry はRSSフィードの1エントリ（最新アップロード）。
type FeedEntry struct {
	VideoID     string
	Title       string
	PublishedAt time.Time
}

// RSSProbe はチャンネルRSSフィードから最新アップロードを読む。
// Data APIのクォータを消費しない増分チェック用で、フィードには
// 直近15件程度しか載らないため全量フェッチの代替にはならない。
type RSSProbe struct {
	parser  *gofeed.Parser
	baseURL string
}

// NewRSSProbe はRSSProbeを生成する。baseURLが空なら既定のYouTube
// フィードURLを使う（テストで差し替え可能）。
func NewRSSProbe(baseURL string) *RSSProbe {
	if baseURL == "" {
		baseURL = rssBaseURL
	}
	return &RSSProbe{
		parser:  gofeed.NewParser(),
		baseURL: baseURL,
	}
}

// LatestUploads はチャンネルの最新アップロードを新しい順で返す。
func (p *RSSProbe) LatestUploads(ctx context.Context, channelID string) ([]FeedEntry, error) {
	feed, err := p.parser.ParseURLWithContext(p.baseURL+"?channel_id="+channelID, ctx)
	if err != nil {
		return nil, model.NewExternalServiceError("youtube-rss",
			fmt.Errorf("フィードの取得に失敗しました: %w", err))
	}

	entries := make([]FeedEntry, 0, len(feed.Items))
	for _, item := range feed.Items {
		entry := FeedEntry{
			// エントリIDは"yt:video:<videoId>"形式
			VideoID: strings.TrimPrefix(item.GUID, "yt:video:"),
			Title:   item.Title,
		}
		if item.PublishedParsed != nil {
			entry.PublishedAt = *item.PublishedParsed
		}
		if entry.VideoID != "" {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// HasNewerThan は指定時刻より新しいアップロードがあるかを返す。
// 増分フェッチの事前チェックに使い、falseの場合はData API呼び出しを
// 丸ごと省略できる。
func (p *RSSProbe) HasNewerThan(ctx context.Context, channelID string, since time.Time) (bool, error) {
	entries, err := p.LatestUploads(ctx, channelID)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if entry.PublishedAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}
