// Package youtube はYouTube Data API v3のクライアントを提供する。
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/metrics"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/security"
)

// ErrCommentsDisabled は動画のコメントが無効化されていることを示す。
// フェッチ失敗ではなく「コメント0件」として扱う。
var ErrCommentsDisabled = errors.New("コメントが無効化されています")

// maxVideosPerRequest はvideos.listの1回で取得できる動画数の上限。
const maxVideosPerRequest = 50

// apiBaseURL はYouTube Data API v3の既定ベースURL。
const apiBaseURL = "https://www.googleapis.com/youtube/v3"

// Channel は解決済みチャンネルの要約。
type Channel struct {
	ID                string
	Title             string
	UploadsPlaylistID string
}

// CommentPage はコメント1ページの取得結果。
type CommentPage struct {
	Comments      []*model.Comment
	NextPageToken string
}

// VideoPage はアップロード一覧1ページの取得結果。
type VideoPage struct {
	VideoIDs      []string
	NextPageToken string
}

// Options はClientの構成。
type Options struct {
	BaseURL     string
	APIKey      string
	MaxResults  int
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	QPS         float64
	Timeout     time.Duration
}

// Client はYouTube Data API v3のHTTPクライアント。
// レート制限と指数バックオフ付きリトライを内蔵する。
// 429/5xxのリトライ枯渇後はmodel.ErrExternalServiceを返す。
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	maxResults  int
	maxRetries  int
	backoffBase time.Duration
	backoffMax  time.Duration
	limiter     *rate.Limiter
	sanitizer   security.CommentSanitizerService
	logger      *slog.Logger
	collector   metrics.MetricsCollector
}

// NewClient はClientを生成する。baseURLが空なら既定のData API
// エンドポイントを使う（テストで差し替え可能）。
func NewClient(opts Options, sanitizer security.CommentSanitizerService, logger *slog.Logger, collector metrics.MetricsCollector) *Client {
	maxResults := opts.MaxResults
	if maxResults <= 0 || maxResults > 50 {
		maxResults = 50
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = apiBaseURL
	}
	return &Client{
		httpClient:  &http.Client{Timeout: opts.Timeout},
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      opts.APIKey,
		maxResults:  maxResults,
		maxRetries:  opts.MaxRetries,
		backoffBase: opts.BackoffBase,
		backoffMax:  opts.BackoffMax,
		limiter:     rate.NewLimiter(rate.Limit(opts.QPS), 1),
		sanitizer:   sanitizer,
		logger:      logger,
		collector:   collector,
	}
}

// ResolveChannel はハンドル（@PUBGMOBILE等）からチャンネルを解決する。
func (c *Client) ResolveChannel(ctx context.Context, handle string) (*Channel, error) {
	params := url.Values{
		"part":      {"snippet,contentDetails"},
		"forHandle": {handle},
	}

	var resp struct {
		Items []struct {
			ID      string `json:"id"`
			Snippet struct {
				Title string `json:"title"`
			} `json:"snippet"`
			ContentDetails struct {
				RelatedPlaylists struct {
					Uploads string `json:"uploads"`
				} `json:"relatedPlaylists"`
			} `json:"contentDetails"`
		} `json:"items"`
	}
	if err := c.getJSON(ctx, "/channels", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("チャンネルが見つかりません: %s", handle)
	}

	item := resp.Items[0]
	return &Channel{
		ID:                item.ID,
		Title:             item.Snippet.Title,
		UploadsPlaylistID: item.ContentDetails.RelatedPlaylists.Uploads,
	}, nil
}

// ListUploads はアップロードプレイリストの1ページ分の動画IDを返す。
// pageTokenが空なら先頭から。NextPageTokenが空なら最終ページ。
func (c *Client) ListUploads(ctx context.Context, playlistID, pageToken string) (*VideoPage, error) {
	params := url.Values{
		"part":       {"contentDetails"},
		"playlistId": {playlistID},
		"maxResults": {strconv.Itoa(c.maxResults)},
	}
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var resp struct {
		NextPageToken string `json:"nextPageToken"`
		Items         []struct {
			ContentDetails struct {
				VideoID string `json:"videoId"`
			} `json:"contentDetails"`
		} `json:"items"`
	}
	if err := c.getJSON(ctx, "/playlistItems", params, &resp); err != nil {
		return nil, err
	}

	page := &VideoPage{NextPageToken: resp.NextPageToken}
	for _, item := range resp.Items {
		if item.ContentDetails.VideoID != "" {
			page.VideoIDs = append(page.VideoIDs, item.ContentDetails.VideoID)
		}
	}
	return page, nil
}

// FetchVideos はID指定で動画の詳細と統計を取得する。
// 1回のリクエスト上限（50件）を超えるIDは分割して取得する。
func (c *Client) FetchVideos(ctx context.Context, videoIDs []string) ([]*model.Video, error) {
	var videos []*model.Video
	for start := 0; start < len(videoIDs); start += maxVideosPerRequest {
		end := start + maxVideosPerRequest
		if end > len(videoIDs) {
			end = len(videoIDs)
		}
		batch, err := c.fetchVideoBatch(ctx, videoIDs[start:end])
		if err != nil {
			return nil, err
		}
		videos = append(videos, batch...)
	}
	return videos, nil
}

func (c *Client) fetchVideoBatch(ctx context.Context, videoIDs []string) ([]*model.Video, error) {
	params := url.Values{
		"part": {"snippet,contentDetails,statistics"},
		"id":   {strings.Join(videoIDs, ",")},
	}

	var resp struct {
		Items []struct {
			ID      string `json:"id"`
			Snippet struct {
				Title        string    `json:"title"`
				Description  string    `json:"description"`
				PublishedAt  time.Time `json:"publishedAt"`
				ChannelID    string    `json:"channelId"`
				ChannelTitle string    `json:"channelTitle"`
			} `json:"snippet"`
			ContentDetails struct {
				Duration string `json:"duration"`
			} `json:"contentDetails"`
			Statistics struct {
				ViewCount    string `json:"viewCount"`
				LikeCount    string `json:"likeCount"`
				CommentCount string `json:"commentCount"`
			} `json:"statistics"`
		} `json:"items"`
	}
	if err := c.getJSON(ctx, "/videos", params, &resp); err != nil {
		return nil, err
	}

	videos := make([]*model.Video, 0, len(resp.Items))
	for _, item := range resp.Items {
		videos = append(videos, &model.Video{
			VideoID:      item.ID,
			Title:        item.Snippet.Title,
			Description:  item.Snippet.Description,
			PublishedAt:  item.Snippet.PublishedAt,
			Duration:     item.ContentDetails.Duration,
			ChannelID:    item.Snippet.ChannelID,
			ChannelName:  item.Snippet.ChannelTitle,
			ViewCount:    parseCount(item.Statistics.ViewCount),
			LikeCount:    parseCount(item.Statistics.LikeCount),
			CommentCount: parseCount(item.Statistics.CommentCount),
		})
	}
	return videos, nil
}

// FetchCommentPage はトップレベルコメント1ページ（返信込み）を取得する。
// textDisplayは保存前にサニタイズされる。コメント無効化動画は
// ErrCommentsDisabledを返す。
func (c *Client) FetchCommentPage(ctx context.Context, videoID, pageToken string) (*CommentPage, error) {
	params := url.Values{
		"part":       {"snippet,replies"},
		"videoId":    {videoID},
		"maxResults": {"100"},
		"textFormat": {"html"},
	}
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var resp struct {
		NextPageToken string `json:"nextPageToken"`
		Items         []struct {
			Snippet struct {
				TopLevelComment commentResource `json:"topLevelComment"`
			} `json:"snippet"`
			Replies struct {
				Comments []commentResource `json:"comments"`
			} `json:"replies"`
		} `json:"items"`
	}
	if err := c.getJSON(ctx, "/commentThreads", params, &resp); err != nil {
		return nil, err
	}

	page := &CommentPage{NextPageToken: resp.NextPageToken}
	for _, item := range resp.Items {
		top := c.toComment(item.Snippet.TopLevelComment, videoID, "")
		page.Comments = append(page.Comments, top)
		for _, reply := range item.Replies.Comments {
			page.Comments = append(page.Comments, c.toComment(reply, videoID, top.CommentID))
		}
	}
	return page, nil
}

type commentResource struct {
	ID      string `json:"id"`
	Snippet struct {
		AuthorDisplayName string `json:"authorDisplayName"`
		AuthorChannelID   struct {
			Value string `json:"value"`
		} `json:"authorChannelId"`
		TextDisplay  string    `json:"textDisplay"`
		TextOriginal string    `json:"textOriginal"`
		LikeCount    int64     `json:"likeCount"`
		PublishedAt  time.Time `json:"publishedAt"`
	} `json:"snippet"`
}

func (c *Client) toComment(res commentResource, videoID, parentID string) *model.Comment {
	publishedAt := res.Snippet.PublishedAt
	return &model.Comment{
		CommentID:       res.ID,
		VideoID:         videoID,
		AuthorName:      res.Snippet.AuthorDisplayName,
		AuthorChannelID: res.Snippet.AuthorChannelID.Value,
		TextOriginal:    res.Snippet.TextOriginal,
		TextDisplay:     c.sanitizer.Sanitize(res.Snippet.TextDisplay),
		PublishedAt:     &publishedAt,
		LikeCount:       res.Snippet.LikeCount,
		ParentID:        parentID,
		IsReply:         parentID != "",
	}
}

// getJSON は1エンドポイントへのGETをリトライ付きで実行する。
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("key", c.apiKey)
	reqURL := c.baseURL + path + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoffDelay(attempt)
			c.logger.Warn("YouTube API呼び出しをリトライします",
				slog.String("path", path),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		retryable, err := c.doGet(ctx, reqURL, out)
		if err == nil {
			return nil
		}
		if !retryable {
			return err
		}
		lastErr = err
	}

	return model.NewExternalServiceError("youtube", lastErr)
}

func (c *Client) doGet(ctx context.Context, reqURL string, out any) (retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, fmt.Errorf("リクエスト作成に失敗しました: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("HTTPリクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	c.collector.RecordHTTPStatus(resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		// 403のcommentsDisabledはエラーではなく「コメント0件」の合図
		if resp.StatusCode == http.StatusForbidden && strings.Contains(string(body), "commentsDisabled") {
			return false, ErrCommentsDisabled
		}

		canRetry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if canRetry {
			return true, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
		}
		return false, model.NewExternalServiceError("youtube",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("応答のデコードに失敗しました: %w", err)
	}
	return false, nil
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.backoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > c.backoffMax {
			delay = c.backoffMax
			break
		}
	}
	half := int64(delay) / 2
	if half <= 0 {
		return delay
	}
	jitter := time.Duration(rand.Int64N(half)) - delay/4
	return delay + jitter
}

func parseCount(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
