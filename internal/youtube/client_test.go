package youtube

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/metrics"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/security"
)

func newTestYouTubeClient(baseURL string, maxRetries int) *Client {
	return NewClient(Options{
		BaseURL:     baseURL,
		APIKey:      "test-key",
		MaxResults:  50,
		MaxRetries:  maxRetries,
		BackoffBase: time.Millisecond,
		BackoffMax:  2 * time.Millisecond,
		QPS:         1000,
		Timeout:     5 * time.Second,
	}, security.NewCommentSanitizer(), slog.New(slog.NewTextHandler(io.Discard, nil)), metrics.Nop{})
}

// ハンドルからチャンネルとアップロードプレイリストが解決されることを検証
func TestClient_ResolveChannel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/channels" {
			t.Errorf("path = %q, want /channels", r.URL.Path)
		}
		if r.URL.Query().Get("forHandle") != "@PUBGMOBILE" {
			t.Errorf("forHandle = %q", r.URL.Query().Get("forHandle"))
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("key = %q", r.URL.Query().Get("key"))
		}
		w.Write([]byte(`{
			"items": [{
				"id": "UC123",
				"snippet": {"title": "PUBG MOBILE"},
				"contentDetails": {"relatedPlaylists": {"uploads": "UU123"}}
			}]
		}`))
	}))
	defer server.Close()

	client := newTestYouTubeClient(server.URL, 0)
	ch, err := client.ResolveChannel(context.Background(), "@PUBGMOBILE")
	if err != nil {
		t.Fatalf("ResolveChannel() error = %v", err)
	}
	if ch.ID != "UC123" || ch.UploadsPlaylistID != "UU123" {
		t.Errorf("channel = %+v", ch)
	}
}

// ページトークンの受け渡しと継続トークンの返却を検証
func TestClient_ListUploads_Pagination(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("pageToken"); got != "page2token" {
			t.Errorf("pageToken = %q, want page2token", got)
		}
		w.Write([]byte(`{
			"nextPageToken": "page3token",
			"items": [
				{"contentDetails": {"videoId": "vid-a"}},
				{"contentDetails": {"videoId": "vid-b"}}
			]
		}`))
	}))
	defer server.Close()

	client := newTestYouTubeClient(server.URL, 0)
	page, err := client.ListUploads(context.Background(), "UU123", "page2token")
	if err != nil {
		t.Fatalf("ListUploads() error = %v", err)
	}
	if len(page.VideoIDs) != 2 || page.VideoIDs[0] != "vid-a" {
		t.Errorf("VideoIDs = %v", page.VideoIDs)
	}
	if page.NextPageToken != "page3token" {
		t.Errorf("NextPageToken = %q", page.NextPageToken)
	}
}

// 統計の文字列数値が変換されることを検証
func TestClient_FetchVideos(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("id"); got != "vid-1,vid-2" {
			t.Errorf("id = %q", got)
		}
		w.Write([]byte(`{
			"items": [{
				"id": "vid-1",
				"snippet": {
					"title": "PUBG MOBILE x BLACKPINK",
					"description": "collab",
					"publishedAt": "2023-07-14T12:00:00Z",
					"channelId": "UC123",
					"channelTitle": "PUBG MOBILE"
				},
				"contentDetails": {"duration": "PT3M21S"},
				"statistics": {"viewCount": "1500000", "likeCount": "98000", "commentCount": "12000"}
			}]
		}`))
	}))
	defer server.Close()

	client := newTestYouTubeClient(server.URL, 0)
	videos, err := client.FetchVideos(context.Background(), []string{"vid-1", "vid-2"})
	if err != nil {
		t.Fatalf("FetchVideos() error = %v", err)
	}
	if len(videos) != 1 {
		t.Fatalf("len(videos) = %d", len(videos))
	}
	v := videos[0]
	if v.ViewCount != 1500000 || v.LikeCount != 98000 || v.CommentCount != 12000 {
		t.Errorf("counts = %d/%d/%d", v.ViewCount, v.LikeCount, v.CommentCount)
	}
	if v.Duration != "PT3M21S" {
		t.Errorf("Duration = %q", v.Duration)
	}
	if !v.PublishedAt.Equal(time.Date(2023, 7, 14, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("PublishedAt = %v", v.PublishedAt)
	}
}

// 返信の親子関係とtextDisplayのサニタイズを検証
func TestClient_FetchCommentPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"nextPageToken": "",
			"items": [{
				"snippet": {
					"topLevelComment": {
						"id": "c-top",
						"snippet": {
							"authorDisplayName": "fan1",
							"authorChannelId": {"value": "UC-fan1"},
							"textDisplay": "best collab<script>alert(1)</script>",
							"textOriginal": "best collab",
							"likeCount": 42,
							"publishedAt": "2023-07-15T00:00:00Z"
						}
					}
				},
				"replies": {
					"comments": [{
						"id": "c-reply",
						"snippet": {
							"authorDisplayName": "fan2",
							"authorChannelId": {"value": "UC-fan2"},
							"textDisplay": "agreed",
							"textOriginal": "agreed",
							"likeCount": 3,
							"publishedAt": "2023-07-15T01:00:00Z"
						}
					}]
				}
			}]
		}`))
	}))
	defer server.Close()

	client := newTestYouTubeClient(server.URL, 0)
	page, err := client.FetchCommentPage(context.Background(), "vid-1", "")
	if err != nil {
		t.Fatalf("FetchCommentPage() error = %v", err)
	}
	if len(page.Comments) != 2 {
		t.Fatalf("len(Comments) = %d, want 2 (top + reply)", len(page.Comments))
	}

	top := page.Comments[0]
	if top.IsReply || top.ParentID != "" {
		t.Error("top-level comment must not be a reply")
	}
	if strings.Contains(top.TextDisplay, "<script") {
		t.Errorf("TextDisplay not sanitized: %q", top.TextDisplay)
	}
	if !strings.Contains(top.TextDisplay, "best collab") {
		t.Errorf("TextDisplay lost content: %q", top.TextDisplay)
	}

	reply := page.Comments[1]
	if !reply.IsReply || reply.ParentID != "c-top" {
		t.Errorf("reply = %+v, want parent c-top", reply)
	}
}

// コメント無効化の403がErrCommentsDisabledになることを検証
func TestClient_FetchCommentPage_Disabled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error": {"errors": [{"reason": "commentsDisabled"}]}}`))
	}))
	defer server.Close()

	client := newTestYouTubeClient(server.URL, 3)
	_, err := client.FetchCommentPage(context.Background(), "vid-1", "")
	if !errors.Is(err, ErrCommentsDisabled) {
		t.Errorf("FetchCommentPage() error = %v, want ErrCommentsDisabled", err)
	}
}

// 5xxのリトライ枯渇がErrExternalServiceになることを検証
func TestClient_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestYouTubeClient(server.URL, 2)
	_, err := client.ListUploads(context.Background(), "UU123", "")
	if !errors.Is(err, model.ErrExternalService) {
		t.Fatalf("error = %v, want ErrExternalService", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

// BaseURL未指定のクライアントが既定のData APIエンドポイントを
// 向くことを検証する。
func TestClient_DefaultBaseURL(t *testing.T) {
	client := NewClient(Options{
		APIKey:  "key",
		QPS:     10,
		Timeout: time.Second,
	}, security.NewCommentSanitizer(), slog.New(slog.NewTextHandler(io.Discard, nil)), metrics.Nop{})

	if client.baseURL != "https://www.googleapis.com/youtube/v3" {
		t.Errorf("baseURL = %q, want %q", client.baseURL, "https://www.googleapis.com/youtube/v3")
	}
}

// BackoffBaseが未設定でもbackoffDelayがパニックしないことを検証する。
func TestClient_BackoffDelay_ZeroBase(t *testing.T) {
	client := newTestYouTubeClient("http://example.com", 1)
	client.backoffBase = 0
	client.backoffMax = 0

	if got := client.backoffDelay(1); got != 0 {
		t.Errorf("backoffDelay(1) = %v, want 0", got)
	}
}
