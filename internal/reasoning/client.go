// Package reasoning は外部推論サービス（OpenAI互換API）のクライアントを提供する。
package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/metrics"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
)

// maxDescriptionRunes はプロンプトに埋め込む説明文の最大長。
// トークン上限の超過を避けるため打ち切る。
const maxDescriptionRunes = 2000

const temperature = 0.3

// systemPrompt は分類指示のシステムプロンプト。
// 応答はis_collab/partner_name/category/region/one_line_summary/confidence
// を持つJSONオブジェクトのみを要求する。
const systemPrompt = `You are an expert analyst for PUBG MOBILE content classification.
Your task is to determine if a YouTube video is a collaboration content and identify the collaboration partner.

Classification Guidelines:
1. A "collab" is content featuring partnership with external brands, IPs, artists, games, anime, movies, etc.
2. Regular game updates, tournaments, esports, or community content are NOT collabs.
3. Extract the exact partner name from the title/description when possible.
4. Normalize partner names (e.g., "BLACKPINK" not "black pink").

Categories:
- IP: Intellectual Property collaborations (franchises, characters)
- Brand: Commercial brand partnerships (cars, fashion, tech)
- Artist: Musicians, bands, content creators
- Game: Cross-game collaborations
- Anime: Anime/manga collaborations
- Movie: Movie/TV show tie-ins
- Other: Uncategorized partnerships

Region codes:
- Global: Worldwide release
- KR: Korea-focused
- JP: Japan-focused
- NA: North America
- EU: Europe
- SEA: Southeast Asia
- LATAM: Latin America
- MENA: Middle East/North Africa
- Other/Unknown: Cannot determine

You must respond ONLY with valid JSON in this exact format:
{
  "is_collab": true/false,
  "partner_name": "string or null",
  "category": "IP/Brand/Artist/Game/Anime/Movie/Other",
  "region": "Global/KR/JP/NA/EU/SEA/LATAM/MENA/Other/Unknown",
  "one_line_summary": "Brief description of the collaboration",
  "confidence": 0.0-1.0
}`

const userPromptTemplate = `Analyze this PUBG MOBILE YouTube video and classify if it's a collaboration:

Title: %s

Description:
%s

Respond with JSON only.`

// Options はClientの構成。
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	QPS         float64
	Timeout     time.Duration
}

// Client はOpenAI互換のchat completionsエンドポイントを呼ぶクライアント。
// レート制限・指数バックオフ付きリトライを内蔵し、リトライ枯渇後は
// model.ErrExternalServiceを返す。
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	maxRetries  int
	backoffBase time.Duration
	backoffMax  time.Duration
	limiter     *rate.Limiter
	logger      *slog.Logger
	collector   metrics.MetricsCollector
}

// NewClient はClientを生成する。
func NewClient(opts Options, logger *slog.Logger, collector metrics.MetricsCollector) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: opts.Timeout},
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		maxRetries:  opts.MaxRetries,
		backoffBase: opts.BackoffBase,
		backoffMax:  opts.BackoffMax,
		limiter:     rate.NewLimiter(rate.Limit(opts.QPS), 1),
		logger:      logger,
		collector:   collector,
	}
}

// ModelName は使用中のモデル名を返す。キャッシュエントリに記録される。
func (c *Client) ModelName() string {
	return c.model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// ClassifyCollab はタイトルと説明文を分類プロンプトに埋め込んで送信し、
// 応答本文の生JSONを返す。応答の検証は呼び出し側（classify.ParseDecision）
// が行う。429/5xxと一時的な通信エラーはバックオフ付きでリトライされる。
func (c *Client) ClassifyCollab(ctx context.Context, title, description string) (string, error) {
	desc := []rune(description)
	if len(desc) > maxDescriptionRunes {
		desc = desc[:maxDescriptionRunes]
	}

	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf(userPromptTemplate, title, string(desc))},
		},
		MaxTokens:   c.maxTokens,
		Temperature: temperature,
	}
	req.ResponseFormat.Type = "json_object"

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("リクエストのJSON化に失敗しました: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoffDelay(attempt)
			c.logger.Warn("推論サービス呼び出しをリトライします",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}

		content, retryable, err := c.doRequest(ctx, body)
		if err == nil {
			return content, nil
		}
		if !retryable {
			return "", model.NewExternalServiceError("reasoning", err)
		}
		lastErr = err
	}

	return "", model.NewExternalServiceError("reasoning", lastErr)
}

// doRequest は1回のHTTP呼び出しを行う。retryableは429/5xx・通信エラーでtrue。
func (c *Client) doRequest(ctx context.Context, body []byte) (content string, retryable bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("リクエスト作成に失敗しました: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", true, fmt.Errorf("HTTPリクエストに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	c.collector.RecordHTTPStatus(resp.StatusCode)
	c.collector.RecordReasoningLatency(time.Since(start))

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		canRetry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return "", canRetry, fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", false, fmt.Errorf("応答のデコードに失敗しました: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", false, fmt.Errorf("応答にchoicesがありません")
	}
	return chatResp.Choices[0].Message.Content, false, nil
}

// backoffDelay はジッター付き指数バックオフ遅延を計算する。
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.backoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > c.backoffMax {
			delay = c.backoffMax
			break
		}
	}
	// 同時リトライの突発集中を避けるため±25%のジッターを加える
	half := int64(delay) / 2
	if half <= 0 {
		return delay
	}
	jitter := time.Duration(rand.Int64N(half)) - delay/4
	return delay + jitter
}
