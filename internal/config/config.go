// Package config は環境変数からのアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// YouTube Data API
	YouTubeAPIKey       string
	ChannelHandle       string
	MaxResultsPerPage   int
	MaxCommentsPerVideo int

	// 外部推論サービス（OpenAI互換 chat completions）
	ReasoningAPIKey  string
	ReasoningBaseURL string
	ReasoningModel   string
	ReasoningMaxTok  int

	// Cloud Upload
	CloudUploadURL string
	CloudAPIKey    string

	// Pipeline
	LookbackDays      int
	ClassifyThreshold float64
	ClassifyWorkers   int
	OutputDir         string

	// 外部呼び出しのリトライ/レート制御
	FetchTimeout time.Duration
	MaxRetries   int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	YouTubeQPS   float64
	ReasoningQPS float64

	// Server（serveモード）
	ServerPort string

	// ログレベル（debug/info/warn/error）
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// YouTube/推論/アップロードのAPIキーは任意で、未設定の場合は
// 対応するステージが機能制限付きで動作する（IsFetchConfigured等で判定）。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.YouTubeAPIKey = os.Getenv("YOUTUBE_API_KEY")
	cfg.ChannelHandle = getEnvString("CHANNEL_HANDLE", "@PUBGMOBILE")
	cfg.MaxResultsPerPage = getEnvInt("MAX_RESULTS_PER_PAGE", 50)
	cfg.MaxCommentsPerVideo = getEnvInt("MAX_COMMENTS_PER_VIDEO", 200)

	cfg.ReasoningAPIKey = os.Getenv("REASONING_API_KEY")
	cfg.ReasoningBaseURL = getEnvString("REASONING_BASE_URL", "https://api.openai.com/v1")
	cfg.ReasoningModel = getEnvString("REASONING_MODEL", "gpt-4o-mini")
	cfg.ReasoningMaxTok = getEnvInt("REASONING_MAX_TOKENS", 500)

	cfg.CloudUploadURL = os.Getenv("CLOUD_UPLOAD_URL")
	cfg.CloudAPIKey = os.Getenv("CLOUD_API_KEY")

	cfg.LookbackDays = getEnvInt("LOOKBACK_DAYS", 365)
	cfg.ClassifyThreshold = getEnvFloat("CLASSIFY_THRESHOLD", 0.7)
	cfg.ClassifyWorkers = getEnvInt("CLASSIFY_WORKERS", 4)
	cfg.OutputDir = getEnvString("OUTPUT_DIR", "./output")

	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 30*time.Second)
	cfg.MaxRetries = getEnvInt("MAX_RETRIES", 5)
	cfg.BackoffBase = getEnvDuration("BACKOFF_BASE", 2*time.Second)
	cfg.BackoffMax = getEnvDuration("BACKOFF_MAX", 60*time.Second)
	cfg.YouTubeQPS = getEnvFloat("YOUTUBE_QPS", 10)
	cfg.ReasoningQPS = getEnvFloat("REASONING_QPS", 2)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

// IsFetchConfigured はYouTube APIが利用可能かを返す。
func (c *Config) IsFetchConfigured() bool {
	return c.YouTubeAPIKey != ""
}

// IsReasoningConfigured は外部推論サービスが利用可能かを返す。
func (c *Config) IsReasoningConfigured() bool {
	return c.ReasoningAPIKey != ""
}

// IsUploadConfigured はクラウドアップロードが利用可能かを返す。
func (c *Config) IsUploadConfigured() bool {
	return c.CloudAPIKey != "" && c.CloudUploadURL != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
