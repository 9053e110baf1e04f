// Package app はサブコマンドの解析とパイプライン全体のワイヤリングを行う。
package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/aggregate"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/classify"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/config"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/database"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/export"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/handler"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/knowledge"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/logger"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/metrics"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/progress"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/reasoning"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/repository"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/security"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/worker/cleanup"
	fetchpkg "github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/worker/fetch"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/youtube"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetupDefault(w, cfg.LogLevel)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, rest, err := ParseCommand(args)
	if err != nil {
		return err
	}
	opts, err := ParseOptions(cmd, rest, w)
	if err != nil {
		return err
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("channel", cfg.ChannelHandle),
	)

	if cmd == CommandMigrate {
		return runMigrate(cfg)
	}

	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case CommandFetch:
		return p.runFetch(ctx, opts)
	case CommandClassify:
		return p.runClassify(ctx, opts)
	case CommandAggregate:
		_, err := p.runAggregate(ctx, opts)
		return err
	case CommandExport:
		return p.runExport(ctx, opts)
	case CommandRun:
		return p.runAll(ctx, opts)
	case CommandStatus:
		return p.runStatus(ctx, w)
	case CommandServe:
		return p.runServe(ctx)
	default:
		return fmt.Errorf("不明なサブコマンドです: %s", cmd)
	}
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)))
	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	slog.Info("migrations applied")
	return nil
}

// pipeline はサブコマンド実行に必要な依存一式を保持する。
type pipeline struct {
	cfg       *config.Config
	db        *sql.DB
	logger    *slog.Logger
	registry  *prometheus.Registry
	collector metrics.MetricsCollector

	videos       repository.VideoRepository
	comments     repository.CommentRepository
	aggs         repository.AggregateRepository
	progressRepo repository.ProgressRepository
	cacheRepo    repository.CacheRepository

	tracker *progress.Tracker
}

func newPipeline(cfg *config.Config) (*pipeline, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log := slog.Default()
	registry := prometheus.NewRegistry()

	p := &pipeline{
		cfg:          cfg,
		db:           db,
		logger:       log,
		registry:     registry,
		collector:    metrics.NewCollector(registry),
		videos:       repository.NewPostgresVideoRepo(db),
		comments:     repository.NewPostgresCommentRepo(db),
		aggs:         repository.NewPostgresAggregateRepo(db),
		progressRepo: repository.NewPostgresProgressRepo(db),
		cacheRepo:    repository.NewPostgresCacheRepo(db),
	}
	p.tracker = progress.NewTracker(p.progressRepo, log)
	return p, nil
}

func (p *pipeline) Close() {
	p.db.Close()
}

// lookback はフラグと設定からフェッチ・集計の遡及期間を決める。
func (p *pipeline) lookback(opts *Options) time.Duration {
	if opts.All {
		return 0
	}
	days := opts.Days
	if days <= 0 {
		days = p.cfg.LookbackDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// dateRange は集計・出力の対象期間を返す。Allの場合は全期間相当の広い窓。
func (p *pipeline) dateRange(opts *Options) (time.Time, time.Time) {
	end := time.Now()
	lookback := p.lookback(opts)
	if lookback == 0 {
		// 全期間。チャンネル開設より十分前を起点にする。
		return time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC), end
	}
	return end.Add(-lookback), end
}

func (p *pipeline) youtubeClient() *youtube.Client {
	return youtube.NewClient(youtube.Options{
		APIKey:      p.cfg.YouTubeAPIKey,
		MaxResults:  p.cfg.MaxResultsPerPage,
		MaxRetries:  p.cfg.MaxRetries,
		BackoffBase: p.cfg.BackoffBase,
		BackoffMax:  p.cfg.BackoffMax,
		QPS:         p.cfg.YouTubeQPS,
		Timeout:     p.cfg.FetchTimeout,
	}, security.NewCommentSanitizer(), p.logger, p.collector)
}

// runFetch は動画フェッチと（省略されない限り）コメントフェッチを実行する。
func (p *pipeline) runFetch(ctx context.Context, opts *Options) error {
	if !p.cfg.IsFetchConfigured() {
		return fmt.Errorf("YOUTUBE_API_KEYが設定されていません")
	}

	yt := p.youtubeClient()
	log := logger.ForStage(p.logger, "fetch")

	videoFetcher := fetchpkg.NewVideoFetcher(
		yt, youtube.NewRSSProbe(""), p.videos, p.tracker, log, p.collector)

	summary, err := videoFetcher.Run(ctx, p.cfg.ChannelHandle, fetchpkg.VideoFetchOptions{
		Full:     opts.Full,
		Lookback: p.lookback(opts),
	})
	if err != nil {
		return fmt.Errorf("動画フェッチに失敗しました: %w", err)
	}

	if opts.NoComments || summary.Skipped {
		return nil
	}

	videoIDs, err := p.videoIDsInWindow(ctx, opts)
	if err != nil {
		return err
	}
	commentFetcher := fetchpkg.NewCommentFetcher(
		yt, p.comments, p.videos, p.tracker, log, p.collector, p.cfg.MaxCommentsPerVideo)
	commentSummary, err := commentFetcher.RunForVideos(ctx, videoIDs)
	if err != nil {
		return fmt.Errorf("コメントフェッチに失敗しました: %w", err)
	}
	if commentSummary.FailedVideos > 0 {
		return fmt.Errorf("コメントフェッチが%d/%d件の動画で失敗しました",
			commentSummary.FailedVideos, commentSummary.Videos)
	}
	return nil
}

func (p *pipeline) videoIDsInWindow(ctx context.Context, opts *Options) ([]string, error) {
	videos, err := p.videos.ListAll(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("動画一覧の取得に失敗しました: %w", err)
	}
	start, end := p.dateRange(opts)
	var ids []string
	for _, v := range videos {
		if v.PublishedAt.Before(start) || v.PublishedAt.After(end) {
			continue
		}
		ids = append(ids, v.VideoID)
	}
	return ids, nil
}

// runClassify は未分類動画（-reclassify指定時は全動画）を分類する。
func (p *pipeline) runClassify(ctx context.Context, opts *Options) error {
	threshold := p.cfg.ClassifyThreshold
	if opts.Threshold >= 0 {
		threshold = opts.Threshold
	}

	var reasoningClient classify.ReasoningClient
	if !opts.NoFallback && p.cfg.IsReasoningConfigured() {
		reasoningClient = reasoning.NewClient(reasoning.Options{
			BaseURL:     p.cfg.ReasoningBaseURL,
			APIKey:      p.cfg.ReasoningAPIKey,
			Model:       p.cfg.ReasoningModel,
			MaxTokens:   p.cfg.ReasoningMaxTok,
			MaxRetries:  p.cfg.MaxRetries,
			BackoffBase: p.cfg.BackoffBase,
			BackoffMax:  p.cfg.BackoffMax,
			QPS:         p.cfg.ReasoningQPS,
			Timeout:     p.cfg.FetchTimeout,
		}, p.logger, p.collector)
	} else if !opts.NoFallback {
		p.logger.Warn("REASONING_API_KEYが未設定のためルール分類のみで実行します")
	}

	log := logger.ForStage(p.logger, "classify")
	orchestrator := classify.NewOrchestrator(
		p.videos,
		classify.NewRuleClassifier(knowledge.NewBase()),
		classify.NewCache(p.cacheRepo),
		reasoningClient,
		threshold,
		p.cfg.ClassifyWorkers,
		log,
		p.collector,
	)

	var summary *classify.RunSummary
	var err error
	if opts.Reclassify {
		summary, err = orchestrator.ReclassifyAll(ctx)
	} else {
		summary, err = orchestrator.ClassifyPending(ctx)
	}
	if err != nil {
		return fmt.Errorf("分類バッチに失敗しました: %w", err)
	}

	log.Info("分類バッチの結果",
		"processed", summary.Processed,
		"rule", summary.RuleCount,
		"fallback", summary.FallbackCount,
		"cache_hits", summary.CacheHits,
		"collabs", summary.Collabs,
		"unchanged", summary.Unchanged,
		"errors", len(summary.Errors))

	if len(summary.Errors) > 0 {
		return fmt.Errorf("分類が%d/%d件の動画で失敗しました", len(summary.Errors), summary.Processed)
	}
	return nil
}

// runAggregate は対象期間のパートナー別集計を再計算する。
func (p *pipeline) runAggregate(ctx context.Context, opts *Options) ([]*model.PartnerAggregate, error) {
	start, end := p.dateRange(opts)
	svc := aggregate.NewService(p.videos, p.comments, p.aggs,
		logger.ForStage(p.logger, "aggregate"), p.collector)
	aggs, err := svc.Run(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("集計に失敗しました: %w", err)
	}
	return aggs, nil
}

// runExport はレポート一式を書き出し、-upload指定時はクラウドに送る。
func (p *pipeline) runExport(ctx context.Context, opts *Options) error {
	outputDir := opts.Out
	if outputDir == "" {
		outputDir = p.cfg.OutputDir
	}
	start, end := p.dateRange(opts)

	log := logger.ForStage(p.logger, "export")
	svc := export.NewService(p.videos, p.comments, p.aggs, log)
	files, err := svc.WriteReport(ctx, outputDir, start, end)
	if err != nil {
		return fmt.Errorf("レポート出力に失敗しました: %w", err)
	}

	if opts.Upload {
		uploader := export.NewCloudUploader(p.cfg.CloudUploadURL, p.cfg.CloudAPIKey, log)
		if !uploader.Configured() {
			log.Warn("CLOUD_UPLOAD_URL/CLOUD_API_KEYが未設定のためアップロードを省略します")
			return nil
		}
		// アップロード失敗はベストエフォート。ローカルファイルは残る。
		uploader.UploadAll(ctx, files.All())
	}
	return nil
}

// runAll は全ステージを順に実行する。途中のステージが失敗しても
// 後続ステージは実行し、最後にまとめてエラーを返す。
func (p *pipeline) runAll(ctx context.Context, opts *Options) error {
	var stageErrs []error

	if err := p.runFetch(ctx, opts); err != nil {
		p.logger.Error("fetchステージが失敗しました", "error", err)
		stageErrs = append(stageErrs, fmt.Errorf("fetch: %w", err))
	}
	if err := p.runClassify(ctx, opts); err != nil {
		p.logger.Error("classifyステージが失敗しました", "error", err)
		stageErrs = append(stageErrs, fmt.Errorf("classify: %w", err))
	}
	if _, err := p.runAggregate(ctx, opts); err != nil {
		p.logger.Error("aggregateステージが失敗しました", "error", err)
		stageErrs = append(stageErrs, fmt.Errorf("aggregate: %w", err))
	}
	if err := p.runExport(ctx, opts); err != nil {
		p.logger.Error("exportステージが失敗しました", "error", err)
		stageErrs = append(stageErrs, fmt.Errorf("export: %w", err))
	}

	return errors.Join(stageErrs...)
}

// runStatus はタスク種別ごとの最新進捗と保存件数をJSONで出力する。
func (p *pipeline) runStatus(ctx context.Context, w io.Writer) error {
	latest, err := p.progressRepo.LatestPerTask(ctx)
	if err != nil {
		return fmt.Errorf("進捗の取得に失敗しました: %w", err)
	}

	type taskLine struct {
		Status       model.ProgressStatus `json:"status"`
		TargetID     string               `json:"target_id,omitempty"`
		PageCursor   string               `json:"page_cursor,omitempty"`
		ErrorMessage string               `json:"error_message,omitempty"`
		UpdatedAt    time.Time            `json:"updated_at"`
	}
	out := struct {
		Tasks  map[string]taskLine `json:"tasks"`
		Counts map[string]int      `json:"counts"`
	}{
		Tasks:  make(map[string]taskLine, len(latest)),
		Counts: make(map[string]int, 3),
	}
	for taskType, row := range latest {
		out.Tasks[string(taskType)] = taskLine{
			Status:       row.Status,
			TargetID:     row.TargetID,
			PageCursor:   row.PageCursor,
			ErrorMessage: row.ErrorMessage,
			UpdatedAt:    row.UpdatedAt,
		}
	}

	for name, counter := range map[string]interface {
		Count(ctx context.Context) (int, error)
	}{
		"videos":        p.videos,
		"comments":      p.comments,
		"cache_entries": p.cacheRepo,
	} {
		n, err := counter.Count(ctx)
		if err != nil {
			return fmt.Errorf("件数の取得に失敗しました: %w", err)
		}
		out.Counts[name] = n
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// runServe はHTTPサーバーモードで起動する。進捗クリーンアップジョブを
// 日次でバックグラウンド実行し、シグナル受信でグレースフルシャットダウンする。
func (p *pipeline) runServe(ctx context.Context) error {
	statusHandler := handler.NewStatusHandler(
		p.progressRepo, p.videos, p.comments, p.cacheRepo, p.logger)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:  p.logger,
		Status:  statusHandler,
		Metrics: metrics.Handler(p.registry),
	})

	server := &http.Server{
		Addr:         ":" + p.cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	cleanupJob := cleanup.NewCleanupJob(p.progressRepo, p.logger)
	go func() {
		if err := cleanupJob.Run(ctx); err != nil {
			p.logger.Error("cleanup job failed", slog.String("error", err.Error()))
		}
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.Run(ctx); err != nil {
					p.logger.Error("cleanup job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	go func() {
		p.logger.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			p.logger.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-ctx.Done()
	p.logger.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	p.logger.Info("API server stopped gracefully")
	return nil
}

// maskDatabaseURL は接続URLのパスワード部分を伏せる。
func maskDatabaseURL(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "(invalid url)"
	}
	if u.User != nil {
		if _, has := u.User.Password(); has {
			u.User = url.UserPassword(u.User.Username(), "****")
		}
	}
	return u.String()
}
