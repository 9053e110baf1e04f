package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/metrics"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/repository"
)

// ReasoningClient は外部推論サービスへの1回の分類要求。
// 応答本文の生JSONを返す。リトライとバックオフは実装側の責務。
type ReasoningClient interface {
	ClassifyCollab(ctx context.Context, title, description string) (outputJSON string, err error)
	ModelName() string
}

// VideoError はバッチ内で分類に失敗した1動画の記録。
type VideoError struct {
	VideoID string
	Err     error
}

// RunSummary は分類バッチ1回の実行結果。
type RunSummary struct {
	Processed     int
	RuleCount     int
	FallbackCount int
	CacheHits     int
	Collabs       int
	NonCollabs    int
	Unchanged     int
	Errors        []VideoError
}

// Orchestrator は2段構成の分類フローを駆動する。
// ルール分類器の確信度が閾値以上ならそのまま確定し、未満の場合のみ
// 決定キャッシュ越しにフォールバック分類器を呼ぶ。
type Orchestrator struct {
	videos    repository.VideoRepository
	rule      *RuleClassifier
	cache     *Cache
	reasoning ReasoningClient // nilの場合フォールバックは無効
	threshold float64
	workers   int
	logger    *slog.Logger
	collector metrics.MetricsCollector
}

// NewOrchestrator はOrchestratorを生成する。reasoningにnilを渡すと
// フォールバック分類は無効になり、ルール分類結果で常に確定する。
func NewOrchestrator(
	videos repository.VideoRepository,
	rule *RuleClassifier,
	cache *Cache,
	reasoning ReasoningClient,
	threshold float64,
	workers int,
	logger *slog.Logger,
	collector metrics.MetricsCollector,
) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		videos:    videos,
		rule:      rule,
		cache:     cache,
		reasoning: reasoning,
		threshold: threshold,
		workers:   workers,
		logger:    logger,
		collector: collector,
	}
}

// ClassifyVideo は1動画の分類を確定して返す（永続化はしない）。
//
// ルール分類の確信度が閾値未満でフォールバックが有効な場合、
// 決定キャッシュ越しに外部推論サービスを呼ぶ。応答のスキーマ違反は
// ルール分類結果への降格で回復する。外部サービス障害はエラーとして
// 返し、呼び出し側（バッチ）が動画単位で隔離する。
func (o *Orchestrator) ClassifyVideo(ctx context.Context, video *model.Video) (*model.ClassificationResult, error) {
	ruleResult := o.rule.Classify(video.Title, video.Description)

	if ruleResult.Confidence >= o.threshold || o.reasoning == nil {
		return ruleResult, nil
	}

	key := CacheKey(video.Title, video.Description)
	raw, hit, err := o.cache.GetOrCompute(ctx, key, video.Title+"\n"+video.Description,
		func(ctx context.Context) (string, string, error) {
			output, err := o.reasoning.ClassifyCollab(ctx, video.Title, video.Description)
			return output, o.reasoning.ModelName(), err
		})
	if err != nil {
		return nil, err
	}
	o.collector.RecordCacheLookup(hit)

	result, err := ParseDecision(raw)
	if err != nil {
		if !errors.Is(err, model.ErrClassificationParse) {
			return nil, err
		}
		// スキーマ違反はルール分類結果に降格して回復する
		o.logger.Warn("フォールバック応答が不正のためルール分類結果に降格します",
			slog.String("video_id", video.VideoID),
			slog.String("error", err.Error()))
		return ruleResult, nil
	}

	result.CacheHit = hit
	return result, nil
}

// ClassifyPending は未分類の全動画を分類して永続化する。
// 動画単位の失敗はバッチを中断せず、RunSummary.Errorsに記録される。
func (o *Orchestrator) ClassifyPending(ctx context.Context) (*RunSummary, error) {
	videos, err := o.videos.ListUnclassified(ctx)
	if err != nil {
		return nil, err
	}
	o.logger.Info("未分類動画の分類を開始します", slog.Int("count", len(videos)))
	return o.classifyBatch(ctx, videos, false)
}

// ReclassifyAll は分類済みを含む全動画を再分類する。
// 新しい結果が既存の確定内容と同一の動画は書き込まない
// （updated_atの不要な更新を避ける）。
func (o *Orchestrator) ReclassifyAll(ctx context.Context) (*RunSummary, error) {
	videos, err := o.videos.ListAll(ctx, 0)
	if err != nil {
		return nil, err
	}
	o.logger.Info("全動画の再分類を開始します", slog.Int("count", len(videos)))
	return o.classifyBatch(ctx, videos, true)
}

// classifyBatch は有界ワーカープールで動画群を分類する。
// 書き込みは動画単位で独立しており、ストレージ整合性違反のみ
// バッチ全体を中断する。
func (o *Orchestrator) classifyBatch(ctx context.Context, videos []*model.Video, skipUnchanged bool) (*RunSummary, error) {
	summary := &RunSummary{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, o.workers)

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var fatal error

	for _, video := range videos {
		if batchCtx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(video *model.Video) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := o.classifyAndPersist(batchCtx, video, skipUnchanged)

			mu.Lock()
			defer mu.Unlock()
			summary.Processed++

			if err != nil {
				// 整合性違反はデータモデルのバグなのでバッチを中断する
				if errors.Is(err, model.ErrStorageIntegrity) {
					fatal = err
					cancel()
					return
				}
				o.collector.RecordClassificationFailure()
				summary.Errors = append(summary.Errors, VideoError{VideoID: video.VideoID, Err: err})
				o.logger.Warn("動画の分類に失敗しました",
					slog.String("video_id", video.VideoID),
					slog.String("error", err.Error()))
				return
			}
			if result == nil {
				summary.Unchanged++
				return
			}

			o.collector.RecordClassification(string(result.Method), result.IsCollab)
			switch result.Method {
			case model.MethodRule:
				summary.RuleCount++
			case model.MethodFallback:
				summary.FallbackCount++
				if result.CacheHit {
					summary.CacheHits++
				}
			}
			if result.IsCollab {
				summary.Collabs++
			} else {
				summary.NonCollabs++
			}
		}(video)
	}

	wg.Wait()

	if fatal != nil {
		return summary, fatal
	}

	o.logger.Info("分類バッチが完了しました",
		slog.Int("processed", summary.Processed),
		slog.Int("rule", summary.RuleCount),
		slog.Int("fallback", summary.FallbackCount),
		slog.Int("cache_hits", summary.CacheHits),
		slog.Int("collabs", summary.Collabs),
		slog.Int("unchanged", summary.Unchanged),
		slog.Int("errors", len(summary.Errors)))
	return summary, nil
}

// classifyAndPersist は1動画を分類して書き込む。
// 無変更スキップの場合は(nil, nil)を返す。
func (o *Orchestrator) classifyAndPersist(ctx context.Context, video *model.Video, skipUnchanged bool) (*model.ClassificationResult, error) {
	result, err := o.ClassifyVideo(ctx, video)
	if err != nil {
		return nil, fmt.Errorf("分類に失敗しました: %w", err)
	}

	result.Normalize()

	if skipUnchanged && video.Classified() && result.SameDecision(video) {
		return nil, nil
	}

	if err := o.videos.UpdateClassification(ctx, video.VideoID, result); err != nil {
		return nil, err
	}
	return result, nil
}
