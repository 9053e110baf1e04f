// Package cleanup は完了済みフェッチ進捗行の自動削除ジョブを提供する。
// 進捗テーブルは実行のたびに行が増えるため、保持期間（デフォルト90日）を
// 超過した完了行を定期的に削除する。failed行は再開に必要なため残す。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/repository"
)

// CleanupJob は保持期間を超過した完了済み進捗行の自動削除ジョブ。
// 冪等な削除処理で、削除対象がない場合でもエラーにならない。
type CleanupJob struct {
	progress      repository.ProgressRepository
	logger        *slog.Logger
	RetentionDays int // 完了行の保持日数（デフォルト: 90）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は90日。
func NewCleanupJob(progress repository.ProgressRepository, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		progress:      progress,
		logger:        logger,
		RetentionDays: 90,
	}
}

// Run は保持期間を超過した完了済み進捗行を削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := start.AddDate(0, 0, -j.RetentionDays)

	deletedCount, err := j.progress.DeleteCompletedBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("進捗クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("進捗クリーンアップの実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("進捗クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return nil
}
