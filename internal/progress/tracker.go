// Package progress は再開可能なフェッチ進捗の状態機械を管理する。
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/repository"
)

// Tracker は(task_type, target_id)キー単位のフェッチ進捗を駆動する。
// 状態遷移はmodel.CanTransitionで検証し、in_progressの同時実行は
// DB側の部分一意インデックスが最終防衛線となる。
type Tracker struct {
	repo   repository.ProgressRepository
	logger *slog.Logger
}

// staleInProgressAfter はin_progress行をクラッシュ残骸とみなすまでの
// 無更新時間。実行中のフェッチはページごとのCheckpointでupdated_atが
// 進むため、この時間更新がない行は中断された実行と判断できる。
const staleInProgressAfter = 15 * time.Minute

// NewTracker はTrackerを生成する。
func NewTracker(repo repository.ProgressRepository, logger *slog.Logger) *Tracker {
	return &Tracker{repo: repo, logger: logger}
}

// Latest は指定キーの最新の進捗行を返す。見つからない場合はnil。
func (t *Tracker) Latest(ctx context.Context, taskType model.TaskType, targetID string) (*model.FetchProgress, error) {
	return t.repo.FindLatest(ctx, taskType, targetID)
}

// Begin はフェッチ実行を開始し、in_progress状態の進捗行を返す。
//
//   - 前回実行がfailedの場合はそのカーソルを引き継いで再開する
//     （failed → in_progress遷移）。
//   - 前回実行がin_progressで更新が新しい場合はmodel.ErrConcurrentFetchを
//     返す。更新がstaleInProgressAfter以上止まっている場合はクラッシュで
//     中断された実行とみなし、そのカーソルを引き継いで再開する。
//   - それ以外（初回・前回completed）は空カーソルの新規実行を開始する。
//
// 返り値の進捗行はCheckpoint/Complete/Failに渡して使う。
func (t *Tracker) Begin(ctx context.Context, taskType model.TaskType, targetID string) (*model.FetchProgress, error) {
	latest, err := t.repo.FindLatest(ctx, taskType, targetID)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	if latest != nil {
		switch latest.Status {
		case model.StatusInProgress:
			// シングルライター前提では、長時間更新のないin_progress行は
			// プロセスクラッシュの残骸でしかない。カーソルを引き継いで
			// 再開し、行を引き取る。
			if time.Since(latest.UpdatedAt) < staleInProgressAfter {
				return nil, model.NewConcurrentFetchError(taskType, targetID)
			}
			latest.ErrorMessage = ""
			latest.StartedAt = &now
			latest.CompletedAt = nil
			if err := t.repo.Update(ctx, latest); err != nil {
				return nil, err
			}
			t.logger.Warn("中断されたフェッチを引き取って再開します",
				slog.String("task_type", string(taskType)),
				slog.String("target_id", targetID),
				slog.String("cursor", latest.PageCursor),
				slog.Time("last_updated_at", latest.UpdatedAt))
			return latest, nil

		case model.StatusFailed:
			// 失敗行のカーソルから再開する
			if !model.CanTransition(latest.Status, model.StatusInProgress) {
				return nil, fmt.Errorf("status=%s: %w", latest.Status, model.ErrInvalidTransition)
			}
			latest.Status = model.StatusInProgress
			latest.ErrorMessage = ""
			latest.StartedAt = &now
			latest.CompletedAt = nil
			if err := t.repo.Update(ctx, latest); err != nil {
				return nil, err
			}
			t.logger.Info("フェッチを再開します",
				slog.String("task_type", string(taskType)),
				slog.String("target_id", targetID),
				slog.String("cursor", latest.PageCursor))
			return latest, nil

		case model.StatusPending:
			// ResetCompleted済みの行。先頭から開始する
			latest.Status = model.StatusInProgress
			latest.PageCursor = ""
			latest.ErrorMessage = ""
			latest.StartedAt = &now
			latest.CompletedAt = nil
			if err := t.repo.Update(ctx, latest); err != nil {
				return nil, err
			}
			return latest, nil
		}
	}

	// 初回、または前回completed: 新規実行
	p := &model.FetchProgress{
		TaskType:  taskType,
		TargetID:  targetID,
		Status:    model.StatusInProgress,
		StartedAt: &now,
	}
	id, err := t.repo.Create(ctx, p)
	if err != nil {
		return nil, err
	}
	p.ID = id

	t.logger.Info("フェッチを開始します",
		slog.String("task_type", string(taskType)),
		slog.String("target_id", targetID))
	return p, nil
}

// Checkpoint はページの耐久書き込み完了後に継続カーソルを記録する。
// in_progress以外の行へのチェックポイントはErrInvalidTransitionになる。
func (t *Tracker) Checkpoint(ctx context.Context, p *model.FetchProgress, cursor string) error {
	if p.Status != model.StatusInProgress {
		return fmt.Errorf("status=%s: %w", p.Status, model.ErrInvalidTransition)
	}
	p.PageCursor = cursor
	return t.repo.Update(ctx, p)
}

// Complete は実行を完了状態に遷移させ、カーソルをクリアする。
// 打ち切り完了（遡及期間到達・コメント上限）でも途中カーソルは残さない。
func (t *Tracker) Complete(ctx context.Context, p *model.FetchProgress) error {
	if !model.CanTransition(p.Status, model.StatusCompleted) {
		return fmt.Errorf("status=%s: %w", p.Status, model.ErrInvalidTransition)
	}
	now := time.Now()
	p.Status = model.StatusCompleted
	p.PageCursor = ""
	p.CompletedAt = &now
	p.ErrorMessage = ""
	if err := t.repo.Update(ctx, p); err != nil {
		return err
	}

	t.logger.Info("フェッチが完了しました",
		slog.String("task_type", string(p.TaskType)),
		slog.String("target_id", p.TargetID))
	return nil
}

// Fail は実行を失敗状態に遷移させる。カーソルは最後の正常な
// チェックポイントのまま保持され、次回のBeginで再開点になる。
func (t *Tracker) Fail(ctx context.Context, p *model.FetchProgress, cause error) error {
	if !model.CanTransition(p.Status, model.StatusFailed) {
		return fmt.Errorf("status=%s: %w", p.Status, model.ErrInvalidTransition)
	}
	p.Status = model.StatusFailed
	if cause != nil {
		p.ErrorMessage = cause.Error()
	}
	if err := t.repo.Update(ctx, p); err != nil {
		return err
	}

	t.logger.Warn("フェッチが失敗しました",
		slog.String("task_type", string(p.TaskType)),
		slog.String("target_id", p.TargetID),
		slog.String("error", p.ErrorMessage))
	return nil
}

// ResetCompleted は完了済みの最新行をpendingに戻す。
// 明示的なフルリフェッチ（-fullフラグ）専用で、次のBeginは
// カーソルなしの先頭から実行される。対象行がない・完了済みでない場合は
// 何もしない。
func (t *Tracker) ResetCompleted(ctx context.Context, taskType model.TaskType, targetID string) error {
	latest, err := t.repo.FindLatest(ctx, taskType, targetID)
	if err != nil {
		return err
	}
	if latest == nil || latest.Status != model.StatusCompleted {
		return nil
	}
	if !model.CanTransition(latest.Status, model.StatusPending) {
		return fmt.Errorf("status=%s: %w", latest.Status, model.ErrInvalidTransition)
	}

	latest.Status = model.StatusPending
	latest.PageCursor = ""
	latest.ErrorMessage = ""
	latest.CompletedAt = nil
	if err := t.repo.Update(ctx, latest); err != nil {
		return err
	}

	t.logger.Info("進捗をリセットしました",
		slog.String("task_type", string(taskType)),
		slog.String("target_id", targetID))
	return nil
}
