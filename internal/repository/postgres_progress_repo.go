package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
)

// PostgresProgressRepo はPostgreSQLを使用したフェッチ進捗リポジトリ。
// at-most-one-in-flight不変条件はアプリケーション側のチェックではなく
// 部分一意インデックスidx_fetch_progress_in_flightで保証する。
type PostgresProgressRepo struct {
	db *sql.DB
}

// NewPostgresProgressRepo はPostgresProgressRepoを生成する。
func NewPostgresProgressRepo(db *sql.DB) *PostgresProgressRepo {
	return &PostgresProgressRepo{db: db}
}

const progressColumns = `id, task_type, target_id, status, page_cursor,
	error_message, started_at, completed_at, created_at, updated_at`

// FindLatest は指定キーの最新の進捗行を取得する。見つからない場合はnilを返す。
func (r *PostgresProgressRepo) FindLatest(ctx context.Context, taskType model.TaskType, targetID string) (*model.FetchProgress, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+progressColumns+` FROM fetch_progress
		 WHERE task_type = $1 AND target_id = $2
		 ORDER BY updated_at DESC LIMIT 1`,
		string(taskType), targetID)

	p, err := scanProgress(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("進捗行の取得に失敗しました: %w", err)
	}
	return p, nil
}

// Create は新しい進捗行を挿入してIDを返す。
// 同一キーのin_progress行が既に存在する場合は部分一意インデックス違反が
// model.ErrConcurrentFetchに写像される。
func (r *PostgresProgressRepo) Create(ctx context.Context, p *model.FetchProgress) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO fetch_progress (
			task_type, target_id, status, page_cursor,
			error_message, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		string(p.TaskType), p.TargetID, string(p.Status), p.PageCursor,
		p.ErrorMessage, p.StartedAt, p.CompletedAt,
	).Scan(&id)
	if err != nil {
		mapped := mapStorageError(err)
		if errors.Is(mapped, model.ErrConcurrentFetch) {
			return 0, model.NewConcurrentFetchError(p.TaskType, p.TargetID)
		}
		return 0, fmt.Errorf("進捗行の作成に失敗しました: %w", mapped)
	}
	return id, nil
}

// Update は進捗行の状態・カーソル・エラーを更新する。
// in_progressへの遷移が部分一意インデックスと競合した場合は
// model.ErrConcurrentFetchを返す。
func (r *PostgresProgressRepo) Update(ctx context.Context, p *model.FetchProgress) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE fetch_progress SET
			status = $2,
			page_cursor = $3,
			error_message = $4,
			started_at = $5,
			completed_at = $6,
			updated_at = now()
		WHERE id = $1`,
		p.ID, string(p.Status), p.PageCursor, p.ErrorMessage,
		p.StartedAt, p.CompletedAt,
	)
	if err != nil {
		mapped := mapStorageError(err)
		if errors.Is(mapped, model.ErrConcurrentFetch) {
			return model.NewConcurrentFetchError(p.TaskType, p.TargetID)
		}
		return fmt.Errorf("進捗行の更新に失敗しました: %w", mapped)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の確認に失敗しました: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("進捗行が見つかりません (id=%d)", p.ID)
	}
	return nil
}

// ListByStatus は指定タスク種別・状態の進捗行を取得する。
func (r *PostgresProgressRepo) ListByStatus(ctx context.Context, taskType model.TaskType, statuses []model.ProgressStatus) ([]*model.FetchProgress, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	args := []any{string(taskType)}
	placeholders := ""
	for i, s := range statuses {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += fmt.Sprintf("$%d", i+2)
		args = append(args, string(s))
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+progressColumns+` FROM fetch_progress
		 WHERE task_type = $1 AND status IN (`+placeholders+`)
		 ORDER BY updated_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("進捗一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var list []*model.FetchProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("進捗行のスキャンに失敗しました: %w", err)
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("進捗行の読み取りに失敗しました: %w", err)
	}
	return list, nil
}

// LatestPerTask はタスク種別ごとの最新行を返す。
func (r *PostgresProgressRepo) LatestPerTask(ctx context.Context) (map[model.TaskType]*model.FetchProgress, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT ON (task_type) `+progressColumns+`
		FROM fetch_progress
		ORDER BY task_type, updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("最新進捗の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	result := make(map[model.TaskType]*model.FetchProgress)
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("進捗行のスキャンに失敗しました: %w", err)
		}
		result[p.TaskType] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("進捗行の読み取りに失敗しました: %w", err)
	}
	return result, nil
}

// DeleteCompletedBefore は指定時刻より前に完了した行を削除し、件数を返す。
func (r *PostgresProgressRepo) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM fetch_progress
		 WHERE status = 'completed' AND completed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("完了済み進捗の削除に失敗しました: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除結果の確認に失敗しました: %w", err)
	}
	return deleted, nil
}

func scanProgress(row rowScanner) (*model.FetchProgress, error) {
	p := &model.FetchProgress{}
	var taskType, status string
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&p.ID, &taskType, &p.TargetID, &status, &p.PageCursor,
		&p.ErrorMessage, &startedAt, &completedAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.TaskType = model.TaskType(taskType)
	p.Status = model.ProgressStatus(status)
	if startedAt.Valid {
		t := startedAt.Time
		p.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		p.CompletedAt = &t
	}
	return p, nil
}
