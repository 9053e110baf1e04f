// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
)

// VideoRepository は動画データの永続化インターフェース。
type VideoRepository interface {
	// FindByID は指定IDの動画を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, videoID string) (*model.Video, error)

	// Upsert は動画を挿入または更新する。更新時は統計フィールドと
	// 基本情報のみを上書きし、分類フィールドとcreated_atは保持する。
	Upsert(ctx context.Context, video *model.Video) error

	// UpdateClassification は分類フィールドのみを更新する。
	// オーケストレーター専用の書き込み経路。
	UpdateClassification(ctx context.Context, videoID string, result *model.ClassificationResult) error

	// UpdateCommentsCapped はコメントフェッチ打ち切りフラグを更新する。
	UpdateCommentsCapped(ctx context.Context, videoID string, capped bool) error

	// ListUnclassified は未分類の動画を公開日時降順で取得する。
	ListUnclassified(ctx context.Context) ([]*model.Video, error)

	// ListAll は全動画を公開日時降順で取得する。limit<=0は無制限。
	ListAll(ctx context.Context, limit int) ([]*model.Video, error)

	// ListCollabsInRange は期間内のコラボ動画を取得する。
	ListCollabsInRange(ctx context.Context, start, end time.Time) ([]*model.Video, error)

	// LatestPublishedAt は保存済み動画の最新公開日時を返す。
	// 動画が1件もない場合はゼロ値を返す。
	LatestPublishedAt(ctx context.Context) (time.Time, error)

	// Count は保存済み動画数を返す。
	Count(ctx context.Context) (int, error)
}

// CommentStats は動画単位のコメント取得状況の要約。
type CommentStats struct {
	Count      int
	TotalLikes int64
}

// CommentRepository はコメントデータの永続化インターフェース。
type CommentRepository interface {
	// UpsertBatch はコメントを一括で挿入または更新する。
	// 既存コメントはlike_countとtext_displayのみ上書きされる。
	UpsertBatch(ctx context.Context, comments []*model.Comment) error

	// ListByVideoID は指定動画のコメントを公開日時降順で取得する。
	ListByVideoID(ctx context.Context, videoID string) ([]*model.Comment, error)

	// StatsByVideoID は指定動画の保存済みコメント数とlike合計を返す。
	StatsByVideoID(ctx context.Context, videoID string) (*CommentStats, error)

	// Count は保存済みコメント数を返す。
	Count(ctx context.Context) (int, error)
}

// AggregateRepository はパートナー別集計の永続化インターフェース。
type AggregateRepository interface {
	// Upsert は(partner_name, date_range_start, date_range_end)を
	// キーとして集計行を挿入または全上書きする。
	Upsert(ctx context.Context, agg *model.PartnerAggregate) error

	// ListByRange は指定期間の集計行を合計視聴数降順で取得する。
	ListByRange(ctx context.Context, start, end time.Time) ([]*model.PartnerAggregate, error)

	// ListAll は全集計行を合計視聴数降順で取得する。
	ListAll(ctx context.Context) ([]*model.PartnerAggregate, error)
}

// ProgressRepository はフェッチ進捗の永続化インターフェース。
// in_progress行の一意性はDBの部分一意インデックスで保証される。
type ProgressRepository interface {
	// FindLatest は指定キーの最新の進捗行を取得する。見つからない場合はnilを返す。
	FindLatest(ctx context.Context, taskType model.TaskType, targetID string) (*model.FetchProgress, error)

	// Create は新しい進捗行を挿入してIDを返す。
	// 同一キーのin_progress行が既に存在する場合はmodel.ErrConcurrentFetchを返す。
	Create(ctx context.Context, p *model.FetchProgress) (int64, error)

	// Update は進捗行の状態・カーソル・エラーを更新する。
	Update(ctx context.Context, p *model.FetchProgress) error

	// ListByStatus は指定タスク種別・状態の進捗行を取得する。
	ListByStatus(ctx context.Context, taskType model.TaskType, statuses []model.ProgressStatus) ([]*model.FetchProgress, error)

	// LatestPerTask はタスク種別ごとの最新行を返す（statusコマンド用）。
	LatestPerTask(ctx context.Context) (map[model.TaskType]*model.FetchProgress, error)

	// DeleteCompletedBefore は指定時刻より前に完了した行を削除し、件数を返す。
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CacheRepository は決定キャッシュの永続化インターフェース。
type CacheRepository interface {
	// Find は指定キーのエントリを取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, cacheKey string) (*model.CacheEntry, error)

	// Put はエントリを書き込む。既存キーへの書き込みは無視される
	// （write-once: 先勝ち）。
	Put(ctx context.Context, entry *model.CacheEntry) error

	// Count は保存済みエントリ数を返す。
	Count(ctx context.Context) (int, error)
}
