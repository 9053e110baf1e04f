package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
)

// PostgresVideoRepo はPostgreSQLを使用した動画リポジトリ。
type PostgresVideoRepo struct {
	db *sql.DB
}

// NewPostgresVideoRepo はPostgresVideoRepoを生成する。
func NewPostgresVideoRepo(db *sql.DB) *PostgresVideoRepo {
	return &PostgresVideoRepo{db: db}
}

// videoColumns はSELECT句の列リスト。scanVideoの順序と一致させること。
const videoColumns = `video_id, title, description, published_at, duration,
	channel_id, channel_name, view_count, like_count, comment_count,
	comments_capped, is_collab, collab_partner, collab_category, collab_region,
	collab_summary, collab_confidence, classification_method,
	last_fetched_at, created_at, updated_at`

// FindByID は指定IDの動画を取得する。見つからない場合はnilを返す。
func (r *PostgresVideoRepo) FindByID(ctx context.Context, videoID string) (*model.Video, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE video_id = $1`, videoID)

	video, err := scanVideo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("動画の取得に失敗しました: %w", err)
	}
	return video, nil
}

// Upsert は動画を挿入または更新する。
// 既存行の更新では統計・基本情報・last_fetched_atのみを上書きし、
// 分類フィールド（is_collab以下）とcreated_atは既存値を保持する。
// 分類の書き込みはUpdateClassificationのみが行う。
func (r *PostgresVideoRepo) Upsert(ctx context.Context, video *model.Video) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO videos (
			video_id, title, description, published_at, duration,
			channel_id, channel_name, view_count, like_count, comment_count,
			last_fetched_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		ON CONFLICT (video_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			duration = EXCLUDED.duration,
			channel_id = EXCLUDED.channel_id,
			channel_name = EXCLUDED.channel_name,
			view_count = EXCLUDED.view_count,
			like_count = EXCLUDED.like_count,
			comment_count = EXCLUDED.comment_count,
			last_fetched_at = EXCLUDED.last_fetched_at,
			updated_at = EXCLUDED.updated_at`,
		video.VideoID, video.Title, video.Description, video.PublishedAt,
		video.Duration, video.ChannelID, video.ChannelName,
		video.ViewCount, video.LikeCount, video.CommentCount,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("動画のUPSERTに失敗しました: %w", mapStorageError(err))
	}
	return nil
}

// UpdateClassification は分類フィールドのみを更新する。
// is_collab=falseの不変条件（パートナー/カテゴリ空）はCHECK制約でも
// 検証されるが、書き込み前にresult.Normalizeが呼ばれている前提。
func (r *PostgresVideoRepo) UpdateClassification(
	ctx context.Context,
	videoID string,
	result *model.ClassificationResult,
) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE videos SET
			is_collab = $2,
			collab_partner = $3,
			collab_category = $4,
			collab_region = $5,
			collab_summary = $6,
			collab_confidence = $7,
			classification_method = $8,
			updated_at = now()
		WHERE video_id = $1`,
		videoID, result.IsCollab, result.PartnerName, string(result.Category),
		string(result.Region), result.OneLineSummary, result.Confidence,
		string(result.Method),
	)
	if err != nil {
		return fmt.Errorf("分類結果の更新に失敗しました: %w", mapStorageError(err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の確認に失敗しました: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("video_id=%s: %w", videoID, model.ErrVideoNotFound)
	}
	return nil
}

// UpdateCommentsCapped はコメントフェッチ打ち切りフラグを更新する。
func (r *PostgresVideoRepo) UpdateCommentsCapped(ctx context.Context, videoID string, capped bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE videos SET comments_capped = $2, updated_at = now() WHERE video_id = $1`,
		videoID, capped)
	if err != nil {
		return fmt.Errorf("コメント打ち切りフラグの更新に失敗しました: %w", err)
	}
	return nil
}

// ListUnclassified は未分類の動画を公開日時降順で取得する。
func (r *PostgresVideoRepo) ListUnclassified(ctx context.Context) ([]*model.Video, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+videoColumns+` FROM videos
		 WHERE classification_method = ''
		 ORDER BY published_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("未分類動画の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectVideos(rows)
}

// ListAll は全動画を公開日時降順で取得する。limit<=0は無制限。
func (r *PostgresVideoRepo) ListAll(ctx context.Context, limit int) ([]*model.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos ORDER BY published_at DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+` LIMIT $1`, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("動画一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectVideos(rows)
}

// ListCollabsInRange は期間内のコラボ動画を取得する。
func (r *PostgresVideoRepo) ListCollabsInRange(ctx context.Context, start, end time.Time) ([]*model.Video, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+videoColumns+` FROM videos
		 WHERE is_collab AND published_at >= $1 AND published_at <= $2
		 ORDER BY published_at DESC`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("コラボ動画の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectVideos(rows)
}

// LatestPublishedAt は保存済み動画の最新公開日時を返す。
func (r *PostgresVideoRepo) LatestPublishedAt(ctx context.Context) (time.Time, error) {
	var latest sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(published_at) FROM videos`).Scan(&latest)
	if err != nil {
		return time.Time{}, fmt.Errorf("最新公開日時の取得に失敗しました: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return latest.Time, nil
}

// Count は保存済み動画数を返す。
func (r *PostgresVideoRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("動画数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// rowScanner はsql.Rowとsql.Rowsの共通スキャンインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanVideo は1行をVideoに読み出す。videoColumnsの順序と一致させること。
func scanVideo(row rowScanner) (*model.Video, error) {
	video := &model.Video{}
	var category, region, method string

	err := row.Scan(
		&video.VideoID, &video.Title, &video.Description, &video.PublishedAt,
		&video.Duration, &video.ChannelID, &video.ChannelName,
		&video.ViewCount, &video.LikeCount, &video.CommentCount,
		&video.CommentsCapped, &video.IsCollab, &video.CollabPartner,
		&category, &region, &video.CollabSummary, &video.CollabConfidence,
		&method, &video.LastFetchedAt, &video.CreatedAt, &video.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	video.CollabCategory = model.Category(category)
	video.CollabRegion = model.Region(region)
	video.ClassificationMethod = model.Method(method)
	return video, nil
}

// collectVideos は結果セット全体をスライスに読み出す。
func collectVideos(rows *sql.Rows) ([]*model.Video, error) {
	var videos []*model.Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("動画行のスキャンに失敗しました: %w", err)
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("動画行の読み取りに失敗しました: %w", err)
	}
	return videos, nil
}
