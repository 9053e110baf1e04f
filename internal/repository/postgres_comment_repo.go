package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
)

// PostgresCommentRepo はPostgreSQLを使用したコメントリポジトリ。
type PostgresCommentRepo struct {
	db *sql.DB
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db *sql.DB) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

// UpsertBatch はコメントを一括で挿入または更新する。
// 1トランザクション内で処理し、途中で失敗した場合は全件ロールバックする
// （チェックポイントの耐久書き込み単位をページと一致させるため）。
func (r *PostgresCommentRepo) UpsertBatch(ctx context.Context, comments []*model.Comment) error {
	if len(comments) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO comments (
			comment_id, video_id, author_name, author_channel_id,
			text_original, text_display, published_at, like_count,
			parent_id, is_reply, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		ON CONFLICT (comment_id) DO UPDATE SET
			like_count = EXCLUDED.like_count,
			text_display = EXCLUDED.text_display,
			updated_at = now()`)
	if err != nil {
		return fmt.Errorf("コメントUPSERT文の準備に失敗しました: %w", err)
	}
	defer stmt.Close()

	for _, c := range comments {
		_, err := stmt.ExecContext(ctx,
			c.CommentID, c.VideoID, c.AuthorName, c.AuthorChannelID,
			c.TextOriginal, c.TextDisplay, c.PublishedAt, c.LikeCount,
			c.ParentID, c.IsReply,
		)
		if err != nil {
			return fmt.Errorf("コメントのUPSERTに失敗しました (comment_id=%s): %w",
				c.CommentID, mapStorageError(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// ListByVideoID は指定動画のコメントを公開日時降順で取得する。
func (r *PostgresCommentRepo) ListByVideoID(ctx context.Context, videoID string) ([]*model.Comment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT comment_id, video_id, author_name, author_channel_id,
		       text_original, text_display, published_at, like_count,
		       parent_id, is_reply, created_at, updated_at
		FROM comments
		WHERE video_id = $1
		ORDER BY published_at DESC NULLS LAST`, videoID)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var comments []*model.Comment
	for rows.Next() {
		c := &model.Comment{}
		var publishedAt sql.NullTime
		err := rows.Scan(
			&c.CommentID, &c.VideoID, &c.AuthorName, &c.AuthorChannelID,
			&c.TextOriginal, &c.TextDisplay, &publishedAt, &c.LikeCount,
			&c.ParentID, &c.IsReply, &c.CreatedAt, &c.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("コメント行のスキャンに失敗しました: %w", err)
		}
		if publishedAt.Valid {
			t := publishedAt.Time
			c.PublishedAt = &t
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("コメント行の読み取りに失敗しました: %w", err)
	}
	return comments, nil
}

// StatsByVideoID は指定動画の保存済みコメント数とlike合計を返す。
func (r *PostgresCommentRepo) StatsByVideoID(ctx context.Context, videoID string) (*CommentStats, error) {
	stats := &CommentStats{}
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(like_count), 0)
		FROM comments WHERE video_id = $1`, videoID).
		Scan(&stats.Count, &stats.TotalLikes)
	if err != nil {
		return nil, fmt.Errorf("コメント統計の取得に失敗しました: %w", err)
	}
	return stats, nil
}

// Count は保存済みコメント数を返す。
func (r *PostgresCommentRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM comments`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("コメント数の取得に失敗しました: %w", err)
	}
	return count, nil
}
