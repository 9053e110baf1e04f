package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
)

// PostgresAggregateRepo はPostgreSQLを使用したパートナー別集計リポジトリ。
type PostgresAggregateRepo struct {
	db *sql.DB
}

// NewPostgresAggregateRepo はPostgresAggregateRepoを生成する。
func NewPostgresAggregateRepo(db *sql.DB) *PostgresAggregateRepo {
	return &PostgresAggregateRepo{db: db}
}

// Upsert は(partner_name, date_range_start, date_range_end)をキーとして
// 集計行を挿入または全上書きする。加算ではなく毎回の再計算結果で置換する。
func (r *PostgresAggregateRepo) Upsert(ctx context.Context, agg *model.PartnerAggregate) error {
	topJSON, err := json.Marshal(agg.TopVideos)
	if err != nil {
		return fmt.Errorf("代表動画のJSON化に失敗しました: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO collab_agg (
			partner_name, category, region,
			date_range_start, date_range_end,
			video_count, total_views, total_video_likes,
			total_comments, total_comment_likes, comment_likes_partial,
			avg_views, avg_video_likes, like_rate, comment_rate,
			top_videos_json, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
		          $12, $13, $14, $15, $16, now(), now())
		ON CONFLICT ON CONSTRAINT collab_agg_partner_range_key DO UPDATE SET
			category = EXCLUDED.category,
			region = EXCLUDED.region,
			video_count = EXCLUDED.video_count,
			total_views = EXCLUDED.total_views,
			total_video_likes = EXCLUDED.total_video_likes,
			total_comments = EXCLUDED.total_comments,
			total_comment_likes = EXCLUDED.total_comment_likes,
			comment_likes_partial = EXCLUDED.comment_likes_partial,
			avg_views = EXCLUDED.avg_views,
			avg_video_likes = EXCLUDED.avg_video_likes,
			like_rate = EXCLUDED.like_rate,
			comment_rate = EXCLUDED.comment_rate,
			top_videos_json = EXCLUDED.top_videos_json,
			updated_at = now()`,
		agg.PartnerName, string(agg.Category), string(agg.Region),
		agg.RangeStart, agg.RangeEnd,
		agg.VideoCount, agg.TotalViews, agg.TotalVideoLikes,
		agg.TotalComments, agg.TotalCommentLikes, agg.CommentLikesPartial,
		agg.AvgViews, agg.AvgVideoLikes, agg.LikeRate, agg.CommentRate,
		string(topJSON),
	)
	if err != nil {
		return fmt.Errorf("集計行のUPSERTに失敗しました: %w", mapStorageError(err))
	}
	return nil
}

// ListByRange は指定期間の集計行を合計視聴数降順で取得する。
func (r *PostgresAggregateRepo) ListByRange(ctx context.Context, start, end time.Time) ([]*model.PartnerAggregate, error) {
	rows, err := r.db.QueryContext(ctx,
		aggSelect+` WHERE date_range_start = $1 AND date_range_end = $2
		ORDER BY total_views DESC`, start, end)
	if err != nil {
		return nil, fmt.Errorf("集計一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectAggregates(rows)
}

// ListAll は全集計行を合計視聴数降順で取得する。
func (r *PostgresAggregateRepo) ListAll(ctx context.Context) ([]*model.PartnerAggregate, error) {
	rows, err := r.db.QueryContext(ctx, aggSelect+` ORDER BY total_views DESC`)
	if err != nil {
		return nil, fmt.Errorf("集計一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectAggregates(rows)
}

const aggSelect = `
	SELECT id, partner_name, category, region,
	       date_range_start, date_range_end,
	       video_count, total_views, total_video_likes,
	       total_comments, total_comment_likes, comment_likes_partial,
	       avg_views, avg_video_likes, like_rate, comment_rate,
	       top_videos_json, created_at, updated_at
	FROM collab_agg`

func collectAggregates(rows *sql.Rows) ([]*model.PartnerAggregate, error) {
	var aggs []*model.PartnerAggregate
	for rows.Next() {
		agg := &model.PartnerAggregate{}
		var category, region, topJSON string
		err := rows.Scan(
			&agg.ID, &agg.PartnerName, &category, &region,
			&agg.RangeStart, &agg.RangeEnd,
			&agg.VideoCount, &agg.TotalViews, &agg.TotalVideoLikes,
			&agg.TotalComments, &agg.TotalCommentLikes, &agg.CommentLikesPartial,
			&agg.AvgViews, &agg.AvgVideoLikes, &agg.LikeRate, &agg.CommentRate,
			&topJSON, &agg.CreatedAt, &agg.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("集計行のスキャンに失敗しました: %w", err)
		}
		agg.Category = model.Category(category)
		agg.Region = model.Region(region)
		if err := json.Unmarshal([]byte(topJSON), &agg.TopVideos); err != nil {
			return nil, fmt.Errorf("代表動画JSONの解析に失敗しました: %w", err)
		}
		aggs = append(aggs, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("集計行の読み取りに失敗しました: %w", err)
	}
	return aggs, nil
}
