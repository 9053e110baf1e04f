// Package aggregate はコラボ動画のパートナー別エンゲージメント集計を実装する。
// 集計は期間単位の再計算で、同一期間の再実行は前回の数値を全上書きする。
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/metrics"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/repository"
)

// topVideoLimit は集計行に埋め込む代表動画の件数。
const topVideoLimit = 3

// Service はパートナー別集計の計算と永続化を行う。
type Service struct {
	videos    repository.VideoRepository
	comments  repository.CommentRepository
	aggs      repository.AggregateRepository
	logger    *slog.Logger
	collector metrics.MetricsCollector
}

// NewService はServiceを生成する。
func NewService(videos repository.VideoRepository, comments repository.CommentRepository, aggs repository.AggregateRepository, logger *slog.Logger, collector metrics.MetricsCollector) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		videos:    videos,
		comments:  comments,
		aggs:      aggs,
		logger:    logger,
		collector: collector,
	}
}

// Run は指定期間のコラボ動画をパートナー別に集計して保存し、
// 合計視聴数降順の集計行を返す。再実行は冪等で、加算は行わない。
func (s *Service) Run(ctx context.Context, start, end time.Time) ([]*model.PartnerAggregate, error) {
	videos, err := s.videos.ListCollabsInRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("コラボ動画の取得に失敗しました: %w", err)
	}

	groups := make(map[string][]*model.Video)
	for _, v := range videos {
		if v.CollabPartner == "" {
			continue
		}
		groups[v.CollabPartner] = append(groups[v.CollabPartner], v)
	}

	aggs := make([]*model.PartnerAggregate, 0, len(groups))
	for partner, vs := range groups {
		agg, err := s.buildAggregate(ctx, partner, vs, start, end)
		if err != nil {
			return nil, err
		}
		aggs = append(aggs, agg)
	}

	// 視聴数降順・同数時はパートナー名昇順。出力を決定的にする。
	sort.Slice(aggs, func(i, j int) bool {
		if aggs[i].TotalViews != aggs[j].TotalViews {
			return aggs[i].TotalViews > aggs[j].TotalViews
		}
		return aggs[i].PartnerName < aggs[j].PartnerName
	})

	for _, agg := range aggs {
		if err := s.aggs.Upsert(ctx, agg); err != nil {
			return nil, fmt.Errorf("集計行の保存に失敗しました: %w", err)
		}
	}

	s.collector.RecordAggregateRun(len(aggs))
	s.logger.Info("パートナー別集計が完了しました",
		"range_start", start.Format(time.DateOnly),
		"range_end", end.Format(time.DateOnly),
		"collab_videos", len(videos),
		"partners", len(aggs))
	return aggs, nil
}

func (s *Service) buildAggregate(ctx context.Context, partner string, videos []*model.Video, start, end time.Time) (*model.PartnerAggregate, error) {
	agg := &model.PartnerAggregate{
		PartnerName: partner,
		Category:    majorityCategory(videos),
		Region:      majorityRegion(videos),
		RangeStart:  start,
		RangeEnd:    end,
		VideoCount:  len(videos),
	}

	for _, v := range videos {
		agg.TotalViews += v.ViewCount
		agg.TotalVideoLikes += v.LikeCount
		agg.TotalComments += v.CommentCount

		stats, err := s.comments.StatsByVideoID(ctx, v.VideoID)
		if err != nil {
			return nil, fmt.Errorf("コメント統計の取得に失敗しました: %w", err)
		}
		agg.TotalCommentLikes += stats.TotalLikes

		// 打ち切られた動画、または保存済みコメントがAPIの申告数に
		// 満たない動画が1件でもあればlike合計は不完全とみなす。
		if v.CommentsCapped || int64(stats.Count) < v.CommentCount {
			agg.CommentLikesPartial = true
		}
	}

	if agg.VideoCount > 0 {
		agg.AvgViews = float64(agg.TotalViews) / float64(agg.VideoCount)
		agg.AvgVideoLikes = float64(agg.TotalVideoLikes) / float64(agg.VideoCount)
	}
	if agg.TotalViews > 0 {
		agg.LikeRate = float64(agg.TotalVideoLikes) / float64(agg.TotalViews)
		agg.CommentRate = float64(agg.TotalComments) / float64(agg.TotalViews)
	}

	agg.TopVideos = topVideos(videos)
	return agg, nil
}

// topVideos は視聴数降順の上位動画を返す。同数時は動画ID昇順で安定化する。
func topVideos(videos []*model.Video) []model.TopVideo {
	sorted := make([]*model.Video, len(videos))
	copy(sorted, videos)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ViewCount != sorted[j].ViewCount {
			return sorted[i].ViewCount > sorted[j].ViewCount
		}
		return sorted[i].VideoID < sorted[j].VideoID
	})

	n := len(sorted)
	if n > topVideoLimit {
		n = topVideoLimit
	}
	top := make([]model.TopVideo, 0, n)
	for _, v := range sorted[:n] {
		top = append(top, model.TopVideo{
			VideoID:   v.VideoID,
			Title:     v.Title,
			ViewCount: v.ViewCount,
			LikeCount: v.LikeCount,
		})
	}
	return top
}

// majorityCategory はグループ内で最多のカテゴリを返す。
// 同数時はカテゴリ名昇順で決定的に選ぶ。
func majorityCategory(videos []*model.Video) model.Category {
	counts := make(map[model.Category]int)
	for _, v := range videos {
		counts[v.CollabCategory]++
	}
	return majorityKey(counts)
}

// majorityRegion はグループ内で最多の地域を返す。
func majorityRegion(videos []*model.Video) model.Region {
	counts := make(map[model.Region]int)
	for _, v := range videos {
		counts[v.CollabRegion]++
	}
	return majorityKey(counts)
}

func majorityKey[K ~string](counts map[K]int) K {
	var best K
	bestCount := -1
	for k, n := range counts {
		if n > bestCount || (n == bestCount && k < best) {
			best = k
			bestCount = n
		}
	}
	return best
}
