package aggregate

import (
	"sort"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
)

// CategorySummary はカテゴリ単位のロールアップ。レポート出力用の読み取り専用集計。
type CategorySummary struct {
	Category   model.Category
	Partners   int
	VideoCount int
	TotalViews int64
}

// RegionSummary は地域単位のロールアップ。
type RegionSummary struct {
	Region     model.Region
	Partners   int
	VideoCount int
	TotalViews int64
}

// SummarizeByCategory はパートナー集計をカテゴリ別に畳み込む。
// 視聴数降順・同数時はカテゴリ名昇順で返す。
func SummarizeByCategory(aggs []*model.PartnerAggregate) []CategorySummary {
	byCategory := make(map[model.Category]*CategorySummary)
	for _, agg := range aggs {
		s, ok := byCategory[agg.Category]
		if !ok {
			s = &CategorySummary{Category: agg.Category}
			byCategory[agg.Category] = s
		}
		s.Partners++
		s.VideoCount += agg.VideoCount
		s.TotalViews += agg.TotalViews
	}

	out := make([]CategorySummary, 0, len(byCategory))
	for _, s := range byCategory {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalViews != out[j].TotalViews {
			return out[i].TotalViews > out[j].TotalViews
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// SummarizeByRegion はパートナー集計を地域別に畳み込む。
func SummarizeByRegion(aggs []*model.PartnerAggregate) []RegionSummary {
	byRegion := make(map[model.Region]*RegionSummary)
	for _, agg := range aggs {
		s, ok := byRegion[agg.Region]
		if !ok {
			s = &RegionSummary{Region: agg.Region}
			byRegion[agg.Region] = s
		}
		s.Partners++
		s.VideoCount += agg.VideoCount
		s.TotalViews += agg.TotalViews
	}

	out := make([]RegionSummary, 0, len(byRegion))
	for _, s := range byRegion {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalViews != out[j].TotalViews {
			return out[i].TotalViews > out[j].TotalViews
		}
		return out[i].Region < out[j].Region
	})
	return out
}
