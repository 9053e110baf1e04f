// Package export は集計結果のレポート出力とクラウドアップロードを実装する。
// CSVは表計算ソフト互換のためUTF-8 BOM付きで書き出す。
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/aggregate"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/repository"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Service はレポートファイルの生成を行う。
type Service struct {
	videos   repository.VideoRepository
	comments repository.CommentRepository
	aggs     repository.AggregateRepository
	logger   *slog.Logger
}

// NewService はServiceを生成する。
func NewService(videos repository.VideoRepository, comments repository.CommentRepository, aggs repository.AggregateRepository, logger *slog.Logger) *Service {
	return &Service{videos: videos, comments: comments, aggs: aggs, logger: logger}
}

// ReportFiles は1回のレポート生成で書き出されたファイルパス。
type ReportFiles struct {
	CollabReport    string
	Videos          string
	Comments        string
	CategorySummary string
	RegionSummary   string
	Rankings        string
}

// All は生成されたファイルパスを列挙する。空のエントリは含まない。
func (r *ReportFiles) All() []string {
	var out []string
	for _, p := range []string{r.CollabReport, r.Videos, r.Comments, r.CategorySummary, r.RegionSummary, r.Rankings} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// WriteReport は出力ディレクトリにタイムスタンプ付きのレポート一式を書き出す。
// コメントCSVの失敗はレポート全体を止めず、警告ログに落とす。
func (s *Service) WriteReport(ctx context.Context, outputDir string, start, end time.Time) (*ReportFiles, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("出力ディレクトリの作成に失敗しました: %w", err)
	}

	aggs, err := s.aggs.ListByRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("集計行の取得に失敗しました: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	files := &ReportFiles{}

	files.CollabReport = filepath.Join(outputDir, "collab_report_"+timestamp+".csv")
	if err := s.writeAggregatesCSV(files.CollabReport, aggs); err != nil {
		return nil, err
	}

	files.Videos = filepath.Join(outputDir, "collab_videos_"+timestamp+".csv")
	if err := s.writeVideosCSV(ctx, files.Videos, start, end); err != nil {
		return nil, err
	}

	commentsPath := filepath.Join(outputDir, "collab_comments_"+timestamp+".csv")
	if err := s.writeCommentsCSV(ctx, commentsPath, start, end); err != nil {
		s.logger.Warn("コメントCSVの出力に失敗しました", "error", err)
	} else {
		files.Comments = commentsPath
	}

	files.CategorySummary = filepath.Join(outputDir, "category_summary_"+timestamp+".csv")
	if err := s.writeCategorySummaryCSV(files.CategorySummary, aggs); err != nil {
		return nil, err
	}

	files.RegionSummary = filepath.Join(outputDir, "region_summary_"+timestamp+".csv")
	if err := s.writeRegionSummaryCSV(files.RegionSummary, aggs); err != nil {
		return nil, err
	}

	files.Rankings = filepath.Join(outputDir, "rankings_"+timestamp+".json")
	if err := s.writeRankingsJSON(files.Rankings, aggs); err != nil {
		return nil, err
	}

	s.logger.Info("レポートを書き出しました", "output_dir", outputDir, "files", len(files.All()))
	return files, nil
}

// WriteAggregatesCSV は集計CSVのみを指定パスに書き出す（exportコマンドの既定動作）。
func (s *Service) WriteAggregatesCSV(ctx context.Context, path string, start, end time.Time) error {
	aggs, err := s.aggs.ListByRange(ctx, start, end)
	if err != nil {
		return fmt.Errorf("集計行の取得に失敗しました: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("出力ディレクトリの作成に失敗しました: %w", err)
	}
	return s.writeAggregatesCSV(path, aggs)
}

func (s *Service) writeAggregatesCSV(path string, aggs []*model.PartnerAggregate) error {
	return writeCSV(path, func(w *csv.Writer) error {
		header := []string{
			"partner_name", "category", "region", "video_count",
			"total_views", "total_video_likes", "total_comments",
			"total_comment_likes", "comment_likes_partial",
			"avg_views", "like_rate_pct", "comment_rate_pct",
			"top_videos", "date_range_start", "date_range_end",
		}
		if err := w.Write(header); err != nil {
			return err
		}
		for _, agg := range aggs {
			topVideos := ""
			for i, tv := range agg.TopVideos {
				if i > 0 {
					topVideos += "; "
				}
				topVideos += tv.VideoID + "|" + truncateRunes(tv.Title, 50)
			}
			row := []string{
				agg.PartnerName,
				string(agg.Category),
				string(agg.Region),
				strconv.Itoa(agg.VideoCount),
				strconv.FormatInt(agg.TotalViews, 10),
				strconv.FormatInt(agg.TotalVideoLikes, 10),
				strconv.FormatInt(agg.TotalComments, 10),
				strconv.FormatInt(agg.TotalCommentLikes, 10),
				strconv.FormatBool(agg.CommentLikesPartial),
				strconv.FormatFloat(agg.AvgViews, 'f', 2, 64),
				strconv.FormatFloat(agg.LikeRate*100, 'f', 4, 64),
				strconv.FormatFloat(agg.CommentRate*100, 'f', 4, 64),
				topVideos,
				agg.RangeStart.Format(time.DateOnly),
				agg.RangeEnd.Format(time.DateOnly),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) writeVideosCSV(ctx context.Context, path string, start, end time.Time) error {
	videos, err := s.videos.ListCollabsInRange(ctx, start, end)
	if err != nil {
		return fmt.Errorf("コラボ動画の取得に失敗しました: %w", err)
	}
	return writeCSV(path, func(w *csv.Writer) error {
		header := []string{
			"video_id", "title", "published_at", "duration",
			"view_count", "like_count", "comment_count",
			"is_collab", "collab_partner", "collab_category",
			"collab_region", "collab_summary", "collab_confidence",
			"classification_method", "youtube_url",
		}
		if err := w.Write(header); err != nil {
			return err
		}
		for _, v := range videos {
			row := []string{
				v.VideoID,
				v.Title,
				v.PublishedAt.Format(time.RFC3339),
				v.Duration,
				strconv.FormatInt(v.ViewCount, 10),
				strconv.FormatInt(v.LikeCount, 10),
				strconv.FormatInt(v.CommentCount, 10),
				strconv.FormatBool(v.IsCollab),
				v.CollabPartner,
				string(v.CollabCategory),
				string(v.CollabRegion),
				v.CollabSummary,
				strconv.FormatFloat(v.CollabConfidence, 'f', 2, 64),
				string(v.ClassificationMethod),
				"https://www.youtube.com/watch?v=" + v.VideoID,
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) writeCommentsCSV(ctx context.Context, path string, start, end time.Time) error {
	videos, err := s.videos.ListCollabsInRange(ctx, start, end)
	if err != nil {
		return fmt.Errorf("コラボ動画の取得に失敗しました: %w", err)
	}
	return writeCSV(path, func(w *csv.Writer) error {
		header := []string{
			"comment_id", "video_id", "author_name", "text",
			"published_at", "like_count", "is_reply", "parent_id",
		}
		if err := w.Write(header); err != nil {
			return err
		}
		for _, v := range videos {
			comments, err := s.comments.ListByVideoID(ctx, v.VideoID)
			if err != nil {
				return fmt.Errorf("コメントの取得に失敗しました: %w", err)
			}
			for _, c := range comments {
				publishedAt := ""
				if c.PublishedAt != nil {
					publishedAt = c.PublishedAt.Format(time.RFC3339)
				}
				row := []string{
					c.CommentID,
					c.VideoID,
					c.AuthorName,
					c.TextOriginal,
					publishedAt,
					strconv.FormatInt(c.LikeCount, 10),
					strconv.FormatBool(c.IsReply),
					c.ParentID,
				}
				if err := w.Write(row); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *Service) writeCategorySummaryCSV(path string, aggs []*model.PartnerAggregate) error {
	summaries := aggregate.SummarizeByCategory(aggs)
	return writeCSV(path, func(w *csv.Writer) error {
		if err := w.Write([]string{"category", "partners", "video_count", "total_views"}); err != nil {
			return err
		}
		for _, s := range summaries {
			row := []string{
				string(s.Category),
				strconv.Itoa(s.Partners),
				strconv.Itoa(s.VideoCount),
				strconv.FormatInt(s.TotalViews, 10),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) writeRegionSummaryCSV(path string, aggs []*model.PartnerAggregate) error {
	summaries := aggregate.SummarizeByRegion(aggs)
	return writeCSV(path, func(w *csv.Writer) error {
		if err := w.Write([]string{"region", "partners", "video_count", "total_views"}); err != nil {
			return err
		}
		for _, s := range summaries {
			row := []string{
				string(s.Region),
				strconv.Itoa(s.Partners),
				strconv.Itoa(s.VideoCount),
				strconv.FormatInt(s.TotalViews, 10),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// rankingEntry はWebダッシュボード向けJSONの1パートナー分。
type rankingEntry struct {
	Rank              int              `json:"rank"`
	PartnerName       string           `json:"partner_name"`
	Category          model.Category   `json:"category"`
	Region            model.Region     `json:"region"`
	VideoCount        int              `json:"video_count"`
	TotalViews        int64            `json:"total_views"`
	TotalVideoLikes   int64            `json:"total_video_likes"`
	TotalComments     int64            `json:"total_comments"`
	TotalCommentLikes int64            `json:"total_comment_likes"`
	LikeRate          float64          `json:"like_rate"`
	CommentRate       float64          `json:"comment_rate"`
	TopVideos         []model.TopVideo `json:"top_videos"`
}

func (s *Service) writeRankingsJSON(path string, aggs []*model.PartnerAggregate) error {
	entries := make([]rankingEntry, 0, len(aggs))
	for i, agg := range aggs {
		entries = append(entries, rankingEntry{
			Rank:              i + 1,
			PartnerName:       agg.PartnerName,
			Category:          agg.Category,
			Region:            agg.Region,
			VideoCount:        agg.VideoCount,
			TotalViews:        agg.TotalViews,
			TotalVideoLikes:   agg.TotalVideoLikes,
			TotalComments:     agg.TotalComments,
			TotalCommentLikes: agg.TotalCommentLikes,
			LikeRate:          agg.LikeRate,
			CommentRate:       agg.CommentRate,
			TopVideos:         agg.TopVideos,
		})
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("ランキングJSONの生成に失敗しました: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("ランキングJSONの書き込みに失敗しました: %w", err)
	}
	return nil
}

func writeCSV(path string, fill func(w *csv.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("CSVファイルの作成に失敗しました: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("CSVファイルのクローズに失敗しました: %w", cerr)
		}
	}()

	if _, err := f.Write(utf8BOM); err != nil {
		return fmt.Errorf("BOMの書き込みに失敗しました: %w", err)
	}

	w := csv.NewWriter(f)
	if err := fill(w); err != nil {
		return fmt.Errorf("CSVの書き込みに失敗しました: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("CSVのフラッシュに失敗しました: %w", err)
	}
	return nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
