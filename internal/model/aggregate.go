package model

import "time"

// TopVideo は集計行に埋め込む代表動画の要約。
type TopVideo struct {
	VideoID   string `json:"video_id"`
	Title     string `json:"title"`
	ViewCount int64  `json:"view_count"`
	LikeCount int64  `json:"like_count"`
}

// PartnerAggregate はパートナー別・期間別のエンゲージメント集計を表す。
// (PartnerName, RangeStart, RangeEnd)で一意。集計実行のたびに
// 再計算され、UPSERTで全フィールドが上書きされる（加算はしない）。
type PartnerAggregate struct {
	ID          int64
	PartnerName string
	Category    Category
	Region      Region
	RangeStart  time.Time
	RangeEnd    time.Time

	VideoCount        int
	TotalViews        int64
	TotalVideoLikes   int64
	TotalComments     int64
	TotalCommentLikes int64

	// CommentLikesPartial はコメント取得が上限で打ち切られた動画を
	// 含むため、TotalCommentLikesが不完全であることを示す。
	CommentLikesPartial bool

	AvgViews      float64
	AvgVideoLikes float64
	LikeRate      float64
	CommentRate   float64

	TopVideos []TopVideo

	CreatedAt time.Time
	UpdatedAt time.Time
}
