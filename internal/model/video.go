// Package model はドメインモデルを定義する。
package model

import "time"

// Video はYouTube動画とそのコラボ分類結果を表す。
// 統計フィールド（ViewCount等）は再フェッチのたびに上書きされるが、
// 分類フィールド（IsCollab以下）はオーケストレーターのみが更新する。
type Video struct {
	VideoID     string
	Title       string
	Description string
	PublishedAt time.Time
	Duration    string
	ChannelID   string
	ChannelName string

	ViewCount    int64
	LikeCount    int64
	CommentCount int64

	// CommentsCapped はコメントフェッチが上限で打ち切られたことを示す。
	// 集計時のcomment_likes_partial判定に使用される。
	CommentsCapped bool

	IsCollab             bool
	CollabPartner        string
	CollabCategory       Category
	CollabRegion         Region
	CollabSummary        string
	CollabConfidence     float64
	ClassificationMethod Method

	LastFetchedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Classified は動画が分類済みかどうかを返す。
func (v *Video) Classified() bool {
	return v.ClassificationMethod != ""
}

// Category はコラボ相手のカテゴリを表す。
type Category string

const (
	CategoryIP     Category = "IP"
	CategoryBrand  Category = "Brand"
	CategoryArtist Category = "Artist"
	CategoryGame   Category = "Game"
	CategoryAnime  Category = "Anime"
	CategoryMovie  Category = "Movie"
	CategoryOther  Category = "Other"
)

// ValidCategory はカテゴリが定義済みの値かどうかを判定する。
func ValidCategory(c Category) bool {
	switch c {
	case CategoryIP, CategoryBrand, CategoryArtist, CategoryGame,
		CategoryAnime, CategoryMovie, CategoryOther:
		return true
	}
	return false
}

// Region はコラボの対象地域を表す。
type Region string

const (
	RegionGlobal  Region = "Global"
	RegionKR      Region = "KR"
	RegionJP      Region = "JP"
	RegionNA      Region = "NA"
	RegionEU      Region = "EU"
	RegionSEA     Region = "SEA"
	RegionLATAM   Region = "LATAM"
	RegionMENA    Region = "MENA"
	RegionOther   Region = "Other"
	RegionUnknown Region = "Unknown"
)

// ValidRegion は地域が定義済みの値かどうかを判定する。
func ValidRegion(r Region) bool {
	switch r {
	case RegionGlobal, RegionKR, RegionJP, RegionNA, RegionEU,
		RegionSEA, RegionLATAM, RegionMENA, RegionOther, RegionUnknown:
		return true
	}
	return false
}

// Method は分類結果を確定した手段を表す。
type Method string

const (
	// MethodRule はルール分類器による確定。
	MethodRule Method = "rule"
	// MethodFallback は外部推論サービスによる確定。
	MethodFallback Method = "fallback"
)
