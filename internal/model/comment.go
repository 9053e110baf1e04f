package model

import "time"

// Comment はYouTube動画のコメントを表す。
// 返信（リプライ）はParentIDで親コメントを参照する。
// 保存後はLikeCountの更新を除きイミュータブルとして扱う。
type Comment struct {
	CommentID       string
	VideoID         string
	AuthorName      string
	AuthorChannelID string
	TextOriginal    string
	TextDisplay     string
	PublishedAt     *time.Time
	LikeCount       int64
	ParentID        string
	IsReply         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
