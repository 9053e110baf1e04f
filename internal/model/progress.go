package model

import "time"

// TaskType はフェッチ進捗が追跡するタスクの種類を表す。
type TaskType string

const (
	// TaskVideos はチャンネル動画一覧のフェッチ。
	TaskVideos TaskType = "videos"
	// TaskComments は動画単位のコメントフェッチ。
	TaskComments TaskType = "comments"
	// TaskClassify は分類バッチの実行。
	TaskClassify TaskType = "classify"
)

// ProgressStatus はフェッチ進捗の状態を表す。
type ProgressStatus string

const (
	StatusPending    ProgressStatus = "pending"
	StatusInProgress ProgressStatus = "in_progress"
	StatusCompleted  ProgressStatus = "completed"
	StatusFailed     ProgressStatus = "failed"
)

// FetchProgress は(task_type, target_id)単位の再開可能なフェッチ進捗を表す。
// PageCursorは外部APIの継続トークンをそのまま保持する。空文字は
// 「先頭から」を意味する。failed行はResume用に最後の正常カーソルを保持する。
type FetchProgress struct {
	ID           int64
	TaskType     TaskType
	TargetID     string
	Status       ProgressStatus
	PageCursor   string
	ErrorMessage string
	StartedAt    *time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanTransition は進捗の状態遷移が許可されているかを判定する。
// 許可される遷移:
//
//	pending → in_progress
//	in_progress → completed | failed
//	failed → in_progress （リトライ）
//	completed → pending （明示的なフルリフェッチのみ）
func CanTransition(from, to ProgressStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusInProgress
	case StatusInProgress:
		return to == StatusCompleted || to == StatusFailed
	case StatusFailed:
		return to == StatusInProgress
	case StatusCompleted:
		return to == StatusPending
	}
	return false
}
