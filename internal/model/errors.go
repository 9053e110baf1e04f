package model

import (
	"errors"
	"fmt"
)

// パイプライン全体で共有するエラー分類。呼び出し側はerrors.Isで分岐する。
var (
	// ErrConcurrentFetch は同一(task_type, target_id)キーに対する
	// 二重のin_progress開始を示す。そのステージの試行は即時失敗するが、
	// プロセス全体は継続する。
	ErrConcurrentFetch = errors.New("同一タスクのフェッチが進行中です")

	// ErrExternalService は外部サービスの一時的な障害を示す。
	// バックオフ付きリトライの対象であり、リトライ枯渇後は
	// 進捗行のfailed遷移へエスカレートする。
	ErrExternalService = errors.New("外部サービスの呼び出しに失敗しました")

	// ErrClassificationParse は外部推論サービスの応答が期待スキーマに
	// 適合しないことを示す。ルール分類結果への降格で回復され、
	// バッチを中断させてはならない。
	ErrClassificationParse = errors.New("分類応答のパースに失敗しました")

	// ErrStorageIntegrity は一意制約・外部キー制約の違反を示す。
	// データモデルのバグを意味するため、実行を中断する致命的エラー。
	ErrStorageIntegrity = errors.New("ストレージ整合性制約に違反しました")

	// ErrVideoNotFound は指定IDの動画が存在しないことを示す。
	ErrVideoNotFound = errors.New("指定された動画が見つかりません")

	// ErrInvalidTransition は進捗状態機械で許可されていない遷移を示す。
	ErrInvalidTransition = errors.New("許可されていない状態遷移です")
)

// NewConcurrentFetchError はタスクキーを付与したErrConcurrentFetchを生成する。
func NewConcurrentFetchError(taskType TaskType, targetID string) error {
	if targetID == "" {
		return fmt.Errorf("task_type=%s: %w", taskType, ErrConcurrentFetch)
	}
	return fmt.Errorf("task_type=%s target_id=%s: %w", taskType, targetID, ErrConcurrentFetch)
}

// NewExternalServiceError は原因を付与したErrExternalServiceを生成する。
func NewExternalServiceError(service string, cause error) error {
	return fmt.Errorf("%s: %v: %w", service, cause, ErrExternalService)
}

// NewClassificationParseError は原因を付与したErrClassificationParseを生成する。
func NewClassificationParseError(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrClassificationParse)
}

// NewStorageIntegrityError は制約名を付与したErrStorageIntegrityを生成する。
func NewStorageIntegrityError(constraint string, cause error) error {
	return fmt.Errorf("constraint=%s: %v: %w", constraint, cause, ErrStorageIntegrity)
}
