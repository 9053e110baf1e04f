// Package security はアプリケーションのセキュリティ機能を提供する。
//
// CommentSanitizerService はYouTubeコメントのtextDisplay（HTML混じり）を
// サニタイズし、保存データへのXSS混入を防ぐ。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 安全なタグのみを通過させる。
package security

import "github.com/microcosm-cc/bluemonday"

// CommentSanitizerService はコメントHTMLのサニタイズ機能のインターフェースを定義する。
// コメント保存前に使用される。
type CommentSanitizerService interface {
	// Sanitize はコメントのHTMLをサニタイズして安全なHTMLを返す。
	// YouTubeコメントで実際に現れる書式タグ（br, b, i, a）のみを通過させ、
	// scriptタグやon*イベント属性を除去する。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string
}

type commentSanitizer struct {
	policy *bluemonday.Policy
}

// NewCommentSanitizer はCommentSanitizerServiceの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: br, b, i, a（YouTubeのtextDisplayが生成する書式のみ）
//   - aタグ: href属性のみ許可、rel="noreferrer noopener"を強制付与
//   - script等は許可リストに含めないことで自動的に除去される
func NewCommentSanitizer() *commentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements("br", "b", "i")
	p.AllowAttrs("href").OnElements("a")
	p.AllowStandardURLs()
	p.RequireNoReferrerOnLinks(true)

	return &commentSanitizer{policy: p}
}

// Sanitize はコメントHTMLをサニタイズして安全なHTMLを返す。
func (s *commentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
