package model

import "time"

// CacheEntry は決定キャッシュの1エントリを表す。
// CacheKeyは正規化済み分類入力のSHA-256ハッシュ。書き込みは1回限りで、
// 同一入力に対する外部推論サービス呼び出しを恒久的に抑止する。
type CacheEntry struct {
	CacheKey   string
	InputText  string
	OutputJSON string
	Model      string
	CreatedAt  time.Time
}
