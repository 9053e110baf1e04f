package classify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/repository"
)

// maxDescriptionRunes はキャッシュキー計算に使う説明文の最大長。
// 説明文の末尾（リンク集・定型文）は分類に寄与しないため打ち切る。
const maxDescriptionRunes = 2000

// CacheKey は正規化済み分類入力のSHA-256ハッシュを返す。
// 正規化は小文字化と連続空白の単一空白への圧縮。タイトルと説明文は
// 改行1つで連結する。同一の正規化入力は常に同一キーになる。
func CacheKey(title, description string) string {
	desc := []rune(description)
	if len(desc) > maxDescriptionRunes {
		desc = desc[:maxDescriptionRunes]
	}
	normalized := normalizeSpace(strings.ToLower(title)) + "\n" +
		normalizeSpace(strings.ToLower(string(desc)))

	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ComputeFunc は外部推論サービスの1回の呼び出し。
// 応答の生JSONと使用モデル名を返す。
type ComputeFunc func(ctx context.Context) (outputJSON, modelName string, err error)

// Cache は決定キャッシュのread-throughラッパー。
// 同一の正規化入力に対する外部呼び出しをストアの生存期間を通じて
// 高々1回に抑える。
type Cache struct {
	repo repository.CacheRepository
}

// NewCache はCacheを生成する。
func NewCache(repo repository.CacheRepository) *Cache {
	return &Cache{repo: repo}
}

// GetOrCompute はキーに対応する応答を返す。ミス時はcomputeを呼び、
// 結果を書き込んでから返す。hitはキャッシュから返したかを示す。
// computeが失敗した場合は何も書き込まない（次回再試行できるように）。
func (c *Cache) GetOrCompute(ctx context.Context, cacheKey, inputText string, compute ComputeFunc) (outputJSON string, hit bool, err error) {
	entry, err := c.repo.Find(ctx, cacheKey)
	if err != nil {
		return "", false, err
	}
	if entry != nil {
		return entry.OutputJSON, true, nil
	}

	output, modelName, err := compute(ctx)
	if err != nil {
		return "", false, err
	}

	if err := c.repo.Put(ctx, &model.CacheEntry{
		CacheKey:   cacheKey,
		InputText:  inputText,
		OutputJSON: output,
		Model:      modelName,
	}); err != nil {
		return "", false, err
	}
	return output, false, nil
}
