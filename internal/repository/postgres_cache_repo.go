package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
)

// PostgresCacheRepo はPostgreSQLを使用した決定キャッシュリポジトリ。
type PostgresCacheRepo struct {
	db *sql.DB
}

// NewPostgresCacheRepo はPostgresCacheRepoを生成する。
func NewPostgresCacheRepo(db *sql.DB) *PostgresCacheRepo {
	return &PostgresCacheRepo{db: db}
}

// Find は指定キーのエントリを取得する。見つからない場合はnilを返す。
func (r *PostgresCacheRepo) Find(ctx context.Context, cacheKey string) (*model.CacheEntry, error) {
	entry := &model.CacheEntry{}
	err := r.db.QueryRowContext(ctx, `
		SELECT cache_key, input_text, output_json, model, created_at
		FROM gpt_cache WHERE cache_key = $1`, cacheKey).
		Scan(&entry.CacheKey, &entry.InputText, &entry.OutputJSON,
			&entry.Model, &entry.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("キャッシュの取得に失敗しました: %w", err)
	}
	return entry, nil
}

// Put はエントリを書き込む。既存キーへの書き込みは無視される（先勝ち）。
// 並行ワーカーが同一入力を同時に解決しても後続の書き込みは失敗しない。
func (r *PostgresCacheRepo) Put(ctx context.Context, entry *model.CacheEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO gpt_cache (cache_key, input_text, output_json, model)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cache_key) DO NOTHING`,
		entry.CacheKey, entry.InputText, entry.OutputJSON, entry.Model)
	if err != nil {
		return fmt.Errorf("キャッシュの書き込みに失敗しました: %w", err)
	}
	return nil
}

// Count は保存済みエントリ数を返す。
func (r *PostgresCacheRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM gpt_cache`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("キャッシュ数の取得に失敗しました: %w", err)
	}
	return count, nil
}
