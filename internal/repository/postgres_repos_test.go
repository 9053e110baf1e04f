package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
)

// 各Postgresリポジトリが対応するインターフェースを満たすことを検証
func TestPostgresRepos_ImplementInterfaces(t *testing.T) {
	var _ VideoRepository = (*PostgresVideoRepo)(nil)
	var _ CommentRepository = (*PostgresCommentRepo)(nil)
	var _ AggregateRepository = (*PostgresAggregateRepo)(nil)
	var _ ProgressRepository = (*PostgresProgressRepo)(nil)
	var _ CacheRepository = (*PostgresCacheRepo)(nil)
}

// in_progress部分一意インデックス違反がErrConcurrentFetchに写像されることを検証
func TestMapStorageError_InFlightIndex(t *testing.T) {
	pqErr := &pq.Error{
		Code:       "23505",
		Constraint: "idx_fetch_progress_in_flight",
	}

	mapped := mapStorageError(pqErr)
	if !errors.Is(mapped, model.ErrConcurrentFetch) {
		t.Errorf("mapped = %v, want ErrConcurrentFetch", mapped)
	}
}

// 一般の一意制約違反がErrStorageIntegrityに写像されることを検証
func TestMapStorageError_UniqueViolation(t *testing.T) {
	pqErr := &pq.Error{
		Code:       "23505",
		Constraint: "collab_agg_partner_range_key",
	}

	mapped := mapStorageError(pqErr)
	if !errors.Is(mapped, model.ErrStorageIntegrity) {
		t.Errorf("mapped = %v, want ErrStorageIntegrity", mapped)
	}
	if errors.Is(mapped, model.ErrConcurrentFetch) {
		t.Error("unique violation outside the in-flight index must not map to ErrConcurrentFetch")
	}
}

// 外部キー制約違反がErrStorageIntegrityに写像されることを検証
func TestMapStorageError_ForeignKeyViolation(t *testing.T) {
	pqErr := &pq.Error{
		Code:       "23503",
		Constraint: "comments_video_id_fkey",
	}

	mapped := mapStorageError(pqErr)
	if !errors.Is(mapped, model.ErrStorageIntegrity) {
		t.Errorf("mapped = %v, want ErrStorageIntegrity", mapped)
	}
}

// ラップされたpqエラーも写像されることを検証
func TestMapStorageError_WrappedError(t *testing.T) {
	pqErr := &pq.Error{
		Code:       "23505",
		Constraint: "idx_fetch_progress_in_flight",
	}
	wrapped := fmt.Errorf("exec failed: %w", pqErr)

	mapped := mapStorageError(wrapped)
	if !errors.Is(mapped, model.ErrConcurrentFetch) {
		t.Errorf("mapped = %v, want ErrConcurrentFetch", mapped)
	}
}

// pqエラー以外はそのまま返されることを検証
func TestMapStorageError_PassThrough(t *testing.T) {
	plain := errors.New("connection refused")

	if mapped := mapStorageError(plain); mapped != plain {
		t.Errorf("mapped = %v, want original error", mapped)
	}
	if mapStorageError(nil) != nil {
		t.Error("nil must map to nil")
	}
}
