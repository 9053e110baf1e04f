package repository

import (
	"errors"

	"github.com/lib/pq"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
)

// PostgreSQLエラーコード
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// inFlightIndexName はfetch_progressのin_progress部分一意インデックス名。
// このインデックス違反のみはデータモデルのバグではなく、
// at-most-one-in-flight不変条件による正常な競合検出として扱う。
const inFlightIndexName = "idx_fetch_progress_in_flight"

// mapStorageError はPostgreSQLの制約違反をパイプラインのエラー分類に写像する。
// 一意制約・外部キー制約の違反はErrStorageIntegrity（致命的）、
// in_progress部分一意インデックスの違反のみErrConcurrentFetchになる。
func mapStorageError(err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch string(pqErr.Code) {
	case pgUniqueViolation:
		if pqErr.Constraint == inFlightIndexName {
			return model.ErrConcurrentFetch
		}
		return model.NewStorageIntegrityError(pqErr.Constraint, err)
	case pgForeignKeyViolation:
		return model.NewStorageIntegrityError(pqErr.Constraint, err)
	}

	return err
}
