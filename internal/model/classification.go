package model

// ClassificationResult は1動画に対する分類の確定結果を表す。
// Methodがruleの場合はルール分類器単独で確定したことを、
// fallbackの場合は外部推論サービス（またはそのキャッシュ）で
// 確定したことを示す。
type ClassificationResult struct {
	IsCollab       bool
	PartnerName    string
	Category       Category
	Region         Region
	OneLineSummary string
	Confidence     float64
	Method         Method

	// CacheHit はMethod=fallbackの場合に、外部呼び出しではなく
	// 決定キャッシュから結果が得られたことを示す。
	CacheHit bool
}

// Normalize は非コラボ結果の不変条件を強制する。
// is_collab=falseの場合、パートナー名・カテゴリは必ず空になる。
func (r *ClassificationResult) Normalize() {
	if !r.IsCollab {
		r.PartnerName = ""
		r.Category = ""
		r.OneLineSummary = ""
	}
	if r.Region == "" {
		r.Region = RegionUnknown
	}
}

// SameDecision は2つの分類結果が同一の確定内容かを判定する。
// 再分類時の無変更スキップ判定に使用する。比較対象は
// (IsCollab, PartnerName, Category, Region)のみで、確信度や
// サマリー文の揺れは同一とみなす。
func (r *ClassificationResult) SameDecision(v *Video) bool {
	return r.IsCollab == v.IsCollab &&
		r.PartnerName == v.CollabPartner &&
		r.Category == v.CollabCategory &&
		r.Region == v.CollabRegion
}
