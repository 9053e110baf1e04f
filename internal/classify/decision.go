package classify

import (
	"encoding/json"
	"fmt"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
)

// fallbackResponse は外部推論サービスの応答スキーマ。
// partner_name/categoryはnull許容（非コラボ時）。
type fallbackResponse struct {
	IsCollab       *bool    `json:"is_collab"`
	PartnerName    *string  `json:"partner_name"`
	Category       *string  `json:"category"`
	Region         string   `json:"region"`
	OneLineSummary string   `json:"one_line_summary"`
	Confidence     *float64 `json:"confidence"`
}

// ParseDecision は外部推論サービスの生JSON応答を検証して
// 分類結果に変換する。スキーマ違反はmodel.ErrClassificationParseを返し、
// 呼び出し側はルール分類結果への降格で回復する。
// キャッシュヒット・新規呼び出しのどちらの応答も同じ経路で検証される。
func ParseDecision(raw string) (*model.ClassificationResult, error) {
	var resp fallbackResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, model.NewClassificationParseError(fmt.Sprintf("JSONとして解析できません: %v", err))
	}

	if resp.IsCollab == nil {
		return nil, model.NewClassificationParseError("is_collabフィールドがありません")
	}
	if resp.Confidence == nil {
		return nil, model.NewClassificationParseError("confidenceフィールドがありません")
	}
	if *resp.Confidence < 0 || *resp.Confidence > 1 {
		return nil, model.NewClassificationParseError(
			fmt.Sprintf("confidence=%v は[0,1]の範囲外です", *resp.Confidence))
	}

	result := &model.ClassificationResult{
		IsCollab:       *resp.IsCollab,
		OneLineSummary: resp.OneLineSummary,
		Confidence:     *resp.Confidence,
		Method:         model.MethodFallback,
	}

	if resp.PartnerName != nil {
		result.PartnerName = *resp.PartnerName
	}

	if resp.Category != nil && *resp.Category != "" {
		category := model.Category(*resp.Category)
		if !model.ValidCategory(category) {
			return nil, model.NewClassificationParseError(
				fmt.Sprintf("category=%q は定義外の値です", *resp.Category))
		}
		result.Category = category
	}

	if resp.Region != "" {
		region := model.Region(resp.Region)
		if !model.ValidRegion(region) {
			return nil, model.NewClassificationParseError(
				fmt.Sprintf("region=%q は定義外の値です", resp.Region))
		}
		result.Region = region
	}

	result.Normalize()
	return result, nil
}
