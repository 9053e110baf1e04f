// Package classify はコラボ分類の2段構成（ルール→フォールバック）を実装する。
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/knowledge"
	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
)

// ルール分類の確信度水準。
// 既知パートナー一致は閾値（既定0.7）を超えて即確定し、
// 未知パートナー抽出とシグナルのみの場合は閾値未満になり
// フォールバック分類器の対象になる。
const (
	confidenceKnownPartner   = 0.95
	confidenceUnknownPartner = 0.6
	confidenceSignalOnly     = 0.4
	confidenceNoSignal       = 0.9 // 非コラボであることの確信度
)

// collabSignals はコラボを示唆するシグナルトークン。
// 部分文字列一致で判定するため、英単語は前後空白込みで書く。
var collabSignals = []string{
	"collab", "collaboration", " x ", "×", "콜라보", "コラボ",
	"with ", "featuring", "feat.", "ft.", "crossover", "partnership",
}

// partnerPatterns はタイトルからパートナー候補を抽出する正規表現。
// 先頭のパターンから順に試し、最初に一致したものを採用する
// （複数候補のタイブレークはパターン順→左端優先で決定的）。
var partnerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)[x×]\s*([A-Za-z0-9][A-Za-z0-9\s\-']*?)(?:\s*[-–|:]|\s*collab|\s*event|\s*update|$)`),
	regexp.MustCompile(`(?i)(?:with|featuring|feat\.?|ft\.?)\s+([A-Za-z0-9][A-Za-z0-9\s\-']*?)(?:\s*[-–|:]|\s*!|$)`),
	regexp.MustCompile(`(?i)\[([A-Za-z0-9][A-Za-z0-9\s\-']*?)\]\s*(?:collab|event|crossover)`),
	regexp.MustCompile(`([A-Za-z0-9][A-Za-z0-9\s\-']*?)\s*(?:콜라보|コラボ)`),
}

// falsePositives は抽出候補から除外する自明な非パートナー語。
var falsePositives = map[string]bool{
	"pubg":        true,
	"mobile":      true,
	"pubg mobile": true,
	"the":         true,
	"a":           true,
	"an":          true,
}

// RuleClassifier は決定的なルールベース分類器。
// 同一入力は常に同一結果を返し、副作用を持たない。
type RuleClassifier struct {
	kb *knowledge.Base
}

// NewRuleClassifier はRuleClassifierを生成する。
func NewRuleClassifier(kb *knowledge.Base) *RuleClassifier {
	return &RuleClassifier{kb: kb}
}

// Classify はタイトルと説明文からコラボ分類を試みる。
//
//  1. シグナルトークンがなければ非コラボとして高確信度で確定する。
//  2. タイトルからパートナー候補を抽出し、知識ベースで正準化する。
//  3. 既知パートナーなら高確信度、未知なら中確信度、
//     抽出できなければ低確信度を割り当てる。
func (c *RuleClassifier) Classify(title, description string) *model.ClassificationResult {
	text := strings.ToLower(title + " " + description)

	if !hasCollabSignal(text) {
		result := &model.ClassificationResult{
			IsCollab:   false,
			Confidence: confidenceNoSignal,
			Method:     model.MethodRule,
		}
		result.Normalize()
		return result
	}

	partner := c.extractPartner(title)
	if partner == "" {
		result := &model.ClassificationResult{
			IsCollab:       true,
			Region:         model.RegionUnknown,
			Category:       model.CategoryOther,
			OneLineSummary: "コラボの可能性あり（パートナー未特定）",
			Confidence:     confidenceSignalOnly,
			Method:         model.MethodRule,
		}
		return result
	}

	known := false
	if p, ok := c.kb.Lookup(partner); ok {
		partner = p.CanonicalName
		known = true
	}

	confidence := confidenceUnknownPartner
	if known {
		confidence = confidenceKnownPartner
	}

	return &model.ClassificationResult{
		IsCollab:       true,
		PartnerName:    partner,
		Category:       c.kb.GuessCategory(partner, text),
		Region:         c.kb.GuessRegion(partner, text),
		OneLineSummary: fmt.Sprintf("%sとのコラボレーション", partner),
		Confidence:     confidence,
		Method:         model.MethodRule,
	}
}

func hasCollabSignal(text string) bool {
	for _, sig := range collabSignals {
		if strings.Contains(text, sig) {
			return true
		}
	}
	return false
}

// extractPartner はタイトルからパートナー候補を抽出する。
// パターン順→左端優先で最初の妥当な候補を返す。見つからなければ空文字。
func (c *RuleClassifier) extractPartner(title string) string {
	for _, pattern := range partnerPatterns {
		match := pattern.FindStringSubmatch(title)
		if match == nil {
			continue
		}
		candidate := strings.TrimSpace(match[1])
		if candidate == "" || falsePositives[strings.ToLower(candidate)] {
			continue
		}
		return candidate
	}
	return ""
}
