// Package knowledge は既知コラボパートナーの正規化知識を提供する。
// 表記揺れ（大文字小文字・空白・ハイフン・各言語表記）を正準名に
// 集約し、正準名からカテゴリ・地域ヒントを引けるようにする。
package knowledge

import (
	"strings"

	"github.com/SangwonJi/PUBG-YoutubeAnalyzer/internal/model"
)

// Partner は既知パートナーの正準エントリ。
type Partner struct {
	// CanonicalName は集計キーとして使う正準表記。
	CanonicalName string
	Category      model.Category
	// HomeRegion はテキストに地域手掛かりがない場合の既定地域。
	HomeRegion model.Region
}

// Base はパートナー知識ベース。読み取り専用で並行アクセス可能。
type Base struct {
	// aliasKey(別名) → 正準エントリ
	byAlias map[string]*Partner
}

// NewBase は組み込みのパートナー知識ベースを生成する。
func NewBase() *Base {
	b := &Base{byAlias: make(map[string]*Partner)}
	for i := range builtins {
		p := &builtins[i].partner
		for _, alias := range builtins[i].aliases {
			b.byAlias[aliasKey(alias)] = p
		}
		b.byAlias[aliasKey(p.CanonicalName)] = p
	}
	return b
}

// Lookup は別名からパートナーを引く。大文字小文字・空白・ハイフンの
// 揺れは無視される。未知の名前は(nil, false)。
func (b *Base) Lookup(name string) (*Partner, bool) {
	p, ok := b.byAlias[aliasKey(name)]
	return p, ok
}

// Normalize は別名を正準表記に変換する。未知の名前は
// 前後空白を除去した入力をそのまま返す。
func (b *Base) Normalize(name string) string {
	if p, ok := b.Lookup(name); ok {
		return p.CanonicalName
	}
	return strings.TrimSpace(name)
}

// aliasKey は照合用キーを作る。小文字化し、空白・ハイフン・
// アポストロフィを除去する。
func aliasKey(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		switch r {
		case ' ', '\t', '-', '\'', '_', '.':
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

type builtin struct {
	partner Partner
	aliases []string
}

// builtins は運用で観測済みのコラボパートナー。
// 別名には韓国語・日本語の表記も含める。
var builtins = []builtin{
	// アーティスト
	{Partner{"BLACKPINK", model.CategoryArtist, model.RegionKR},
		[]string{"black pink", "블랙핑크"}},
	{Partner{"NewJeans", model.CategoryArtist, model.RegionKR},
		[]string{"new jeans", "뉴진스"}},
	{Partner{"BTS", model.CategoryArtist, model.RegionKR}, nil},
	{Partner{"Alan Walker", model.CategoryArtist, model.RegionGlobal},
		[]string{"앨런 워커"}},
	{Partner{"Marshmello", model.CategoryArtist, model.RegionGlobal}, nil},

	// ブランド
	{Partner{"Lamborghini", model.CategoryBrand, model.RegionGlobal}, nil},
	{Partner{"McLaren", model.CategoryBrand, model.RegionGlobal}, nil},
	{Partner{"Bugatti", model.CategoryBrand, model.RegionGlobal}, nil},
	{Partner{"Koenigsegg", model.CategoryBrand, model.RegionGlobal}, nil},
	{Partner{"Aston Martin", model.CategoryBrand, model.RegionGlobal}, nil},
	{Partner{"Ferrari", model.CategoryBrand, model.RegionGlobal}, nil},
	{Partner{"Porsche", model.CategoryBrand, model.RegionGlobal}, nil},

	// アニメ
	{Partner{"Jujutsu Kaisen", model.CategoryAnime, model.RegionJP},
		[]string{"주술회전", "呪術廻戦"}},
	{Partner{"Dragon Ball", model.CategoryAnime, model.RegionJP},
		[]string{"dragonball", "드래곤볼", "ドラゴンボール"}},
	{Partner{"Evangelion", model.CategoryAnime, model.RegionJP},
		[]string{"neon genesis evangelion", "에반게리온", "エヴァンゲリオン"}},
	{Partner{"Attack on Titan", model.CategoryAnime, model.RegionJP},
		[]string{"진격의 거인", "進撃の巨人"}},
	{Partner{"Spy x Family", model.CategoryAnime, model.RegionJP}, nil},
	{Partner{"Demon Slayer", model.CategoryAnime, model.RegionJP},
		[]string{"鬼滅の刃"}},

	// 映画・シリーズ
	{Partner{"Godzilla", model.CategoryMovie, model.RegionGlobal},
		[]string{"고질라", "ゴジラ"}},
	{Partner{"Kong", model.CategoryMovie, model.RegionGlobal}, nil},
	{Partner{"Arcane", model.CategoryMovie, model.RegionGlobal},
		[]string{"아케인"}},
	{Partner{"The Boys", model.CategoryMovie, model.RegionGlobal}, nil},
	{Partner{"The Walking Dead", model.CategoryMovie, model.RegionGlobal},
		[]string{"walking dead", "워킹데드"}},
	{Partner{"Transformers", model.CategoryMovie, model.RegionGlobal}, nil},

	// ゲーム
	{Partner{"Resident Evil", model.CategoryGame, model.RegionJP},
		[]string{"레지던트 이블", "バイオハザード"}},
	{Partner{"Metro Exodus", model.CategoryGame, model.RegionGlobal},
		[]string{"metro"}},
	{Partner{"Tomb Raider", model.CategoryGame, model.RegionGlobal}, nil},
}

// categoryHints はテキストからカテゴリを推定する際の手掛かり語。
// 未知パートナーのカテゴリ推定に使う。
var categoryHints = []struct {
	category model.Category
	words    []string
}{
	{model.CategoryAnime, []string{"anime", "manga", "アニメ", "漫画"}},
	{model.CategoryMovie, []string{"movie", "film", "series", "tv show", "영화", "드라마"}},
	{model.CategoryArtist, []string{"artist", "singer", "band", "music", "concert"}},
}

// GuessCategory はパートナー名とテキストからカテゴリを推定する。
// 既知パートナーは知識ベースの分類を優先し、未知の場合はテキストの
// 手掛かり語で判定、どれにも該当しなければIPとする。
func (b *Base) GuessCategory(partnerName, text string) model.Category {
	if p, ok := b.Lookup(partnerName); ok {
		return p.Category
	}

	lower := strings.ToLower(text)
	for _, hint := range categoryHints {
		for _, w := range hint.words {
			if strings.Contains(lower, w) {
				return hint.category
			}
		}
	}
	return model.CategoryIP
}

// regionHints はテキストから地域を推定する際の手掛かり語。
var regionHints = []struct {
	region model.Region
	words  []string
}{
	{model.RegionKR, []string{"korea", "korean", "한국", "한글", "kr server"}},
	{model.RegionJP, []string{"japan", "japanese", "日本", "日本語", "jp server"}},
	{model.RegionNA, []string{"north america", "usa", "us server", "na server"}},
	{model.RegionEU, []string{"europe", "european", "eu server"}},
	{model.RegionSEA, []string{"southeast asia", "sea server", "indonesia", "thailand", "vietnam", "philippines"}},
	{model.RegionLATAM, []string{"latin america", "latam", "brazil", "mexico", "spanish"}},
	{model.RegionMENA, []string{"middle east", "mena", "arabic", "arab"}},
}

// GuessRegion はテキストから地域を推定する。手掛かりがなければ
// 既知パートナーの本拠地域、それもなければGlobalとする。
func (b *Base) GuessRegion(partnerName, text string) model.Region {
	lower := strings.ToLower(text)
	for _, hint := range regionHints {
		for _, w := range hint.words {
			if strings.Contains(lower, w) {
				return hint.region
			}
		}
	}
	if p, ok := b.Lookup(partnerName); ok && p.HomeRegion != "" {
		return p.HomeRegion
	}
	return model.RegionGlobal
}
