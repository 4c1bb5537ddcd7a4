package category

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/IshaanNene/unitscout/internal/types"
)

const ricePrompt = `以下の米商品情報から、正確な情報を抽出してください。

{{listing}}

以下の情報をJSON形式で返してください：
- weight_kg: 内容量の合計（kg単位、数値のみ。例：5kg→5、10kg→10）
- rice_type: 品種名（例：コシヒカリ、あきたこまち。不明ならnull）
- is_musenmai: 無洗米かどうか（true/false）

重要な注意事項：
1. 「5kg×4＝20kg」のように合計が書かれている場合は合計を使う（20）
2. 「10kg（5kg×2）」→ 10
3. 「無洗米」「むせんまい」の記載があれば is_musenmai: true
4. 「ブレンド米」「複数原料米」は rice_type: null

JSONのみを返してください。説明は不要です。`

var (
	riceTotalRe      = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*kg?\s*[×x]\s*(\d+)\s*=\s*(\d+(?:\.\d+)?)\s*kg`)
	riceTotalFirstRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*kg\s*\(.*[×x].*\)`)
	riceWeightRes    = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*kg`),
		regexp.MustCompile(`(\d+(?:\.\d+)?)\s*キロ`),
	}
	riceVarieties = []string{
		"コシヒカリ", "こしひかり", "あきたこまち", "秋田小町", "ひとめぼれ", "はえぬき",
		"ななつぼし", "ゆめぴりか", "つや姫", "ミルキークイーン", "きぬむすめ", "にこまる",
		"ヒノヒカリ", "あさひの夢", "きらら397", "森のくまさん", "さがびより",
	}
)

// Rice is the rice category. Its search is scoped with a browse node so
// that rice cookers and storage containers stay out of the results.
func Rice() *Descriptor {
	return &Descriptor{
		Name:    "rice",
		Label:   "米",
		Keyword: "米",
		SearchParams: url.Values{
			"i":        {"food-beverage"},
			"rh":       {"n:2421961051,p_n_feature_nine_browse-bin:2421946051|2421947051"},
			"keywords": {"米"},
		},
		Primary: "weight_kg",
		Fields: []Field{
			{Name: "weight_kg", Kind: KindFloat},
			{Name: "rice_type", Kind: KindString},
			{Name: "is_musenmai", Kind: KindBool, Default: false},
		},
		Required:  []string{"weight_kg", "is_musenmai"},
		Prompt:    ricePrompt,
		Heuristic: riceHeuristic,
		UnitPrices: []UnitPrice{
			{Field: "price_per_kg", Quantity: "weight_kg", Scale: 1},
		},
		ScoreField: "price_per_kg",
		Filters: map[Filter][]Condition{
			"musenmai": {{Field: "is_musenmai", Op: OpEq, Value: true}},
		},
	}
}

// RiceWeight parses the total weight in kilograms from a title.
func RiceWeight(title string) (float64, bool) {
	title = Normalize(title)
	if m := riceTotalRe.FindStringSubmatch(title); m != nil {
		return atof(m[3]), true
	}
	if m := riceTotalFirstRe.FindStringSubmatch(title); m != nil {
		return atof(m[1]), true
	}
	for _, re := range riceWeightRes {
		if m := re.FindStringSubmatch(title); m != nil {
			return atof(m[1]), true
		}
	}
	return 0, false
}

func riceHeuristic(text string, attrs types.Attributes) {
	if !attrs.Has("weight_kg") {
		if w, ok := RiceWeight(text); ok && w > 0 {
			attrs["weight_kg"] = w
		}
	}
	if !attrs.Has("rice_type") {
		lower := strings.ToLower(text)
		for _, v := range riceVarieties {
			if strings.Contains(lower, strings.ToLower(v)) {
				attrs["rice_type"] = v
				break
			}
		}
	}
	if !attrs.Has("is_musenmai") && containsAny(text, "無洗米", "むせんまい", "無洗") {
		attrs["is_musenmai"] = true
	}
}
