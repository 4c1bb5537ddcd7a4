package category

import (
	"regexp"

	"github.com/IshaanNene/unitscout/internal/types"
)

const dishwashingPrompt = `以下の食器用洗剤商品情報から、正確な情報を抽出してください。

{{listing}}

以下の情報をJSON形式で返してください：
- volume_ml: 容量（ミリリットル単位、数値のみ）
- is_refill: 詰め替え用かどうか（true/false）
- is_dishwasher: 食器洗い乾燥機（食洗機）専用の洗剤かどうか（true/false）

重要な注意事項：
1. 容量の解釈：
   - 「400ml」→ 400、「1.5L」→ 1500
   - 「800g」のような重量表記は同じ数値をmlとして扱う（800）
   - まとめ買いは総容量を返す（「950ml×3個」→ 2850）
2. 「詰め替え」「詰替」「つめかえ」「レフィル」→ is_refill: true
   「本体」「ボトル」または詰め替えの記載がない → is_refill: false
3. 「食洗機用」「食器洗い乾燥機専用」→ is_dishwasher: true、手洗い用 → false

例：
入力: "チャーミーマジカ 速乾+ 詰替用大型 950ml×3個"
出力: {"volume_ml": 2850, "is_refill": true, "is_dishwasher": false}

JSONのみを返してください。説明は不要です。`

var dwVolumeRe = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(ml|l|g|リットル)(?:[^a-z]|$)`)

// Dishwashing is the dishwashing_liquid category.
func Dishwashing() *Descriptor {
	return &Descriptor{
		Name:    "dishwashing_liquid",
		Label:   "食器用洗剤",
		Keyword: "食器用洗剤",
		Primary: "volume_ml",
		Fields: []Field{
			{Name: "volume_ml", Kind: KindFloat},
			{Name: "is_refill", Kind: KindBool, Default: false},
			{Name: "is_dishwasher", Kind: KindBool, Default: false},
		},
		Required:  []string{"volume_ml", "is_refill"},
		Prompt:    dishwashingPrompt,
		Heuristic: dishwashingHeuristic,
		Reject: func(attrs types.Attributes) bool {
			dishwasher, _ := attrs.Bool("is_dishwasher")
			return dishwasher
		},
		UnitPrices: []UnitPrice{
			{Field: "price_per_1000ml", Quantity: "volume_ml", Scale: 1000},
		},
		ScoreField: "price_per_1000ml",
		Filters: map[Filter][]Condition{
			"refill":  {{Field: "is_refill", Op: OpEq, Value: true}},
			"regular": {{Field: "is_refill", Op: OpEq, Value: false}},
		},
	}
}

func dishwashingHeuristic(text string, attrs types.Attributes) {
	text = Normalize(text)

	if !attrs.Has("volume_ml") {
		if m := dwVolumeRe.FindStringSubmatch(text); m != nil {
			ml := toMilliliters(atof(m[1]), m[2])
			if ml > 0 {
				attrs["volume_ml"] = ml * float64(bundleCount(text))
			}
		}
	}
	if !attrs.Has("is_refill") && containsAny(text, "詰め替え", "詰替", "つめかえ", "レフィル") {
		attrs["is_refill"] = true
	}
	if !attrs.Has("is_dishwasher") && containsAny(text, "食洗機用", "食洗機専用", "食器洗い乾燥機専用", "食器洗い機専用") {
		attrs["is_dishwasher"] = true
	}
}
