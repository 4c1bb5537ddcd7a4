package category

import (
	"regexp"

	"github.com/IshaanNene/unitscout/internal/types"
)

const toiletPaperPrompt = `以下のトイレットペーパー商品情報から、正確な情報を抽出してください。

{{listing}}

以下の情報をJSON形式で返してください：
- roll_count: 実際の物理的なロール数（数値のみ、単位なし）
- length_m: 1ロールあたりの長さ（メートル単位、数値のみ）
- is_double: ダブルかシングルか（true/false/null）

重要な注意事項：
1. 「2倍巻」「3倍巻」「長持ち」商品は物理的なロール数を使用する（換算値ではない）
   - 「3倍長持ち 12ロール」→ roll_count: 12
2. 「×」の後に「パック」が明記されている場合のみパック数を掛ける
   - 「12ロール×6パック」→ roll_count: 72
   - 「80m×8ロール」は長さ×ロール数の表記なので roll_count: 8
3. 長さはメートルに統一する。mm（ミリメートル）は幅なので長さとして使わない
4. 「2枚重ね」「ダブル」→ true、「シングル」「1枚」→ false、不明 → null

JSONのみを返してください。説明は不要です。`

var (
	tpPackRe   = regexp.MustCompile(`(?i)(\d+)\s*(?:ロール|-?rolls?)[^×x\d]{0,8}[×x]\s*(\d+)\s*(?:パック|packs?)`)
	tpRollRe   = regexp.MustCompile(`(?i)(\d+)\s*(?:ロール|-?rolls?)`)
	tpLengthRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:m|メートル)(?:[^m]|$)`)
)

// ToiletPaper is the toilet_paper category.
func ToiletPaper() *Descriptor {
	return &Descriptor{
		Name:    "toilet_paper",
		Label:   "トイレットペーパー",
		Keyword: "トイレットペーパー",
		Primary: "roll_count",
		Fields: []Field{
			{Name: "roll_count", Kind: KindInt},
			{Name: "length_m", Kind: KindFloat},
			{Name: "is_double", Kind: KindBool},
		},
		Derived:  []Field{{Name: "total_length_m", Kind: KindFloat}},
		Required: []string{"roll_count", "length_m"},
		Prompt:   toiletPaperPrompt,
		PostProcess: func(attrs types.Attributes) {
			rolls, okR := attrs.Float("roll_count")
			length, okL := attrs.Float("length_m")
			if okR && okL && rolls > 0 && length > 0 {
				attrs["total_length_m"] = rolls * length
			} else {
				attrs["total_length_m"] = nil
			}
		},
		Heuristic: toiletPaperHeuristic,
		UnitPrices: []UnitPrice{
			{Field: "price_per_roll", Quantity: "roll_count", Scale: 1},
			{Field: "price_per_m", Quantity: "total_length_m", Scale: 1},
		},
		ScoreField: "price_per_m",
		Filters: map[Filter][]Condition{
			"single": {{Field: "is_double", Op: OpEq, Value: false}},
			"double": {{Field: "is_double", Op: OpEq, Value: true}},
		},
	}
}

func toiletPaperHeuristic(text string, attrs types.Attributes) {
	text = Normalize(text)

	if !attrs.Has("is_double") {
		switch {
		case containsAny(text, "ダブル", "2枚重ね", "二枚重ね"):
			attrs["is_double"] = true
		case containsAny(text, "シングル", "1枚重ね"):
			attrs["is_double"] = false
		}
	}

	if !attrs.Has("roll_count") {
		if m := tpPackRe.FindStringSubmatch(text); m != nil {
			attrs["roll_count"] = atoi(m[1]) * atoi(m[2])
		} else if m := tpRollRe.FindStringSubmatch(text); m != nil {
			attrs["roll_count"] = atoi(m[1])
		}
	}

	if !attrs.Has("length_m") {
		if m := tpLengthRe.FindStringSubmatch(text); m != nil {
			if l := atof(m[1]); l > 0 {
				attrs["length_m"] = l
			}
		}
	}
}
