package category

import (
	"regexp"

	"github.com/IshaanNene/unitscout/internal/types"
)

// Mask size classes.
var maskSizes = []string{"large", "slightly_large", "regular", "slightly_small", "small", "kids"}

const maskPrompt = `以下のマスク商品情報から、正確な情報を抽出してください。

{{listing}}

以下の情報をJSON形式で返してください：
- mask_count: マスクの総枚数（数値のみ）
- mask_size: サイズ（"large", "slightly_large", "regular", "slightly_small", "small", "kids" のいずれか、不明ならnull）
- mask_color: 主な色（英語小文字、例: "white", "black", "gray", "pink", "beige"。複数色なら "mixed"）

重要な注意事項：
1. 箱やパックのまとめ買いは総枚数にする（「30枚×3箱」→ 90）
2. 「個包装」の表記は枚数に影響しない
3. サイズ：「大きめ」→ slightly_large、「小さめ」→ slightly_small、「ふつう」「普通」「レギュラー」→ regular、
   「大きい」「Lサイズ」→ large、「小さい」「Sサイズ」→ small、「子供用」「キッズ」→ kids
4. 色の記載がなければ "white"

JSONのみを返してください。説明は不要です。`

var (
	maskCountRe = regexp.MustCompile(`(\d+)\s*枚`)
	maskColors  = []struct {
		color    string
		keywords []string
	}{
		{"black", []string{"ブラック", "黒"}},
		{"gray", []string{"グレー", "灰"}},
		{"pink", []string{"ピンク"}},
		{"beige", []string{"ベージュ"}},
		{"blue", []string{"ブルー", "青"}},
		{"white", []string{"ホワイト", "白"}},
	}
)

// Mask is the mask category.
func Mask() *Descriptor {
	return &Descriptor{
		Name:    "mask",
		Label:   "マスク",
		Keyword: "マスク",
		Primary: "mask_count",
		Fields: []Field{
			{Name: "mask_count", Kind: KindInt},
			{Name: "mask_size", Kind: KindString, Enum: maskSizes},
			{Name: "mask_color", Kind: KindString, Default: "white"},
		},
		Required:  []string{"mask_count", "mask_size", "mask_color"},
		Prompt:    maskPrompt,
		Heuristic: maskHeuristic,
		UnitPrices: []UnitPrice{
			{Field: "price_per_mask", Quantity: "mask_count", Scale: 1},
		},
		ScoreField: "price_per_mask",
		Filters: map[Filter][]Condition{
			"large_pack":          {{Field: "mask_count", Op: OpGte, Value: 50}},
			"small_pack":          {{Field: "mask_count", Op: OpLt, Value: 50}},
			"size_large":          {{Field: "mask_size", Op: OpEq, Value: "large"}},
			"size_slightly_large": {{Field: "mask_size", Op: OpEq, Value: "slightly_large"}},
			"size_regular":        {{Field: "mask_size", Op: OpEq, Value: "regular"}},
			"size_slightly_small": {{Field: "mask_size", Op: OpEq, Value: "slightly_small"}},
			"size_small":          {{Field: "mask_size", Op: OpEq, Value: "small"}},
			"size_kids":           {{Field: "mask_size", Op: OpEq, Value: "kids"}},
			"size_unknown":        {{Field: "mask_size", Op: OpIsNull}},
		},
	}
}

func maskHeuristic(text string, attrs types.Attributes) {
	text = Normalize(text)

	if !attrs.Has("mask_count") {
		if m := maskCountRe.FindStringSubmatch(text); m != nil {
			if n := atoi(m[1]); n > 0 {
				attrs["mask_count"] = n * bundleCount(text)
			}
		}
	}

	if !attrs.Has("mask_size") {
		switch {
		case containsAny(text, "子供", "こども", "キッズ", "子ども"):
			attrs["mask_size"] = "kids"
		case containsAny(text, "小さめ"):
			attrs["mask_size"] = "slightly_small"
		case containsAny(text, "大きめ"):
			attrs["mask_size"] = "slightly_large"
		case containsAny(text, "小さいサイズ", "Sサイズ"):
			attrs["mask_size"] = "small"
		case containsAny(text, "大きいサイズ", "Lサイズ"):
			attrs["mask_size"] = "large"
		case containsAny(text, "ふつう", "普通サイズ", "レギュラー", "Mサイズ"):
			attrs["mask_size"] = "regular"
		}
	}

	if !attrs.Has("mask_color") {
		for _, c := range maskColors {
			if containsAny(text, c.keywords...) {
				attrs["mask_color"] = c.color
				return
			}
		}
	}
}
