package category

import (
	"regexp"

	"github.com/IshaanNene/unitscout/internal/types"
)

const mineralWaterPrompt = `あなたはミネラルウォーター商品の情報を分析する専門家です。
以下の商品情報を分析してください：

{{listing}}

以下のJSON形式で情報を返してください：
{"volume_ml": 1本あたりの容量(ml), "bottle_count": 本数, "total_volume_ml": 総容量(ml)}

例：
- "500ml×24本" → {"volume_ml": 500, "bottle_count": 24, "total_volume_ml": 12000}
- "2L×9本" → {"volume_ml": 2000, "bottle_count": 9, "total_volume_ml": 18000}

注意事項：
- Lはmlに変換する（1L = 1000ml）
- ケースや箱の表記も本数として扱う
- 情報が取得できない項目にはnullを設定する

JSONのみを返してください。`

var (
	mwPackRe   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(ml|l|リットル)\s*[×x]\s*(\d+)\s*本`)
	mwVolumeRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(ml|l|リットル)(?:[^a-z]|$)`)
	mwCountRe  = regexp.MustCompile(`(\d+)\s*本`)
)

// MineralWater is the mineral_water category. Search snippets rarely carry
// the bottle size, so new listings are enriched from their detail page.
func MineralWater() *Descriptor {
	return &Descriptor{
		Name:    "mineral_water",
		Label:   "ミネラルウォーター",
		Keyword: "ミネラルウォーター",
		Primary: "bottle_count",
		Fields: []Field{
			{Name: "volume_ml", Kind: KindFloat},
			{Name: "bottle_count", Kind: KindInt},
			{Name: "total_volume_ml", Kind: KindFloat},
		},
		Required: []string{"volume_ml", "bottle_count"},
		Prompt:   mineralWaterPrompt,
		PostProcess: func(attrs types.Attributes) {
			vol, okV := attrs.Float("volume_ml")
			n, okN := attrs.Float("bottle_count")
			if okV && okN && vol > 0 && n > 0 {
				attrs["total_volume_ml"] = vol * n
			}
		},
		Heuristic: mineralWaterHeuristic,
		UnitPrices: []UnitPrice{
			{Field: "price_per_bottle", Quantity: "bottle_count", Scale: 1},
			{Field: "price_per_liter", Quantity: "total_volume_ml", Scale: 1000},
		},
		ScoreField:  "price_per_liter",
		FetchDetail: true,
	}
}

func mineralWaterHeuristic(text string, attrs types.Attributes) {
	text = Normalize(text)

	if m := mwPackRe.FindStringSubmatch(text); m != nil {
		setIfNil(attrs, "volume_ml", toMilliliters(atof(m[1]), m[2]))
		setIfNil(attrs, "bottle_count", atoi(m[3]))
		return
	}
	if !attrs.Has("volume_ml") {
		if m := mwVolumeRe.FindStringSubmatch(text); m != nil {
			attrs["volume_ml"] = toMilliliters(atof(m[1]), m[2])
		}
	}
	if !attrs.Has("bottle_count") {
		if m := mwCountRe.FindStringSubmatch(text); m != nil {
			if n := atoi(m[1]); n > 0 {
				attrs["bottle_count"] = n
			}
		}
	}
}
