package domain

import "strings"

// Strategy FRESCHの学習ストラテジー
type Strategy string

const (
	StrategySilbeKlatschen  Strategy = "Silbe klatschen"
	StrategyWeiterschwingen Strategy = "Weiterschwingen"
	StrategyStoppRegel      Strategy = "Stopp-Regel"
	StrategyAbleiten        Strategy = "Ableiten"
	StrategyMerkwort        Strategy = "Merkwort"
)

// unknownSymbol 未知のストラテジーに使う記号
const unknownSymbol = "❓"

// Strategies 全ストラテジー（表示順）
var Strategies = []Strategy{
	StrategySilbeKlatschen,
	StrategyWeiterschwingen,
	StrategyStoppRegel,
	StrategyAbleiten,
	StrategyMerkwort,
}

var strategySymbols = map[Strategy]string{
	StrategySilbeKlatschen:  "👏",
	StrategyWeiterschwingen: "➰",
	StrategyStoppRegel:      "⛔",
	StrategyAbleiten:        "🔁",
	StrategyMerkwort:        "⭐",
}

// ParseStrategy ラベルからストラテジーを取得
func ParseStrategy(label string) (Strategy, bool) {
	s := Strategy(strings.TrimSpace(label))
	if _, ok := strategySymbols[s]; !ok {
		return "", false
	}
	return s, true
}

// IsValid 定義済みのストラテジーかどうか
func (s Strategy) IsValid() bool {
	_, ok := strategySymbols[s]
	return ok
}

// Symbol 表示用の記号を返す
func (s Strategy) Symbol() string {
	if sym, ok := strategySymbols[s]; ok {
		return sym
	}
	return unknownSymbol
}

func (s Strategy) String() string {
	return string(s)
}
