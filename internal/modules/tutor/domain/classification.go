package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedClassification 分類結果が構造化データとして解釈できない
var ErrMalformedClassification = errors.New("malformed classification")

// ClassificationItem 単語ごとの分類結果
//
// HasErrorがfalseの場合、StrategyとExplanationは意味を持たない。
type ClassificationItem struct {
	Word        string   `json:"wort"`
	HasError    bool     `json:"fehler"`
	Strategy    Strategy `json:"regel"`
	Explanation string   `json:"erklaerung"`
}

// Analysis 1枚の画像に対する解析結果
type Analysis struct {
	Transcript string
	Items      []ClassificationItem
}

// ParseClassification 分類モデルの応答テキストを項目リストに変換する
//
// 修復や推測は行わない。JSON配列として読めない場合や、誤りのある項目に
// 未知のストラテジーが指定されている場合はErrMalformedClassificationを返す。
func ParseClassification(text string) ([]ClassificationItem, error) {
	cleaned := StripCodeFences(text)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedClassification)
	}

	var raw []struct {
		Word        *string `json:"wort"`
		HasError    *bool   `json:"fehler"`
		Strategy    string  `json:"regel"`
		Explanation string  `json:"erklaerung"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedClassification, err)
	}
	// JSONのnullは配列ではない。空配列[]は有効
	if raw == nil {
		return nil, fmt.Errorf("%w: payload is not a list", ErrMalformedClassification)
	}

	items := make([]ClassificationItem, 0, len(raw))
	for i, r := range raw {
		if r.Word == nil || r.HasError == nil {
			return nil, fmt.Errorf("%w: item %d lacks wort or fehler", ErrMalformedClassification, i)
		}
		item := ClassificationItem{
			Word:        strings.TrimSpace(*r.Word),
			HasError:    *r.HasError,
			Strategy:    Strategy(strings.TrimSpace(r.Strategy)),
			Explanation: strings.TrimSpace(r.Explanation),
		}
		if item.HasError && !item.Strategy.IsValid() {
			return nil, fmt.Errorf("%w: item %d has unknown strategy %q", ErrMalformedClassification, i, r.Strategy)
		}
		items = append(items, item)
	}
	return items, nil
}

// ChildHint 子ども向けの短いヒント
type ChildHint struct {
	Word        string   `json:"word"`
	Strategy    Strategy `json:"strategy"`
	Symbol      string   `json:"symbol"`
	Explanation string   `json:"explanation"`
}

// ChildHints 誤りのある項目からヒントを作る
//
// focusが空でなければ、そのストラテジーの項目だけを返す。
func ChildHints(items []ClassificationItem, focus Strategy) []ChildHint {
	hints := make([]ChildHint, 0)
	for _, item := range items {
		if !item.HasError {
			continue
		}
		if focus != "" && item.Strategy != focus {
			continue
		}
		hints = append(hints, ChildHint{
			Word:        item.Word,
			Strategy:    item.Strategy,
			Symbol:      item.Strategy.Symbol(),
			Explanation: item.Explanation,
		})
	}
	return hints
}

// StrategyCount ストラテジーごとの誤り件数
type StrategyCount struct {
	Strategy Strategy `json:"strategy"`
	Symbol   string   `json:"symbol"`
	Count    int      `json:"count"`
}

// TeacherStats 教員向けにストラテジー別の誤り件数を集計する
//
// 件数0のストラテジーは含めない。順序はStrategiesに従う。
func TeacherStats(items []ClassificationItem) []StrategyCount {
	counts := make(map[Strategy]int, len(Strategies))
	for _, item := range items {
		if item.HasError {
			counts[item.Strategy]++
		}
	}

	stats := make([]StrategyCount, 0, len(counts))
	for _, s := range Strategies {
		if n := counts[s]; n > 0 {
			stats = append(stats, StrategyCount{Strategy: s, Symbol: s.Symbol(), Count: n})
		}
	}
	return stats
}
