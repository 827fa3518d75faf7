package usecase

import (
	"fmt"
	"strings"

	"fresch-tutor/internal/modules/tutor/domain"
)

// classificationTemplate 分類用の固定指示（%sに文字起こし結果が入る）
const classificationTemplate = `Du bist eine erfahrene Grundschullehrkraft und arbeitest streng nach der
FRESCH-Methode (Freiburger Rechtschreibschule nach H.-J. Michel).

WICHTIG:
- Beurteile NUR die Rechtschreibung.
- Nutze KEINE klassischen Rechtschreibregeln.
- Gib STRATEGIEN nach FRESCH an.
- Schreibe kindgerecht, wertschätzend und kurz.
- KEINE Korrekturen hinschreiben, nur Hinweise.

Erlaubte Strategien:
%s

Gib das Ergebnis AUSSCHLIESSLICH als JSON zurück:
[
  {
    "wort": "Beispiel",
    "fehler": true,
    "regel": "%s",
    "erklaerung": "Kurze kindgerechte Hilfe, z.B. 'Klatsch die Silben.'"
  }
]

Text:
%s
`

var strategyHints = map[domain.Strategy]string{
	domain.StrategySilbeKlatschen:  "Rhythmus, Silben hören",
	domain.StrategyWeiterschwingen: "Vokal hören",
	domain.StrategyStoppRegel:      "Doppelkonsonanten, ck, tz",
	domain.StrategyAbleiten:        "Wortfamilie",
	domain.StrategyMerkwort:        "nicht ableitbar",
}

// BuildClassificationPrompt 文字起こし結果を埋め込んだ分類プロンプトを作る
func BuildClassificationPrompt(transcript string) string {
	var list strings.Builder
	labels := make([]string, 0, len(domain.Strategies))
	for _, s := range domain.Strategies {
		fmt.Fprintf(&list, "- %s (%s)\n", s, strategyHints[s])
		labels = append(labels, s.String())
	}
	return fmt.Sprintf(classificationTemplate,
		strings.TrimRight(list.String(), "\n"),
		strings.Join(labels, " | "),
		transcript,
	)
}
