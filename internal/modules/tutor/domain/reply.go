package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnparseableReply 既知のどの応答エンベロープにも一致しない
	ErrUnparseableReply = errors.New("unparseable reply")
	// ErrNoTextFound 応答にテキスト断片が含まれていない
	ErrNoTextFound = errors.New("no text found")
)

// ReplyShape 応答エンベロープの形
type ReplyShape int

const (
	// ReplyUnknown 既知の形に一致しない
	ReplyUnknown ReplyShape = iota
	// ReplyText トップレベルの単一テキスト
	ReplyText
	// ReplyOutputs 出力項目ごとの断片リスト
	ReplyOutputs
	// ReplyEmpty 既知の形だが出力がない
	ReplyEmpty
)

func (s ReplyShape) String() string {
	switch s {
	case ReplyText:
		return "text"
	case ReplyOutputs:
		return "outputs"
	case ReplyEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// Fragment 出力項目内の断片
type Fragment struct {
	Type    string
	Text    string
	HasText bool
}

// ReplyOutput 1つの出力項目
type ReplyOutput struct {
	Fragments []Fragment
}

// Reply 正規化した応答エンベロープ
type Reply struct {
	Shape   ReplyShape
	Text    string
	Outputs []ReplyOutput
}

// nonTextTypes テキストを持たない断片の種類
var nonTextTypes = map[string]bool{
	"image":         true,
	"image_url":     true,
	"input_image":   true,
	"tool_use":      true,
	"tool_call":     true,
	"function_call": true,
	"refusal":       true,
	"inline_data":   true,
}

// fragmentTextKeys 断片のテキストが入りうるキー（優先順）
var fragmentTextKeys = []string{"text", "output_text", "content", "value"}

// envelopeMarkers 出力が空でも既知の応答とみなすキー
var envelopeMarkers = []string{"id", "object", "type", "model", "stop_reason", "status", "finish_reason"}

// ParseReply 生の応答ボディを解析する
//
// 期待するキーが欠けていても致命的ではない。JSONオブジェクトとして読めない、
// または既知の形に一致しない場合のみErrUnparseableReplyを返す。
func ParseReply(raw []byte) (Reply, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		return Reply{Shape: ReplyUnknown}, fmt.Errorf("%w: %v", ErrUnparseableReply, err)
	}
	if env == nil {
		return Reply{Shape: ReplyUnknown}, fmt.Errorf("%w: null body", ErrUnparseableReply)
	}

	// Responses API: output[].content[]
	if v, ok := env["output"]; ok {
		if items, ok := asArray(v); ok {
			outputs := make([]ReplyOutput, 0, len(items))
			for _, item := range items {
				var obj map[string]json.RawMessage
				if err := json.Unmarshal(item, &obj); err != nil {
					continue
				}
				if parts, ok := asArray(obj["content"]); ok {
					outputs = append(outputs, ReplyOutput{Fragments: parseFragments(parts)})
				}
			}
			return outputsReply(outputs), nil
		}
	}

	// Messages API: content[]、または文字列のcontent
	if v, ok := env["content"]; ok {
		if parts, ok := asArray(v); ok {
			return outputsReply([]ReplyOutput{{Fragments: parseFragments(parts)}}), nil
		}
		if s, ok := asString(v); ok {
			return Reply{Shape: ReplyText, Text: s}, nil
		}
	}

	// Chat Completions API: choices[].message.content
	if v, ok := env["choices"]; ok {
		if choices, ok := asArray(v); ok {
			outputs := make([]ReplyOutput, 0, len(choices))
			for _, c := range choices {
				var choice struct {
					Message map[string]json.RawMessage `json:"message"`
				}
				if err := json.Unmarshal(c, &choice); err != nil || choice.Message == nil {
					continue
				}
				content := choice.Message["content"]
				if s, ok := asString(content); ok {
					outputs = append(outputs, ReplyOutput{Fragments: []Fragment{{Type: "text", Text: s, HasText: true}}})
				} else if parts, ok := asArray(content); ok {
					outputs = append(outputs, ReplyOutput{Fragments: parseFragments(parts)})
				}
			}
			return outputsReply(outputs), nil
		}
	}

	// Gemini REST: candidates[].content.parts[]
	if v, ok := env["candidates"]; ok {
		if candidates, ok := asArray(v); ok {
			outputs := make([]ReplyOutput, 0, len(candidates))
			for _, c := range candidates {
				var cand struct {
					Content struct {
						Parts []json.RawMessage `json:"parts"`
					} `json:"content"`
				}
				if err := json.Unmarshal(c, &cand); err != nil {
					continue
				}
				outputs = append(outputs, ReplyOutput{Fragments: parseFragments(cand.Content.Parts)})
			}
			return outputsReply(outputs), nil
		}
	}

	// 単一テキストフィールド
	for _, key := range []string{"output_text", "text"} {
		if s, ok := asString(env[key]); ok {
			return Reply{Shape: ReplyText, Text: s}, nil
		}
	}

	for _, key := range envelopeMarkers {
		if _, ok := env[key]; ok {
			return Reply{Shape: ReplyEmpty}, nil
		}
	}
	return Reply{Shape: ReplyUnknown}, fmt.Errorf("%w: no known envelope", ErrUnparseableReply)
}

// Extract 応答からテキストを取り出す
//
// テキスト断片を出現順に改行で連結し、前後の空白を除去する。
// 結果が空なら ("", false) を返す。
func Extract(r Reply) (string, bool) {
	var text string
	switch r.Shape {
	case ReplyText:
		text = r.Text
	case ReplyOutputs:
		var b strings.Builder
		first := true
		for _, o := range r.Outputs {
			for _, f := range o.Fragments {
				if !f.HasText {
					continue
				}
				if !first {
					b.WriteByte('\n')
				}
				b.WriteString(f.Text)
				first = false
			}
		}
		text = b.String()
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	return text, true
}

// ExtractText 生の応答ボディからテキストを取り出す
//
// テキストがなければErrNoTextFoundを返す。
func ExtractText(raw []byte) (string, error) {
	reply, err := ParseReply(raw)
	if err != nil {
		return "", err
	}
	text, ok := Extract(reply)
	if !ok {
		return "", ErrNoTextFound
	}
	return text, nil
}

// StripCodeFences Markdownのコードフェンスを取り除く
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func outputsReply(outputs []ReplyOutput) Reply {
	for _, o := range outputs {
		if len(o.Fragments) > 0 {
			return Reply{Shape: ReplyOutputs, Outputs: outputs}
		}
	}
	return Reply{Shape: ReplyEmpty}
}

func parseFragments(parts []json.RawMessage) []Fragment {
	fragments := make([]Fragment, 0, len(parts))
	for _, p := range parts {
		if s, ok := asString(p); ok {
			fragments = append(fragments, Fragment{Type: "text", Text: s, HasText: true})
			continue
		}

		var obj map[string]json.RawMessage
		if err := json.Unmarshal(p, &obj); err != nil || obj == nil {
			continue
		}

		frag := Fragment{}
		if t, ok := asString(obj["type"]); ok {
			frag.Type = t
		}
		if !nonTextTypes[frag.Type] {
			for _, key := range fragmentTextKeys {
				if s, ok := textValue(obj[key]); ok {
					frag.Text = s
					frag.HasText = true
					break
				}
			}
		}
		fragments = append(fragments, frag)
	}
	return fragments
}

// textValue 文字列、または {"value": "..."} 形式のテキストを読む
func textValue(v json.RawMessage) (string, bool) {
	if s, ok := asString(v); ok {
		return s, true
	}
	var nested struct {
		Value *string `json:"value"`
	}
	if len(v) > 0 && json.Unmarshal(v, &nested) == nil && nested.Value != nil {
		return *nested.Value, true
	}
	return "", false
}

func asArray(v json.RawMessage) ([]json.RawMessage, bool) {
	if len(v) == 0 {
		return nil, false
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(v, &arr); err != nil {
		return nil, false
	}
	return arr, true
}

func asString(v json.RawMessage) (string, bool) {
	if len(v) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}
