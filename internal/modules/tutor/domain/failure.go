package domain

import (
	"errors"
	"fmt"
)

// FailureKind 処理失敗の種類
type FailureKind string

const (
	// FailureRateLimited レート制限が再試行上限まで続いた
	FailureRateLimited FailureKind = "RateLimited"
	// FailureTranscriptionError レート制限以外の通信・サービスエラー
	FailureTranscriptionError FailureKind = "TranscriptionError"
	// FailureNoTextDetected 画像から文字が読み取れなかった
	FailureNoTextDetected FailureKind = "NoTextDetected"
	// FailureMalformedClassification 分類結果が構造化データではなかった
	FailureMalformedClassification FailureKind = "MalformedClassification"
)

// userMessages 画面に表示するメッセージ（ドイツ語）
var userMessages = map[FailureKind]string{
	FailureRateLimited:             "Der KI-Dienst ist gerade ausgelastet. Bitte warte kurz und versuche es noch einmal.",
	FailureTranscriptionError:      "Das Foto konnte nicht ausgewertet werden. Bitte versuche es später noch einmal.",
	FailureNoTextDetected:          "Ich konnte auf dem Foto keinen Text erkennen. Mach bitte ein neues, scharfes Foto.",
	FailureMalformedClassification: "Die Auswertung ist leider schiefgegangen. Bitte versuche es noch einmal.",
}

// Failure 利用者に返す失敗値
//
// Messageは利用者向け、Errは開発者向けの詳細。
type Failure struct {
	Kind     FailureKind
	Message  string
	Attempts int
	Err      error
}

// NewFailure 新しいFailureを作成
func NewFailure(kind FailureKind, attempts int, err error) *Failure {
	if attempts < 1 {
		attempts = 1
	}
	return &Failure{
		Kind:     kind,
		Message:  UserMessage(kind),
		Attempts: attempts,
		Err:      err,
	}
}

// UserMessage 種類に対応する利用者向けメッセージ
func UserMessage(kind FailureKind) string {
	if msg, ok := userMessages[kind]; ok {
		return msg
	}
	return userMessages[FailureTranscriptionError]
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s after %d attempt(s): %v", f.Kind, f.Attempts, f.Err)
	}
	return fmt.Sprintf("%s after %d attempt(s)", f.Kind, f.Attempts)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// AsFailure errからFailureを取り出す
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsFailureKind errが指定した種類のFailureかどうか
func IsFailureKind(err error, kind FailureKind) bool {
	f, ok := AsFailure(err)
	return ok && f.Kind == kind
}
