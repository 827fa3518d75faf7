package domain

import (
	"context"
	"errors"
	"time"
)

// ErrRateLimited リモートサービスのレート制限
//
// アダプターはレート制限と判定したエラーをこれでラップして返す。
var ErrRateLimited = errors.New("rate limited")

// ErrCacheMiss キャッシュにキーが存在しない
var ErrCacheMiss = errors.New("cache miss")

// CallKind リモート呼び出しの種類
type CallKind string

const (
	CallTranscribe CallKind = "transcribe"
	CallClassify   CallKind = "classify"
)

// TranscriberRepository 手書き画像の文字起こしを行うリモートサービス
type TranscriberRepository interface {
	// Transcribe 画像から文字を読み取る。文字がなければErrNoTextFoundを返す
	Transcribe(ctx context.Context, imageData []byte) (string, error)

	// ProviderName プロバイダー名を返す
	ProviderName() string
}

// ClassifierRepository 綴りの誤りを分類するリモートサービス
type ClassifierRepository interface {
	// Classify プロンプトを送り、応答テキストを返す
	Classify(ctx context.Context, prompt string) (string, error)

	// ProviderName プロバイダー名を返す
	ProviderName() string
}

// CacheRepository 文字起こし結果のキャッシュストア
type CacheRepository interface {
	// Get 値がなければErrCacheMissを返す
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
	Close() error
}
