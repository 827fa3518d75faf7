package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// RemoteCallRequest リモート呼び出しの入力
//
// 作成後は変更しない。ペイロードは作成時にコピーする。
type RemoteCallRequest struct {
	kind    CallKind
	payload []byte
}

// NewRemoteCallRequest 新しいRemoteCallRequestを作成
func NewRemoteCallRequest(kind CallKind, payload []byte) RemoteCallRequest {
	p := make([]byte, len(payload))
	copy(p, payload)
	return RemoteCallRequest{kind: kind, payload: p}
}

// Kind 呼び出しの種類
func (r RemoteCallRequest) Kind() CallKind {
	return r.kind
}

// Payload ペイロードのコピーを返す
func (r RemoteCallRequest) Payload() []byte {
	p := make([]byte, len(r.payload))
	copy(p, r.payload)
	return p
}

// Fingerprint ペイロードの指紋
func (r RemoteCallRequest) Fingerprint() string {
	return Fingerprint(r.payload)
}

// Fingerprint バイト列のSHA-256を16進文字列で返す
func Fingerprint(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// RemoteCallResult リトライ込みのリモート呼び出し結果
//
// Errがnilなら成功でTextは空でない。Attemptsは常に1以上。
type RemoteCallResult struct {
	Kind     CallKind
	Text     string
	Attempts int
	Err      error
}

// Succeeded 成功したかどうか
func (r RemoteCallResult) Succeeded() bool {
	return r.Err == nil
}
