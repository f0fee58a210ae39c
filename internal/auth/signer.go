package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// Signer はHMAC-SHA256による値の署名と検証を提供する。
// OAuthのstateパラメータとメール確認トークンに使用する。
// 署名付きの値はクライアントを経由しても改ざんを検出できる。
type Signer struct {
	secret []byte
}

// NewSigner はSignerを生成する。
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign は値に署名を付与した文字列（value.signature）を返す。
func (s *Signer) Sign(value string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(value))
	return value + "." + hex.EncodeToString(mac.Sum(nil))
}

// Verify は署名付き文字列を検証し、元の値を返す。
// 署名が一致しない場合はエラーを返す。
func (s *Signer) Verify(signed string) (string, error) {
	idx := strings.LastIndex(signed, ".")
	if idx < 0 {
		return "", fmt.Errorf("malformed signed value")
	}
	value, sig := signed[:idx], signed[idx+1:]

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(value))
	expected := hex.EncodeToString(mac.Sum(nil))

	if subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) != 1 {
		return "", fmt.Errorf("signature mismatch")
	}
	return value, nil
}

// NewNonce は暗号的に安全なランダム値を生成する。
func NewNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
