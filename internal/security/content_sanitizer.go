// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService は参加者が入力する自由記述テキスト
// （観察メモ・チャットメッセージ・表示名）をサニタイズし、
// XSS攻撃などのセキュリティリスクから保護する。
// 記録はプレーンテキストとして扱うため、HTMLタグは一切許可しない。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は自由記述テキストのサニタイズ機能のインターフェースを定義する。
// 観察メモ・チャットメッセージ・表示名の保存前に使用される。
type ContentSanitizerService interface {
	// SanitizeText は入力からHTMLタグをすべて除去したプレーンテキストを返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicy（全タグ除去）を使用する。観察メモはHTMLではなく
// プレーンテキストなので、許可リストは空でよい。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText は入力からHTMLタグをすべて除去したプレーンテキストを返す。
// bluemondayはエンティティ参照にエスケープした形で出力するため、
// プレーンテキストとして保存できるようUnescapeStringで戻す。
func (s *contentSanitizer) SanitizeText(raw string) string {
	stripped := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(stripped))
}

// compile-time interface check
var _ ContentSanitizerService = (*contentSanitizer)(nil)
