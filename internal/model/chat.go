package model

import "time"

// ChatRole はチャットメッセージの発話者区分。
type ChatRole string

const (
	// ChatRoleUser は参加者の発話。
	ChatRoleUser ChatRole = "user"
	// ChatRoleAssistant はAIアシスタントの応答。
	ChatRoleAssistant ChatRole = "assistant"
	// ChatRoleSystem はサーバーが注入するコンテキスト。履歴には保存しない。
	ChatRoleSystem ChatRole = "system"
)

// ChatMessage はAIアシスタントとの対話1件を表す。
type ChatMessage struct {
	ID        string
	ProfileID string
	Role      ChatRole
	Content   string
	CreatedAt time.Time
}
